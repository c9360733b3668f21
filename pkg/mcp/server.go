package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/nodeflow/internal/expressions"
	"github.com/rendis/nodeflow/internal/session"
	"github.com/rendis/nodeflow/internal/streaming"
	"github.com/rendis/nodeflow/pkg/schema"
)

// ServerDeps holds the dependencies for creating a NodeflowServer.
type ServerDeps struct {
	Manager *session.Manager
	Engines map[string]expressions.Engine // nil builds the default CEL/jq/expr set
	Coercer *expressions.Coercer
	Hub     streaming.EventHub
	Logger  *slog.Logger
}

// NodeflowServer wraps an MCP server with the data-flow tool handlers.
type NodeflowServer struct {
	manager   *session.Manager
	engines   map[string]expressions.Engine
	coercer   *expressions.Coercer
	hub       streaming.EventHub
	logger    *slog.Logger
	owners    *SessionRegistry
	notifier  *SessionNotifier
	mcpServer *server.MCPServer
}

// NewNodeflowServer creates a NodeflowServer with every tool registered.
func NewNodeflowServer(deps ServerDeps) (*NodeflowServer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	engines := deps.Engines
	if engines == nil {
		var err error
		if engines, err = expressions.NewEngines(); err != nil {
			return nil, err
		}
	}
	coercer := deps.Coercer
	if coercer == nil {
		coercer = expressions.NewCoercer(logger)
	}

	s := &NodeflowServer{
		manager: deps.Manager,
		engines: engines,
		coercer: coercer,
		hub:     deps.Hub,
		logger:  logger,
		owners:  NewSessionRegistry(),
	}

	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(func(_ context.Context, cs server.ClientSession) {
		s.owners.RemoveClient(cs.SessionID())
	})

	mcpSrv := server.NewMCPServer(
		"nodeflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithHooks(hooks),
		server.WithInstructions("Nodeflow resolves what data each node of a workflow graph can see. Open a session with nodeflow.open_session, record node results with nodeflow.record_output, and ask nodeflow.available_data what a node may reference. nodeflow.render and nodeflow.evaluate preview templates and expressions against that data."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewSessionNotifier(mcpSrv, s.owners)
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
// With a hub configured, session events are pushed to the owning client.
func (s *NodeflowServer) Serve(ctx context.Context) error {
	if s.hub != nil {
		go func() {
			if err := s.notifier.Run(ctx, s.hub); err != nil {
				s.logger.Warn("session notifier stopped", slog.String("error", err.Error()))
			}
		}()
	}
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *NodeflowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *NodeflowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: openSessionTool(), Handler: s.handleOpenSession},
		{Tool: restoreSessionTool(), Handler: s.handleRestoreSession},
		{Tool: closeSessionTool(), Handler: s.handleCloseSession},
		{Tool: listSessionsTool(), Handler: s.handleListSessions},
		{Tool: validateGraphTool(), Handler: s.handleValidateGraph},
		{Tool: recordOutputTool(), Handler: s.handleRecordOutput},
		{Tool: clearOutputTool(), Handler: s.handleClearOutput},
		{Tool: clearAllTool(), Handler: s.handleClearAll},
		{Tool: getOutputTool(), Handler: s.handleGetOutput},
		{Tool: availableDataTool(), Handler: s.handleAvailableData},
		{Tool: predecessorsTool(), Handler: s.handlePredecessors},
		{Tool: extractVariablesTool(), Handler: s.handleExtractVariables},
		{Tool: parseInputTool(), Handler: s.handleParseInput},
		{Tool: sampleTool(), Handler: s.handleSample},
		{Tool: renderTool(), Handler: s.handleRender},
		{Tool: evaluateTool(), Handler: s.handleEvaluate},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func openSessionTool() mcp.Tool {
	return mcp.NewTool("nodeflow.open_session",
		mcp.WithDescription("Open a session for a workflow graph"),
		mcp.WithObject("graph", mcp.Required(), mcp.Description("Workflow graph with nodes and edges")),
	)
}

func restoreSessionTool() mcp.Tool {
	return mcp.NewTool("nodeflow.restore_session",
		mcp.WithDescription("Reopen a persisted session after a restart or idle expiry"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the session")),
	)
}

func closeSessionTool() mcp.Tool {
	return mcp.NewTool("nodeflow.close_session",
		mcp.WithDescription("Close a session and discard its recorded results"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the session")),
	)
}

func listSessionsTool() mcp.Tool {
	return mcp.NewTool("nodeflow.list_sessions",
		mcp.WithDescription("List open sessions"),
	)
}

func validateGraphTool() mcp.Tool {
	return mcp.NewTool("nodeflow.validate_graph",
		mcp.WithDescription("Validate a workflow graph without opening a session"),
		mcp.WithObject("graph", mcp.Required(), mcp.Description("Workflow graph with nodes and edges")),
	)
}

func recordOutputTool() mcp.Tool {
	return mcp.NewTool("nodeflow.record_output",
		mcp.WithDescription("Record the latest execution result of a node"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the session")),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("ID of the executed node")),
		mcp.WithString("status",
			mcp.Enum(string(schema.ExecutionSuccess), string(schema.ExecutionError), string(schema.ExecutionPending)),
			mcp.Description("Execution status (default: success)"),
		),
		mcp.WithObject("output", mcp.Description("Node output; any JSON value is accepted")),
		mcp.WithString("error", mcp.Description("Error message when status is error")),
	)
}

func clearOutputTool() mcp.Tool {
	return mcp.NewTool("nodeflow.clear_output",
		mcp.WithDescription("Remove the recorded result of one node"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the session")),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("ID of the node")),
	)
}

func clearAllTool() mcp.Tool {
	return mcp.NewTool("nodeflow.clear_all",
		mcp.WithDescription("Remove every recorded result of a session"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the session")),
	)
}

func getOutputTool() mcp.Tool {
	return mcp.NewTool("nodeflow.get_output",
		mcp.WithDescription("Get the recorded result of one node"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the session")),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("ID of the node")),
	)
}

func availableDataTool() mcp.Tool {
	return mcp.NewTool("nodeflow.available_data",
		mcp.WithDescription("Resolve the upstream data a node can reference"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the session")),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("ID of the node")),
	)
}

func predecessorsTool() mcp.Tool {
	return mcp.NewTool("nodeflow.predecessors",
		mcp.WithDescription("List the direct and transitive predecessors of a node"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the session")),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("ID of the node")),
	)
}

func extractVariablesTool() mcp.Tool {
	return mcp.NewTool("nodeflow.extract_variables",
		mcp.WithDescription("Extract {{variable}} names from a template and infer their input schema"),
		mcp.WithString("template", mcp.Required(), mcp.Description("Template text")),
	)
}

func parseInputTool() mcp.Tool {
	return mcp.NewTool("nodeflow.parse_input",
		mcp.WithDescription("Coerce user text to a declared field type"),
		mcp.WithString("text", mcp.Required(), mcp.Description("Raw user input")),
		mcp.WithString("type", mcp.Required(),
			mcp.Enum(string(schema.FieldString), string(schema.FieldNumber), string(schema.FieldBoolean),
				string(schema.FieldObject), string(schema.FieldArray), string(schema.FieldAny)),
			mcp.Description("Declared field type"),
		),
	)
}

func sampleTool() mcp.Tool {
	return mcp.NewTool("nodeflow.sample",
		mcp.WithDescription("Generate sample values for a set of schema fields"),
		mcp.WithObject("fields", mcp.Required(), mcp.Description("Map of field name to schema field")),
	)
}

func renderTool() mcp.Tool {
	return mcp.NewTool("nodeflow.render",
		mcp.WithDescription("Render a template against a node's available data or an explicit scope"),
		mcp.WithString("template", mcp.Required(), mcp.Description("Template text")),
		mcp.WithString("session_id", mcp.Description("Session whose data to use")),
		mcp.WithString("node_id", mcp.Description("Node whose available data to use")),
		mcp.WithObject("scope", mcp.Description("Explicit scope, used when no session is given")),
		mcp.WithObject("variables", mcp.Description("Extra top-level values")),
	)
}

func evaluateTool() mcp.Tool {
	return mcp.NewTool("nodeflow.evaluate",
		mcp.WithDescription("Evaluate a preview expression against a node's available data or an explicit scope"),
		mcp.WithString("engine", mcp.Required(), mcp.Enum("cel", "jq", "expr"), mcp.Description("Expression engine")),
		mcp.WithString("expression", mcp.Required(), mcp.Description("Expression source")),
		mcp.WithString("session_id", mcp.Description("Session whose data to use")),
		mcp.WithString("node_id", mcp.Description("Node whose available data to use")),
		mcp.WithObject("scope", mcp.Description("Explicit scope, used when no session is given")),
		mcp.WithObject("variables", mcp.Description("Extra top-level values")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("nodeflow.diagram",
		mcp.WithDescription("Draw a session's workflow graph with the status of each recorded node"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the session")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "png", "svg"),
			mcp.Description("Output format: ascii (text), mermaid (flowchart syntax), png (image) or svg (markup)"),
		),
		mcp.WithString("include_status", mcp.Description("Overlay recorded results (default: true)")),
	)
}
