package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/nodeflow/internal/diagram"
	"github.com/rendis/nodeflow/internal/expressions"
	"github.com/rendis/nodeflow/pkg/schema"
)

// handleOpenSession validates a graph and opens a session for it.
func (s *NodeflowServer) handleOpenSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var def schema.WorkflowGraph
	if err := decodeArg(req, "graph", &def); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sess, err := s.manager.Open(ctx, def)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to open session: %v", err)), nil
	}

	// Capture the owning client for stream notifications.
	if cs := server.ClientSessionFromContext(ctx); cs != nil {
		s.owners.Register(sess.ID, cs.SessionID())
	}

	return marshalResult(sess.Info())
}

// handleRestoreSession reloads a session from the snapshot cache or the store.
func (s *NodeflowServer) handleRestoreSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	sess, err := s.manager.Restore(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to restore session: %v", err)), nil
	}
	if cs := server.ClientSessionFromContext(ctx); cs != nil {
		s.owners.Register(sess.ID, cs.SessionID())
	}
	return marshalResult(sess.Info())
}

func (s *NodeflowServer) handleCloseSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	if err := s.manager.Close(ctx, sessionID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to close session: %v", err)), nil
	}
	s.owners.Remove(sessionID)
	return marshalResult(map[string]any{"session_id": sessionID, "closed": true})
}

func (s *NodeflowServer) handleListSessions(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(map[string]any{"sessions": s.manager.List()})
}

// handleValidateGraph runs the full validation pipeline and reports every issue.
func (s *NodeflowServer) handleValidateGraph(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var def schema.WorkflowGraph
	if err := decodeArg(req, "graph", &def); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result := s.manager.Validator().ValidateGraph(&def)
	return marshalResult(map[string]any{
		"valid":    result.Valid(),
		"errors":   result.Errors,
		"warnings": result.Warnings,
	})
}

// handleRecordOutput records a success, failure or pending marker for a node.
func (s *NodeflowServer) handleRecordOutput(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, nodeID, errResult := requireSessionNode(req)
	if errResult != nil {
		return errResult, nil
	}

	var (
		result schema.NodeExecutionResult
		err    error
	)
	switch status := schema.ExecutionStatus(req.GetString("status", string(schema.ExecutionSuccess))); status {
	case schema.ExecutionSuccess:
		result, err = s.manager.Record(ctx, sessionID, nodeID, req.GetArguments()["output"])
	case schema.ExecutionError:
		result, err = s.manager.RecordFailure(ctx, sessionID, nodeID, req.GetString("error", ""))
	case schema.ExecutionPending:
		result, err = s.manager.MarkPending(ctx, sessionID, nodeID)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown status %q", status)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to record output: %v", err)), nil
	}
	return marshalResult(result)
}

func (s *NodeflowServer) handleClearOutput(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, nodeID, errResult := requireSessionNode(req)
	if errResult != nil {
		return errResult, nil
	}
	cleared, err := s.manager.Clear(ctx, sessionID, nodeID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to clear output: %v", err)), nil
	}
	return marshalResult(map[string]any{"node_id": nodeID, "cleared": cleared})
}

func (s *NodeflowServer) handleClearAll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	n, err := s.manager.ClearAll(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to clear outputs: %v", err)), nil
	}
	return marshalResult(map[string]any{"cleared": n})
}

func (s *NodeflowServer) handleGetOutput(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, nodeID, errResult := requireSessionNode(req)
	if errResult != nil {
		return errResult, nil
	}
	result, ok, err := s.manager.Output(sessionID, nodeID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get output: %v", err)), nil
	}
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no output recorded for node %q", nodeID)), nil
	}
	return marshalResult(result)
}

// handleAvailableData returns the upstream data visible to a node.
// "data" is null when the node has no predecessors and is not an entry point.
func (s *NodeflowServer) handleAvailableData(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, nodeID, errResult := requireSessionNode(req)
	if errResult != nil {
		return errResult, nil
	}
	data, err := s.manager.Available(ctx, sessionID, nodeID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve available data: %v", err)), nil
	}
	return marshalResult(map[string]any{"node_id": nodeID, "data": data})
}

func (s *NodeflowServer) handlePredecessors(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, nodeID, errResult := requireSessionNode(req)
	if errResult != nil {
		return errResult, nil
	}
	preds, err := s.manager.Predecessors(sessionID, nodeID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list predecessors: %v", err)), nil
	}
	return marshalResult(preds)
}

func (s *NodeflowServer) handleExtractVariables(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	template, err := req.RequireString("template")
	if err != nil {
		return mcp.NewToolResultError("template is required"), nil
	}
	names := expressions.ExtractVariables(template)
	return marshalResult(map[string]any{
		"variables": names,
		"schema":    expressions.SchemaFromVariables(names),
	})
}

func (s *NodeflowServer) handleParseInput(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text is required"), nil
	}
	typ, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError("type is required"), nil
	}
	return marshalResult(s.coercer.Parse(ctx, text, schema.FieldType(typ)))
}

func (s *NodeflowServer) handleSample(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var fields map[string]*schema.SchemaField
	if err := decodeArg(req, "fields", &fields); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return marshalResult(expressions.GenerateSamples(fields))
}

// handleRender substitutes {{path}} placeholders. Unresolved placeholders stay
// in the text and are listed under "missing".
func (s *NodeflowServer) handleRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	template, err := req.RequireString("template")
	if err != nil {
		return mcp.NewToolResultError("template is required"), nil
	}
	scope, err := s.resolveScope(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return marshalResult(expressions.Render(template, scope))
}

func (s *NodeflowServer) handleEvaluate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	engineName, err := req.RequireString("engine")
	if err != nil {
		return mcp.NewToolResultError("engine is required"), nil
	}
	expression, err := req.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError("expression is required"), nil
	}
	engine, err := expressions.Lookup(s.engines, engineName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	scope, err := s.resolveScope(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	value, err := engine.Evaluate(ctx, expression, scope)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("evaluation failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"engine": engineName, "value": value})
}

// handleDiagram draws the session graph in the requested format.
func (s *NodeflowServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}

	sess, err := s.manager.Get(sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session lookup failed: %v", err)), nil
	}
	var st *schema.WorkflowExecutionState
	if req.GetString("include_status", "true") != "false" {
		st = sess.Snapshot()
	}
	model := diagram.Build(sess.Graph(), st)

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	case "png":
		png, imgErr := diagram.RenderImage(ctx, model, diagram.FormatPNG)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultImage(model.Title, base64.StdEncoding.EncodeToString(png), "image/png"), nil
	case "svg":
		svg, imgErr := diagram.RenderImage(ctx, model, diagram.FormatSVG)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultText(string(svg)), nil
	default:
		return mcp.NewToolResultError("format must be ascii, mermaid, png, or svg"), nil
	}
}

// --- Helpers ---

// resolveScope builds the evaluation scope from a session node when session_id
// is given, otherwise from the explicit "scope" argument. "variables" are
// layered on top.
func (s *NodeflowServer) resolveScope(ctx context.Context, req mcp.CallToolRequest) (map[string]any, error) {
	var scope map[string]any
	if sessionID := req.GetString("session_id", ""); sessionID != "" {
		nodeID := req.GetString("node_id", "")
		if nodeID == "" {
			return nil, fmt.Errorf("node_id is required with session_id")
		}
		data, err := s.manager.Available(ctx, sessionID, nodeID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve available data: %w", err)
		}
		scope = expressions.NewScope(data)
	} else {
		scope = mcp.ParseStringMap(req, "scope", map[string]any{})
	}

	vars := mcp.ParseStringMap(req, "variables", nil)
	if len(vars) == 0 {
		return scope, nil
	}
	return expressions.WithVariables(scope, vars)
}

func requireSessionNode(req mcp.CallToolRequest) (string, string, *mcp.CallToolResult) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return "", "", mcp.NewToolResultError("session_id is required")
	}
	nodeID, err := req.RequireString("node_id")
	if err != nil {
		return "", "", mcp.NewToolResultError("node_id is required")
	}
	return sessionID, nodeID, nil
}

// decodeArg re-encodes an object argument into target.
func decodeArg(req mcp.CallToolRequest, key string, target any) error {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return fmt.Errorf("%s is required", key)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	return nil
}

// marshalResult marshals v to JSON and returns it as a tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
