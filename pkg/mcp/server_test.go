package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNodeflowServer(t *testing.T) {
	s := newTestServer(t)
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.Len(t, s.engines, 3)
	assert.NotNil(t, s.coercer)
}

func TestToolRegistration(t *testing.T) {
	s := newTestServer(t)

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 17)

	expectedTools := []string{
		"nodeflow.open_session",
		"nodeflow.restore_session",
		"nodeflow.close_session",
		"nodeflow.list_sessions",
		"nodeflow.validate_graph",
		"nodeflow.record_output",
		"nodeflow.clear_output",
		"nodeflow.clear_all",
		"nodeflow.get_output",
		"nodeflow.available_data",
		"nodeflow.predecessors",
		"nodeflow.extract_variables",
		"nodeflow.parse_input",
		"nodeflow.sample",
		"nodeflow.render",
		"nodeflow.evaluate",
		"nodeflow.diagram",
	}
	for _, name := range expectedTools {
		tool := s.mcpServer.GetTool(name)
		assert.NotNil(t, tool, "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"open", "nodeflow.open_session", "Open a session for a workflow graph"},
		{"record", "nodeflow.record_output", "Record the latest execution result of a node"},
		{"available", "nodeflow.available_data", "Resolve the upstream data a node can reference"},
		{"extract", "nodeflow.extract_variables", "Extract {{variable}} names from a template and infer their input schema"},
		{"evaluate", "nodeflow.evaluate", "Evaluate a preview expression against a node's available data or an explicit scope"},
	}

	s := newTestServer(t)

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}

func TestRecordOutputStatusEnum(t *testing.T) {
	s := newTestServer(t)
	tool := s.mcpServer.GetTool("nodeflow.record_output")
	require.NotNil(t, tool)

	prop, ok := tool.Tool.InputSchema.Properties["status"].(map[string]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"success", "error", "pending"}, prop["enum"])
	assert.ElementsMatch(t, []string{"session_id", "node_id"}, tool.Tool.InputSchema.Required)
}
