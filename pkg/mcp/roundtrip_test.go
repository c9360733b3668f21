package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nodeflow/internal/session"
	"github.com/rendis/nodeflow/internal/store"
	"github.com/rendis/nodeflow/internal/streaming"
)

// --- Round-trip infrastructure ---

type testEnv struct {
	store  *store.LibSQLStore
	hub    *streaming.MemoryHub
	server *NodeflowServer
}

func newTestEnv(t *testing.T, st *store.LibSQLStore) *testEnv {
	t.Helper()
	if st == nil {
		var err error
		st, err = store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "roundtrip.db"))
		require.NoError(t, err)
		require.NoError(t, st.Migrate(context.Background()))
		t.Cleanup(func() { _ = st.Close() })
	}

	hub := streaming.NewMemoryHub()
	m, err := session.NewManager(session.Config{Store: st, Hub: hub})
	require.NoError(t, err)
	srv, err := NewNodeflowServer(ServerDeps{Manager: m, Hub: hub})
	require.NoError(t, err)
	return &testEnv{store: st, hub: hub, server: srv}
}

// callTool sends initialize and tools/call through HandleMessage (full JSON-RPC round-trip).
func (e *testEnv) callTool(t *testing.T, toolName string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	mcpSrv := e.server.MCPServer()

	rawInit, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      0,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "roundtrip-test", "version": "1.0.0"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, mcpSrv.HandleMessage(ctx, rawInit))

	rawReq, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": toolName, "arguments": args},
	})
	require.NoError(t, err)
	resp := mcpSrv.HandleMessage(ctx, rawReq)
	require.NotNil(t, resp)

	respBytes, err := json.Marshal(resp)
	require.NoError(t, err)
	var rpcResp struct {
		Result *mcp.CallToolResult `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpcResp))
	if rpcResp.Error != nil {
		t.Fatalf("JSON-RPC error: code=%d, msg=%s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	require.NotNil(t, rpcResp.Result)
	return rpcResp.Result
}

func (e *testEnv) mustCall(t *testing.T, toolName string, args map[string]any, target any) {
	t.Helper()
	result := e.callTool(t, toolName, args)
	require.False(t, result.IsError, extractText(t, result))
	if target != nil {
		unmarshalResult(t, result, target)
	}
}

// --- Tests ---

func TestRoundTrip_SupportFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	var info session.Info
	env.mustCall(t, "nodeflow.open_session", map[string]any{"graph": supportGraphArg()}, &info)
	sid := info.ID

	env.mustCall(t, "nodeflow.record_output", map[string]any{
		"session_id": sid, "node_id": "chat",
		"output": map[string]any{"message": "my order is late", "direct_input": "raw"},
	}, nil)
	env.mustCall(t, "nodeflow.record_output", map[string]any{
		"session_id": sid, "node_id": "tool",
		"output": map[string]any{"tools": []any{"lookup_order"}},
	}, nil)
	env.mustCall(t, "nodeflow.record_output", map[string]any{
		"session_id": sid, "node_id": "agent",
		"output": map[string]any{"reply": "It ships tomorrow"},
	}, nil)

	// The tool builder is not a visible source for the agent.
	var agentData struct {
		Data struct {
			Source      map[string]any `json:"source"`
			NodeOutputs map[string]any `json:"node_outputs"`
		} `json:"data"`
	}
	env.mustCall(t, "nodeflow.available_data", map[string]any{"session_id": sid, "node_id": "agent"}, &agentData)
	assert.Equal(t, "my order is late", agentData.Data.Source["message"])
	assert.NotContains(t, agentData.Data.Source, "direct_input")
	assert.Contains(t, agentData.Data.NodeOutputs, "chat")

	var rendered map[string]any
	env.mustCall(t, "nodeflow.render", map[string]any{
		"template":   "Customer said: {{session.message}}. Draft: {{source.reply}}",
		"session_id": sid, "node_id": "reply",
	}, &rendered)
	assert.Equal(t, "Customer said: my order is late. Draft: It ships tomorrow", rendered["text"])

	var evaluated map[string]any
	env.mustCall(t, "nodeflow.evaluate", map[string]any{
		"engine": "cel", "expression": `has(node_outputs.agent)`,
		"session_id": sid, "node_id": "reply",
	}, &evaluated)
	assert.Equal(t, true, evaluated["value"])

	events, err := env.store.GetEvents(context.Background(), sid, 0)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, "session_opened", events[0].Type)
}

func TestRoundTrip_RestoreAfterRestart(t *testing.T) {
	first := newTestEnv(t, nil)

	var info session.Info
	first.mustCall(t, "nodeflow.open_session", map[string]any{"graph": supportGraphArg()}, &info)
	first.mustCall(t, "nodeflow.record_output", map[string]any{
		"session_id": info.ID, "node_id": "chat", "output": map[string]any{"message": "hi"},
	}, nil)

	// A second server over the same database knows nothing until restored.
	second := newTestEnv(t, first.store)
	result := second.callTool(t, "nodeflow.available_data", map[string]any{"session_id": info.ID, "node_id": "agent"})
	assert.True(t, result.IsError)

	var restored session.Info
	second.mustCall(t, "nodeflow.restore_session", map[string]any{"session_id": info.ID}, &restored)
	assert.Equal(t, info.ID, restored.ID)
	assert.Equal(t, 1, restored.Executed)

	var data struct {
		Data struct {
			Session map[string]any `json:"session"`
		} `json:"data"`
	}
	second.mustCall(t, "nodeflow.available_data", map[string]any{"session_id": info.ID, "node_id": "agent"}, &data)
	assert.Equal(t, map[string]any{"message": "hi"}, data.Data.Session)
}

func TestRoundTrip_HubReceivesToolMutations(t *testing.T) {
	env := newTestEnv(t, nil)
	ch, cancel, err := env.hub.Subscribe(context.Background(), streaming.EventFilter{EventTypes: []string{"output_recorded"}})
	require.NoError(t, err)
	defer cancel()

	var info session.Info
	env.mustCall(t, "nodeflow.open_session", map[string]any{"graph": supportGraphArg()}, &info)
	env.mustCall(t, "nodeflow.record_output", map[string]any{
		"session_id": info.ID, "node_id": "chat", "output": map[string]any{"message": "hi"},
	}, nil)

	select {
	case ev := <-ch:
		assert.Equal(t, info.ID, ev.SessionID)
		assert.Equal(t, "chat", ev.NodeID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestRoundTrip_ListTools(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	mcpSrv := env.server.MCPServer()

	initMsg, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": 0, "method": "initialize",
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "roundtrip-test", "version": "1.0.0"},
		},
	})
	mcpSrv.HandleMessage(ctx, initMsg)

	listMsg, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": "tools/list"})
	resp := mcpSrv.HandleMessage(ctx, listMsg)
	respBytes, err := json.Marshal(resp)
	require.NoError(t, err)

	var rpcResp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpcResp))
	assert.Len(t, rpcResp.Result.Tools, 17)
}
