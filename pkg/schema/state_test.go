package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailableData_MarshalEntryPoint(t *testing.T) {
	data := AvailableData{EntryPoint: true, Session: map[string]any{"message": "hi"}}
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"hi"}`, string(raw))

	raw, err = json.Marshal(&AvailableData{EntryPoint: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))
}

func TestAvailableData_MarshalFull(t *testing.T) {
	data := AvailableData{
		Session:     map[string]any{},
		Source:      map[string]any{"a": 1},
		NodeOutputs: map[string]any{"n1": map[string]any{"a": 1}},
	}
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"session":{},"source":{"a":1},"node_outputs":{"n1":{"a":1}}}`, string(raw))
}

func TestAvailableData_Scope(t *testing.T) {
	var nilData *AvailableData
	assert.Empty(t, nilData.Scope())

	entry := &AvailableData{EntryPoint: true, Session: map[string]any{"m": 1}}
	assert.Equal(t, map[string]any{"session": map[string]any{"m": 1}}, entry.Scope())

	full := &AvailableData{Session: map[string]any{}, Source: "x", NodeOutputs: map[string]any{}}
	scope := full.Scope()
	assert.Len(t, scope, 3)
	assert.Equal(t, "x", scope["source"])
}

func TestWorkflowExecutionState_JSONKeys(t *testing.T) {
	st := NewWorkflowExecutionState()
	st.NodeOutputs["a"] = &NodeExecutionResult{Status: ExecutionSuccess, NodeType: NodeTypeTemplate, NodeName: "A", Sequence: 1}
	raw, err := json.Marshal(st)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "node_outputs")
	a := decoded["node_outputs"].(map[string]any)["a"].(map[string]any)
	assert.Equal(t, "templateNode", a["nodeType"])
	assert.Equal(t, "A", a["nodeName"])
}

func TestNode_DisplayName(t *testing.T) {
	assert.Equal(t, "Lbl", Node{ID: "x", Data: map[string]any{"label": "Lbl", "name": "N"}}.DisplayName())
	assert.Equal(t, "N", Node{ID: "x", Data: map[string]any{"name": "N"}}.DisplayName())
	assert.Equal(t, "x", Node{ID: "x"}.DisplayName())
	assert.True(t, NodeTypeChatInput.Known())
	assert.False(t, NodeType("nope").Known())
}
