package schema

import (
	"encoding/json"
	"time"
)

// ExecutionStatus is the outcome of a node's latest execution.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionError   ExecutionStatus = "error"
	ExecutionPending ExecutionStatus = "pending"
)

// NodeExecutionResult is the latest recorded execution of one node.
// It is replaced wholesale on every execution event, never patched.
type NodeExecutionResult struct {
	Status    ExecutionStatus `json:"status"`
	Output    any             `json:"output"`
	Timestamp time.Time       `json:"timestamp"`
	NodeType  NodeType        `json:"nodeType"`
	NodeName  string          `json:"nodeName"`
	Sequence  int64           `json:"sequence"`
}

// WorkflowExecutionState is what a session knows about executed nodes.
// Session and Source are aggregates over NodeOutputs; after a clear or restore
// they are rebuilt by merging successful outputs in Sequence order.
type WorkflowExecutionState struct {
	Session     map[string]any                  `json:"session"`
	Source      map[string]any                  `json:"source"`
	NodeOutputs map[string]*NodeExecutionResult `json:"node_outputs"`
}

// NewWorkflowExecutionState returns the empty initial state.
func NewWorkflowExecutionState() *WorkflowExecutionState {
	return &WorkflowExecutionState{
		Session:     map[string]any{},
		Source:      map[string]any{},
		NodeOutputs: map[string]*NodeExecutionResult{},
	}
}

// AvailableData is the upstream data a node may see.
//
// For an entry-point node without predecessors only Session is set and
// EntryPoint is true; such a value marshals to JSON as the bare session map.
type AvailableData struct {
	Session     map[string]any `json:"session"`
	Source      any            `json:"source"`
	NodeOutputs map[string]any `json:"node_outputs"`
	EntryPoint  bool           `json:"-"`
}

// Scope returns the namespaced view used for template rendering and preview expressions.
func (a *AvailableData) Scope() map[string]any {
	if a == nil {
		return map[string]any{}
	}
	scope := map[string]any{"session": a.Session}
	if a.EntryPoint {
		return scope
	}
	scope["source"] = a.Source
	scope["node_outputs"] = a.NodeOutputs
	return scope
}

func (a AvailableData) MarshalJSON() ([]byte, error) {
	if a.EntryPoint {
		session := a.Session
		if session == nil {
			session = map[string]any{}
		}
		return json.Marshal(session)
	}
	type plain AvailableData
	return json.Marshal(plain(a))
}
