package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/nodeflow/pkg/schema"
)

// SessionRecord is the persisted representation of an open session.
type SessionRecord struct {
	ID         string                         `json:"id"`
	WorkflowID string                         `json:"workflow_id,omitempty"`
	Graph      schema.WorkflowGraph           `json:"graph"`
	State      *schema.WorkflowExecutionState `json:"state,omitempty"`
	CreatedAt  time.Time                      `json:"created_at"`
	UpdatedAt  time.Time                      `json:"updated_at"`
}

// Event is an immutable entry in a session's event log.
type Event struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	NodeID    string          `json:"node_id,omitempty"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}

// SessionFilter narrows ListSessions.
type SessionFilter struct {
	WorkflowID string
	Limit      int
	Offset     int
}
