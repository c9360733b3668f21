package store

import (
	"context"
	"encoding/json"

	"github.com/rendis/nodeflow/pkg/schema"
)

// EventLog provides event-sourcing operations on top of a Store.
type EventLog struct {
	store Store
}

// NewEventLog wraps a Store to provide event-sourcing operations.
func NewEventLog(s Store) *EventLog {
	return &EventLog{store: s}
}

// Append marshals payload and appends it as an event of the given type.
func (el *EventLog) Append(ctx context.Context, sessionID, nodeID, eventType string, payload any) (*Event, error) {
	e := &Event{SessionID: sessionID, NodeID: nodeID, Type: eventType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, storeError("marshal event payload", err)
		}
		e.Payload = raw
	}
	if err := el.store.AppendEvent(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// GetEvents returns events for a session with sequence > since, ordered by sequence ASC.
func (el *EventLog) GetEvents(ctx context.Context, sessionID string, since int64) ([]*Event, error) {
	return el.store.GetEvents(ctx, sessionID, since)
}

// ReplayEvents replays all events for a session and returns the reconstructed
// node results. Returns an error if sequence gaps are detected.
func (el *EventLog) ReplayEvents(ctx context.Context, sessionID string) (map[string]*schema.NodeExecutionResult, error) {
	events, err := el.store.GetEvents(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}

	results := make(map[string]*schema.NodeExecutionResult)
	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in session %s: expected %d, got %d", sessionID, expected, e.Sequence)
		}
	}

	for _, e := range events {
		switch e.Type {
		case schema.EventOutputRecorded, schema.EventOutputFailed, schema.EventOutputPending:
			if e.NodeID == "" || len(e.Payload) == 0 {
				continue
			}
			var r schema.NodeExecutionResult
			if err := json.Unmarshal(e.Payload, &r); err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeStore,
					"event %d in session %s has an unreadable payload", e.Sequence, sessionID).WithCause(err)
			}
			results[e.NodeID] = &r

		case schema.EventOutputCleared:
			delete(results, e.NodeID)

		case schema.EventStateReset:
			results = make(map[string]*schema.NodeExecutionResult)
		}
	}

	return results, nil
}
