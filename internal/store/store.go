package store

import (
	"context"
	"time"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Sessions
	SaveSession(ctx context.Context, rec *SessionRecord) error
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]*SessionRecord, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteSessionsIdleSince(ctx context.Context, cutoff time.Time, keep ...string) ([]string, error)

	// Event log (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, sessionID string, since int64) ([]*Event, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// SnapshotCache is a fast lookaside for session snapshots.
// A miss returns (nil, nil).
type SnapshotCache interface {
	Put(ctx context.Context, rec *SessionRecord) error
	Get(ctx context.Context, id string) (*SessionRecord, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
