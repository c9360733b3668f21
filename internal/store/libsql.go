package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/nodeflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, storeError("open libsql", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. event log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate applies the embedded migrations not yet recorded in the ledger.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	if _, err := migrate(ctx, s.db); err != nil {
		return storeError("migrate", err)
	}
	return nil
}

// Migrations lists the applied migration names in order.
func (s *LibSQLStore) Migrations(ctx context.Context) ([]string, error) {
	names, err := appliedMigrations(ctx, s.db)
	if err != nil {
		return nil, storeError("list migrations", err)
	}
	return names, nil
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Sessions ---

// SaveSession inserts or replaces a session snapshot. CreatedAt is kept from the first save.
func (s *LibSQLStore) SaveSession(ctx context.Context, rec *SessionRecord) error {
	if rec == nil || rec.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "session record requires an id")
	}
	graph, err := json.Marshal(rec.Graph)
	if err != nil {
		return storeError("marshal session graph", err)
	}
	var state any
	if rec.State != nil {
		raw, err := json.Marshal(rec.State)
		if err != nil {
			return storeError("marshal session state", err)
		}
		state = string(raw)
	}

	rec.CreatedAt = timeOrNow(rec.CreatedAt)
	rec.UpdatedAt = timeOrNow(rec.UpdatedAt)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, workflow_id, graph, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   workflow_id=excluded.workflow_id, graph=excluded.graph,
		   state=excluded.state, updated_at=excluded.updated_at`,
		rec.ID, nullStr(rec.WorkflowID), string(graph), state, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return storeError("save session", err)
	}
	return nil
}

func (s *LibSQLStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, graph, state, created_at, updated_at FROM sessions WHERE id = ?`, id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("session", id)
	}
	if err != nil {
		return nil, storeError("get session", err)
	}
	return rec, nil
}

func (s *LibSQLStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*SessionRecord, error) {
	var where []string
	var args []any

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}

	query := `SELECT id, workflow_id, graph, state, created_at, updated_at FROM sessions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("list sessions", err)
	}
	defer rows.Close()

	var out []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, storeError("scan session", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list sessions", err)
	}
	return out, nil
}

// DeleteSession removes a session and its event log.
func (s *LibSQLStore) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin tx", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return storeError("delete session", err)
	}
	if err := checkRowsAffected(res, "session", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, id); err != nil {
		return storeError("delete session events", err)
	}
	if err := tx.Commit(); err != nil {
		return storeError("commit delete session", err)
	}
	return nil
}

// DeleteSessionsIdleSince removes every session whose last update is before cutoff,
// except those listed in keep, and returns the removed IDs.
func (s *LibSQLStore) DeleteSessionsIdleSince(ctx context.Context, cutoff time.Time, keep ...string) ([]string, error) {
	kept := make(map[string]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, updated_at FROM sessions ORDER BY id ASC`)
	if err != nil {
		return nil, storeError("list idle sessions", err)
	}
	var idle []string
	for rows.Next() {
		var id string
		var updated time.Time
		if err := rows.Scan(&id, &updated); err != nil {
			rows.Close()
			return nil, storeError("scan idle session", err)
		}
		if updated.Before(cutoff) && !kept[id] {
			idle = append(idle, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, storeError("list idle sessions", err)
	}
	rows.Close()

	removed := make([]string, 0, len(idle))
	for _, id := range idle {
		if err := s.DeleteSession(ctx, id); err != nil {
			if schema.HasCode(err, schema.ErrCodeNotFound) {
				continue
			}
			return removed, err
		}
		removed = append(removed, id)
	}
	return removed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	rec := &SessionRecord{}
	var workflowID, state sql.NullString
	var graph string
	if err := row.Scan(&rec.ID, &workflowID, &graph, &state, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.WorkflowID = workflowID.String
	if err := json.Unmarshal([]byte(graph), &rec.Graph); err != nil {
		return nil, fmt.Errorf("unmarshal graph: %w", err)
	}
	if raw := rawOrNil(state); raw != nil {
		rec.State = &schema.WorkflowExecutionState{}
		if err := json.Unmarshal(raw, rec.State); err != nil {
			return nil, fmt.Errorf("unmarshal state: %w", err)
		}
	}
	return rec, nil
}

// --- Events ---

// AppendEvent appends an event with a monotonically increasing per-session sequence.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	if event == nil || event.SessionID == "" {
		return schema.NewError(schema.ErrCodeValidation, "event requires a session id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin tx", err)
	}
	defer tx.Rollback()

	// BeginTx starts a deferred transaction. Touching the session row takes the
	// write lock before the next sequence is read.
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = updated_at WHERE id = ?`, event.SessionID); err != nil {
		return storeError("acquire write lock", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE session_id = ?`, event.SessionID,
	).Scan(&seq)
	if err != nil {
		return storeError("get next sequence", err)
	}

	ts := timeOrNow(event.Timestamp)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (session_id, node_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.SessionID, nullStr(event.NodeID), event.Type, nullRaw(event.Payload), ts, seq,
	)
	if err != nil {
		return storeError("insert event", err)
	}

	if err := tx.Commit(); err != nil {
		return storeError("commit event", err)
	}
	event.Sequence = seq
	event.Timestamp = ts
	return nil
}

// GetEvents returns events for a session with sequence > since, ordered by sequence ASC.
func (s *LibSQLStore) GetEvents(ctx context.Context, sessionID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, node_id, event_type, payload, timestamp, sequence
		 FROM events WHERE session_id = ? AND sequence > ? ORDER BY sequence ASC`,
		sessionID, since,
	)
	if err != nil {
		return nil, storeError("get events", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e := &Event{}
		var nodeID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &nodeID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, storeError("scan event", err)
		}
		e.NodeID = nodeID.String
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("scan events", err)
	}
	return events, nil
}

// --- Helpers ---

func storeError(op string, err error) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %v", op, err).WithCause(err)
}

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeError("rows affected", err)
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
