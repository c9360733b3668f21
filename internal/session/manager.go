package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/nodeflow/internal/availability"
	"github.com/rendis/nodeflow/internal/compaction"
	"github.com/rendis/nodeflow/internal/graph"
	"github.com/rendis/nodeflow/internal/logging"
	"github.com/rendis/nodeflow/internal/state"
	"github.com/rendis/nodeflow/internal/store"
	"github.com/rendis/nodeflow/internal/streaming"
	"github.com/rendis/nodeflow/internal/validation"
	"github.com/rendis/nodeflow/pkg/schema"
)

// Config wires a Manager. Only the zero value of every field is required;
// persistence, caching, streaming and metrics are each optional.
type Config struct {
	Registry         *graph.Registry  // nil = graph.DefaultRegistry()
	Exclusions       graph.Exclusions // nil = graph.DefaultExclusions()
	RedactionMarker  string           // "" = availability.DefaultRedactionMarker
	CompactThreshold int              // <= 0 = compaction.DefaultThreshold
	IdleTTL          time.Duration    // <= 0 = sessions never expire

	Store   store.Store
	Cache   store.SnapshotCache
	Hub     streaming.EventHub
	Metrics *Metrics
	Logger  *slog.Logger
	Clock   func() time.Time
}

// Predecessors lists the upstream nodes of one node.
type Predecessors struct {
	NodeID     string   `json:"node_id"`
	Direct     []string `json:"direct"`
	Transitive []string `json:"transitive"`
}

// Manager owns the open sessions and fans every mutation out to persistence,
// the snapshot cache, the event hub and metrics.
type Manager struct {
	cfg       Config
	validator *validation.GraphValidator
	eventLog  *store.EventLog
	logger    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager with no open sessions.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Registry == nil {
		cfg.Registry = graph.DefaultRegistry()
	}
	if cfg.Exclusions == nil {
		cfg.Exclusions = graph.DefaultExclusions()
	}
	if cfg.RedactionMarker == "" {
		cfg.RedactionMarker = availability.DefaultRedactionMarker
	}
	if cfg.CompactThreshold <= 0 {
		cfg.CompactThreshold = compaction.DefaultThreshold
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	v, err := validation.NewGraphValidator(cfg.Registry)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:       cfg,
		validator: v,
		logger:    logger.With(slog.String("component", "session")),
		sessions:  make(map[string]*Session),
	}
	if cfg.Store != nil {
		m.eventLog = store.NewEventLog(cfg.Store)
	}
	return m, nil
}

// Validator returns the validator used for graphs and input contracts.
func (m *Manager) Validator() *validation.GraphValidator { return m.validator }

// --- Lifecycle ---

// Open validates def and starts a new session for it.
func (m *Manager) Open(ctx context.Context, def schema.WorkflowGraph) (*Session, error) {
	g, err := m.buildGraph(ctx, def)
	if err != nil {
		return nil, err
	}

	now := m.cfg.Clock()
	sess := m.newSession(uuid.NewString(), def.ID, g, now)

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	m.cfg.Metrics.sessionOpened()

	ctx = logging.WithIDs(ctx, sess.ID, "", sess.WorkflowID)
	m.logger.InfoContext(ctx, "session opened", slog.Int("nodes", len(def.Nodes)))

	sess.mu.Lock()
	defer sess.mu.Unlock()
	m.commit(ctx, sess, schema.EventSessionOpened, "", map[string]any{"nodes": len(def.Nodes)})
	return sess, nil
}

// Restore reopens a persisted session, preferring the snapshot cache over the store.
// A session already open is returned as is.
func (m *Manager) Restore(ctx context.Context, id string) (*Session, error) {
	if sess, err := m.Get(id); err == nil {
		return sess, nil
	}

	rec, err := m.loadRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithIDs(ctx, rec.ID, "", rec.WorkflowID)

	g, err := m.buildGraph(ctx, rec.Graph)
	if err != nil {
		return nil, err
	}

	sess := m.newSession(rec.ID, rec.WorkflowID, g, m.cfg.Clock())
	sess.CreatedAt = rec.CreatedAt

	st := rec.State
	if st == nil && m.eventLog != nil {
		results, err := m.eventLog.ReplayEvents(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		st = &schema.WorkflowExecutionState{NodeOutputs: results}
	}
	sess.state.Restore(st)

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.sessions[id] = sess
	m.mu.Unlock()
	m.cfg.Metrics.sessionOpened()

	m.logger.InfoContext(ctx, "session restored", slog.Int("executed", sess.state.Len()))
	return sess, nil
}

func (m *Manager) loadRecord(ctx context.Context, id string) (*store.SessionRecord, error) {
	if m.cfg.Cache != nil {
		rec, err := m.cfg.Cache.Get(ctx, id)
		if err != nil {
			m.logger.ErrorContext(ctx, "snapshot cache read failed", slog.String("session_id", id), slog.String("error", err.Error()))
		} else if rec != nil {
			return rec, nil
		}
	}
	if m.cfg.Store == nil {
		return nil, sessionNotFound(id)
	}
	return m.cfg.Store.GetSession(ctx, id)
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, sessionNotFound(id)
	}
	return sess, nil
}

// Close ends a session and removes it from persistence and the cache.
func (m *Manager) Close(ctx context.Context, id string) error {
	sess, err := m.remove(id)
	if err != nil {
		return err
	}
	ctx = logging.WithIDs(ctx, sess.ID, "", sess.WorkflowID)
	m.discard(ctx, sess, schema.EventSessionClosed)
	m.logger.InfoContext(ctx, "session closed")
	return nil
}

// List summarizes every open session, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ReplaceGraph swaps in a new graph for an open session. Results of nodes that
// no longer exist are cleared; the rest are kept.
func (m *Manager) ReplaceGraph(ctx context.Context, id string, def schema.WorkflowGraph) ([]string, error) {
	sess, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithIDs(ctx, sess.ID, "", sess.WorkflowID)

	g, err := m.buildGraph(ctx, def)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	var removed []string
	for _, nodeID := range sess.state.NodeIDs() {
		if _, ok := g.Node(nodeID); ok {
			continue
		}
		if sess.state.ClearOutput(nodeID) {
			removed = append(removed, nodeID)
		}
	}
	sess.graph = g
	sess.resolver = m.newResolver(g, sess.state)
	m.cfg.Metrics.cleared(len(removed))

	m.commit(ctx, sess, schema.EventGraphReplaced, "", map[string]any{
		"nodes":   len(def.Nodes),
		"removed": removed,
	})
	return removed, nil
}

// Sweep closes every session idle for longer than the configured TTL, and
// purges persisted sessions that went idle while no process held them.
// It returns the expired session IDs, sorted.
func (m *Manager) Sweep(ctx context.Context, now time.Time) ([]string, error) {
	if m.cfg.IdleTTL <= 0 {
		return nil, nil
	}
	cutoff := now.Add(-m.cfg.IdleTTL)

	m.mu.Lock()
	var idle []*Session
	var open []string
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
			continue
		}
		open = append(open, id)
	}
	m.mu.Unlock()

	expired := make(map[string]struct{}, len(idle))
	for _, sess := range idle {
		sctx := logging.WithIDs(ctx, sess.ID, "", sess.WorkflowID)
		m.discard(sctx, sess, schema.EventSessionExpired)
		m.logger.InfoContext(sctx, "session expired", slog.Duration("idle_ttl", m.cfg.IdleTTL))
		expired[sess.ID] = struct{}{}
	}

	var sweepErr error
	if m.cfg.Store != nil {
		// Reads touch only the in-memory session, so a row can look stale
		// while its session is still open.
		purged, err := m.cfg.Store.DeleteSessionsIdleSince(ctx, cutoff, open...)
		if err != nil {
			sweepErr = err
		}
		for _, id := range purged {
			if m.cfg.Cache != nil {
				_ = m.cfg.Cache.Delete(ctx, id)
			}
			expired[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(expired))
	for id := range expired {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, sweepErr
}

// --- Mutations ---

// Record stores a successful output for nodeID. Node type and name come from the graph.
func (m *Manager) Record(ctx context.Context, id, nodeID string, output any) (schema.NodeExecutionResult, error) {
	return m.mutate(ctx, id, nodeID, schema.EventOutputRecorded, func(sess *Session, n schema.Node) schema.NodeExecutionResult {
		r := sess.state.RecordOutput(nodeID, output, n.Type, n.DisplayName())
		m.cfg.Metrics.recorded(string(r.Status), compaction.Ratio(output, r.Output))
		return r
	})
}

// RecordFailure stores a failed result for nodeID.
func (m *Manager) RecordFailure(ctx context.Context, id, nodeID, message string) (schema.NodeExecutionResult, error) {
	return m.mutate(ctx, id, nodeID, schema.EventOutputFailed, func(sess *Session, n schema.Node) schema.NodeExecutionResult {
		r := sess.state.RecordFailure(nodeID, message, n.Type, n.DisplayName())
		m.cfg.Metrics.recorded(string(r.Status), 0)
		return r
	})
}

// MarkPending stores a pending result for nodeID.
func (m *Manager) MarkPending(ctx context.Context, id, nodeID string) (schema.NodeExecutionResult, error) {
	return m.mutate(ctx, id, nodeID, schema.EventOutputPending, func(sess *Session, n schema.Node) schema.NodeExecutionResult {
		r := sess.state.MarkPending(nodeID, n.Type, n.DisplayName())
		m.cfg.Metrics.recorded(string(r.Status), 0)
		return r
	})
}

func (m *Manager) mutate(ctx context.Context, id, nodeID, eventType string, apply func(*Session, schema.Node) schema.NodeExecutionResult) (schema.NodeExecutionResult, error) {
	sess, err := m.Get(id)
	if err != nil {
		return schema.NodeExecutionResult{}, err
	}
	ctx = logging.WithIDs(ctx, sess.ID, nodeID, sess.WorkflowID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	n, err := sess.node(nodeID)
	if err != nil {
		return schema.NodeExecutionResult{}, err
	}
	r := apply(sess, n)
	m.logger.DebugContext(ctx, "node result stored", slog.String("status", string(r.Status)), slog.Int64("sequence", r.Sequence))
	m.commit(ctx, sess, eventType, nodeID, r)
	return r, nil
}

// Clear removes nodeID's result. It reports whether one was present.
func (m *Manager) Clear(ctx context.Context, id, nodeID string) (bool, error) {
	sess, err := m.Get(id)
	if err != nil {
		return false, err
	}
	ctx = logging.WithIDs(ctx, sess.ID, nodeID, sess.WorkflowID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if !sess.state.ClearOutput(nodeID) {
		sess.lastActive = m.cfg.Clock()
		return false, nil
	}
	m.cfg.Metrics.cleared(1)
	m.commit(ctx, sess, schema.EventOutputCleared, nodeID, nil)
	return true, nil
}

// ClearAll resets the session's execution state and returns how many results were dropped.
func (m *Manager) ClearAll(ctx context.Context, id string) (int, error) {
	sess, err := m.Get(id)
	if err != nil {
		return 0, err
	}
	ctx = logging.WithIDs(ctx, sess.ID, "", sess.WorkflowID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	n := sess.state.Len()
	sess.state.ClearAll()
	m.cfg.Metrics.cleared(n)
	m.commit(ctx, sess, schema.EventStateReset, "", map[string]any{"cleared": n})
	return n, nil
}

// --- Reads ---

// Output returns nodeID's latest result.
func (m *Manager) Output(id, nodeID string) (*schema.NodeExecutionResult, bool, error) {
	sess, err := m.Get(id)
	if err != nil {
		return nil, false, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastActive = m.cfg.Clock()
	r, ok := sess.state.GetOutput(nodeID)
	return r, ok, nil
}

// Available resolves the data nodeID can see. A nil result means the node has
// no predecessors and is not an entry point.
func (m *Manager) Available(ctx context.Context, id, nodeID string) (*schema.AvailableData, error) {
	sess, err := m.Get(id)
	if err != nil {
		m.cfg.Metrics.queried(ResultError)
		return nil, err
	}

	sess.mu.Lock()
	sess.lastActive = m.cfg.Clock()
	resolver := sess.resolver
	sess.mu.Unlock()

	data, err := resolver.AvailableData(nodeID)
	switch {
	case err != nil:
		m.cfg.Metrics.queried(ResultError)
		m.logger.WarnContext(logging.WithIDs(ctx, sess.ID, nodeID, sess.WorkflowID),
			"available data query failed", slog.String("error", err.Error()))
		return nil, err
	case data == nil:
		m.cfg.Metrics.queried(ResultNone)
	case data.EntryPoint:
		m.cfg.Metrics.queried(ResultEntry)
	default:
		m.cfg.Metrics.queried(ResultData)
	}
	return data, nil
}

// Predecessors returns nodeID's direct and transitive upstream nodes.
func (m *Manager) Predecessors(id, nodeID string) (*Predecessors, error) {
	sess, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	g := sess.Graph()

	transitive, err := g.TransitivePredecessors(nodeID)
	if err != nil {
		return nil, err
	}
	direct, err := g.DirectPredecessors(nodeID)
	if err != nil {
		return nil, err
	}
	return &Predecessors{NodeID: nodeID, Direct: direct, Transitive: transitive}, nil
}

// --- Internals ---

// buildGraph validates def and parses it. Cycles are tolerated here and
// surface as CYCLE_DETECTED when a node inside one is queried.
func (m *Manager) buildGraph(ctx context.Context, def schema.WorkflowGraph) (*graph.Graph, error) {
	result := m.validator.ValidateGraph(&def)
	blocking := &schema.ValidationResult{Warnings: result.Warnings}
	for _, issue := range result.Errors {
		if issue.Code == schema.ErrCodeCycleDetected {
			m.logger.WarnContext(ctx, "graph contains a cycle", slog.String("detail", issue.Message))
			continue
		}
		blocking.Errors = append(blocking.Errors, issue)
	}
	if err := blocking.ToError(); err != nil {
		return nil, err
	}
	return graph.New(def, graph.WithRegistry(m.cfg.Registry), graph.WithExclusions(m.cfg.Exclusions))
}

func (m *Manager) newSession(id, workflowID string, g *graph.Graph, now time.Time) *Session {
	st := state.New(
		state.WithEntryPoints(m.cfg.Registry.IsEntryPoint),
		state.WithClock(m.cfg.Clock),
		state.WithCompactThreshold(m.cfg.CompactThreshold),
	)
	return &Session{
		ID:         id,
		WorkflowID: workflowID,
		CreatedAt:  now,
		graph:      g,
		state:      st,
		resolver:   m.newResolver(g, st),
		lastActive: now,
	}
}

func (m *Manager) newResolver(g *graph.Graph, st *state.Store) *availability.Resolver {
	return availability.New(g, st, availability.WithRedactionMarker(m.cfg.RedactionMarker))
}

func (m *Manager) remove(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, sessionNotFound(id)
	}
	delete(m.sessions, id)
	return sess, nil
}

// commit touches the session and fans the change out. Must be called with sess.mu held.
// Persistence and cache failures are logged; the in-memory change stands.
func (m *Manager) commit(ctx context.Context, sess *Session, eventType, nodeID string, payload any) {
	sess.lastActive = m.cfg.Clock()

	if m.cfg.Store != nil {
		if err := m.cfg.Store.SaveSession(ctx, sess.record()); err != nil {
			m.logger.ErrorContext(ctx, "persist session snapshot failed", slog.String("error", err.Error()))
		}
		if _, err := m.eventLog.Append(ctx, sess.ID, nodeID, eventType, payload); err != nil {
			m.logger.ErrorContext(ctx, "append session event failed",
				slog.String("event_type", eventType), slog.String("error", err.Error()))
		}
	}
	if m.cfg.Cache != nil {
		if err := m.cfg.Cache.Put(ctx, sess.record()); err != nil {
			m.logger.ErrorContext(ctx, "cache session snapshot failed", slog.String("error", err.Error()))
		}
	}
	m.publish(ctx, sess.ID, nodeID, eventType, payload)
}

// discard drops a session that has already left the map.
func (m *Manager) discard(ctx context.Context, sess *Session, eventType string) {
	m.cfg.Metrics.sessionClosed()

	if m.cfg.Store != nil {
		if err := m.cfg.Store.DeleteSession(ctx, sess.ID); err != nil && !schema.HasCode(err, schema.ErrCodeNotFound) {
			m.logger.ErrorContext(ctx, "delete persisted session failed", slog.String("error", err.Error()))
		}
	}
	if m.cfg.Cache != nil {
		if err := m.cfg.Cache.Delete(ctx, sess.ID); err != nil {
			m.logger.ErrorContext(ctx, "evict cached session failed", slog.String("error", err.Error()))
		}
	}
	m.publish(ctx, sess.ID, "", eventType, nil)
}

func (m *Manager) publish(ctx context.Context, sessionID, nodeID, eventType string, payload any) {
	if m.cfg.Hub == nil {
		return
	}
	err := m.cfg.Hub.Publish(ctx, streaming.StreamEvent{
		SessionID: sessionID,
		NodeID:    nodeID,
		EventType: eventType,
		Payload:   payload,
		Timestamp: m.cfg.Clock(),
	})
	if err != nil {
		m.logger.WarnContext(ctx, "publish session event failed", slog.String("event_type", eventType), slog.String("error", err.Error()))
	}
}

func sessionNotFound(id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "session %q not found", id).
		WithDetails(map[string]any{"session_id": id})
}
