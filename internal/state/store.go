// Package state holds the per-session execution state: the latest result of
// every executed node plus the session and source aggregates derived from them.
package state

import (
	"sort"
	"sync"
	"time"

	"github.com/rendis/nodeflow/internal/compaction"
	"github.com/rendis/nodeflow/internal/graph"
	"github.com/rendis/nodeflow/pkg/schema"
)

// OutputKey is the key a non-object output is folded under when merged into
// the session or source aggregates.
const OutputKey = "output"

// Store owns one WorkflowExecutionState. Every mutation builds the next state
// and swaps it in whole under the write lock; readers receive deep copies.
type Store struct {
	mu        sync.RWMutex
	state     *schema.WorkflowExecutionState
	seq       int64
	isEntry   func(schema.NodeType) bool
	now       func() time.Time
	threshold int
}

// Option configures a Store.
type Option func(*Store)

// WithEntryPoints sets the predicate deciding which node types feed the session aggregate.
func WithEntryPoints(fn func(schema.NodeType) bool) Option {
	return func(s *Store) {
		if fn != nil {
			s.isEntry = fn
		}
	}
}

// WithClock overrides time.Now for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCompactThreshold sets the array length above which uniform arrays are compacted.
func WithCompactThreshold(n int) Option {
	return func(s *Store) { s.threshold = n }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		state:     schema.NewWorkflowExecutionState(),
		isEntry:   graph.DefaultRegistry().IsEntryPoint,
		now:       time.Now,
		threshold: compaction.DefaultThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordOutput compacts output and stores it as nodeID's successful result,
// replacing any earlier one. Source becomes exactly this output; Session does
// too when nodeType is an entry point.
func (s *Store) RecordOutput(nodeID string, output any, nodeType schema.NodeType, nodeName string) schema.NodeExecutionResult {
	compacted := compaction.CompactWithThreshold(output, s.threshold)

	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.newResult(schema.ExecutionSuccess, compacted, nodeType, nodeName)
	next := &schema.WorkflowExecutionState{
		Session:     s.state.Session,
		Source:      asObject(compacted),
		NodeOutputs: withResult(s.state.NodeOutputs, nodeID, result),
	}
	if s.isEntry(nodeType) {
		next.Session = asObject(compacted)
	}
	s.state = next
	return copyResult(result)
}

// RecordFailure stores a failed result for nodeID with output {"error": message}.
// Failed results count as executed but never feed the aggregates.
func (s *Store) RecordFailure(nodeID, message string, nodeType schema.NodeType, nodeName string) schema.NodeExecutionResult {
	return s.recordInactive(nodeID, schema.ExecutionError, map[string]any{"error": message}, nodeType, nodeName)
}

// MarkPending stores a pending result with no output for nodeID.
func (s *Store) MarkPending(nodeID string, nodeType schema.NodeType, nodeName string) schema.NodeExecutionResult {
	return s.recordInactive(nodeID, schema.ExecutionPending, nil, nodeType, nodeName)
}

// recordInactive leaves the aggregates alone unless it displaces a successful
// result, in which case they are rebuilt the way ClearOutput does.
func (s *Store) recordInactive(nodeID string, status schema.ExecutionStatus, output any, nodeType schema.NodeType, nodeName string) schema.NodeExecutionResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.newResult(status, output, nodeType, nodeName)
	outputs := withResult(s.state.NodeOutputs, nodeID, result)
	if prior, ok := s.state.NodeOutputs[nodeID]; ok && prior.Status == schema.ExecutionSuccess {
		s.state = s.rebuild(outputs)
		return copyResult(result)
	}
	s.state = &schema.WorkflowExecutionState{
		Session:     s.state.Session,
		Source:      s.state.Source,
		NodeOutputs: outputs,
	}
	return copyResult(result)
}

// ClearOutput removes nodeID's result and rebuilds both aggregates from the
// remaining successful results. It reports whether a result was removed.
func (s *Store) ClearOutput(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.NodeOutputs[nodeID]; !ok {
		return false
	}
	outputs := make(map[string]*schema.NodeExecutionResult, len(s.state.NodeOutputs))
	for id, r := range s.state.NodeOutputs {
		if id != nodeID {
			outputs[id] = r
		}
	}
	s.state = s.rebuild(outputs)
	return true
}

// ClearAll resets the store to its empty initial state.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = schema.NewWorkflowExecutionState()
	s.seq = 0
}

// GetOutput returns a copy of nodeID's latest result.
func (s *Store) GetOutput(nodeID string) (*schema.NodeExecutionResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.state.NodeOutputs[nodeID]
	if !ok {
		return nil, false
	}
	cp := copyResult(r)
	return &cp, true
}

// HasExecuted reports whether nodeID has a recorded result. While nothing at
// all has been recorded every node counts as executed, so no node is blocked.
func (s *Store) HasExecuted(nodeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.state.NodeOutputs) == 0 {
		return true
	}
	_, ok := s.state.NodeOutputs[nodeID]
	return ok
}

// Session returns a copy of the session aggregate.
func (s *Store) Session() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return compaction.CloneMap(s.state.Session)
}

// Source returns a copy of the source aggregate.
func (s *Store) Source() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return compaction.CloneMap(s.state.Source)
}

// Len returns the number of recorded results.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.NodeOutputs)
}

// NodeIDs returns the recorded node IDs in Sequence order.
func (s *Store) NodeIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return orderedIDs(s.state.NodeOutputs)
}

// Snapshot returns a deep copy of the whole state.
func (s *Store) Snapshot() *schema.WorkflowExecutionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &schema.WorkflowExecutionState{
		Session:     compaction.CloneMap(s.state.Session),
		Source:      compaction.CloneMap(s.state.Source),
		NodeOutputs: make(map[string]*schema.NodeExecutionResult, len(s.state.NodeOutputs)),
	}
	for id, r := range s.state.NodeOutputs {
		cp := copyResult(r)
		snap.NodeOutputs[id] = &cp
	}
	return snap
}

// Restore replaces the state with a copy of st. The snapshot's Session and
// Source are kept as saved; either one that is nil, as after an event-log
// replay, is rebuilt from the results.
func (s *Store) Restore(st *schema.WorkflowExecutionState) {
	outputs := make(map[string]*schema.NodeExecutionResult)
	var maxSeq int64
	if st != nil {
		for id, r := range st.NodeOutputs {
			if r == nil {
				continue
			}
			cp := copyResult(r)
			cp.Output = compaction.Normalize(cp.Output)
			outputs[id] = &cp
			if cp.Sequence > maxSeq {
				maxSeq = cp.Sequence
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = maxSeq
	next := s.rebuild(outputs)
	if st != nil && st.Session != nil {
		next.Session = asObject(compaction.Normalize(st.Session))
	}
	if st != nil && st.Source != nil {
		next.Source = asObject(compaction.Normalize(st.Source))
	}
	s.state = next
}

// newResult must be called with the write lock held.
func (s *Store) newResult(status schema.ExecutionStatus, output any, nodeType schema.NodeType, nodeName string) *schema.NodeExecutionResult {
	s.seq++
	return &schema.NodeExecutionResult{
		Status:    status,
		Output:    output,
		Timestamp: s.now().UTC(),
		NodeType:  nodeType,
		NodeName:  nodeName,
		Sequence:  s.seq,
	}
}

// rebuild derives both aggregates from scratch by merging successful results
// in Sequence order. Later results win on key collisions.
func (s *Store) rebuild(outputs map[string]*schema.NodeExecutionResult) *schema.WorkflowExecutionState {
	next := &schema.WorkflowExecutionState{
		Session:     map[string]any{},
		Source:      map[string]any{},
		NodeOutputs: outputs,
	}
	for _, id := range orderedIDs(outputs) {
		r := outputs[id]
		if r.Status != schema.ExecutionSuccess {
			continue
		}
		obj := asObject(r.Output)
		merge(next.Source, obj)
		if s.isEntry(r.NodeType) {
			merge(next.Session, obj)
		}
	}
	return next
}

func withResult(outputs map[string]*schema.NodeExecutionResult, nodeID string, r *schema.NodeExecutionResult) map[string]*schema.NodeExecutionResult {
	next := make(map[string]*schema.NodeExecutionResult, len(outputs)+1)
	for id, existing := range outputs {
		next[id] = existing
	}
	next[nodeID] = r
	return next
}

func orderedIDs(outputs map[string]*schema.NodeExecutionResult) []string {
	ids := make([]string, 0, len(outputs))
	for id := range outputs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := outputs[ids[i]], outputs[ids[j]]
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		return ids[i] < ids[j]
	})
	return ids
}

// asObject returns v when it is an object, otherwise {"output": v}.
// The result is always a fresh top-level map.
func asObject(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		cp := make(map[string]any, len(m))
		merge(cp, m)
		return cp
	}
	return map[string]any{OutputKey: v}
}

func merge(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

func copyResult(r *schema.NodeExecutionResult) schema.NodeExecutionResult {
	cp := *r
	cp.Output = compaction.Clone(r.Output)
	return cp
}
