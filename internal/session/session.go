package session

import (
	"sync"
	"time"

	"github.com/rendis/nodeflow/internal/availability"
	"github.com/rendis/nodeflow/internal/graph"
	"github.com/rendis/nodeflow/internal/state"
	"github.com/rendis/nodeflow/internal/store"
	"github.com/rendis/nodeflow/pkg/schema"
)

// Session is one editor's working copy of a workflow: its graph, the recorded
// node results, and the resolver that reads them.
type Session struct {
	ID         string
	WorkflowID string
	CreatedAt  time.Time

	mu         sync.Mutex
	graph      *graph.Graph
	state      *state.Store
	resolver   *availability.Resolver
	lastActive time.Time
}

// Info is a read-only summary of a session.
type Info struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id,omitempty"`
	Name       string    `json:"name,omitempty"`
	Nodes      int       `json:"nodes"`
	Executed   int       `json:"executed"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// Graph returns the session's current graph.
func (s *Session) Graph() *graph.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph
}

// Snapshot returns a deep copy of the execution state.
func (s *Session) Snapshot() *schema.WorkflowExecutionState {
	return s.state.Snapshot()
}

// LastActive returns when the session was last touched.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Info summarizes the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	def := s.graph.Definition()
	return Info{
		ID:         s.ID,
		WorkflowID: s.WorkflowID,
		Name:       def.Name,
		Nodes:      len(def.Nodes),
		Executed:   s.state.Len(),
		CreatedAt:  s.CreatedAt,
		LastActive: s.lastActive,
	}
}

// record must be called with s.mu held.
func (s *Session) record() *store.SessionRecord {
	return &store.SessionRecord{
		ID:         s.ID,
		WorkflowID: s.WorkflowID,
		Graph:      s.graph.Definition(),
		State:      s.state.Snapshot(),
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.lastActive,
	}
}

// node must be called with s.mu held.
func (s *Session) node(nodeID string) (schema.Node, error) {
	n, ok := s.graph.Node(nodeID)
	if !ok {
		return schema.Node{}, schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found in session %s", nodeID, s.ID).
			WithNode(nodeID)
	}
	return n, nil
}
