// Package availability computes the upstream data a node may reference while
// it is being configured.
package availability

import (
	"strings"

	"github.com/rendis/nodeflow/internal/graph"
	"github.com/rendis/nodeflow/internal/state"
	"github.com/rendis/nodeflow/pkg/schema"
)

// DefaultRedactionMarker marks session-scoped direct-input keys. Any top-level
// output key containing it is hidden from downstream nodes.
const DefaultRedactionMarker = "direct_input"

// Resolver answers AvailableData queries against one graph and one state store.
type Resolver struct {
	graph  *graph.Graph
	store  *state.Store
	marker string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRedactionMarker overrides DefaultRedactionMarker. An empty marker disables redaction.
func WithRedactionMarker(marker string) Option {
	return func(r *Resolver) { r.marker = marker }
}

// New creates a resolver.
func New(g *graph.Graph, st *state.Store, opts ...Option) *Resolver {
	r := &Resolver{graph: g, store: st, marker: DefaultRedactionMarker}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AvailableData returns the data nodeID can see.
//
// A node without predecessors gets nil, unless it is an entry point, in which
// case it sees only the session. Otherwise NodeOutputs holds every transitive
// predecessor that ran successfully and Source folds the direct predecessors:
// the single predecessor's output itself, or a map keyed by predecessor ID.
// Graph errors (unknown node, cycle) are returned unchanged.
func (r *Resolver) AvailableData(nodeID string) (*schema.AvailableData, error) {
	preds, err := r.graph.TransitivePredecessors(nodeID)
	if err != nil {
		return nil, err
	}

	snap := r.store.Snapshot()

	if len(preds) == 0 {
		if r.graph.IsEntryPoint(nodeID) {
			return &schema.AvailableData{EntryPoint: true, Session: snap.Session}, nil
		}
		return nil, nil
	}

	nodeOutputs := make(map[string]any, len(preds))
	for _, id := range preds {
		if out, ok := successOutput(snap, id); ok {
			nodeOutputs[id] = r.redact(out)
		}
	}

	direct, err := r.graph.DirectPredecessors(nodeID)
	if err != nil {
		return nil, err
	}

	var source any
	switch len(direct) {
	case 0:
		source = map[string]any{}
	case 1:
		if out, ok := successOutput(snap, direct[0]); ok {
			source = r.redact(out)
		} else {
			source = map[string]any{}
		}
	default:
		folded := make(map[string]any, len(direct))
		for _, id := range direct {
			if out, ok := successOutput(snap, id); ok {
				folded[id] = r.redact(out)
			}
		}
		source = folded
	}

	return &schema.AvailableData{
		Session:     snap.Session,
		Source:      source,
		NodeOutputs: nodeOutputs,
	}, nil
}

func successOutput(st *schema.WorkflowExecutionState, id string) (any, bool) {
	res, ok := st.NodeOutputs[id]
	if !ok || res.Status != schema.ExecutionSuccess {
		return nil, false
	}
	return res.Output, true
}

// redact drops top-level keys containing the marker. Non-object values pass through.
func (r *Resolver) redact(v any) any {
	obj, ok := v.(map[string]any)
	if !ok || r.marker == "" {
		return v
	}
	out := make(map[string]any, len(obj))
	for k, val := range obj {
		if strings.Contains(k, r.marker) {
			continue
		}
		out[k] = val
	}
	return out
}
