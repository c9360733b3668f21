package graph

import (
	"fmt"

	"github.com/rendis/nodeflow/pkg/schema"
)

// Graph is the indexed, read-only form of a WorkflowGraph.
// It is built once per edit session and replaced wholesale when the graph changes.
type Graph struct {
	def        schema.WorkflowGraph
	nodes      map[string]*schema.Node
	order      []string            // node IDs in definition order
	incoming   map[string][]string // target -> distinct sources, edge order
	outgoing   map[string][]string // source -> distinct targets, edge order
	registry   *Registry
	exclusions Exclusions
}

// Option configures a Graph.
type Option func(*Graph)

// WithRegistry sets the node registry. Unknown node types are rejected
// unless the registry is nil.
func WithRegistry(r *Registry) Option {
	return func(g *Graph) { g.registry = r }
}

// WithExclusions replaces the direct-predecessor exclusion table.
func WithExclusions(e Exclusions) Option {
	return func(g *Graph) { g.exclusions = e }
}

// New indexes def. It fails on empty or duplicate node IDs, unknown node types
// and edges that reference missing nodes. Cycles are not rejected here; they
// surface from the traversals that meet them.
func New(def schema.WorkflowGraph, opts ...Option) (*Graph, error) {
	g := &Graph{
		def:        def,
		nodes:      make(map[string]*schema.Node, len(def.Nodes)),
		order:      make([]string, 0, len(def.Nodes)),
		incoming:   make(map[string][]string),
		outgoing:   make(map[string][]string),
		registry:   DefaultRegistry(),
		exclusions: DefaultExclusions(),
	}
	for _, opt := range opts {
		opt(g)
	}

	for i := range def.Nodes {
		node := &def.Nodes[i]
		if node.ID == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "node at index %d has empty ID", i)
		}
		if _, exists := g.nodes[node.ID]; exists {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate node ID: %s", node.ID)
		}
		if g.registry != nil {
			if _, ok := g.registry.Lookup(node.Type); !ok {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "node %s has unknown type: %s", node.ID, node.Type).
					WithNode(node.ID)
			}
		}
		g.nodes[node.ID] = node
		g.order = append(g.order, node.ID)
	}

	seen := make(map[[2]string]bool, len(def.Edges))
	for _, edge := range def.Edges {
		if _, ok := g.nodes[edge.Source]; !ok {
			return nil, schema.NewDanglingEdgeError(edge, edge.Source)
		}
		if _, ok := g.nodes[edge.Target]; !ok {
			return nil, schema.NewDanglingEdgeError(edge, edge.Target)
		}
		key := [2]string{edge.Source, edge.Target}
		if seen[key] {
			continue // parallel edges between the same pair (different handles)
		}
		seen[key] = true
		g.incoming[edge.Target] = append(g.incoming[edge.Target], edge.Source)
		g.outgoing[edge.Source] = append(g.outgoing[edge.Source], edge.Target)
	}

	return g, nil
}

// Definition returns the graph as supplied.
func (g *Graph) Definition() schema.WorkflowGraph {
	return g.def
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (schema.Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return schema.Node{}, false
	}
	return *n, true
}

// NodeIDs returns every node ID in definition order.
func (g *Graph) NodeIDs() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Registry returns the node registry the graph was built with.
func (g *Graph) Registry() *Registry {
	return g.registry
}

// IsEntryPoint reports whether the node is of an entry-point type.
func (g *Graph) IsEntryPoint(id string) bool {
	n, ok := g.nodes[id]
	if !ok {
		return false
	}
	if g.registry == nil {
		return DefaultRegistry().IsEntryPoint(n.Type)
	}
	return g.registry.IsEntryPoint(n.Type)
}

// Successors returns the distinct targets of edges leaving id.
func (g *Graph) Successors(id string) []string {
	return append([]string(nil), g.outgoing[id]...)
}

// Roots returns the nodes with no incoming edges, in definition order.
func (g *Graph) Roots() []string {
	var roots []string
	for _, id := range g.order {
		if len(g.incoming[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

func (g *Graph) requireNode(id string) error {
	if _, ok := g.nodes[id]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found in graph", id).WithNode(id)
	}
	return nil
}

func (g *Graph) String() string {
	return fmt.Sprintf("graph(%d nodes, %d edges)", len(g.nodes), len(g.def.Edges))
}
