package diagram

import (
	"github.com/rendis/nodeflow/internal/graph"
	"github.com/rendis/nodeflow/pkg/schema"
)

// Build lays g out in topological levels and overlays the results recorded in
// st, which may be nil. A cyclic graph is drawn one node per level in
// definition order.
func Build(g *graph.Graph, st *schema.WorkflowExecutionState) *DiagramModel {
	def := g.Definition()

	_, levels, err := g.TopologicalOrder()
	if err != nil {
		levels = make([][]string, 0, len(def.Nodes))
		for _, n := range def.Nodes {
			levels = append(levels, []string{n.ID})
		}
	}

	model := &DiagramModel{
		Title:  titleFromDef(def),
		Nodes:  make([]*Node, 0, len(def.Nodes)),
		Levels: levels,
	}
	for _, n := range def.Nodes {
		node := &Node{
			ID:    n.ID,
			Label: n.DisplayName(),
			Type:  n.Type,
			Kind:  nodeKind(g, n),
		}
		if st != nil {
			overlayStatus(node, st.NodeOutputs[n.ID])
		}
		model.Nodes = append(model.Nodes, node)
	}
	model.Edges = buildEdges(g, def)
	return model
}

func nodeKind(g *graph.Graph, n schema.Node) NodeKind {
	if g.IsEntryPoint(n.ID) {
		return NodeKindEntry
	}
	reg := g.Registry()
	if reg == nil {
		reg = graph.DefaultRegistry()
	}
	info, ok := reg.Lookup(n.Type)
	if !ok {
		return NodeKindOther
	}
	switch info.Category {
	case "io":
		return NodeKindIO
	case "ai", "ml":
		return NodeKindAI
	case "tools", "integrations":
		return NodeKindTool
	case "logic":
		return NodeKindLogic
	case "data":
		return NodeKindData
	default:
		return NodeKindOther
	}
}

func overlayStatus(node *Node, r *schema.NodeExecutionResult) {
	if r == nil {
		return
	}
	node.Status = &StatusOverlay{Status: r.Status, Sequence: r.Sequence}
	if r.Status == schema.ExecutionError {
		if out, ok := r.Output.(map[string]any); ok {
			node.Status.Error, _ = out["error"].(string)
		}
	}
}

// buildEdges keeps definition order and drops parallel duplicates.
func buildEdges(g *graph.Graph, def schema.WorkflowGraph) []Edge {
	visible := make(map[string]map[string]bool, len(def.Nodes))
	seen := make(map[[2]string]bool, len(def.Edges))
	edges := make([]Edge, 0, len(def.Edges))

	for _, e := range def.Edges {
		key := [2]string{e.Source, e.Target}
		if seen[key] {
			continue
		}
		seen[key] = true

		if visible[e.Target] == nil {
			visible[e.Target] = map[string]bool{}
			direct, _ := g.DirectPredecessors(e.Target)
			for _, id := range direct {
				visible[e.Target][id] = true
			}
		}
		edges = append(edges, Edge{
			From:   e.Source,
			To:     e.Target,
			Label:  e.SourceHandle,
			Hidden: !visible[e.Target][e.Source],
		})
	}
	return edges
}

func titleFromDef(def schema.WorkflowGraph) string {
	if def.Name != "" {
		return def.Name
	}
	if def.ID != "" {
		return def.ID
	}
	return "Workflow"
}
