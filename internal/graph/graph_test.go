package graph

import (
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/rendis/nodeflow/pkg/schema"
)

// --- helpers ---

func node(id string, typ schema.NodeType) schema.Node {
	return schema.Node{ID: id, Type: typ, Data: map[string]any{"label": id}}
}

func edge(src, dst string) schema.Edge {
	return schema.Edge{ID: src + "->" + dst, Source: src, Target: dst}
}

func mustGraph(t *testing.T, nodes []schema.Node, edges []schema.Edge, opts ...Option) *Graph {
	t.Helper()
	g, err := New(schema.WorkflowGraph{ID: "wf", Nodes: nodes, Edges: edges}, opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return g
}

func sorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

func flowCode(t *testing.T, err error) string {
	t.Helper()
	var fe *schema.FlowError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *schema.FlowError, got %T: %v", err, err)
	}
	return fe.Code
}

// --- construction ---

func TestNew_RejectsDuplicateID(t *testing.T) {
	_, err := New(schema.WorkflowGraph{Nodes: []schema.Node{
		node("a", schema.NodeTypeTemplate),
		node("a", schema.NodeTypeTemplate),
	}})
	if code := flowCode(t, err); code != schema.ErrCodeValidation {
		t.Errorf("expected %s, got %s", schema.ErrCodeValidation, code)
	}
}

func TestNew_RejectsEmptyID(t *testing.T) {
	_, err := New(schema.WorkflowGraph{Nodes: []schema.Node{node("", schema.NodeTypeTemplate)}})
	if code := flowCode(t, err); code != schema.ErrCodeValidation {
		t.Errorf("expected %s, got %s", schema.ErrCodeValidation, code)
	}
}

func TestNew_RejectsUnknownType(t *testing.T) {
	_, err := New(schema.WorkflowGraph{Nodes: []schema.Node{node("a", "fancyNode")}})
	if code := flowCode(t, err); code != schema.ErrCodeValidation {
		t.Errorf("expected %s, got %s", schema.ErrCodeValidation, code)
	}
}

func TestNew_NilRegistryAcceptsUnknownType(t *testing.T) {
	g := mustGraph(t, []schema.Node{node("a", "fancyNode")}, nil, WithRegistry(nil))
	if _, ok := g.Node("a"); !ok {
		t.Error("expected node a to be indexed")
	}
}

func TestNew_DanglingEdge(t *testing.T) {
	tests := []struct {
		name    string
		edge    schema.Edge
		missing string
	}{
		{"missing source", edge("ghost", "a"), "ghost"},
		{"missing target", edge("a", "ghost"), "ghost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(schema.WorkflowGraph{
				Nodes: []schema.Node{node("a", schema.NodeTypeTemplate)},
				Edges: []schema.Edge{tt.edge},
			})
			var fe *schema.FlowError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FlowError, got %v", err)
			}
			if fe.Code != schema.ErrCodeDanglingEdge {
				t.Errorf("expected %s, got %s", schema.ErrCodeDanglingEdge, fe.Code)
			}
			if fe.Details["missing"] != tt.missing {
				t.Errorf("expected missing=%s, got %v", tt.missing, fe.Details["missing"])
			}
		})
	}
}

func TestNew_CyclicGraphAccepted(t *testing.T) {
	// Cycles surface from traversals, not construction.
	mustGraph(t,
		[]schema.Node{node("a", schema.NodeTypeTemplate), node("b", schema.NodeTypeTemplate)},
		[]schema.Edge{edge("a", "b"), edge("b", "a")},
	)
}

// --- transitive predecessors ---

func TestTransitivePredecessors_Chain(t *testing.T) {
	g := mustGraph(t,
		[]schema.Node{node("a", schema.NodeTypeChatInput), node("b", schema.NodeTypeAgent), node("c", schema.NodeTypeChatOutput)},
		[]schema.Edge{edge("a", "b"), edge("b", "c")},
	)

	preds, err := g.TransitivePredecessors("c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(preds, []string{"b", "a"}) {
		t.Errorf("expected [b a], got %v", preds)
	}

	preds, err = g.TransitivePredecessors("a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(preds) != 0 {
		t.Errorf("expected no predecessors for a, got %v", preds)
	}
}

func TestTransitivePredecessors_DiamondVisitsOnce(t *testing.T) {
	g := mustGraph(t,
		[]schema.Node{
			node("a", schema.NodeTypeChatInput),
			node("b", schema.NodeTypeTemplate),
			node("c", schema.NodeTypeTemplate),
			node("d", schema.NodeTypeAggregator),
		},
		[]schema.Edge{edge("a", "b"), edge("a", "c"), edge("b", "d"), edge("c", "d")},
	)

	preds, err := g.TransitivePredecessors("d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(sorted(preds), []string{"a", "b", "c"}) {
		t.Errorf("expected {a b c}, got %v", preds)
	}
}

func TestTransitivePredecessors_ExactlyBackwardReachable(t *testing.T) {
	// x feeds only y; neither is upstream of d.
	g := mustGraph(t,
		[]schema.Node{
			node("a", schema.NodeTypeChatInput),
			node("b", schema.NodeTypeTemplate),
			node("d", schema.NodeTypeChatOutput),
			node("x", schema.NodeTypeTemplate),
			node("y", schema.NodeTypeTemplate),
		},
		[]schema.Edge{edge("a", "b"), edge("b", "d"), edge("x", "y"), edge("d", "y")},
	)

	preds, err := g.TransitivePredecessors("d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(sorted(preds), []string{"a", "b"}) {
		t.Errorf("expected {a b}, got %v", preds)
	}
}

func TestTransitivePredecessors_SelfLoop(t *testing.T) {
	g := mustGraph(t,
		[]schema.Node{node("a", schema.NodeTypeTemplate)},
		[]schema.Edge{edge("a", "a")},
	)

	_, err := g.TransitivePredecessors("a")
	if !schema.HasCode(err, schema.ErrCodeCycleDetected) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	var fe *schema.FlowError
	errors.As(err, &fe)
	if !reflect.DeepEqual(fe.Details["cycle"], []string{"a", "a"}) {
		t.Errorf("expected cycle [a a], got %v", fe.Details["cycle"])
	}
}

func TestTransitivePredecessors_MultiNodeCycle(t *testing.T) {
	g := mustGraph(t,
		[]schema.Node{
			node("a", schema.NodeTypeTemplate),
			node("b", schema.NodeTypeTemplate),
			node("c", schema.NodeTypeTemplate),
			node("d", schema.NodeTypeChatOutput),
		},
		[]schema.Edge{edge("a", "b"), edge("b", "c"), edge("c", "a"), edge("c", "d")},
	)

	_, err := g.TransitivePredecessors("d")
	if !schema.HasCode(err, schema.ErrCodeCycleDetected) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	var fe *schema.FlowError
	errors.As(err, &fe)
	cycle, ok := fe.Details["cycle"].([]string)
	if !ok || len(cycle) != 4 || cycle[0] != cycle[len(cycle)-1] {
		t.Errorf("expected a closed 3-node cycle path, got %v", fe.Details["cycle"])
	}
}

func TestTransitivePredecessors_UnknownNode(t *testing.T) {
	g := mustGraph(t, []schema.Node{node("a", schema.NodeTypeTemplate)}, nil)
	_, err := g.TransitivePredecessors("ghost")
	if !schema.HasCode(err, schema.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

// --- direct predecessors ---

func TestDirectPredecessors_ExcludesToolBuilderForAgent(t *testing.T) {
	g := mustGraph(t,
		[]schema.Node{
			node("chat", schema.NodeTypeChatInput),
			node("tools", schema.NodeTypeToolBuilder),
			node("agent", schema.NodeTypeAgent),
		},
		[]schema.Edge{edge("chat", "agent"), edge("tools", "agent")},
	)

	direct, err := g.DirectPredecessors("agent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(direct, []string{"chat"}) {
		t.Errorf("expected [chat], got %v", direct)
	}

	transitive, err := g.TransitivePredecessors("agent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(sorted(transitive), []string{"chat", "tools"}) {
		t.Errorf("tool builder must stay transitive, got %v", transitive)
	}
}

func TestDirectPredecessors_ToolBuilderKeptForOtherTargets(t *testing.T) {
	g := mustGraph(t,
		[]schema.Node{node("tools", schema.NodeTypeToolBuilder), node("tpl", schema.NodeTypeTemplate)},
		[]schema.Edge{edge("tools", "tpl")},
	)
	direct, err := g.DirectPredecessors("tpl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(direct, []string{"tools"}) {
		t.Errorf("expected [tools], got %v", direct)
	}
}

func TestDirectPredecessors_CustomExclusions(t *testing.T) {
	ex := NewExclusions(ExclusionRule{Target: schema.NodeTypeChatOutput, Excluded: schema.NodeTypeLLMModel})
	g := mustGraph(t,
		[]schema.Node{
			node("llm", schema.NodeTypeLLMModel),
			node("tpl", schema.NodeTypeTemplate),
			node("out", schema.NodeTypeChatOutput),
		},
		[]schema.Edge{edge("llm", "out"), edge("tpl", "out")},
		WithExclusions(ex),
	)
	direct, err := g.DirectPredecessors("out")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(direct, []string{"tpl"}) {
		t.Errorf("expected [tpl], got %v", direct)
	}
}

func TestDirectPredecessors_DeduplicatesParallelEdges(t *testing.T) {
	g := mustGraph(t,
		[]schema.Node{node("r", schema.NodeTypeRouter), node("out", schema.NodeTypeChatOutput)},
		[]schema.Edge{
			{ID: "e1", Source: "r", Target: "out", SourceHandle: "yes"},
			{ID: "e2", Source: "r", Target: "out", SourceHandle: "no"},
		},
	)
	direct, err := g.DirectPredecessors("out")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(direct, []string{"r"}) {
		t.Errorf("expected [r], got %v", direct)
	}
}

// --- registry / exclusions ---

func TestDefaultRegistry_OnlyChatInputIsEntryPoint(t *testing.T) {
	reg := DefaultRegistry()
	for _, typ := range schema.AllNodeTypes {
		info, ok := reg.Lookup(typ)
		if !ok {
			t.Errorf("type %s missing from default registry", typ)
			continue
		}
		if info.Label == "" || info.Category == "" {
			t.Errorf("type %s missing label or category", typ)
		}
		want := typ == schema.NodeTypeChatInput
		if reg.IsEntryPoint(typ) != want {
			t.Errorf("IsEntryPoint(%s) = %v, want %v", typ, !want, want)
		}
	}
	if len(reg.Types()) != len(schema.AllNodeTypes) {
		t.Errorf("expected %d types, got %d", len(schema.AllNodeTypes), len(reg.Types()))
	}
}

func TestExclusions_Excludes(t *testing.T) {
	ex := DefaultExclusions()
	if !ex.Excludes(schema.NodeTypeAgent, schema.NodeTypeToolBuilder) {
		t.Error("expected agent/toolBuilder to be excluded")
	}
	if ex.Excludes(schema.NodeTypeToolBuilder, schema.NodeTypeAgent) {
		t.Error("rule must be directional")
	}
}

// --- ordering ---

func TestTopologicalOrder_Diamond(t *testing.T) {
	g := mustGraph(t,
		[]schema.Node{
			node("d", schema.NodeTypeAggregator),
			node("b", schema.NodeTypeTemplate),
			node("a", schema.NodeTypeChatInput),
			node("c", schema.NodeTypeTemplate),
		},
		[]schema.Edge{edge("a", "b"), edge("a", "c"), edge("b", "d"), edge("c", "d")},
	)

	order, levels, err := g.TopologicalOrder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(order, []string{"a", "b", "c", "d"}) {
		t.Errorf("unexpected order: %v", order)
	}
	want := [][]string{{"a"}, {"b", "c"}, {"d"}}
	if !reflect.DeepEqual(levels, want) {
		t.Errorf("expected levels %v, got %v", want, levels)
	}
}

func TestTopologicalOrder_Cycle(t *testing.T) {
	g := mustGraph(t,
		[]schema.Node{node("a", schema.NodeTypeTemplate), node("b", schema.NodeTypeTemplate), node("c", schema.NodeTypeChatInput)},
		[]schema.Edge{edge("a", "b"), edge("b", "a")},
	)
	_, _, err := g.TopologicalOrder()
	if !schema.HasCode(err, schema.ErrCodeCycleDetected) {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestRootsSuccessorsReachable(t *testing.T) {
	g := mustGraph(t,
		[]schema.Node{
			node("a", schema.NodeTypeChatInput),
			node("b", schema.NodeTypeTemplate),
			node("island", schema.NodeTypeTemplate),
		},
		[]schema.Edge{edge("a", "b")},
	)

	if !reflect.DeepEqual(g.Roots(), []string{"a", "island"}) {
		t.Errorf("unexpected roots: %v", g.Roots())
	}
	if !reflect.DeepEqual(g.Successors("a"), []string{"b"}) {
		t.Errorf("unexpected successors: %v", g.Successors("a"))
	}
	reach := g.Reachable([]string{"a"})
	if !reach["a"] || !reach["b"] || reach["island"] {
		t.Errorf("unexpected reachable set: %v", reach)
	}
	if !g.IsEntryPoint("a") || g.IsEntryPoint("b") {
		t.Error("only a is an entry point")
	}
}
