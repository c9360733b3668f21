package validation

import (
	"fmt"
	"strings"

	"github.com/rendis/nodeflow/internal/graph"
	"github.com/rendis/nodeflow/pkg/schema"
)

// validateDAG runs on a semantically valid graph: cycle detection (Kahn's
// algorithm) and reachability from the entry points.
func validateDAG(def *schema.WorkflowGraph, registry *graph.Registry) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	g, err := graph.New(*def, graph.WithRegistry(registry))
	if err != nil {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if _, _, err := g.TopologicalOrder(); err != nil {
		result.AddError("edges", schema.ErrCodeCycleDetected, cycleMessage(g, err))
		return result // reachability is meaningless on a cycle
	}

	var entries []string
	for _, id := range g.NodeIDs() {
		if g.IsEntryPoint(id) {
			entries = append(entries, id)
		}
	}
	if len(entries) == 0 {
		result.AddWarning("nodes", schema.ErrCodeValidation,
			"graph has no entry point; session data will stay empty")
		return result
	}

	reachable := g.Reachable(entries)
	for _, id := range g.NodeIDs() {
		if !reachable[id] {
			result.AddWarning(fmt.Sprintf("nodes[%s]", id), schema.ErrCodeValidation,
				fmt.Sprintf("node %q is unreachable from any entry point", id))
		}
	}

	return result
}

// cycleMessage names one concrete cycle when the DFS can find it.
func cycleMessage(g *graph.Graph, kahnErr error) string {
	var fe *schema.FlowError
	if !asFlowError(kahnErr, &fe) {
		return kahnErr.Error()
	}
	stuck, _ := fe.Details["nodes"].([]string)
	for _, id := range stuck {
		if _, err := g.TransitivePredecessors(id); err != nil && schema.HasCode(err, schema.ErrCodeCycleDetected) {
			var cyc *schema.FlowError
			if asFlowError(err, &cyc) {
				if path, ok := cyc.Details["cycle"].([]string); ok {
					return "graph contains a cycle: " + strings.Join(path, " -> ")
				}
			}
		}
	}
	return fe.Message
}
