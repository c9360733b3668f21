package validation

import (
	"fmt"

	"github.com/rendis/nodeflow/internal/graph"
	"github.com/rendis/nodeflow/pkg/schema"
)

// validateSemantic checks what the document schema cannot express: unique
// node IDs, registered node types and edges that reference existing nodes.
// It reports every problem rather than stopping at the first.
func validateSemantic(def *schema.WorkflowGraph, registry *graph.Registry) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	ids := make(map[string]bool, len(def.Nodes))
	for i, n := range def.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		if ids[n.ID] {
			result.AddError(path+".id", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate node id %q", n.ID))
		}
		ids[n.ID] = true

		if registry != nil {
			if _, ok := registry.Lookup(n.Type); !ok {
				result.AddError(path+".type", schema.ErrCodeValidation,
					fmt.Sprintf("node %q has unknown type %q", n.ID, n.Type))
			}
		}
	}

	for i, e := range def.Edges {
		path := fmt.Sprintf("edges[%d]", i)
		for _, end := range []struct{ field, id string }{{"source", e.Source}, {"target", e.Target}} {
			if !ids[end.id] {
				result.AddError(path+"."+end.field, schema.ErrCodeDanglingEdge,
					fmt.Sprintf("edge %s -> %s references unknown node %q", e.Source, e.Target, end.id))
			}
		}
		if e.Source == e.Target && ids[e.Source] {
			result.AddError(path, schema.ErrCodeCycleDetected,
				fmt.Sprintf("node %q has an edge to itself", e.Source))
		}
	}

	return result
}
