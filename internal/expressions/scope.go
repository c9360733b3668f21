package expressions

import (
	"github.com/rendis/nodeflow/internal/compaction"
	"github.com/rendis/nodeflow/pkg/schema"
)

// NewScope returns a frozen copy of data's namespaced view. Every namespace is
// present, so evaluators can reference source or node_outputs even for an
// entry point or a node with nothing upstream yet (data == nil).
func NewScope(data *schema.AvailableData) map[string]any {
	scope := compaction.CloneMap(data.Scope())
	for _, key := range scopeKeys {
		if scope[key] == nil {
			scope[key] = map[string]any{}
		}
	}
	return scope
}

// WithVariables returns a copy of scope with vars added as extra top-level
// names. Names that collide with a namespace are rejected.
func WithVariables(scope, vars map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(scope)+len(vars))
	for k, v := range scope {
		out[k] = v
	}
	for k, v := range vars {
		for _, reserved := range scopeKeys {
			if k == reserved {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"variable %q shadows the %s namespace", k, reserved).
					WithDetails(map[string]any{"variable": k})
			}
		}
		out[k] = compaction.Clone(v)
	}
	return out, nil
}
