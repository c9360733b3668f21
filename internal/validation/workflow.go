package validation

import (
	"errors"

	"github.com/rendis/nodeflow/internal/graph"
	"github.com/rendis/nodeflow/pkg/schema"
)

// GraphValidator runs the three-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (unique IDs, registered types, edge endpoints)
// 3. DAG (cycles, entry-point reachability)
type GraphValidator struct {
	jsonSchema *JSONSchemaValidator
	registry   *graph.Registry
}

// NewGraphValidator creates a GraphValidator. A nil registry skips node type checks.
func NewGraphValidator(registry *graph.Registry) (*GraphValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &GraphValidator{jsonSchema: jsv, registry: registry}, nil
}

// ValidateGraph returns every issue found. Each stage runs only if the
// previous one found no errors.
func (gv *GraphValidator) ValidateGraph(def *schema.WorkflowGraph) *schema.ValidationResult {
	if def == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "workflow graph is nil")
		return r
	}

	result := validateStructural(gv.jsonSchema, def)
	if !result.Valid() {
		return result
	}

	result.Merge(validateSemantic(def, gv.registry))
	if result.Valid() {
		result.Merge(validateDAG(def, gv.registry))
	}
	return result
}

// ValidateInput delegates to the underlying JSONSchemaValidator.
func (gv *GraphValidator) ValidateInput(values map[string]any, fields map[string]*schema.SchemaField) error {
	return gv.jsonSchema.ValidateInput(values, fields)
}

func validateStructural(v *JSONSchemaValidator, def *schema.WorkflowGraph) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.ValidateDocument(def)
	if err == nil {
		return result
	}

	var fe *schema.FlowError
	if !asFlowError(err, &fe) {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}
	if violations, ok := fe.Details["violations"].([]string); ok {
		for _, msg := range violations {
			result.AddError("/", schema.ErrCodeValidation, msg)
		}
		return result
	}
	result.AddError("/", schema.ErrCodeValidation, fe.Message)
	return result
}

func asFlowError(err error, target **schema.FlowError) bool {
	return errors.As(err, target)
}

var _ Validator = (*GraphValidator)(nil)
