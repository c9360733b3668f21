package validation

import "github.com/rendis/nodeflow/pkg/schema"

// Validator checks workflow graphs before a session is opened on them, and
// values against a declared input contract.
type Validator interface {
	ValidateGraph(def *schema.WorkflowGraph) *schema.ValidationResult
	ValidateInput(values map[string]any, fields map[string]*schema.SchemaField) error
}
