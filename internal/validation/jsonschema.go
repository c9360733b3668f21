package validation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rendis/nodeflow/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const graphSchemaURL = "https://nodeflow.dev/schemas/graph.json"

// graphSchemaJSON is the JSON Schema for WorkflowGraph documents.
const graphSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://nodeflow.dev/schemas/graph.json",
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "id": { "type": "string" },
    "name": { "type": "string" },
    "nodes": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/node" }
    },
    "edges": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/edge" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "type": { "type": "string", "minLength": 1 },
        "data": { "type": ["object", "null"] }
      },
      "additionalProperties": false
    },
    "edge": {
      "type": "object",
      "required": ["source", "target"],
      "properties": {
        "id": { "type": "string" },
        "source": { "type": "string", "minLength": 1 },
        "target": { "type": "string", "minLength": 1 },
        "sourceHandle": { "type": "string" },
        "targetHandle": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator validates graph documents and input values using JSON
// Schema Draft 2020-12. It is safe for concurrent use.
type JSONSchemaValidator struct {
	graphSchema *jsonschema.Schema

	// mu guards the cache of compiled input contracts.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator creates a validator with the graph schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := newCompiler()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(graphSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal graph schema: %w", err)
	}
	if err := c.AddResource(graphSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add graph schema resource: %w", err)
	}

	compiled, err := c.Compile(graphSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile graph schema: %w", err)
	}

	return &JSONSchemaValidator{
		graphSchema: compiled,
		cache:       make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateDocument checks the shape of a graph document.
func (v *JSONSchemaValidator) ValidateDocument(def *schema.WorkflowGraph) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow graph is nil")
	}

	doc, err := toJSONValue(def)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize workflow graph").WithCause(err)
	}

	if err := v.graphSchema.Validate(doc); err != nil {
		return toFlowError(err)
	}
	return nil
}

// ValidateInput validates values against an input contract. The contract is
// translated to JSON Schema once and cached.
func (v *JSONSchemaValidator) ValidateInput(values map[string]any, fields map[string]*schema.SchemaField) error {
	if len(fields) == 0 {
		return nil
	}
	if values == nil {
		values = map[string]any{}
	}

	compiled, err := v.getOrCompile(ContractSchema(fields))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid input contract").WithCause(err)
	}

	doc, err := toJSONValue(values)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize input").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toFlowError(err)
	}
	return nil
}

// ContractSchema translates an input contract into a JSON Schema document.
func ContractSchema(fields map[string]*schema.SchemaField) map[string]any {
	return objectSchema(fields, map[*schema.SchemaField]bool{})
}

func objectSchema(fields map[string]*schema.SchemaField, onPath map[*schema.SchemaField]bool) map[string]any {
	props := make(map[string]any, len(fields))
	required := make([]string, 0)
	for name, f := range fields {
		props[name] = fieldSchema(f, onPath)
		if f != nil && f.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)

	out := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func fieldSchema(f *schema.SchemaField, onPath map[*schema.SchemaField]bool) map[string]any {
	if f == nil || onPath[f] {
		return map[string]any{}
	}
	onPath[f] = true
	defer delete(onPath, f)

	var out map[string]any
	switch f.Type {
	case schema.FieldString, schema.FieldNumber, schema.FieldBoolean:
		out = map[string]any{"type": string(f.Type)}
	case schema.FieldObject:
		out = objectSchema(f.Properties, onPath)
	case schema.FieldArray:
		out = map[string]any{"type": "array"}
		if f.Items != nil {
			out["items"] = fieldSchema(f.Items, onPath)
		}
	default:
		out = map[string]any{}
	}
	if f.Description != "" {
		out["description"] = f.Description
	}
	return out
}

func (v *JSONSchemaValidator) getOrCompile(doc map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal contract schema: %w", err)
	}
	key := string(raw)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal contract schema: %w", err)
	}

	url := fmt.Sprintf("nodeflow://input-contract/%d", len(v.cache))
	c := newCompiler()
	if err := c.AddResource(url, parsed); err != nil {
		return nil, fmt.Errorf("add contract schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile contract schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

func newCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

// toJSONValue round-trips v through JSON so numbers become json.Number, as
// the jsonschema library requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toFlowError flattens a jsonschema.ValidationError into a FlowError listing
// every leaf violation with its instance location.
func toFlowError(err error) *schema.FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	return schema.NewErrorf(schema.ErrCodeValidation, "validation failed with %d errors", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
