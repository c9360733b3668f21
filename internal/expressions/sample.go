package expressions

import (
	"github.com/rendis/nodeflow/internal/compaction"
	"github.com/rendis/nodeflow/pkg/schema"
)

// Sample values produced for each declared field type.
const (
	SampleString = "sample_string_value"
	SampleNumber = 42.0
	SampleAny    = "sample_value"
)

// GenerateSample produces a representative value for field, used to preview a
// node's output before it has run. A non-nil Default is returned as-is.
func GenerateSample(field *schema.SchemaField) any {
	return generateSample(field, map[*schema.SchemaField]bool{})
}

// onPath guards against self-referencing contracts.
func generateSample(field *schema.SchemaField, onPath map[*schema.SchemaField]bool) any {
	if field == nil {
		return SampleAny
	}
	if field.Default != nil {
		return field.Default
	}
	if onPath[field] {
		return nil
	}
	onPath[field] = true
	defer delete(onPath, field)

	switch field.Type {
	case schema.FieldString:
		return SampleString
	case schema.FieldNumber:
		return SampleNumber
	case schema.FieldBoolean:
		return true
	case schema.FieldArray:
		return []any{generateSample(field.Items, onPath)}
	case schema.FieldObject:
		obj := make(map[string]any, len(field.Properties))
		for name, prop := range field.Properties {
			obj[name] = generateSample(prop, onPath)
		}
		return obj
	default:
		return SampleAny
	}
}

// GenerateSamples samples every field of an input contract.
func GenerateSamples(fields map[string]*schema.SchemaField) map[string]any {
	out := make(map[string]any, len(fields))
	for name, f := range fields {
		out[name] = GenerateSample(f)
	}
	return out
}

// InferSchema derives a contract from an example value. Compaction markers are
// expanded first, and array items come from the first element.
func InferSchema(value any) *schema.SchemaField {
	return inferSchema(compaction.Expand(value))
}

func inferSchema(v any) *schema.SchemaField {
	switch val := v.(type) {
	case map[string]any:
		props := make(map[string]*schema.SchemaField, len(val))
		for k, child := range val {
			f := inferSchema(child)
			f.Name = k
			props[k] = f
		}
		return &schema.SchemaField{Type: schema.FieldObject, Properties: props}
	case []any:
		f := &schema.SchemaField{Type: schema.FieldArray}
		if len(val) > 0 {
			f.Items = inferSchema(val[0])
		}
		return f
	case string:
		return &schema.SchemaField{Type: schema.FieldString}
	case float64:
		return &schema.SchemaField{Type: schema.FieldNumber}
	case bool:
		return &schema.SchemaField{Type: schema.FieldBoolean}
	default:
		return &schema.SchemaField{Type: schema.FieldAny}
	}
}
