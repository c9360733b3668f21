package schema

// FieldType is the declared type of a SchemaField.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldObject  FieldType = "object"
	FieldArray   FieldType = "array"
	FieldAny     FieldType = "any"
)

// Structured reports whether values of this type are JSON objects or arrays.
func (t FieldType) Structured() bool {
	return t == FieldObject || t == FieldArray
}

// SchemaField describes one input or output field of a node.
// It is used both for a node's declared input contract and for
// type-coercing free-text values entered by the user.
type SchemaField struct {
	Name        string                  `json:"name,omitempty"`
	Type        FieldType               `json:"type"`
	Required    bool                    `json:"required,omitempty"`
	Description string                  `json:"description,omitempty"`
	Default     any                     `json:"default,omitempty"`
	Items       *SchemaField            `json:"items,omitempty"`
	Properties  map[string]*SchemaField `json:"properties,omitempty"`
}
