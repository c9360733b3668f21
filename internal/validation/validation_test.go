package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nodeflow/internal/graph"
	"github.com/rendis/nodeflow/pkg/schema"
)

func newValidator(t *testing.T) *GraphValidator {
	t.Helper()
	v, err := NewGraphValidator(graph.DefaultRegistry())
	require.NoError(t, err)
	return v
}

func chatFlow() *schema.WorkflowGraph {
	return &schema.WorkflowGraph{
		ID: "support",
		Nodes: []schema.Node{
			{ID: "chat", Type: schema.NodeTypeChatInput},
			{ID: "agent", Type: schema.NodeTypeAgent, Data: map[string]any{"label": "Agent"}},
			{ID: "out", Type: schema.NodeTypeChatOutput},
		},
		Edges: []schema.Edge{
			{ID: "e1", Source: "chat", Target: "agent"},
			{ID: "e2", Source: "agent", Target: "out"},
		},
	}
}

func codes(issues []schema.ValidationIssue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.Code
	}
	return out
}

func TestValidateGraph_Valid(t *testing.T) {
	r := newValidator(t).ValidateGraph(chatFlow())
	assert.True(t, r.Valid(), "%+v", r.Errors)
	assert.Empty(t, r.Warnings)
	assert.NoError(t, r.ToError())
}

func TestValidateGraph_Nil(t *testing.T) {
	r := newValidator(t).ValidateGraph(nil)
	assert.False(t, r.Valid())
}

func TestValidateGraph_Structural(t *testing.T) {
	def := chatFlow()
	def.Nodes[1].ID = ""
	def.Edges[0].Target = ""

	r := newValidator(t).ValidateGraph(def)
	require.False(t, r.Valid())
	assert.GreaterOrEqual(t, len(r.Errors), 2)
	for _, is := range r.Errors {
		assert.Equal(t, schema.ErrCodeValidation, is.Code)
	}
}

func TestValidateGraph_SemanticCollectsAll(t *testing.T) {
	def := chatFlow()
	def.Nodes = append(def.Nodes,
		schema.Node{ID: "agent", Type: schema.NodeTypeAgent},
		schema.Node{ID: "x", Type: "martianNode"},
	)
	def.Edges = append(def.Edges, schema.Edge{Source: "out", Target: "ghost"})

	r := newValidator(t).ValidateGraph(def)
	require.False(t, r.Valid())
	assert.ElementsMatch(t,
		[]string{schema.ErrCodeValidation, schema.ErrCodeValidation, schema.ErrCodeDanglingEdge},
		codes(r.Errors))
}

func TestValidateGraph_SelfLoop(t *testing.T) {
	def := chatFlow()
	def.Edges = append(def.Edges, schema.Edge{Source: "agent", Target: "agent"})

	r := newValidator(t).ValidateGraph(def)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, schema.ErrCodeCycleDetected, r.Errors[0].Code)
	assert.True(t, schema.HasCode(r.ToError(), schema.ErrCodeCycleDetected))
}

func TestValidateGraph_Cycle(t *testing.T) {
	def := chatFlow()
	def.Edges = append(def.Edges, schema.Edge{Source: "out", Target: "agent"})

	r := newValidator(t).ValidateGraph(def)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, schema.ErrCodeCycleDetected, r.Errors[0].Code)
	assert.Contains(t, r.Errors[0].Message, "agent -> out -> agent")
}

func TestValidateGraph_Warnings(t *testing.T) {
	def := chatFlow()
	def.Nodes = append(def.Nodes, schema.Node{ID: "orphan", Type: schema.NodeTypeTemplate})

	r := newValidator(t).ValidateGraph(def)
	assert.True(t, r.Valid())
	require.Len(t, r.Warnings, 1)
	assert.Contains(t, r.Warnings[0].Message, "orphan")

	noEntry := &schema.WorkflowGraph{Nodes: []schema.Node{{ID: "t", Type: schema.NodeTypeTemplate}}}
	r = newValidator(t).ValidateGraph(noEntry)
	assert.True(t, r.Valid())
	require.Len(t, r.Warnings, 1)
	assert.Contains(t, r.Warnings[0].Message, "no entry point")
}

func TestValidateGraph_NilRegistryAllowsCustomTypes(t *testing.T) {
	v, err := NewGraphValidator(nil)
	require.NoError(t, err)
	r := v.ValidateGraph(&schema.WorkflowGraph{Nodes: []schema.Node{{ID: "a", Type: "customNode"}}})
	assert.True(t, r.Valid())
}

// --- input contracts ---

func contract() map[string]*schema.SchemaField {
	return map[string]*schema.SchemaField{
		"query": {Type: schema.FieldString, Required: true, Description: "search text"},
		"limit": {Type: schema.FieldNumber},
		"filters": {Type: schema.FieldObject, Properties: map[string]*schema.SchemaField{
			"tags": {Type: schema.FieldArray, Items: &schema.SchemaField{Type: schema.FieldString}},
		}},
		"extra": {Type: schema.FieldAny},
	}
}

func TestValidateInput_Accepts(t *testing.T) {
	v := newValidator(t)
	err := v.ValidateInput(map[string]any{
		"query":   "refunds",
		"limit":   10,
		"filters": map[string]any{"tags": []any{"billing"}},
		"extra":   []any{1, "x"},
	}, contract())
	assert.NoError(t, err)
}

func TestValidateInput_Rejects(t *testing.T) {
	v := newValidator(t)
	err := v.ValidateInput(map[string]any{
		"limit":   "ten",
		"filters": map[string]any{"tags": []any{1}},
	}, contract())
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	var fe *schema.FlowError
	require.True(t, asFlowError(err, &fe))
	violations := fe.Details["violations"].([]string)
	assert.GreaterOrEqual(t, len(violations), 3)
}

func TestValidateInput_EmptyContract(t *testing.T) {
	v := newValidator(t)
	assert.NoError(t, v.ValidateInput(nil, nil))
	assert.Error(t, v.ValidateInput(nil, contract()), "required query missing")
}

func TestValidateInput_Caches(t *testing.T) {
	jsv, err := NewJSONSchemaValidator()
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.NoError(t, jsv.ValidateInput(map[string]any{"query": "q"}, contract()))
	}
	assert.Len(t, jsv.cache, 1)
}

func TestContractSchema(t *testing.T) {
	doc := ContractSchema(contract())
	assert.Equal(t, "object", doc["type"])
	assert.Equal(t, []string{"query"}, doc["required"])
	props := doc["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "string", "description": "search text"}, props["query"])
	assert.Equal(t, map[string]any{}, props["extra"])

	self := &schema.SchemaField{Type: schema.FieldArray}
	self.Items = self
	doc = ContractSchema(map[string]*schema.SchemaField{"loop": self})
	assert.Equal(t, map[string]any{"type": "array", "items": map[string]any{}}, doc["properties"].(map[string]any)["loop"])
}
