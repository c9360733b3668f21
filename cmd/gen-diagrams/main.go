// gen-diagrams renders a workflow graph as ASCII, Mermaid and PNG.
// Run: go run ./cmd/gen-diagrams [-graph graph.json] [-state state.json] [-out docs/assets]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rendis/nodeflow/internal/diagram"
	"github.com/rendis/nodeflow/internal/graph"
	"github.com/rendis/nodeflow/pkg/schema"
)

func main() {
	graphPath := flag.String("graph", "", "workflow graph JSON (default: built-in support sample)")
	statePath := flag.String("state", "", "execution state JSON to overlay")
	outDir := flag.String("out", filepath.Join("docs", "assets"), "output directory")
	flag.Parse()

	def, st := sampleGraph(), sampleState()
	if *graphPath != "" {
		def, st = schema.WorkflowGraph{}, nil
		if err := readJSON(*graphPath, &def); err != nil {
			fail(err)
		}
	}
	if *statePath != "" {
		st = schema.NewWorkflowExecutionState()
		if err := readJSON(*statePath, st); err != nil {
			fail(err)
		}
	}

	g, err := graph.New(def)
	if err != nil {
		fail(fmt.Errorf("build error: %w", err))
	}
	model := diagram.Build(g, st)

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fail(err)
	}

	ascii := diagram.RenderASCII(model)
	write(filepath.Join(*outDir, "diagram-ascii.txt"), []byte(ascii))
	fmt.Println("=== ASCII ===")
	fmt.Println(ascii)

	mermaid := diagram.RenderMermaid(model)
	write(filepath.Join(*outDir, "diagram-mermaid.md"), []byte("```mermaid\n"+mermaid+"\n```\n"))
	fmt.Println("=== Mermaid ===")
	fmt.Println(mermaid)

	png, imgErr := diagram.RenderImage(context.Background(), model, diagram.FormatPNG)
	if imgErr != nil {
		fmt.Fprintf(os.Stderr, "image error: %v\n", imgErr)
		return
	}
	pngPath := filepath.Join(*outDir, "diagram-sample.png")
	write(pngPath, png)
	fmt.Printf("=== Image (PNG) ===\nWritten: %s (%d bytes)\n", pngPath, len(png))
}

// sampleGraph: chat → agent ← tool builder, agent → router → (ticket | reply).
func sampleGraph() schema.WorkflowGraph {
	return schema.WorkflowGraph{
		ID:   "support-sample",
		Name: "Support triage",
		Nodes: []schema.Node{
			{ID: "chat", Type: schema.NodeTypeChatInput, Data: map[string]any{"label": "Customer message"}},
			{ID: "kb", Type: schema.NodeTypeKnowledgeBase, Data: map[string]any{"label": "Help center"}},
			{ID: "tools", Type: schema.NodeTypeToolBuilder},
			{ID: "agent", Type: schema.NodeTypeAgent, Data: map[string]any{"label": "Triage agent"}},
			{ID: "route", Type: schema.NodeTypeRouter},
			{ID: "ticket", Type: schema.NodeTypeZendeskTicket},
			{ID: "reply", Type: schema.NodeTypeChatOutput},
		},
		Edges: []schema.Edge{
			{Source: "chat", Target: "agent"},
			{Source: "kb", Target: "agent"},
			{Source: "tools", Target: "agent", SourceHandle: "tools"},
			{Source: "agent", Target: "route"},
			{Source: "route", Target: "ticket", SourceHandle: "escalate"},
			{Source: "route", Target: "reply", SourceHandle: "answer"},
		},
	}
}

func sampleState() *schema.WorkflowExecutionState {
	now := time.Now().UTC()
	st := schema.NewWorkflowExecutionState()
	st.NodeOutputs["chat"] = &schema.NodeExecutionResult{Status: schema.ExecutionSuccess, Timestamp: now, Sequence: 1}
	st.NodeOutputs["kb"] = &schema.NodeExecutionResult{Status: schema.ExecutionSuccess, Timestamp: now, Sequence: 2}
	st.NodeOutputs["agent"] = &schema.NodeExecutionResult{Status: schema.ExecutionSuccess, Timestamp: now, Sequence: 3}
	st.NodeOutputs["route"] = &schema.NodeExecutionResult{
		Status: schema.ExecutionError, Output: map[string]any{"error": "no branch matched"}, Timestamp: now, Sequence: 4,
	}
	st.NodeOutputs["reply"] = &schema.NodeExecutionResult{Status: schema.ExecutionPending, Timestamp: now, Sequence: 5}
	return st
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func write(path string, data []byte) {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "%v\n", err)
	os.Exit(1)
}
