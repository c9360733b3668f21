package diagram

import "github.com/rendis/nodeflow/pkg/schema"

// NodeKind picks the shape a node is drawn with. It follows the node
// registry category.
type NodeKind string

const (
	NodeKindEntry NodeKind = "entry"
	NodeKindIO    NodeKind = "io"
	NodeKindAI    NodeKind = "ai"
	NodeKindTool  NodeKind = "tool"
	NodeKindLogic NodeKind = "logic"
	NodeKindData  NodeKind = "data"
	NodeKindOther NodeKind = "other"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node is one workflow node.
type Node struct {
	ID     string
	Label  string
	Type   schema.NodeType
	Kind   NodeKind
	Status *StatusOverlay
}

// StatusOverlay carries the node's latest recorded result.
type StatusOverlay struct {
	Status   schema.ExecutionStatus
	Sequence int64
	Error    string
}

// Edge is a graph edge. Hidden edges connect a predecessor the target cannot
// see, such as a tool builder feeding an agent.
type Edge struct {
	From   string
	To     string
	Label  string
	Hidden bool
}
