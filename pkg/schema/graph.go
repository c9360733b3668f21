package schema

// NodeType identifies the kind of a workflow node.
// The set is closed: every type the editor can place is listed below.
type NodeType string

const (
	NodeTypeChatInput        NodeType = "chatInputNode"
	NodeTypeChatOutput       NodeType = "chatOutputNode"
	NodeTypeRouter           NodeType = "routerNode"
	NodeTypeAgent            NodeType = "agentNode"
	NodeTypeAPITool          NodeType = "apiToolNode"
	NodeTypeOpenAPI          NodeType = "openApiNode"
	NodeTypeTemplate         NodeType = "templateNode"
	NodeTypeLLMModel         NodeType = "llmModelNode"
	NodeTypeKnowledgeBase    NodeType = "knowledgeBaseNode"
	NodeTypePythonCode       NodeType = "pythonCodeNode"
	NodeTypeDataMapper       NodeType = "dataMapperNode"
	NodeTypeToolBuilder      NodeType = "toolBuilderNode"
	NodeTypeSlackMessage     NodeType = "slackMessageNode"
	NodeTypeCalendarEvent    NodeType = "calendarEventNode"
	NodeTypeReadMails        NodeType = "readMailsNode"
	NodeTypeGmail            NodeType = "gmailNode"
	NodeTypeWhatsAppTool     NodeType = "whatsappToolNode"
	NodeTypeZendeskTicket    NodeType = "zendeskTicketNode"
	NodeTypeSQL              NodeType = "sqlNode"
	NodeTypeAggregator       NodeType = "aggregatorNode"
	NodeTypeJira             NodeType = "jiraNode"
	NodeTypeMLModelInference NodeType = "mlModelInferenceNode"
	NodeTypeTrainDataSource  NodeType = "trainDataSourceNode"
	NodeTypePreprocessing    NodeType = "preprocessingNode"
	NodeTypeTrainModel       NodeType = "trainModelNode"
	NodeTypeThreadRAG        NodeType = "threadRAGNode"
	NodeTypeMCP              NodeType = "mcpNode"
	NodeTypeWorkflowExecutor NodeType = "workflowExecutorNode"
)

// AllNodeTypes lists every known node type in registry order.
var AllNodeTypes = []NodeType{
	NodeTypeChatInput, NodeTypeChatOutput, NodeTypeRouter, NodeTypeAgent,
	NodeTypeAPITool, NodeTypeOpenAPI, NodeTypeTemplate, NodeTypeLLMModel,
	NodeTypeKnowledgeBase, NodeTypePythonCode, NodeTypeDataMapper, NodeTypeToolBuilder,
	NodeTypeSlackMessage, NodeTypeCalendarEvent, NodeTypeReadMails, NodeTypeGmail,
	NodeTypeWhatsAppTool, NodeTypeZendeskTicket, NodeTypeSQL, NodeTypeAggregator,
	NodeTypeJira, NodeTypeMLModelInference, NodeTypeTrainDataSource, NodeTypePreprocessing,
	NodeTypeTrainModel, NodeTypeThreadRAG, NodeTypeMCP, NodeTypeWorkflowExecutor,
}

var knownNodeTypes = func() map[NodeType]bool {
	m := make(map[NodeType]bool, len(AllNodeTypes))
	for _, t := range AllNodeTypes {
		m[t] = true
	}
	return m
}()

// Known reports whether t is one of the registered node types.
func (t NodeType) Known() bool {
	return knownNodeTypes[t]
}

// Node is a unit of the workflow graph.
type Node struct {
	ID   string         `json:"id"`
	Type NodeType       `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// DisplayName returns the node's label, falling back to its name and then its ID.
func (n Node) DisplayName() string {
	for _, key := range []string{"label", "name"} {
		if s, ok := n.Data[key].(string); ok && s != "" {
			return s
		}
	}
	return n.ID
}

// Edge is a directed connection from one node's output to another's input.
type Edge struct {
	ID           string `json:"id,omitempty"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// WorkflowGraph is the full node/edge graph supplied by the workflow catalog.
type WorkflowGraph struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges,omitempty"`
}
