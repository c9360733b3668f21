package graph

import "github.com/rendis/nodeflow/pkg/schema"

// NodeTypeInfo is what the node registry knows about one node type.
type NodeTypeInfo struct {
	Type       schema.NodeType `json:"type"`
	Label      string          `json:"label"`
	Icon       string          `json:"icon,omitempty"`
	Category   string          `json:"category"`
	EntryPoint bool            `json:"entry_point,omitempty"`
}

// Registry maps node types to their descriptions.
type Registry struct {
	types map[schema.NodeType]NodeTypeInfo
}

// NewRegistry builds a registry from the given descriptions.
func NewRegistry(infos ...NodeTypeInfo) *Registry {
	r := &Registry{types: make(map[schema.NodeType]NodeTypeInfo, len(infos))}
	for _, info := range infos {
		r.types[info.Type] = info
	}
	return r
}

// Lookup returns the description of a node type.
func (r *Registry) Lookup(t schema.NodeType) (NodeTypeInfo, bool) {
	if r == nil {
		return NodeTypeInfo{}, false
	}
	info, ok := r.types[t]
	return info, ok
}

// IsEntryPoint reports whether nodes of type t start a conversation/session.
func (r *Registry) IsEntryPoint(t schema.NodeType) bool {
	info, ok := r.Lookup(t)
	return ok && info.EntryPoint
}

// Types returns every registered type in schema.AllNodeTypes order, followed by extras.
func (r *Registry) Types() []NodeTypeInfo {
	out := make([]NodeTypeInfo, 0, len(r.types))
	seen := make(map[schema.NodeType]bool, len(r.types))
	for _, t := range schema.AllNodeTypes {
		if info, ok := r.types[t]; ok {
			out = append(out, info)
			seen[t] = true
		}
	}
	for t, info := range r.types {
		if !seen[t] {
			out = append(out, info)
		}
	}
	return out
}

var defaultRegistry = NewRegistry(
	NodeTypeInfo{Type: schema.NodeTypeChatInput, Label: "Chat Input", Icon: "message-circle", Category: "io", EntryPoint: true},
	NodeTypeInfo{Type: schema.NodeTypeChatOutput, Label: "Chat Output", Icon: "message-square", Category: "io"},
	NodeTypeInfo{Type: schema.NodeTypeRouter, Label: "Router", Icon: "git-branch", Category: "logic"},
	NodeTypeInfo{Type: schema.NodeTypeAgent, Label: "Agent", Icon: "bot", Category: "ai"},
	NodeTypeInfo{Type: schema.NodeTypeAPITool, Label: "API Tool", Icon: "globe", Category: "tools"},
	NodeTypeInfo{Type: schema.NodeTypeOpenAPI, Label: "OpenAPI", Icon: "file-json", Category: "tools"},
	NodeTypeInfo{Type: schema.NodeTypeTemplate, Label: "Template", Icon: "file-text", Category: "logic"},
	NodeTypeInfo{Type: schema.NodeTypeLLMModel, Label: "LLM Model", Icon: "cpu", Category: "ai"},
	NodeTypeInfo{Type: schema.NodeTypeKnowledgeBase, Label: "Knowledge Base", Icon: "book-open", Category: "data"},
	NodeTypeInfo{Type: schema.NodeTypePythonCode, Label: "Python Code", Icon: "code", Category: "tools"},
	NodeTypeInfo{Type: schema.NodeTypeDataMapper, Label: "Data Mapper", Icon: "shuffle", Category: "logic"},
	NodeTypeInfo{Type: schema.NodeTypeToolBuilder, Label: "Tool Builder", Icon: "wrench", Category: "tools"},
	NodeTypeInfo{Type: schema.NodeTypeSlackMessage, Label: "Slack Message", Icon: "slack", Category: "integrations"},
	NodeTypeInfo{Type: schema.NodeTypeCalendarEvent, Label: "Calendar Event", Icon: "calendar", Category: "integrations"},
	NodeTypeInfo{Type: schema.NodeTypeReadMails, Label: "Read Mails", Icon: "inbox", Category: "integrations"},
	NodeTypeInfo{Type: schema.NodeTypeGmail, Label: "Gmail", Icon: "mail", Category: "integrations"},
	NodeTypeInfo{Type: schema.NodeTypeWhatsAppTool, Label: "WhatsApp", Icon: "phone", Category: "integrations"},
	NodeTypeInfo{Type: schema.NodeTypeZendeskTicket, Label: "Zendesk Ticket", Icon: "life-buoy", Category: "integrations"},
	NodeTypeInfo{Type: schema.NodeTypeSQL, Label: "SQL", Icon: "database", Category: "data"},
	NodeTypeInfo{Type: schema.NodeTypeAggregator, Label: "Aggregator", Icon: "merge", Category: "logic"},
	NodeTypeInfo{Type: schema.NodeTypeJira, Label: "Jira", Icon: "trello", Category: "integrations"},
	NodeTypeInfo{Type: schema.NodeTypeMLModelInference, Label: "ML Inference", Icon: "activity", Category: "ml"},
	NodeTypeInfo{Type: schema.NodeTypeTrainDataSource, Label: "Training Data", Icon: "database", Category: "ml"},
	NodeTypeInfo{Type: schema.NodeTypePreprocessing, Label: "Preprocessing", Icon: "filter", Category: "ml"},
	NodeTypeInfo{Type: schema.NodeTypeTrainModel, Label: "Train Model", Icon: "trending-up", Category: "ml"},
	NodeTypeInfo{Type: schema.NodeTypeThreadRAG, Label: "Thread RAG", Icon: "layers", Category: "data"},
	NodeTypeInfo{Type: schema.NodeTypeMCP, Label: "MCP", Icon: "plug", Category: "tools"},
	NodeTypeInfo{Type: schema.NodeTypeWorkflowExecutor, Label: "Workflow Executor", Icon: "play-circle", Category: "logic"},
)

// DefaultRegistry returns the registry of all built-in node types.
// Only chatInputNode is an entry point.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// ExclusionRule hides predecessors of type Excluded from the direct-predecessor
// set of nodes of type Target.
type ExclusionRule struct {
	Target   schema.NodeType
	Excluded schema.NodeType
}

// Exclusions is a lookup table of exclusion rules.
type Exclusions map[ExclusionRule]struct{}

// NewExclusions builds a table from rules.
func NewExclusions(rules ...ExclusionRule) Exclusions {
	ex := make(Exclusions, len(rules))
	for _, r := range rules {
		ex[r] = struct{}{}
	}
	return ex
}

// Excludes reports whether a predecessor of type pred is hidden from target.
func (e Exclusions) Excludes(target, pred schema.NodeType) bool {
	_, ok := e[ExclusionRule{Target: target, Excluded: pred}]
	return ok
}

// DefaultExclusions hides tool builders from the direct predecessors of agents.
func DefaultExclusions() Exclusions {
	return NewExclusions(ExclusionRule{Target: schema.NodeTypeAgent, Excluded: schema.NodeTypeToolBuilder})
}
