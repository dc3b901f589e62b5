package domain

// AgentScope controls visibility of an agent bundle.
type AgentScope string

const (
	ScopeEnterprise AgentScope = "enterprise"
	ScopeBusiness   AgentScope = "business"
)

// Agent bundles a system prompt, allowed tools, and prompt templates behind
// one business role. Agents are read-only during execution.
type Agent struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenant_id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Icon           string     `json:"icon,omitempty"`
	Scope          AgentScope `json:"scope"`
	SystemPrompt   string     `json:"system_prompt"`
	ToolIDs        []string   `json:"tool_ids"`
	PromptIDs      []string   `json:"prompt_ids"`
	FunctionalArea string     `json:"functional_area,omitempty"`
	// HandoffKeywords triggers a chat handoff to this agent when one of
	// these words appears in a conversation message not already addressed
	// to it. Empty means this agent is never a handoff target.
	HandoffKeywords []string `json:"handoff_keywords,omitempty"`
}

// PromptTemplate is {name, body, variables, optional bound tool}. A template
// with a non-empty BoundToolID is a "business action".
type PromptTemplate struct {
	ID           string   `json:"id"`
	TenantID     string   `json:"tenant_id"`
	Name         string   `json:"name"`
	Body         string   `json:"body"`
	Variables    []string `json:"variables"`
	BoundToolID  string   `json:"bound_tool_id,omitempty"`
}

// IsBusinessAction reports whether this template is bound to a tool.
func (p *PromptTemplate) IsBusinessAction() bool {
	return p.BoundToolID != ""
}

// ToolStatus gates whether a ToolRef may be invoked.
type ToolStatus string

const (
	ToolStatusActive      ToolStatus = "active"
	ToolStatusBeta        ToolStatus = "beta"
	ToolStatusComingSoon  ToolStatus = "coming_soon"
	ToolStatusDisabled    ToolStatus = "disabled"
)

// ToolRef is the persisted description of a uniform external tool. The core
// never talks to the concrete HTTP/SMTP adapter behind it directly; it only
// invokes tools.Tool.Run through the registry keyed by ToolRef.ID.
type ToolRef struct {
	ID               string            `json:"id"`
	TenantID         string            `json:"tenant_id"`
	Name             string            `json:"name"`
	Category         string            `json:"category"`
	Status           ToolStatus        `json:"status"`
	RequiredConfig   []string          `json:"required_config"`
	Config           map[string]string `json:"-"`
}

// Invocable reports whether the tool may be called right now.
func (t *ToolRef) Invocable() bool {
	return t.Status == ToolStatusActive
}
