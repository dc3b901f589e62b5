package domain

import "time"

// Conversation is a tenant-scoped chat session, potentially handed off
// between agents by internal/chatrouter.
type Conversation struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	UserID         string    `json:"user_id"`
	ActiveAgentID  string    `json:"active_agent_id"`
	Title          string    `json:"title,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastMessageAt  time.Time `json:"last_message_at"`
}

// MessageRole is who authored a Message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleTool      MessageRole = "tool"
)

// Message is one turn of a Conversation.
type Message struct {
	ID             string      `json:"id"`
	TenantID       string      `json:"tenant_id"`
	ConversationID string      `json:"conversation_id"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
	AgentID        string      `json:"agent_id,omitempty"`
	// HandoffFrom is set when this message triggered a chatrouter handoff
	// from one agent to another.
	HandoffFrom string    `json:"handoff_from,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
