// Package session holds the conversation turn model and the bounded history
// store shared by the agent and the LLM clients.
package session

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a model-requested invocation of a named tool. ToolCallID is the
// backend-supplied correlation id and is kept verbatim; it is only synthesized
// locally when the backend omits one.
type ToolCall struct {
	ToolCallID string                 `json:"tool_call_id"`
	Name       string                 `json:"name"`
	Args       map[string]interface{} `json:"args"`
}

// Message is one turn in a conversation.
//
// Role "assistant" may carry ToolCalls alongside (possibly empty) Content.
// Role "tool" carries the result of exactly one executed tool call; its
// ToolCallID must reference a call emitted by a preceding assistant turn.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Set on tool-result messages only.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

// Conversation is an append-only ordered sequence of messages. Once a system
// message is present it is always first and is replaced in place, never
// duplicated.
type Conversation struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
}

// NewConversation creates an empty conversation with the given id.
func NewConversation(id string) *Conversation {
	return &Conversation{ID: id}
}

// Append adds a message to the end of the conversation.
func (c *Conversation) Append(msg Message) {
	c.Messages = append(c.Messages, msg)
}

// SetSystemPrompt installs or replaces the system message at index 0.
func (c *Conversation) SetSystemPrompt(text string) {
	sys := Message{Role: RoleSystem, Content: text}
	if len(c.Messages) > 0 && c.Messages[0].Role == RoleSystem {
		c.Messages[0] = sys
		return
	}
	c.Messages = append([]Message{sys}, c.Messages...)
}

// SystemPrompt returns the current system prompt text, if any.
func (c *Conversation) SystemPrompt() (string, bool) {
	if len(c.Messages) > 0 && c.Messages[0].Role == RoleSystem {
		return c.Messages[0].Content, true
	}
	return "", false
}

// Trim drops the oldest non-system messages so that at most maxInteractions
// user/response units remain. The system message at index 0 survives trimming.
// A unit is two messages (user turn plus the assistant/tool turns answering
// it are approximated as pairs, matching the retention policy of the original
// agent).
func (c *Conversation) Trim(maxInteractions int) {
	if maxInteractions <= 0 {
		return
	}
	limit := maxInteractions * 2
	hasSystem := len(c.Messages) > 0 && c.Messages[0].Role == RoleSystem

	body := c.Messages
	var head []Message
	if hasSystem {
		head = c.Messages[:1]
		body = c.Messages[1:]
	}
	if len(body) <= limit {
		return
	}
	trimmed := make([]Message, 0, len(head)+limit)
	trimmed = append(trimmed, head...)
	trimmed = append(trimmed, body[len(body)-limit:]...)
	c.Messages = trimmed
}
