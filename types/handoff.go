package types

// Message is a single conversation turn carried along with a handoff.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HandoffContext carries the conversational state a handoff executes in. The
// core references it but never mutates it.
type HandoffContext struct {
	ConversationID string         `json:"conversation_id,omitempty"`
	SourceAgentID  string         `json:"source_agent_id,omitempty"`
	Messages       []Message      `json:"messages,omitempty"`
	Variables      map[string]any `json:"variables,omitempty"`
}
