package chat

import (
	"encoding/json"
	"time"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message statuses
const (
	MessageStatusPending   = "pending"   // optimistic, not yet confirmed by storage / stream
	MessageStatusConfirmed = "confirmed" // durable; id, role and content are final
	MessageStatusFailed    = "failed"    // rejected, errored or cancelled; retained for retry
)

// Message is one entry in a conversation. A pending message may mutate in
// place (streaming assistant content, optimistic user sends); once confirmed
// its id, role and content never change again.
type Message struct {
	ID             string                     `json:"id" db:"id"`
	ConversationID string                     `json:"conversation_id" db:"conversation_id"`
	Role           string                     `json:"role" db:"role"`
	Content        string                     `json:"content" db:"content"`
	ToolCalls      []ToolCallRef              `json:"tool_calls,omitempty" db:"tool_calls"`
	ToolResults    map[string]json.RawMessage `json:"tool_results,omitempty" db:"tool_results"`
	Status         string                     `json:"status" db:"status"`
	FailureReason  *string                    `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt      time.Time                  `json:"created_at" db:"created_at"`
}

// Clone returns a deep copy so reducer outputs never alias prior state.
func (m Message) Clone() Message {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCallRef, len(m.ToolCalls))
		copy(out.ToolCalls, m.ToolCalls)
	}
	if m.ToolResults != nil {
		out.ToolResults = make(map[string]json.RawMessage, len(m.ToolResults))
		for k, v := range m.ToolResults {
			out.ToolResults[k] = v
		}
	}
	if m.FailureReason != nil {
		reason := *m.FailureReason
		out.FailureReason = &reason
	}
	return out
}

// IsPending reports whether the message may still mutate in place.
func (m *Message) IsPending() bool {
	return m.Status == MessageStatusPending
}
