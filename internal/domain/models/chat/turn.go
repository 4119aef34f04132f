package chat

import "time"

// Turn statuses
const (
	TurnStatusStreaming = "streaming"
	TurnStatusSettling  = "settling" // stream finished, tool calls still outstanding
	TurnStatusComplete  = "complete"
	TurnStatusCancelled = "cancelled"
	TurnStatusError     = "error"
)

// Turn is the bounded lifespan of one assistant-generation cycle: created
// when a user message is dispatched, destroyed when its state is folded into
// the conversation on completion, failure or cancellation.
type Turn struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	MessageID      string     `json:"message_id"` // the assistant message being produced
	Status         string     `json:"status"`
	Cancelled      bool       `json:"cancelled"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// AssistantMessageID derives the streaming assistant message id for a turn.
// The id is stable for the whole turn so deltas always target the same entry.
func AssistantMessageID(turnID string) string {
	return "asst_" + turnID
}
