package chat

import "time"

// Conversation is the ordered message sequence for one coaching chat.
// Insertion order is causal order and is never rearranged. Instances produced
// by the reducer are immutable snapshots; mutation happens only by deriving
// the next snapshot.
type Conversation struct {
	ID           string    `json:"id" db:"id"`
	ChildID      string    `json:"child_id" db:"child_id"`
	CaregiverID  string    `json:"caregiver_id" db:"caregiver_id"`
	ActiveTurnID string    `json:"active_turn_id,omitempty"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Clone returns a deep copy for copy-on-write reduction.
func (c Conversation) Clone() Conversation {
	out := c
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		for i := range c.Messages {
			out.Messages[i] = c.Messages[i].Clone()
		}
	}
	return out
}

// MessageByID returns the index of the message with the given id, or -1.
func (c *Conversation) MessageByID(id string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// LastMessage returns the newest message, or nil for an empty conversation.
// Value receiver so it can be chained off Clone and snapshot results.
func (c Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}
