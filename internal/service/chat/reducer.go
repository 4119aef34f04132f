package chat

import (
	"encoding/json"
	"time"

	"neurobridge/internal/domain/models/chat"
)

// Apply is the conversation reducer: a pure, total function from (prior
// snapshot, event) to the next snapshot. The input is never mutated; the
// output shares no mutable state with it. The only time dependency is the
// createdAt stamp supplied by the caller for messages the reducer creates.
//
// Events that do not apply to the current state (confirming an unknown
// temporary id, deltas with no active turn) reduce to the unchanged snapshot
// rather than erroring, which is what makes reconciliation idempotent.
func Apply(state chat.Conversation, ev chat.Event, now time.Time) chat.Conversation {
	switch e := ev.(type) {
	case chat.UserMessageSubmitted:
		return applyUserSubmitted(state, e)
	case chat.UserMessageConfirmed:
		return applyUserConfirmed(state, e)
	case chat.UserMessageRejected:
		return applyUserRejected(state, e)
	case chat.TurnStarted:
		next := state.Clone()
		next.ActiveTurnID = e.TurnID
		return next
	case chat.TextDelta:
		return applyTextDelta(state, e, now)
	case chat.ToolCallRequested:
		return applyToolCallRequested(state, e, now)
	case chat.ToolCallResult:
		return applyToolCallResult(state, e)
	case chat.TurnCompleted:
		return applyTurnCompleted(state, e, now)
	case chat.TurnFailed:
		return applyTurnTerminal(state, e.Reason, now)
	case chat.TurnCancelled:
		return applyTurnTerminal(state, "cancelled", now)
	default:
		return state
	}
}

func applyUserSubmitted(state chat.Conversation, e chat.UserMessageSubmitted) chat.Conversation {
	next := state.Clone()

	// Retry path: same temporary id goes back to pending in place so the UI
	// entry is updated, never duplicated.
	if i := next.MessageByID(e.Message.ID); i >= 0 {
		if next.Messages[i].Status == chat.MessageStatusFailed {
			next.Messages[i].Status = chat.MessageStatusPending
			next.Messages[i].FailureReason = nil
		}
		return next
	}

	msg := e.Message.Clone()
	msg.Status = chat.MessageStatusPending
	next.Messages = append(next.Messages, msg)
	return next
}

func applyUserConfirmed(state chat.Conversation, e chat.UserMessageConfirmed) chat.Conversation {
	i := state.MessageByID(e.TempID)
	if i < 0 {
		// Already rejected/removed or already rewritten: a no-op, not an error.
		return state
	}

	next := state.Clone()
	next.Messages[i].ID = e.ServerID
	next.Messages[i].Status = chat.MessageStatusConfirmed
	next.Messages[i].FailureReason = nil
	return next
}

func applyUserRejected(state chat.Conversation, e chat.UserMessageRejected) chat.Conversation {
	i := state.MessageByID(e.TempID)
	if i < 0 || state.Messages[i].Status == chat.MessageStatusConfirmed {
		return state
	}

	next := state.Clone()
	reason := e.Reason
	next.Messages[i].Status = chat.MessageStatusFailed
	next.Messages[i].FailureReason = &reason
	return next
}

func applyTextDelta(state chat.Conversation, e chat.TextDelta, now time.Time) chat.Conversation {
	if state.ActiveTurnID == "" {
		return state
	}

	next, i := ensureAssistantMessage(state, now)
	next.Messages[i].Content += e.Text
	return next
}

func applyToolCallRequested(state chat.Conversation, e chat.ToolCallRequested, now time.Time) chat.Conversation {
	if state.ActiveTurnID == "" {
		return state
	}

	next, i := ensureAssistantMessage(state, now)
	msg := &next.Messages[i]
	for j := range msg.ToolCalls {
		if msg.ToolCalls[j].ID == e.Ref.ID {
			// Duplicate ids are a tracker invariant violation surfaced by the
			// session; the reducer stays total and keeps the first entry.
			return state
		}
	}
	msg.ToolCalls = append(msg.ToolCalls, e.Ref)
	return next
}

func applyToolCallResult(state chat.Conversation, e chat.ToolCallResult) chat.Conversation {
	if state.ActiveTurnID == "" {
		return state
	}
	i := state.MessageByID(chat.AssistantMessageID(state.ActiveTurnID))
	if i < 0 {
		return state
	}

	next := state.Clone()
	msg := &next.Messages[i]
	for j := range msg.ToolCalls {
		if msg.ToolCalls[j].ID != e.ID {
			continue
		}
		if msg.ToolCalls[j].IsTerminal() {
			return state
		}
		if e.Err != nil {
			reason := *e.Err
			msg.ToolCalls[j].Status = chat.ToolCallStatusFailed
			msg.ToolCalls[j].Error = &reason
		} else {
			msg.ToolCalls[j].Status = chat.ToolCallStatusSucceeded
			msg.ToolCalls[j].Result = e.Result
			if msg.ToolResults == nil {
				msg.ToolResults = make(map[string]json.RawMessage)
			}
			msg.ToolResults[e.ID] = e.Result
		}
		return next
	}
	return state
}

func applyTurnCompleted(state chat.Conversation, e chat.TurnCompleted, now time.Time) chat.Conversation {
	if state.ActiveTurnID == "" {
		return state
	}

	next, i := ensureAssistantMessage(state, now)
	msg := &next.Messages[i]
	msg.Status = chat.MessageStatusConfirmed
	msg.FailureReason = nil

	// Adopt the server-assigned id from the final message; content stays the
	// engine's own accumulation so the delta-concatenation invariant holds.
	if e.FinalMessage != nil && e.FinalMessage.ID != "" {
		msg.ID = e.FinalMessage.ID
	}

	next.ActiveTurnID = ""
	return next
}

// applyTurnTerminal folds a failed or cancelled turn into the assistant
// message: whatever partial content and tool state exists is retained, the
// message is tagged failed with the reason, and outstanding tool calls are
// settled as failed. The user always sees what was produced, never a silent
// disappearance.
func applyTurnTerminal(state chat.Conversation, reason string, now time.Time) chat.Conversation {
	if state.ActiveTurnID == "" {
		return state
	}

	next, i := ensureAssistantMessage(state, now)
	msg := &next.Messages[i]
	r := reason
	msg.Status = chat.MessageStatusFailed
	msg.FailureReason = &r

	for j := range msg.ToolCalls {
		if !msg.ToolCalls[j].IsTerminal() {
			msg.ToolCalls[j].Status = chat.ToolCallStatusFailed
			msg.ToolCalls[j].Error = &r
		}
	}

	next.ActiveTurnID = ""
	return next
}

// ensureAssistantMessage clones the state and returns the index of the active
// turn's assistant message, creating it as a pending entry on first use.
func ensureAssistantMessage(state chat.Conversation, now time.Time) (chat.Conversation, int) {
	next := state.Clone()
	id := chat.AssistantMessageID(next.ActiveTurnID)
	if i := next.MessageByID(id); i >= 0 {
		return next, i
	}

	next.Messages = append(next.Messages, chat.Message{
		ID:             id,
		ConversationID: next.ID,
		Role:           chat.RoleAssistant,
		Status:         chat.MessageStatusPending,
		CreatedAt:      now,
	})
	return next, len(next.Messages) - 1
}
