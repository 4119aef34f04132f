package chat

import "encoding/json"

// Event is one input to the conversation reducer: either a decoded turn event
// from the assistant stream or a user-action event from the dispatcher.
// Events are applied strictly in arrival order; the reducer never reorders.
type Event interface {
	isEvent()
}

// UserMessageSubmitted appends a pending user message with a temporary id.
// Re-submitting an existing temporary id (retry) resets that entry to pending
// in place instead of appending a duplicate.
type UserMessageSubmitted struct {
	Message Message
}

// UserMessageConfirmed rewrites a temporary id to the server-assigned id and
// flips the message to confirmed. A no-op when the temporary id is unknown or
// the rewrite already happened, so reconciliation is idempotent.
type UserMessageConfirmed struct {
	TempID   string
	ServerID string
}

// UserMessageRejected marks the optimistic message failed in place. The entry
// is retained so the caregiver can retry or see the failure inline.
type UserMessageRejected struct {
	TempID string
	Reason string
}

// TurnStarted records the active turn on the conversation. Applied by the
// session controller when it opens a turn.
type TurnStarted struct {
	TurnID string
}

// TextDelta appends generated text to the active turn's assistant message,
// creating that message on the first delta.
type TextDelta struct {
	Text string
}

// ToolCallRequested folds a requested tool invocation into the assistant
// message's tool call list. Message ordering is unchanged.
type ToolCallRequested struct {
	Ref ToolCallRef
}

// ToolCallResult stores a settled tool result against its call id. Failed
// executions carry Err instead of Result.
type ToolCallResult struct {
	ID     string
	Result json.RawMessage
	Err    *string
}

// TurnCompleted finalizes the assistant message as confirmed. The session
// controller only applies this once every tool call has settled.
type TurnCompleted struct {
	FinalMessage *Message // server view; used for id/metadata, never for content
}

// TurnFailed finalizes the assistant message as failed with partial content
// and tool state preserved.
type TurnFailed struct {
	Reason string
}

// TurnCancelled finalizes the assistant message with whatever partial state
// exists, tagged failed with a cancelled reason. Already-succeeded tool
// results are retained.
type TurnCancelled struct{}

func (UserMessageSubmitted) isEvent() {}
func (UserMessageConfirmed) isEvent() {}
func (UserMessageRejected) isEvent()  {}
func (TurnStarted) isEvent()          {}
func (TextDelta) isEvent()            {}
func (ToolCallRequested) isEvent()    {}
func (ToolCallResult) isEvent()       {}
func (TurnCompleted) isEvent()        {}
func (TurnFailed) isEvent()           {}
func (TurnCancelled) isEvent()        {}
