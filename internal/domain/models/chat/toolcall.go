package chat

import "encoding/json"

// Tool call lifecycle statuses. Transitions are monotonic:
// requested -> running -> succeeded | failed. No regression from a terminal state.
const (
	ToolCallStatusRequested = "requested"
	ToolCallStatusRunning   = "running"
	ToolCallStatusSucceeded = "succeeded"
	ToolCallStatusFailed    = "failed"
)

// ToolCallRef identifies one asynchronous tool invocation requested by the
// assistant during a turn. The id is unique within the turn.
type ToolCallRef struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"` // present only when succeeded
	Error     *string         `json:"error,omitempty"`
}

// IsTerminal reports whether the call has settled (succeeded or failed).
func (r *ToolCallRef) IsTerminal() bool {
	return r.Status == ToolCallStatusSucceeded || r.Status == ToolCallStatusFailed
}
