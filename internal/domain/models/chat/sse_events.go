package chat

import (
	"encoding/json"
	"fmt"
)

// SSE event type constants for the presentation stream
const (
	SSEEventTurnStart        = "turn_start"        // assistant turn opened
	SSEEventTextDelta        = "text_delta"        // incremental assistant text
	SSEEventToolCall         = "tool_call"         // tool invocation requested
	SSEEventToolResult       = "tool_result"       // tool invocation settled
	SSEEventMessageConfirmed = "message_confirmed" // optimistic user message reconciled
	SSEEventMessageRejected  = "message_rejected"  // optimistic user message rolled back
	SSEEventTurnComplete     = "turn_complete"     // turn finished successfully
	SSEEventTurnError        = "turn_error"        // turn failed or was cancelled
)

// TurnStartPayload signals that streaming has begun for a turn
type TurnStartPayload struct {
	TurnID    string `json:"turn_id"`
	MessageID string `json:"message_id"`
}

// TextDeltaPayload carries incremental assistant text
type TextDeltaPayload struct {
	TurnID string `json:"turn_id"`
	Text   string `json:"text"`
}

// ToolCallPayload announces a requested tool invocation
type ToolCallPayload struct {
	TurnID string      `json:"turn_id"`
	Call   ToolCallRef `json:"call"`
}

// ToolResultPayload carries a settled tool invocation
type ToolResultPayload struct {
	TurnID string          `json:"turn_id"`
	CallID string          `json:"call_id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *string         `json:"error,omitempty"`
}

// MessageConfirmedPayload reconciles a temporary id with the server id
type MessageConfirmedPayload struct {
	TempID   string `json:"temp_id"`
	ServerID string `json:"server_id"`
}

// MessageRejectedPayload reports a failed optimistic send
type MessageRejectedPayload struct {
	TempID string `json:"temp_id"`
	Reason string `json:"reason"`
}

// TurnCompletePayload signals successful turn finalization
type TurnCompletePayload struct {
	TurnID    string `json:"turn_id"`
	MessageID string `json:"message_id"`
}

// TurnErrorPayload signals turn failure or cancellation
type TurnErrorPayload struct {
	TurnID      string `json:"turn_id"`
	Error       string `json:"error"`
	IsCancelled bool   `json:"is_cancelled,omitempty"` // user-initiated, not a system failure
}

// FormatSSE formats an event for transmission:
//
//	event: event_name
//	data: {"field": "value"}
//	\n
func FormatSSE(eventType string, data interface{}) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal SSE event data: %w", err)
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, string(jsonData)), nil
}
