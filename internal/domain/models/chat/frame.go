package chat

import (
	"encoding/json"
	"fmt"
)

// Frame type constants. One frame is one unit of the raw incremental protocol
// received from the assistant backend.
const (
	FrameTypeTextDelta  = "text_delta"
	FrameTypeToolCall   = "tool_call"
	FrameTypeToolResult = "tool_result"
	FrameTypeDone       = "done"
	FrameTypeError      = "error"
)

// Frame is one unit of the assistant-backend stream for a turn.
//
// Exactly one shape applies per type:
//   - text_delta:  {type, text}
//   - tool_call:   {type, id, name, arguments}
//   - tool_result: {type, id, result}
//   - done:        {type, message}
//   - error:       {type, reason}
//
// Frames the decoder cannot make sense of are treated as error frames.
type Frame struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Message   *Message        `json:"message,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// ParseFrame decodes a single wire frame. Transports that receive frames as
// raw bytes funnel them through here before handing them to a decoder.
func ParseFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	return &f, nil
}

// TextDeltaFrame builds a text_delta frame.
func TextDeltaFrame(text string) Frame {
	return Frame{Type: FrameTypeTextDelta, Text: text}
}

// ToolCallFrame builds a tool_call frame.
func ToolCallFrame(id, name string, arguments json.RawMessage) Frame {
	return Frame{Type: FrameTypeToolCall, ID: id, Name: name, Arguments: arguments}
}

// ToolResultFrame builds a tool_result frame.
func ToolResultFrame(id string, result json.RawMessage) Frame {
	return Frame{Type: FrameTypeToolResult, ID: id, Result: result}
}

// DoneFrame builds a done frame carrying the server's view of the final message.
func DoneFrame(message *Message) Frame {
	return Frame{Type: FrameTypeDone, Message: message}
}

// ErrorFrame builds an error frame.
func ErrorFrame(reason string) Frame {
	return Frame{Type: FrameTypeError, Reason: reason}
}
