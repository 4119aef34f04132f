package chat

import (
	"context"
	"fmt"

	"neurobridge/internal/domain"
	"neurobridge/internal/domain/models/chat"
)

// Decoder consumes the raw frame stream for one turn and emits typed, ordered
// turn events. Events for a given tool call id come out in lifecycle order and
// text deltas preserve generation order; nothing is reordered or deduplicated.
//
// A malformed frame yields TurnFailed with a protocol reason and terminates
// the sequence; the decoder never panics or errors past its boundary. One
// decoder per turn, not restartable.
type Decoder struct {
	frames <-chan chat.Frame
	events chan chat.Event
}

// NewDecoder starts decoding the given frame stream. The returned decoder's
// event channel closes after the terminal event (TurnCompleted or TurnFailed).
func NewDecoder(ctx context.Context, frames <-chan chat.Frame) *Decoder {
	d := &Decoder{
		frames: frames,
		events: make(chan chat.Event, 16),
	}
	go d.run(ctx)
	return d
}

// Events returns the ordered, finite event sequence for the turn.
func (d *Decoder) Events() <-chan chat.Event {
	return d.events
}

func (d *Decoder) run(ctx context.Context) {
	defer close(d.events)

	for {
		select {
		case <-ctx.Done():
			// Consumer cancelled the turn; stop consuming frames. The session
			// has already committed TurnCancelled, so no terminal event here.
			return

		case frame, ok := <-d.frames:
			if !ok {
				// Stream closed without a done frame.
				d.emit(ctx, chat.TurnFailed{
					Reason: fmt.Sprintf("%v: stream closed before completion", domain.ErrTransport),
				})
				return
			}

			ev, terminal, err := decodeFrame(frame)
			if err != nil {
				d.emit(ctx, chat.TurnFailed{
					Reason: fmt.Sprintf("%v: %v", domain.ErrProtocol, err),
				})
				return
			}
			if ev != nil {
				if !d.emit(ctx, ev) {
					return
				}
			}
			if terminal {
				return
			}
		}
	}
}

// emit delivers an event unless the turn context is cancelled first.
func (d *Decoder) emit(ctx context.Context, ev chat.Event) bool {
	select {
	case d.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// decodeFrame validates one frame and maps it to a turn event.
// Returns terminal=true for done and error frames.
func decodeFrame(frame chat.Frame) (ev chat.Event, terminal bool, err error) {
	switch frame.Type {
	case chat.FrameTypeTextDelta:
		return chat.TextDelta{Text: frame.Text}, false, nil

	case chat.FrameTypeToolCall:
		if frame.ID == "" || frame.Name == "" {
			return nil, false, fmt.Errorf("tool_call frame missing id or name")
		}
		return chat.ToolCallRequested{
			Ref: chat.ToolCallRef{
				ID:        frame.ID,
				Name:      frame.Name,
				Arguments: frame.Arguments,
				Status:    chat.ToolCallStatusRequested,
			},
		}, false, nil

	case chat.FrameTypeToolResult:
		if frame.ID == "" {
			return nil, false, fmt.Errorf("tool_result frame missing id")
		}
		return chat.ToolCallResult{ID: frame.ID, Result: frame.Result}, false, nil

	case chat.FrameTypeDone:
		return chat.TurnCompleted{FinalMessage: frame.Message}, true, nil

	case chat.FrameTypeError:
		reason := frame.Reason
		if reason == "" {
			reason = "backend reported an unspecified error"
		}
		return chat.TurnFailed{
			Reason: fmt.Sprintf("%v: %s", domain.ErrTransport, reason),
		}, true, nil

	default:
		return nil, false, fmt.Errorf("unknown frame type %q", frame.Type)
	}
}
