package chat

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"neurobridge/internal/domain/models/chat"
)

// collectEvents drains the decoder's event channel with a deadline.
func collectEvents(t *testing.T, d *Decoder) []chat.Event {
	t.Helper()

	var events []chat.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-d.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d so far", len(events))
		}
	}
}

func feedFrames(frames ...chat.Frame) <-chan chat.Frame {
	ch := make(chan chat.Frame, len(frames))
	for _, f := range frames {
		ch <- f
	}
	close(ch)
	return ch
}

func TestDecoder_HappyPath(t *testing.T) {
	decoder := NewDecoder(context.Background(), feedFrames(
		chat.TextDeltaFrame("Hel"),
		chat.TextDeltaFrame("lo"),
		chat.ToolCallFrame("call-1", "lookup_recent_symbols", json.RawMessage(`{"child_id":"c1"}`)),
		chat.ToolResultFrame("call-1", json.RawMessage(`{"symbols":[]}`)),
		chat.DoneFrame(&chat.Message{ID: "srv_1"}),
	))

	events := collectEvents(t, decoder)
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}

	if d, ok := events[0].(chat.TextDelta); !ok || d.Text != "Hel" {
		t.Errorf("event 0: expected TextDelta 'Hel', got %+v", events[0])
	}
	if d, ok := events[1].(chat.TextDelta); !ok || d.Text != "lo" {
		t.Errorf("event 1: expected TextDelta 'lo', got %+v", events[1])
	}
	if req, ok := events[2].(chat.ToolCallRequested); !ok || req.Ref.ID != "call-1" {
		t.Errorf("event 2: expected ToolCallRequested call-1, got %+v", events[2])
	}
	if res, ok := events[3].(chat.ToolCallResult); !ok || res.ID != "call-1" {
		t.Errorf("event 3: expected ToolCallResult call-1, got %+v", events[3])
	}
	done, ok := events[4].(chat.TurnCompleted)
	if !ok {
		t.Fatalf("event 4: expected TurnCompleted, got %+v", events[4])
	}
	if done.FinalMessage == nil || done.FinalMessage.ID != "srv_1" {
		t.Errorf("final message not carried through: %+v", done.FinalMessage)
	}
}

func TestDecoder_MalformedFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame chat.Frame
	}{
		{"tool_call missing id", chat.Frame{Type: chat.FrameTypeToolCall, Name: "lookup_recent_symbols"}},
		{"tool_call missing name", chat.Frame{Type: chat.FrameTypeToolCall, ID: "call-1"}},
		{"tool_result missing id", chat.Frame{Type: chat.FrameTypeToolResult}},
		{"unknown type", chat.Frame{Type: "telemetry"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoder := NewDecoder(context.Background(), feedFrames(
				chat.TextDeltaFrame("partial"),
				tt.frame,
				chat.TextDeltaFrame("never delivered"),
			))

			events := collectEvents(t, decoder)
			if len(events) != 2 {
				t.Fatalf("expected delta + failure, got %d events", len(events))
			}
			failed, ok := events[1].(chat.TurnFailed)
			if !ok {
				t.Fatalf("expected TurnFailed, got %+v", events[1])
			}
			if !strings.Contains(failed.Reason, "protocol") {
				t.Errorf("expected protocol reason, got %q", failed.Reason)
			}
		})
	}
}

func TestDecoder_StreamClosedWithoutDone(t *testing.T) {
	decoder := NewDecoder(context.Background(), feedFrames(
		chat.TextDeltaFrame("cut off"),
	))

	events := collectEvents(t, decoder)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	failed, ok := events[1].(chat.TurnFailed)
	if !ok {
		t.Fatalf("expected TurnFailed, got %+v", events[1])
	}
	if !strings.Contains(failed.Reason, "transport") {
		t.Errorf("expected transport reason, got %q", failed.Reason)
	}
}

func TestDecoder_ErrorFrame(t *testing.T) {
	decoder := NewDecoder(context.Background(), feedFrames(
		chat.ErrorFrame("rate limited"),
	))

	events := collectEvents(t, decoder)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	failed, ok := events[0].(chat.TurnFailed)
	if !ok {
		t.Fatalf("expected TurnFailed, got %+v", events[0])
	}
	if !strings.Contains(failed.Reason, "rate limited") {
		t.Errorf("backend reason not carried through: %q", failed.Reason)
	}
}

func TestDecoder_CancelStopsSilently(t *testing.T) {
	frames := make(chan chat.Frame)
	ctx, cancel := context.WithCancel(context.Background())
	decoder := NewDecoder(ctx, frames)

	frames <- chat.TextDeltaFrame("Hel")
	first := <-decoder.Events()
	if d, ok := first.(chat.TextDelta); !ok || d.Text != "Hel" {
		t.Fatalf("expected first delta, got %+v", first)
	}

	cancel()

	// No terminal event after cancellation; the channel just closes.
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-decoder.Events():
			if !ok {
				return
			}
			t.Fatalf("unexpected event after cancel: %+v", ev)
		case <-timeout:
			t.Fatal("decoder did not stop after cancel")
		}
	}
}
