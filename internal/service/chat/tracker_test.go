package chat

import (
	"encoding/json"
	"errors"
	"testing"

	"neurobridge/internal/domain"
	"neurobridge/internal/domain/models/chat"
)

func TestToolCallTracker_Lifecycle(t *testing.T) {
	tracker := NewToolCallTracker()

	ref := chat.ToolCallRef{ID: "call-1", Name: "lookup_recent_symbols"}
	if err := tracker.Record(ref); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got, _ := tracker.Get("call-1"); got.Status != chat.ToolCallStatusRequested {
		t.Errorf("expected requested, got %s", got.Status)
	}

	if err := tracker.MarkRunning("call-1"); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if tracker.PendingCount() != 1 {
		t.Errorf("expected 1 pending, got %d", tracker.PendingCount())
	}

	result := json.RawMessage(`{"ok":true}`)
	if err := tracker.Complete("call-1", result); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, _ := tracker.Get("call-1")
	if got.Status != chat.ToolCallStatusSucceeded {
		t.Errorf("expected succeeded, got %s", got.Status)
	}
	if string(got.Result) != string(result) {
		t.Errorf("result not stored: %s", got.Result)
	}
	if tracker.PendingCount() != 0 {
		t.Errorf("expected 0 pending, got %d", tracker.PendingCount())
	}
}

func TestToolCallTracker_DuplicateID(t *testing.T) {
	tracker := NewToolCallTracker()
	ref := chat.ToolCallRef{ID: "call-1", Name: "lookup_recent_symbols"}

	if err := tracker.Record(ref); err != nil {
		t.Fatalf("first record: %v", err)
	}
	err := tracker.Record(ref)
	if !errors.Is(err, domain.ErrDuplicateToolCall) {
		t.Errorf("expected ErrDuplicateToolCall, got %v", err)
	}
}

func TestToolCallTracker_UnknownID(t *testing.T) {
	tracker := NewToolCallTracker()

	tests := []struct {
		name string
		op   func() error
	}{
		{"mark running", func() error { return tracker.MarkRunning("ghost") }},
		{"complete", func() error { return tracker.Complete("ghost", nil) }},
		{"fail", func() error { return tracker.Fail("ghost", "boom") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op(); !errors.Is(err, domain.ErrUnknownToolCall) {
				t.Errorf("expected ErrUnknownToolCall, got %v", err)
			}
		})
	}
}

func TestToolCallTracker_TerminalNeverRegresses(t *testing.T) {
	tracker := NewToolCallTracker()
	_ = tracker.Record(chat.ToolCallRef{ID: "call-1", Name: "lookup_goal_progress"})
	_ = tracker.MarkRunning("call-1")
	_ = tracker.Fail("call-1", "cancelled")

	// A late result for a call already failed by cancellation.
	if err := tracker.Complete("call-1", json.RawMessage(`{}`)); err == nil {
		t.Fatal("late completion of a terminal call should error")
	}

	got, _ := tracker.Get("call-1")
	if got.Status != chat.ToolCallStatusFailed {
		t.Errorf("terminal status regressed to %s", got.Status)
	}
}

func TestToolCallTracker_FailPending(t *testing.T) {
	tracker := NewToolCallTracker()
	_ = tracker.Record(chat.ToolCallRef{ID: "call-1", Name: "a"})
	_ = tracker.MarkRunning("call-1")
	_ = tracker.Complete("call-1", json.RawMessage(`{}`))
	_ = tracker.Record(chat.ToolCallRef{ID: "call-2", Name: "b"})
	_ = tracker.Record(chat.ToolCallRef{ID: "call-3", Name: "c"})
	_ = tracker.MarkRunning("call-3")

	failed := tracker.FailPending("cancelled")

	if len(failed) != 2 {
		t.Fatalf("expected 2 failed, got %v", failed)
	}
	if succeeded, _ := tracker.Get("call-1"); succeeded.Status != chat.ToolCallStatusSucceeded {
		t.Error("FailPending touched a succeeded call")
	}
	if tracker.PendingCount() != 0 {
		t.Errorf("expected 0 pending, got %d", tracker.PendingCount())
	}
}

func TestToolCallTracker_SnapshotOrder(t *testing.T) {
	tracker := NewToolCallTracker()
	for _, id := range []string{"call-3", "call-1", "call-2"} {
		_ = tracker.Record(chat.ToolCallRef{ID: id, Name: "x"})
	}

	snapshot := tracker.Snapshot()
	want := []string{"call-3", "call-1", "call-2"}
	for i, ref := range snapshot {
		if ref.ID != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], ref.ID)
		}
	}
}
