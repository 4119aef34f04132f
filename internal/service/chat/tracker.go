package chat

import (
	"encoding/json"
	"fmt"
	"sync"

	"neurobridge/internal/domain"
	"neurobridge/internal/domain/models/chat"
)

// ToolCallTracker maintains the id -> ToolCallRef mapping for one active turn.
// Status transitions are monotonic and one-directional; a terminal entry never
// regresses.
//
// Thread-safety: methods are safe for concurrent use. Tool executors settle
// calls from their own goroutines while the session applies decoder events.
type ToolCallTracker struct {
	mu    sync.RWMutex
	calls map[string]*chat.ToolCallRef
	order []string
}

// NewToolCallTracker creates an empty tracker for a turn.
func NewToolCallTracker() *ToolCallTracker {
	return &ToolCallTracker{
		calls: make(map[string]*chat.ToolCallRef),
	}
}

// Record adds an entry in requested state.
func (t *ToolCallTracker) Record(ref chat.ToolCallRef) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.calls[ref.ID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateToolCall, ref.ID)
	}

	ref.Status = chat.ToolCallStatusRequested
	t.calls[ref.ID] = &ref
	t.order = append(t.order, ref.ID)
	return nil
}

// MarkRunning transitions requested -> running.
func (t *ToolCallTracker) MarkRunning(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ref, exists := t.calls[id]
	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrUnknownToolCall, id)
	}
	if ref.Status != chat.ToolCallStatusRequested {
		return fmt.Errorf("%w: %s is %s, not requested", domain.ErrUnknownToolCall, id, ref.Status)
	}
	ref.Status = chat.ToolCallStatusRunning
	return nil
}

// Complete transitions running -> succeeded and stores the result.
func (t *ToolCallTracker) Complete(id string, result json.RawMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ref, exists := t.calls[id]
	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrUnknownToolCall, id)
	}
	if ref.IsTerminal() {
		// Late settlement of an already-terminal call (e.g. a result arriving
		// after cancellation failed it). Dropped, not regressed.
		return fmt.Errorf("%w: %s already %s", domain.ErrUnknownToolCall, id, ref.Status)
	}
	ref.Status = chat.ToolCallStatusSucceeded
	ref.Result = result
	return nil
}

// Fail transitions a non-terminal entry to failed.
func (t *ToolCallTracker) Fail(id string, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ref, exists := t.calls[id]
	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrUnknownToolCall, id)
	}
	if ref.IsTerminal() {
		return fmt.Errorf("%w: %s already %s", domain.ErrUnknownToolCall, id, ref.Status)
	}
	ref.Status = chat.ToolCallStatusFailed
	ref.Error = &reason
	return nil
}

// FailPending settles every non-terminal entry as failed with the given
// reason. Used when a turn is cancelled or fails: already-succeeded results
// are retained, the rest stop being waited on.
func (t *ToolCallTracker) FailPending(reason string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var failed []string
	for _, id := range t.order {
		ref := t.calls[id]
		if !ref.IsTerminal() {
			r := reason
			ref.Status = chat.ToolCallStatusFailed
			ref.Error = &r
			failed = append(failed, id)
		}
	}
	return failed
}

// PendingCount returns the number of non-terminal entries. The session
// controller waits for zero before considering a turn settled.
func (t *ToolCallTracker) PendingCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, ref := range t.calls {
		if !ref.IsTerminal() {
			n++
		}
	}
	return n
}

// Count returns the total number of recorded entries, terminal or not.
func (t *ToolCallTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// Get returns a copy of the entry for id.
func (t *ToolCallTracker) Get(id string) (chat.ToolCallRef, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ref, exists := t.calls[id]
	if !exists {
		return chat.ToolCallRef{}, false
	}
	return *ref, true
}

// Snapshot returns all entries in request order.
func (t *ToolCallTracker) Snapshot() []chat.ToolCallRef {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]chat.ToolCallRef, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.calls[id])
	}
	return out
}
