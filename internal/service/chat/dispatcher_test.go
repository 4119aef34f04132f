package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"neurobridge/internal/config"
	"neurobridge/internal/domain"
)

func TestDispatcher_NewPendingMessage(t *testing.T) {
	d := NewDispatcher(newFakeMessageStore(), testLogger())
	now := time.Now()

	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"valid content", "How can I encourage two-word requests?", false},
		{"empty content", "", true},
		{"whitespace only is still content", "   ", false},
		{"over length limit", strings.Repeat("a", config.MaxMessageContentLength+1), true},
		{"exactly at limit", strings.Repeat("a", config.MaxMessageContentLength), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := d.NewPendingMessage("conv-1", tt.content, now)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrValidation) {
					t.Errorf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.HasPrefix(msg.ID, "tmp_") {
				t.Errorf("temp id missing prefix: %s", msg.ID)
			}
			if !msg.IsPending() {
				t.Errorf("expected pending message, got %s", msg.Status)
			}
		})
	}
}

func TestDispatcher_Dispatch_Confirms(t *testing.T) {
	store := newFakeMessageStore()
	d := NewDispatcher(store, testLogger())

	msg, err := d.NewPendingMessage("conv-1", "hello", time.Now())
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var gotTempID, gotServerID string
	err = d.Dispatch(context.Background(), msg,
		func(tempID, serverID string) {
			mu.Lock()
			gotTempID, gotServerID = tempID, serverID
			mu.Unlock()
		},
		func(tempID, reason string) {
			t.Errorf("unexpected rejection: %s", reason)
		},
	)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	waitFor(t, "confirmation", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotServerID != ""
	})

	mu.Lock()
	defer mu.Unlock()
	if gotTempID != msg.ID {
		t.Errorf("confirmed wrong temp id: %s", gotTempID)
	}
	if gotServerID != "srv_"+msg.ID {
		t.Errorf("unexpected server id: %s", gotServerID)
	}
}

func TestDispatcher_Dispatch_Rejects(t *testing.T) {
	store := newFakeMessageStore()
	store.confirmErr = errStoreDown
	d := NewDispatcher(store, testLogger())

	msg, _ := d.NewPendingMessage("conv-1", "hello", time.Now())

	var mu sync.Mutex
	var gotReason string
	err := d.Dispatch(context.Background(), msg,
		func(tempID, serverID string) {
			t.Error("unexpected confirmation")
		},
		func(tempID, reason string) {
			mu.Lock()
			gotReason = reason
			mu.Unlock()
		},
	)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	waitFor(t, "rejection", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotReason != ""
	})

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(gotReason, "store unavailable") {
		t.Errorf("unexpected reason: %s", gotReason)
	}
}

func TestDispatcher_Dispatch_AlreadyInFlight(t *testing.T) {
	store := newFakeMessageStore()
	store.confirmGate = make(chan struct{})
	d := NewDispatcher(store, testLogger())

	msg, _ := d.NewPendingMessage("conv-1", "hello", time.Now())

	done := make(chan struct{})
	noop := func(string, string) {}
	if err := d.Dispatch(context.Background(), msg, func(string, string) { close(done) }, noop); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}

	err := d.Dispatch(context.Background(), msg, noop, noop)
	if !errors.Is(err, domain.ErrAlreadyInFlight) {
		t.Errorf("expected ErrAlreadyInFlight, got %v", err)
	}

	close(store.confirmGate)
	<-done

	waitFor(t, "in-flight entry cleared", func() bool { return !d.InFlight(msg.ID) })

	// Exchange settled: a new dispatch for the same id is allowed again.
	if err := d.Dispatch(context.Background(), msg, noop, noop); err != nil {
		t.Errorf("re-dispatch after settle: %v", err)
	}
}
