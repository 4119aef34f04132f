package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"neurobridge/internal/domain/models/chat"
	chatSvc "neurobridge/internal/domain/services/chat"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// fakeMessageStore is a controllable MessageStore.
type fakeMessageStore struct {
	mu           sync.Mutex
	confirmErr   error
	confirmGate  chan struct{} // when set, ConfirmMessage blocks until closed
	confirmCount int
	serverIDs    []string
	saved        []chat.Message
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{}
}

func (s *fakeMessageStore) ConfirmMessage(_ context.Context, msg *chat.Message) (string, error) {
	s.mu.Lock()
	gate := s.confirmGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmCount++
	if s.confirmErr != nil {
		return "", s.confirmErr
	}
	serverID := "srv_" + msg.ID
	s.serverIDs = append(s.serverIDs, serverID)
	return serverID, nil
}

func (s *fakeMessageStore) SaveAssistantMessage(_ context.Context, msg *chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, msg.Clone())
	return nil
}

func (s *fakeMessageStore) savedMessages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, len(s.saved))
	copy(out, s.saved)
	return out
}

func (s *fakeMessageStore) confirms() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmCount
}

// scriptedBackend hands each turn a frame channel the test feeds directly.
type scriptedBackend struct {
	mu       sync.Mutex
	frames   chan chat.Frame
	requests []*chatSvc.GenerateRequest
	startErr error
}

func newScriptedBackend() *scriptedBackend {
	return &scriptedBackend{}
}

func (b *scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) SupportsModel(_ string) bool { return true }

func (b *scriptedBackend) StreamTurn(_ context.Context, req *chatSvc.GenerateRequest) (<-chan chat.Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startErr != nil {
		return nil, b.startErr
	}
	b.frames = make(chan chat.Frame, 32)
	b.requests = append(b.requests, req)
	return b.frames, nil
}

func (b *scriptedBackend) send(frames ...chat.Frame) {
	b.mu.Lock()
	ch := b.frames
	b.mu.Unlock()
	for _, f := range frames {
		ch <- f
	}
}

func (b *scriptedBackend) closeStream() {
	b.mu.Lock()
	defer b.mu.Unlock()
	close(b.frames)
}

func (b *scriptedBackend) lastRequest() *chatSvc.GenerateRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		return nil
	}
	return b.requests[len(b.requests)-1]
}

var errStoreDown = errors.New("store unavailable")
