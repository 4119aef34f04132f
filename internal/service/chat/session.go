package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"neurobridge/internal/config"
	"neurobridge/internal/domain"
	"neurobridge/internal/domain/models/chat"
	chatRepo "neurobridge/internal/domain/repositories/chat"
	chatSvc "neurobridge/internal/domain/services/chat"
	"neurobridge/internal/service/chat/tools"
)

// Session states
const (
	StateIdle      = "idle"      // no active turn
	StateStreaming = "streaming" // turn in flight, receiving decoder events
	StateSettling  = "settling"  // stream ended, tool calls still outstanding
)

// Session orchestrates one conversation: it owns the single active turn,
// serializes every event through the reducer, exposes cancellation, and fans
// reconciled state out to the presentation layer. Sessions for different
// conversations are fully independent.
//
// Thread-safety: all public methods are safe for concurrent use. Event
// application is serialized under one mutex, which is the single-writer
// discipline the conversation state relies on.
type Session struct {
	conversationID string
	backend        chatSvc.AssistantBackend
	dispatcher     *Dispatcher
	store          chatRepo.MessageStore
	tools          *tools.Registry // nil when no local tool executors are wired
	model          string
	maxTokens      int
	logger         *slog.Logger

	mu       sync.Mutex
	state    string
	conv     chat.Conversation
	turn     *activeTurn
	deferred *chat.TurnCompleted // completion held back while tool calls are pending

	subsMu      sync.RWMutex
	subscribers map[string]chan string // clientID -> SSE-formatted event strings
}

// activeTurn is the session's handle on the in-flight assistant turn.
type activeTurn struct {
	id        string
	tracker   *ToolCallTracker
	cancel    context.CancelFunc
	cancelled bool
}

// NewSession creates the controller for one conversation, starting from the
// given reconciled snapshot.
func NewSession(
	conv chat.Conversation,
	backend chatSvc.AssistantBackend,
	dispatcher *Dispatcher,
	store chatRepo.MessageStore,
	toolRegistry *tools.Registry,
	model string,
	logger *slog.Logger,
) *Session {
	return &Session{
		conversationID: conv.ID,
		backend:        backend,
		dispatcher:     dispatcher,
		store:          store,
		tools:          toolRegistry,
		model:          model,
		maxTokens:      config.DefaultMaxTokens,
		logger:         logger.With("conversation_id", conv.ID),
		state:          StateIdle,
		conv:           conv,
		subscribers:    make(map[string]chan string),
	}
}

// State returns the controller state: idle, streaming or settling.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a read-only deep copy of the reconciled conversation.
func (s *Session) Snapshot() chat.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.Clone()
}

// Submit validates and optimistically appends a user message, starts the
// persistence exchange, and opens one assistant turn. Fails with
// ErrTurnInProgress while a turn is streaming or settling; the caller must
// cancel or wait. The returned message is the pending optimistic entry; its
// eventual confirm/reject outcome does not invalidate the handle. The request
// context is deliberately unused: the persistence exchange and the turn must
// outlive the HTTP request that started them.
func (s *Session) Submit(_ context.Context, content string) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return chat.Message{}, fmt.Errorf("%w: conversation %s", domain.ErrTurnInProgress, s.conversationID)
	}

	msg, err := s.dispatcher.NewPendingMessage(s.conversationID, content, time.Now())
	if err != nil {
		return chat.Message{}, err
	}

	// Optimistic append before any network round-trip.
	s.applyLocked(chat.UserMessageSubmitted{Message: msg})

	if err := s.dispatcher.Dispatch(context.Background(), msg, s.onConfirmed, s.onRejected); err != nil {
		// Fresh temporary id, so this cannot be in flight; surface anyway.
		return chat.Message{}, err
	}

	s.openTurnLocked(msg)
	return msg, nil
}

// Retry re-attempts the persistence exchange for a failed optimistic message,
// reusing the same temporary id so the UI entry updates in place. Permitted
// only on failed messages; rejected with ErrAlreadyInFlight while the original
// exchange is still running. Like Submit, the retried exchange outlives the
// request context.
func (s *Session) Retry(_ context.Context, tempID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.conv.MessageByID(tempID)
	if i < 0 {
		return &domain.NotFoundError{Message: fmt.Sprintf("message %s not found", tempID)}
	}
	msg := s.conv.Messages[i]
	if msg.Status != chat.MessageStatusFailed {
		return &domain.ValidationError{Message: "only failed messages can be retried"}
	}
	if s.dispatcher.InFlight(tempID) {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyInFlight, tempID)
	}

	s.applyLocked(chat.UserMessageSubmitted{Message: msg})
	return s.dispatcher.Dispatch(context.Background(), msg, s.onConfirmed, s.onRejected)
}

// Cancel stops the active turn: the decoder's input stops being consumed, a
// TurnCancelled event is committed immediately, and already-applied partial
// state is kept. Outstanding tool invocations are settled as failed and a
// late result is ignored. A no-op when no turn is active.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIdle || s.turn == nil {
		return
	}

	turn := s.turn
	turn.cancelled = true
	turn.cancel()
	turn.tracker.FailPending(domain.ErrCancelled.Error())

	s.logger.Info("turn cancelled", "turn_id", turn.id)
	s.applyLocked(chat.TurnCancelled{})
	s.persistAssistantLocked(turn)
	s.broadcast(chat.SSEEventTurnError, chat.TurnErrorPayload{
		TurnID:      turn.id,
		Error:       domain.ErrCancelled.Error(),
		IsCancelled: true,
	})
	s.closeTurnLocked()
}

// Subscribe registers a presentation-layer client and returns its event
// channel. Events are SSE-formatted strings; slow clients may miss events
// and should re-fetch the snapshot.
func (s *Session) Subscribe(clientID string) <-chan string {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	ch := make(chan string, config.SSEClientBuffer)
	s.subscribers[clientID] = ch
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (s *Session) Unsubscribe(clientID string) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	if ch, exists := s.subscribers[clientID]; exists {
		close(ch)
		delete(s.subscribers, clientID)
	}
}

// openTurnLocked creates the turn, starts the backend stream and the decoder
// consume loop. Caller holds s.mu.
func (s *Session) openTurnLocked(trigger chat.Message) {
	turnID := uuid.NewString()
	turnCtx, cancel := context.WithCancel(context.Background())

	turn := &activeTurn{
		id:      turnID,
		tracker: NewToolCallTracker(),
		cancel:  cancel,
	}

	s.applyLocked(chat.TurnStarted{TurnID: turnID})

	req := &chatSvc.GenerateRequest{
		ConversationID: s.conversationID,
		ChildID:        s.conv.ChildID,
		Messages:       s.conv.Clone().Messages,
		Model:          s.model,
		MaxTokens:      s.maxTokens,
	}

	frames, err := s.backend.StreamTurn(turnCtx, req)
	if err != nil {
		s.logger.Error("failed to start backend stream", "turn_id", turnID, "error", err)
		cancel()
		s.applyLocked(chat.TurnFailed{Reason: fmt.Sprintf("%v: %v", domain.ErrTransport, err)})
		s.broadcast(chat.SSEEventTurnError, chat.TurnErrorPayload{TurnID: turnID, Error: err.Error()})
		return
	}

	s.turn = turn
	s.state = StateStreaming
	s.logger.Info("turn started", "turn_id", turnID, "model", s.model)
	s.broadcast(chat.SSEEventTurnStart, chat.TurnStartPayload{
		TurnID:    turnID,
		MessageID: chat.AssistantMessageID(turnID),
	})

	decoder := NewDecoder(turnCtx, frames)
	go s.consume(turn, decoder)
}

// consume applies decoder events in arrival order. Runs in its own goroutine,
// one per turn.
func (s *Session) consume(turn *activeTurn, decoder *Decoder) {
	for ev := range decoder.Events() {
		s.handleTurnEvent(turn, ev)
	}
}

// handleTurnEvent applies one decoded event under the session lock. Events
// for a turn that is no longer active (cancelled or superseded) are dropped.
func (s *Session) handleTurnEvent(turn *activeTurn, ev chat.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.turn != turn || turn.cancelled {
		return
	}

	switch e := ev.(type) {
	case chat.TextDelta:
		s.applyLocked(e)
		s.broadcast(chat.SSEEventTextDelta, chat.TextDeltaPayload{TurnID: turn.id, Text: e.Text})

	case chat.ToolCallRequested:
		s.handleToolCallRequestedLocked(turn, e)

	case chat.ToolCallResult:
		// Backend-settled tool result.
		s.settleToolCallLocked(turn, e.ID, e.Result, nil)

	case chat.TurnCompleted:
		if turn.tracker.PendingCount() > 0 {
			// Completion is deferred until the last tool call settles.
			s.state = StateSettling
			deferred := e
			s.deferred = &deferred
			s.logger.Debug("turn completion deferred",
				"turn_id", turn.id,
				"pending_tool_calls", turn.tracker.PendingCount(),
			)
			return
		}
		s.finalizeTurnLocked(turn, e)

	case chat.TurnFailed:
		s.failTurnLocked(turn, e.Reason)
	}
}

func (s *Session) handleToolCallRequestedLocked(turn *activeTurn, e chat.ToolCallRequested) {
	if turn.tracker.Count() >= config.MaxToolCallsPerTurn {
		s.failTurnLocked(turn, fmt.Sprintf("tool call limit exceeded (%d per turn)", config.MaxToolCallsPerTurn))
		return
	}
	if err := turn.tracker.Record(e.Ref); err != nil {
		// Duplicate ids are a backend-contract violation; surface it as a
		// turn failure rather than swallowing it.
		s.logger.Error("tool call invariant violation", "turn_id", turn.id, "error", err)
		s.failTurnLocked(turn, err.Error())
		return
	}
	if err := turn.tracker.MarkRunning(e.Ref.ID); err != nil {
		s.failTurnLocked(turn, err.Error())
		return
	}

	ref := e.Ref
	ref.Status = chat.ToolCallStatusRunning
	s.applyLocked(chat.ToolCallRequested{Ref: ref})
	s.broadcast(chat.SSEEventToolCall, chat.ToolCallPayload{TurnID: turn.id, Call: ref})

	// When a local executor is wired for the tool, run it; otherwise the
	// backend delivers the result as a tool_result frame.
	if s.tools != nil && s.tools.Has(ref.Name) {
		go func() {
			result, err := s.tools.Execute(contextForTurn(turn), ref.Name, ref.Arguments)
			s.mu.Lock()
			defer s.mu.Unlock()
			s.settleToolCallLocked(turn, ref.ID, result, err)
		}()
	}
}

// settleToolCallLocked folds one settled tool invocation into the state and
// re-runs the deferred completion check. Late results for terminal entries
// (settled by cancellation) are ignored. Caller holds s.mu.
func (s *Session) settleToolCallLocked(turn *activeTurn, id string, result []byte, execErr error) {
	if s.turn != turn || turn.cancelled {
		return
	}

	if ref, known := turn.tracker.Get(id); known && ref.IsTerminal() {
		s.logger.Debug("ignoring late tool result", "turn_id", turn.id, "tool_call_id", id)
		return
	}

	payload := chat.ToolResultPayload{TurnID: turn.id, CallID: id}

	if execErr != nil {
		if err := turn.tracker.Fail(id, execErr.Error()); err != nil {
			s.failTurnLocked(turn, err.Error())
			return
		}
		reason := execErr.Error()
		s.applyLocked(chat.ToolCallResult{ID: id, Err: &reason})
		payload.Status = chat.ToolCallStatusFailed
		payload.Error = &reason
	} else {
		if err := turn.tracker.Complete(id, result); err != nil {
			if errors.Is(err, domain.ErrUnknownToolCall) {
				// A result for an id that was never requested is a contract bug.
				s.failTurnLocked(turn, err.Error())
			}
			return
		}
		s.applyLocked(chat.ToolCallResult{ID: id, Result: result})
		payload.Status = chat.ToolCallStatusSucceeded
		payload.Result = result
	}

	s.broadcast(chat.SSEEventToolResult, payload)

	if s.state == StateSettling && s.deferred != nil && turn.tracker.PendingCount() == 0 {
		deferred := *s.deferred
		s.finalizeTurnLocked(turn, deferred)
	}
}

// finalizeTurnLocked confirms the assistant message and returns to idle.
// Only called once pendingCount() == 0. Caller holds s.mu.
func (s *Session) finalizeTurnLocked(turn *activeTurn, e chat.TurnCompleted) {
	s.applyLocked(e)
	s.persistAssistantLocked(turn)

	messageID := chat.AssistantMessageID(turn.id)
	if e.FinalMessage != nil && e.FinalMessage.ID != "" {
		messageID = e.FinalMessage.ID
	}

	s.logger.Info("turn complete", "turn_id", turn.id, "message_id", messageID)
	s.broadcast(chat.SSEEventTurnComplete, chat.TurnCompletePayload{
		TurnID:    turn.id,
		MessageID: messageID,
	})
	s.closeTurnLocked()
}

// failTurnLocked folds a turn-ending failure into the assistant message with
// partial content and tool results preserved, then returns to idle. Retry is
// a new, explicit submit by the user. Caller holds s.mu.
func (s *Session) failTurnLocked(turn *activeTurn, reason string) {
	turn.tracker.FailPending(reason)
	turn.cancel()

	s.applyLocked(chat.TurnFailed{Reason: reason})
	s.persistAssistantLocked(turn)

	s.logger.Warn("turn failed", "turn_id", turn.id, "reason", reason)
	s.broadcast(chat.SSEEventTurnError, chat.TurnErrorPayload{TurnID: turn.id, Error: reason})
	s.closeTurnLocked()
}

// persistAssistantLocked saves the finalized assistant message, including
// partial content from failed or cancelled turns. Best-effort: the in-memory
// state is authoritative for the presentation layer either way.
func (s *Session) persistAssistantLocked(turn *activeTurn) {
	i := s.conv.MessageByID(chat.AssistantMessageID(turn.id))
	if i < 0 {
		// Turn ended before producing anything; find the freshly finalized
		// entry under its server id instead.
		if last := s.conv.LastMessage(); last != nil && last.Role == chat.RoleAssistant {
			i = len(s.conv.Messages) - 1
		} else {
			return
		}
	}

	msg := s.conv.Messages[i].Clone()
	if err := s.store.SaveAssistantMessage(context.Background(), &msg); err != nil {
		s.logger.Error("failed to persist assistant message",
			"turn_id", turn.id,
			"message_id", msg.ID,
			"error", err,
		)
	}
}

func (s *Session) closeTurnLocked() {
	if s.turn != nil {
		s.turn.cancel()
	}
	s.turn = nil
	s.deferred = nil
	s.state = StateIdle
}

// applyLocked runs one event through the reducer. Caller holds s.mu; this is
// the only place conversation state is replaced.
func (s *Session) applyLocked(ev chat.Event) {
	s.conv = Apply(s.conv, ev, time.Now())
}

// onConfirmed / onRejected reconcile the optimistic user message once the
// persistence exchange settles. Invoked from dispatcher goroutines.
func (s *Session) onConfirmed(tempID, serverID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(chat.UserMessageConfirmed{TempID: tempID, ServerID: serverID})
	s.broadcast(chat.SSEEventMessageConfirmed, chat.MessageConfirmedPayload{
		TempID:   tempID,
		ServerID: serverID,
	})
}

func (s *Session) onRejected(tempID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(chat.UserMessageRejected{TempID: tempID, Reason: reason})
	s.broadcast(chat.SSEEventMessageRejected, chat.MessageRejectedPayload{
		TempID: tempID,
		Reason: reason,
	})
}

// broadcast fans an SSE event out to all subscribed clients. Full client
// buffers are skipped; such clients re-sync from the snapshot.
func (s *Session) broadcast(eventType string, payload interface{}) {
	event, err := chat.FormatSSE(eventType, payload)
	if err != nil {
		s.logger.Error("failed to format SSE event", "event_type", eventType, "error", err)
		return
	}

	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// contextForTurn builds the execution context for a tool invocation. The
// turn's cancel function does not reach here on purpose: cancellation stops
// the session waiting on the executor without forcibly aborting it.
func contextForTurn(_ *activeTurn) context.Context {
	return context.Background()
}
