package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"neurobridge/internal/config"
	"neurobridge/internal/domain"
	"neurobridge/internal/domain/models/chat"
	chatRepo "neurobridge/internal/domain/repositories/chat"
)

// Dispatcher owns the optimistic send lifecycle: it validates content, mints
// the temporary-id message the reducer appends immediately, and runs the
// persistence round-trip in the background, reporting the outcome through
// confirm/reject callbacks. At most one exchange is in flight per temporary
// id; a second dispatch for the same pending id is rejected synchronously.
type Dispatcher struct {
	store  chatRepo.MessageStore
	logger *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewDispatcher creates a dispatcher backed by the given persistence
// collaborator.
func NewDispatcher(store chatRepo.MessageStore, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		logger:   logger,
		inFlight: make(map[string]struct{}),
	}
}

// NewPendingMessage validates the content and builds the optimistic user
// message with a fresh temporary id. The caller applies it to the reducer
// before any network round-trip completes.
func (d *Dispatcher) NewPendingMessage(conversationID, content string, now time.Time) (chat.Message, error) {
	if err := d.validateContent(content); err != nil {
		return chat.Message{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	return chat.Message{
		ID:             TempMessageID(),
		ConversationID: conversationID,
		Role:           chat.RoleUser,
		Content:        content,
		Status:         chat.MessageStatusPending,
		CreatedAt:      now,
	}, nil
}

// Dispatch starts the persistence exchange for a pending message. Exactly one
// of onConfirmed/onRejected fires, from a background goroutine. The returned
// error is ErrAlreadyInFlight when an exchange for the same temporary id has
// not settled yet; no state changes in that case.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	msg chat.Message,
	onConfirmed func(tempID, serverID string),
	onRejected func(tempID, reason string),
) error {
	d.mu.Lock()
	if _, busy := d.inFlight[msg.ID]; busy {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrAlreadyInFlight, msg.ID)
	}
	d.inFlight[msg.ID] = struct{}{}
	d.mu.Unlock()

	go func() {
		defer func() {
			d.mu.Lock()
			delete(d.inFlight, msg.ID)
			d.mu.Unlock()
		}()

		serverID, err := d.store.ConfirmMessage(ctx, &msg)
		if err != nil {
			d.logger.Warn("user message rejected by store",
				"temp_id", msg.ID,
				"conversation_id", msg.ConversationID,
				"error", err,
			)
			onRejected(msg.ID, err.Error())
			return
		}

		d.logger.Debug("user message confirmed",
			"temp_id", msg.ID,
			"server_id", serverID,
		)
		onConfirmed(msg.ID, serverID)
	}()

	return nil
}

// InFlight reports whether an exchange for the temporary id is still running.
func (d *Dispatcher) InFlight(tempID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, busy := d.inFlight[tempID]
	return busy
}

func (d *Dispatcher) validateContent(content string) error {
	return validation.Validate(content,
		validation.Required.Error("message content must not be empty"),
		validation.RuneLength(1, config.MaxMessageContentLength),
	)
}

// TempMessageID mints a client-side temporary message id.
func TempMessageID() string {
	return "tmp_" + uuid.NewString()
}
