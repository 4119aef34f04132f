package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"neurobridge/internal/domain/models/chat"
	chatRepo "neurobridge/internal/domain/repositories/chat"
	chatSvc "neurobridge/internal/domain/services/chat"
	"neurobridge/internal/service/chat/tools"
)

// SessionRegistry keys one Session per conversation id, so multiple
// conversations scale to independent instances with no shared mutable state.
type SessionRegistry struct {
	conversations chatRepo.ConversationStore
	messages      chatRepo.MessageStore
	backend       chatSvc.AssistantBackend
	tools         *tools.Registry
	model         string
	logger        *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionRegistry creates the registry all handlers resolve sessions from.
func NewSessionRegistry(
	conversations chatRepo.ConversationStore,
	messages chatRepo.MessageStore,
	backend chatSvc.AssistantBackend,
	toolRegistry *tools.Registry,
	model string,
	logger *slog.Logger,
) *SessionRegistry {
	return &SessionRegistry{
		conversations: conversations,
		messages:      messages,
		backend:       backend,
		tools:         toolRegistry,
		model:         model,
		logger:        logger,
		sessions:      make(map[string]*Session),
	}
}

// GetOrCreate returns the live session for a conversation, hydrating it from
// the conversation store on first access.
func (r *SessionRegistry) GetOrCreate(ctx context.Context, conversationID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, exists := r.sessions[conversationID]; exists {
		return session, nil
	}

	conv, err := r.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	msgs, err := r.conversations.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load messages for %s: %w", conversationID, err)
	}
	snapshot := conv.Clone()
	snapshot.Messages = msgs

	session := NewSession(
		snapshot,
		r.backend,
		NewDispatcher(r.messages, r.logger),
		r.messages,
		r.tools,
		r.model,
		r.logger,
	)
	r.sessions[conversationID] = session

	r.logger.Debug("session created", "conversation_id", conversationID)
	return session, nil
}

// Get returns the live session if one exists.
func (r *SessionRegistry) Get(conversationID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, exists := r.sessions[conversationID]
	return session, exists
}

// Remove drops an idle session. Sessions with an active turn are kept; the
// caller should cancel first.
func (r *SessionRegistry) Remove(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[conversationID]
	if !exists {
		return
	}
	if session.State() != StateIdle {
		return
	}
	delete(r.sessions, conversationID)
}

// NewConversation creates and persists a conversation record.
func (r *SessionRegistry) NewConversation(ctx context.Context, conv *chat.Conversation) error {
	if err := r.conversations.CreateConversation(ctx, conv); err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}
