package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"neurobridge/internal/domain"
	"neurobridge/internal/domain/models/chat"
	chatRepo "neurobridge/internal/domain/repositories/chat"
)

// MessageStore is an in-memory MessageStore backed by the shared
// ConversationStore, so confirmed messages show up in ListMessages.
type MessageStore struct {
	conversations *ConversationStore

	mu        sync.Mutex
	confirmed map[string]string // temp id -> server id
}

func NewMessageStore(conversations *ConversationStore) *MessageStore {
	return &MessageStore{
		conversations: conversations,
		confirmed:     make(map[string]string),
	}
}

// ConfirmMessage assigns a server id and records the row. Confirming the
// same temp id twice returns the original server id.
func (s *MessageStore) ConfirmMessage(_ context.Context, msg *chat.Message) (string, error) {
	if !s.conversations.hasConversation(msg.ConversationID) {
		return "", fmt.Errorf("conversation %s: %w", msg.ConversationID, domain.ErrNotFound)
	}

	s.mu.Lock()
	if serverID, done := s.confirmed[msg.ID]; done {
		s.mu.Unlock()
		return serverID, nil
	}
	serverID := uuid.NewString()
	s.confirmed[msg.ID] = serverID
	s.mu.Unlock()

	stored := msg.Clone()
	stored.ID = serverID
	stored.Status = chat.MessageStatusConfirmed
	s.conversations.putMessage(stored)

	return serverID, nil
}

func (s *MessageStore) SaveAssistantMessage(_ context.Context, msg *chat.Message) error {
	if !s.conversations.hasConversation(msg.ConversationID) {
		return fmt.Errorf("conversation %s: %w", msg.ConversationID, domain.ErrNotFound)
	}
	s.conversations.putMessage(msg.Clone())
	return nil
}

var _ chatRepo.MessageStore = (*MessageStore)(nil)
