package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"neurobridge/internal/domain"
	"neurobridge/internal/domain/models/chat"
	chatRepo "neurobridge/internal/domain/repositories/chat"
)

// ConversationStore is an in-memory ConversationStore for development and
// tests. Runs without a database; everything is lost on restart.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]chat.Conversation
	messages      map[string][]chat.Message // keyed by conversation id
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		conversations: make(map[string]chat.Conversation),
		messages:      make(map[string][]chat.Message),
	}
}

func (s *ConversationStore) CreateConversation(_ context.Context, conv *chat.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[conv.ID]; exists {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("conversation %s already exists", conv.ID),
			ResourceType: "conversation",
			ResourceID:   conv.ID,
		}
	}
	s.conversations[conv.ID] = conv.Clone()
	return nil
}

func (s *ConversationStore) GetConversation(_ context.Context, id string) (*chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, exists := s.conversations[id]
	if !exists {
		return nil, fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
	}
	out := conv.Clone()
	return &out, nil
}

func (s *ConversationStore) ListMessages(_ context.Context, conversationID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.messages[conversationID]
	out := make([]chat.Message, 0, len(stored))
	for i := range stored {
		out = append(out, stored[i].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// putMessage upserts a message row, shared by the message store.
func (s *ConversationStore) putMessage(msg chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.messages[msg.ConversationID]
	for i := range rows {
		if rows[i].ID == msg.ID {
			rows[i] = msg
			return
		}
	}
	s.messages[msg.ConversationID] = append(rows, msg)
}

func (s *ConversationStore) hasConversation(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.conversations[id]
	return exists
}

var _ chatRepo.ConversationStore = (*ConversationStore)(nil)
