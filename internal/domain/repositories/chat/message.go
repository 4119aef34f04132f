package chat

import (
	"context"

	"neurobridge/internal/domain/models/chat"
)

// MessageStore is the external persistence collaborator for conversation
// messages. The engine never performs storage itself; its only durable
// contract is that every confirmed message it surfaces corresponds to a
// record the store guarantees is retrievable later.
type MessageStore interface {
	// ConfirmMessage persists a submitted user message and returns the
	// server-assigned id. An error is a rejection: the engine marks the
	// optimistic entry failed and keeps it for retry.
	ConfirmMessage(ctx context.Context, msg *chat.Message) (serverID string, err error)

	// SaveAssistantMessage persists a finalized assistant message, including
	// partial content from failed or cancelled turns.
	SaveAssistantMessage(ctx context.Context, msg *chat.Message) error
}

// ConversationStore manages conversation records.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *chat.Conversation) error
	GetConversation(ctx context.Context, id string) (*chat.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error)
}
