package chat

import (
	"context"

	"neurobridge/internal/domain/models/chat"
)

// GenerateRequest carries everything a backend needs to produce one
// assistant turn.
type GenerateRequest struct {
	ConversationID string
	ChildID        string
	Messages       []chat.Message // confirmed history plus the triggering user message
	Model          string
	MaxTokens      int
}

// AssistantBackend is the external assistant collaborator. StreamTurn returns
// an ordered frame stream for one turn; the channel is closed when the backend
// is finished, normally after a done or error frame. Implementations must stop
// producing promptly when ctx is cancelled.
type AssistantBackend interface {
	Name() string
	SupportsModel(model string) bool
	StreamTurn(ctx context.Context, req *GenerateRequest) (<-chan chat.Frame, error)
}
