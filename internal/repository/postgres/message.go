package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"neurobridge/internal/domain"
	"neurobridge/internal/domain/models/chat"
	chatRepo "neurobridge/internal/domain/repositories/chat"
)

// PostgresMessageStore implements the MessageStore interface
type PostgresMessageStore struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewMessageStore creates a new message store
func NewMessageStore(config *RepositoryConfig) chatRepo.MessageStore {
	return &PostgresMessageStore{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// ConfirmMessage persists a user message and returns the server-assigned id.
// The optimistic temp id is kept in a separate column so a retried submit of
// the same temp id resolves to the already-confirmed row instead of a
// duplicate insert.
func (r *PostgresMessageStore) ConfirmMessage(ctx context.Context, msg *chat.Message) (string, error) {
	serverID := uuid.NewString()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, temp_id, conversation_id, role, content, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (temp_id) DO UPDATE SET temp_id = EXCLUDED.temp_id
		RETURNING id
	`, r.tables.Messages)

	err := GetExecutor(ctx, r.pool).QueryRow(ctx, query,
		serverID,
		msg.ID,
		msg.ConversationID,
		msg.Role,
		msg.Content,
		chat.MessageStatusConfirmed,
		msg.CreatedAt,
	).Scan(&serverID)
	if err != nil {
		if IsPgForeignKeyError(err) {
			return "", fmt.Errorf("conversation %s: %w", msg.ConversationID, domain.ErrNotFound)
		}
		return "", fmt.Errorf("confirm message: %w", err)
	}

	return serverID, nil
}

// SaveAssistantMessage persists a finalized assistant message. Partial
// content from failed or cancelled turns is saved too, with the failure
// reason recorded on the row.
func (r *PostgresMessageStore) SaveAssistantMessage(ctx context.Context, msg *chat.Message) error {
	toolCalls, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("encode tool calls: %w", err)
	}
	toolResults, err := json.Marshal(msg.ToolResults)
	if err != nil {
		return fmt.Errorf("encode tool results: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, conversation_id, role, content, tool_calls, tool_results,
		                status, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			tool_calls = EXCLUDED.tool_calls,
			tool_results = EXCLUDED.tool_results,
			status = EXCLUDED.status,
			failure_reason = EXCLUDED.failure_reason
	`, r.tables.Messages)

	_, err = GetExecutor(ctx, r.pool).Exec(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.Role,
		msg.Content,
		toolCalls,
		toolResults,
		msg.Status,
		msg.FailureReason,
		msg.CreatedAt,
	)
	if err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("conversation %s: %w", msg.ConversationID, domain.ErrNotFound)
		}
		return fmt.Errorf("save assistant message: %w", err)
	}

	return nil
}
