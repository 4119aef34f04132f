package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"neurobridge/internal/domain"
	"neurobridge/internal/domain/models/chat"
	chatRepo "neurobridge/internal/domain/repositories/chat"
)

// PostgresConversationStore implements the ConversationStore interface
type PostgresConversationStore struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewConversationStore creates a new conversation store
func NewConversationStore(config *RepositoryConfig) chatRepo.ConversationStore {
	return &PostgresConversationStore{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// CreateConversation creates a new conversation record
func (r *PostgresConversationStore) CreateConversation(ctx context.Context, conv *chat.Conversation) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, child_id, caregiver_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, r.tables.Conversations)

	_, err := GetExecutor(ctx, r.pool).Exec(ctx, query,
		conv.ID,
		conv.ChildID,
		conv.CaregiverID,
		conv.CreatedAt,
	)
	if err != nil {
		if IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("conversation %s already exists", conv.ID),
				ResourceType: "conversation",
				ResourceID:   conv.ID,
			}
		}
		return fmt.Errorf("create conversation: %w", err)
	}

	return nil
}

// GetConversation retrieves a conversation by ID
func (r *PostgresConversationStore) GetConversation(ctx context.Context, id string) (*chat.Conversation, error) {
	query := fmt.Sprintf(`
		SELECT id, child_id, caregiver_id, created_at
		FROM %s
		WHERE id = $1
	`, r.tables.Conversations)

	var conv chat.Conversation
	err := GetExecutor(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&conv.ID,
		&conv.ChildID,
		&conv.CaregiverID,
		&conv.CreatedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	return &conv, nil
}

// ListMessages retrieves all messages for a conversation, oldest first.
// Tool calls and results are stored as JSONB alongside the message row.
func (r *PostgresConversationStore) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	query := fmt.Sprintf(`
		SELECT id, conversation_id, role, content, tool_calls, tool_results,
		       status, failure_reason, created_at
		FROM %s
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`, r.tables.Messages)

	rows, err := GetExecutor(ctx, r.pool).Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		var msg chat.Message
		var toolCalls, toolResults []byte
		err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.Role,
			&msg.Content,
			&toolCalls,
			&toolResults,
			&msg.Status,
			&msg.FailureReason,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		if len(toolCalls) > 0 {
			if err := json.Unmarshal(toolCalls, &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls for message %s: %w", msg.ID, err)
			}
		}
		if len(toolResults) > 0 {
			if err := json.Unmarshal(toolResults, &msg.ToolResults); err != nil {
				return nil, fmt.Errorf("decode tool results for message %s: %w", msg.ID, err)
			}
		}

		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}
