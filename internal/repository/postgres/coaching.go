package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	chatRepo "neurobridge/internal/domain/repositories/chat"
)

// PostgresCoachingStore implements SymbolStore and GoalStore over the AAC
// usage tables the coaching tools read from.
type PostgresCoachingStore struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewCoachingStore creates a new coaching store
func NewCoachingStore(config *RepositoryConfig) *PostgresCoachingStore {
	return &PostgresCoachingStore{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// RecentSymbols returns the child's most recently used symbols, most recent
// first.
func (r *PostgresCoachingStore) RecentSymbols(ctx context.Context, childID string, limit int) ([]chatRepo.SymbolUsage, error) {
	query := fmt.Sprintf(`
		SELECT symbol, count, last_use
		FROM %s
		WHERE child_id = $1
		ORDER BY last_use DESC
		LIMIT $2
	`, r.tables.Symbols)

	rows, err := GetExecutor(ctx, r.pool).Query(ctx, query, childID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent symbols: %w", err)
	}
	defer rows.Close()

	var usages []chatRepo.SymbolUsage
	for rows.Next() {
		var u chatRepo.SymbolUsage
		if err := rows.Scan(&u.Symbol, &u.Count, &u.LastUse); err != nil {
			return nil, fmt.Errorf("scan symbol usage: %w", err)
		}
		usages = append(usages, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate symbol usage: %w", err)
	}

	return usages, nil
}

// GoalProgressForChild returns progress rollups for the child's active goals.
func (r *PostgresCoachingStore) GoalProgressForChild(ctx context.Context, childID string) ([]chatRepo.GoalProgress, error) {
	query := fmt.Sprintf(`
		SELECT goal_id, title, progress, sessions_done
		FROM %s
		WHERE child_id = $1
		ORDER BY title ASC
	`, r.tables.Goals)

	rows, err := GetExecutor(ctx, r.pool).Query(ctx, query, childID)
	if err != nil {
		return nil, fmt.Errorf("query goal progress: %w", err)
	}
	defer rows.Close()

	var goals []chatRepo.GoalProgress
	for rows.Next() {
		var g chatRepo.GoalProgress
		if err := rows.Scan(&g.GoalID, &g.Title, &g.Progress, &g.SessionDone); err != nil {
			return nil, fmt.Errorf("scan goal progress: %w", err)
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate goal progress: %w", err)
	}

	return goals, nil
}
