package chat

import (
	"context"
	"time"
)

// SymbolUsage is one AAC symbol use recorded for a child.
type SymbolUsage struct {
	Symbol  string    `json:"symbol" db:"symbol"`
	Count   int       `json:"count" db:"count"`
	LastUse time.Time `json:"last_use" db:"last_use"`
}

// GoalProgress is the rollup for one therapy goal.
type GoalProgress struct {
	GoalID      string  `json:"goal_id" db:"goal_id"`
	Title       string  `json:"title" db:"title"`
	Progress    float64 `json:"progress" db:"progress"` // 0..1
	SessionDone int     `json:"sessions_done" db:"sessions_done"`
}

// SymbolStore serves the lookup_recent_symbols tool.
type SymbolStore interface {
	RecentSymbols(ctx context.Context, childID string, limit int) ([]SymbolUsage, error)
}

// GoalStore serves the lookup_goal_progress tool.
type GoalStore interface {
	GoalProgressForChild(ctx context.Context, childID string) ([]GoalProgress, error)
}
