package tools

import (
	"context"
	"encoding/json"
	"fmt"

	chatRepo "neurobridge/internal/domain/repositories/chat"
)

// Tool names the assistant backend may request during a coaching turn.
const (
	ToolRecentSymbols = "lookup_recent_symbols"
	ToolGoalProgress  = "lookup_goal_progress"
)

const defaultSymbolLimit = 20

type recentSymbolsArgs struct {
	ChildID string `json:"child_id"`
	Limit   int    `json:"limit,omitempty"`
}

type goalProgressArgs struct {
	ChildID string `json:"child_id"`
}

// RecentSymbolsExecutor looks up the AAC symbols a child used most recently.
type RecentSymbolsExecutor struct {
	symbols chatRepo.SymbolStore
}

// NewRecentSymbolsExecutor creates the lookup_recent_symbols executor.
func NewRecentSymbolsExecutor(symbols chatRepo.SymbolStore) *RecentSymbolsExecutor {
	return &RecentSymbolsExecutor{symbols: symbols}
}

func (e *RecentSymbolsExecutor) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var in recentSymbolsArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	if in.ChildID == "" {
		return nil, fmt.Errorf("child_id is required")
	}
	limit := in.Limit
	if limit <= 0 || limit > 100 {
		limit = defaultSymbolLimit
	}

	usages, err := e.symbols.RecentSymbols(ctx, in.ChildID, limit)
	if err != nil {
		return nil, fmt.Errorf("lookup recent symbols: %w", err)
	}
	return map[string]any{"symbols": usages}, nil
}

// GoalProgressExecutor rolls up a child's therapy goal progress.
type GoalProgressExecutor struct {
	goals chatRepo.GoalStore
}

// NewGoalProgressExecutor creates the lookup_goal_progress executor.
func NewGoalProgressExecutor(goals chatRepo.GoalStore) *GoalProgressExecutor {
	return &GoalProgressExecutor{goals: goals}
}

func (e *GoalProgressExecutor) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var in goalProgressArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	if in.ChildID == "" {
		return nil, fmt.Errorf("child_id is required")
	}

	progress, err := e.goals.GoalProgressForChild(ctx, in.ChildID)
	if err != nil {
		return nil, fmt.Errorf("lookup goal progress: %w", err)
	}
	return map[string]any{"goals": progress}, nil
}

// RegisterCoachingTools wires the coaching lookups into a registry.
func RegisterCoachingTools(r *Registry, symbols chatRepo.SymbolStore, goals chatRepo.GoalStore) {
	r.Register(ToolRecentSymbols, NewRecentSymbolsExecutor(symbols))
	r.Register(ToolGoalProgress, NewGoalProgressExecutor(goals))
}
