package memory

import (
	"context"
	"sync"
	"time"

	chatRepo "neurobridge/internal/domain/repositories/chat"
)

// CoachingStore is an in-memory SymbolStore and GoalStore with seed data,
// so the coaching tools return something useful in development.
type CoachingStore struct {
	mu      sync.RWMutex
	symbols map[string][]chatRepo.SymbolUsage
	goals   map[string][]chatRepo.GoalProgress
}

func NewCoachingStore() *CoachingStore {
	return &CoachingStore{
		symbols: make(map[string][]chatRepo.SymbolUsage),
		goals:   make(map[string][]chatRepo.GoalProgress),
	}
}

// SeedChild installs demo usage and goal data for a child.
func (s *CoachingStore) SeedChild(childID string) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.symbols[childID] = []chatRepo.SymbolUsage{
		{Symbol: "more", Count: 14, LastUse: now.Add(-2 * time.Hour)},
		{Symbol: "play", Count: 9, LastUse: now.Add(-3 * time.Hour)},
		{Symbol: "all done", Count: 6, LastUse: now.Add(-26 * time.Hour)},
		{Symbol: "help", Count: 4, LastUse: now.Add(-50 * time.Hour)},
	}
	s.goals[childID] = []chatRepo.GoalProgress{
		{GoalID: "goal-two-word", Title: "Combine two symbols", Progress: 0.45, SessionDone: 9},
		{GoalID: "goal-requesting", Title: "Request without prompting", Progress: 0.7, SessionDone: 14},
	}
}

func (s *CoachingStore) SetSymbols(childID string, usages []chatRepo.SymbolUsage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols[childID] = usages
}

func (s *CoachingStore) SetGoals(childID string, goals []chatRepo.GoalProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals[childID] = goals
}

func (s *CoachingStore) RecentSymbols(_ context.Context, childID string, limit int) ([]chatRepo.SymbolUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	usages := s.symbols[childID]
	if limit > 0 && len(usages) > limit {
		usages = usages[:limit]
	}
	out := make([]chatRepo.SymbolUsage, len(usages))
	copy(out, usages)
	return out, nil
}

func (s *CoachingStore) GoalProgressForChild(_ context.Context, childID string) ([]chatRepo.GoalProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	goals := s.goals[childID]
	out := make([]chatRepo.GoalProgress, len(goals))
	copy(out, goals)
	return out, nil
}

var _ chatRepo.SymbolStore = (*CoachingStore)(nil)
var _ chatRepo.GoalStore = (*CoachingStore)(nil)
