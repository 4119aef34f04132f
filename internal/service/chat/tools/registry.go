package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Registry maps tool names to executors. It is the tool-execution
// collaborator the session controller hands requested tool calls to.
// Thread-safe.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]Executor),
	}
}

// Register adds an executor, replacing any existing one with the same name.
func (r *Registry) Register(name string, executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[name] = executor
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.executors[name]
	return ok
}

// Execute runs one tool and marshals its result. Unknown tools and executor
// failures come back as errors for the caller to settle against the tracker.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	r.mu.RLock()
	executor, ok := r.executors[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}

	result, err := executor.Execute(ctx, args)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result of %s: %w", name, err)
	}
	return payload, nil
}
