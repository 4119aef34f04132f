package tools

import (
	"context"
	"encoding/json"
)

// Executor runs one named tool for the conversation engine.
// Implementations must be safe for concurrent use and respect context
// cancellation: a cancelled turn stops waiting on them.
type Executor interface {
	// Execute runs the tool with the decoded arguments payload and returns a
	// JSON-serializable result.
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, args json.RawMessage) (any, error)

func (f ExecutorFunc) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	return f(ctx, args)
}
