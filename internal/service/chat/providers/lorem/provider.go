package lorem

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	loremgen "github.com/bozaro/golorem"

	"neurobridge/internal/domain/models/chat"
	chatSvc "neurobridge/internal/domain/services/chat"
	"neurobridge/internal/service/chat/tools"
)

// Provider is a mock assistant backend that streams lorem ipsum frames.
// Used for development and tests without real API keys.
//
// Models:
//   - lorem-fast / lorem-slow: plain text turns at different word rates
//   - lorem-tools: requests a lookup_recent_symbols tool call mid-turn,
//     exercising the full tool lifecycle
type Provider struct {
	generator *loremgen.Lorem
}

// NewProvider creates a lorem provider.
func NewProvider() *Provider {
	return &Provider{
		generator: loremgen.New(),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "lorem"
}

// SupportsModel returns true for models with the "lorem-" prefix.
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "lorem-")
}

// StreamTurn emits a scripted frame stream for one turn.
func (p *Provider) StreamTurn(ctx context.Context, req *chatSvc.GenerateRequest) (<-chan chat.Frame, error) {
	if !p.SupportsModel(req.Model) {
		return nil, fmt.Errorf("model %q is not supported by the lorem provider", req.Model)
	}

	frames := make(chan chat.Frame, 10)

	go func() {
		defer close(frames)

		emit := func(frame chat.Frame) bool {
			select {
			case frames <- frame:
				return true
			case <-ctx.Done():
				return false
			}
		}

		delay := streamDelay(req.Model)

		if strings.Contains(req.Model, "tools") {
			args, _ := json.Marshal(map[string]string{"child_id": req.ChildID})
			if !emit(chat.ToolCallFrame("lorem-tool-1", tools.ToolRecentSymbols, args)) {
				return
			}
		}

		words := strings.Fields(p.generator.Paragraph(2, 4))
		for i, word := range words {
			if i > 0 {
				word = " " + word
			}
			if !emit(chat.TextDeltaFrame(word)) {
				return
			}

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}

		emit(chat.DoneFrame(nil))
	}()

	return frames, nil
}

// streamDelay returns the per-word delay for a model name.
// lorem-slow streams at 2 words/second, lorem-fast at 30, default 10.
func streamDelay(model string) time.Duration {
	if strings.Contains(model, "slow") {
		return 500 * time.Millisecond
	}
	if strings.Contains(model, "fast") {
		return 33 * time.Millisecond
	}
	return 100 * time.Millisecond
}
