package anthropic

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Provider streams coaching turns from Anthropic (Claude) models, emitting
// the engine's wire frames.
type Provider struct {
	client *anthropic.Client
	logger *slog.Logger
}

// NewProvider creates an Anthropic provider with the given API key.
func NewProvider(apiKey string, logger *slog.Logger) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &Provider{
		client: &client,
		logger: logger,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "anthropic"
}

// SupportsModel returns true for Anthropic models ("claude-" prefix).
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "claude-")
}
