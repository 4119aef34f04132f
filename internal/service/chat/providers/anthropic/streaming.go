package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"neurobridge/internal/domain/models/chat"
	chatSvc "neurobridge/internal/domain/services/chat"
)

// StreamTurn streams one assistant turn from Claude as engine wire frames.
// Text deltas are forwarded as they arrive; tool_use blocks are accumulated
// until their block stops, then emitted as a single tool_call frame with the
// complete arguments payload.
func (p *Provider) StreamTurn(ctx context.Context, req *chatSvc.GenerateRequest) (<-chan chat.Frame, error) {
	if !p.SupportsModel(req.Model) {
		return nil, fmt.Errorf("model %q is not supported by the anthropic provider", req.Model)
	}

	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("convert messages: %w", err)
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	apiParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}

	frames := make(chan chat.Frame, 10)

	go func() {
		defer close(frames)

		stream := p.client.Messages.NewStreaming(ctx, apiParams)

		// Accumulates the final message so the done frame can carry the
		// server-assigned id and stop reason.
		message := anthropic.Message{}

		// Per-block accumulation of tool_use input JSON.
		type toolBlock struct {
			id   string
			name string
			json strings.Builder
		}
		toolBlocks := make(map[int64]*toolBlock)

		emit := func(frame chat.Frame) bool {
			select {
			case frames <- frame:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for stream.Next() {
			event := stream.Current()

			if err := message.Accumulate(event); err != nil {
				emit(chat.ErrorFrame(fmt.Sprintf("accumulate message: %v", err)))
				return
			}

			switch e := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if e.ContentBlock.Type == "tool_use" {
					toolBlocks[e.Index] = &toolBlock{
						id:   e.ContentBlock.ID,
						name: e.ContentBlock.Name,
					}
				}

			case anthropic.ContentBlockDeltaEvent:
				switch e.Delta.Type {
				case "text_delta":
					if !emit(chat.TextDeltaFrame(e.Delta.Text)) {
						return
					}
				case "input_json_delta":
					if tb, ok := toolBlocks[e.Index]; ok {
						tb.json.WriteString(e.Delta.PartialJSON)
					}
				}

			case anthropic.ContentBlockStopEvent:
				tb, ok := toolBlocks[e.Index]
				if !ok {
					continue
				}
				delete(toolBlocks, e.Index)

				args := json.RawMessage(tb.json.String())
				if len(args) == 0 {
					args = json.RawMessage(`{}`)
				}
				if !emit(chat.ToolCallFrame(tb.id, tb.name, args)) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			p.logger.Warn("anthropic stream error", "error", err)
			emit(chat.ErrorFrame(fmt.Sprintf("anthropic streaming error: %v", err)))
			return
		}

		emit(chat.DoneFrame(&chat.Message{
			ID:   message.ID,
			Role: chat.RoleAssistant,
		}))
	}()

	return frames, nil
}

// convertMessages maps engine messages to the Anthropic wire shape. Failed
// optimistic entries are skipped; the backend only sees settled history plus
// the triggering pending user message.
func convertMessages(messages []chat.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		if msg.Status == chat.MessageStatusFailed || msg.Content == "" {
			continue
		}

		switch msg.Role {
		case chat.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case chat.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		case chat.RoleSystem:
			// System prompts travel separately in the Anthropic API; skip here.
		default:
			return nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}
	return out, nil
}
