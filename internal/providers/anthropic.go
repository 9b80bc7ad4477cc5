package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/driftcode/agentcore/internal/retry"
	"github.com/driftcode/agentcore/pkg/models"
)

// AnthropicConfig configures an AnthropicAdapter.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// AnthropicAdapter implements Provider over github.com/anthropics/anthropic-sdk-go.
type AnthropicAdapter struct {
	client anthropic.Client
	model  string
	retry  retry.Config
}

// NewAnthropicAdapter constructs an adapter from config, applying the
// spec-default retry policy unless overridden.
func NewAnthropicAdapter(cfg AnthropicConfig) (*AnthropicAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicAdapter{
		client: anthropic.NewClient(opts...),
		model:  model,
		retry:  retry.DefaultConfig(),
	}, nil
}

func (a *AnthropicAdapter) Name() string       { return "anthropic" }
func (a *AnthropicAdapter) Model() string      { return a.model }
func (a *AnthropicAdapter) IDFormat() IDFormat { return IDFormatAnthropic }

// Stream converts c into an Anthropic streaming request, retrying transient
// failures at request-creation time per internal/retry's backoff policy, and
// relays SSE events into the returned channel until message_stop or error.
func (a *AnthropicAdapter) Stream(ctx context.Context, c Context, opts Options) (<-chan StreamEvent, error) {
	params, err := a.buildParams(c, opts)
	if err != nil {
		return nil, NewProviderError(a.Name(), a.model, err).WithCode("invalid_request_error")
	}

	handle, result := retry.DoWithValue(ctx, a.retry, func() (*anthropicStreamHandle, error) {
		s := a.client.Messages.NewStreaming(ctx, params)
		return &anthropicStreamHandle{stream: s}, nil
	})
	if result.Err != nil {
		return nil, a.wrapError(result.Err)
	}

	events := make(chan StreamEvent)
	go a.processStream(handle.stream, events)
	return events, nil
}

// anthropicStreamHandle wraps the SDK's stream type so retry.DoWithValue's
// generic signature doesn't need to name it directly.
type anthropicStreamHandle struct {
	stream interface {
		Next() bool
		Current() anthropic.MessageStreamEventUnion
		Err() error
	}
}

func (a *AnthropicAdapter) buildParams(c Context, opts Options) (anthropic.MessageNewParams, error) {
	messages, err := a.convertMessages(c.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("convert messages: %w", err)
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}

	if c.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: c.SystemPrompt}}
	}

	if len(c.Tools) > 0 {
		tools, err := a.convertTools(c.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("convert tools: %w", err)
		}
		params.Tools = tools
	}

	if opts.EnableThinking {
		budget := int64(opts.ThinkingBudgetTokens)
		if budget < 1024 {
			budget = 10000
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}

	return params, nil
}

func (a *AnthropicAdapter) convertMessages(messages []*models.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		var content []anthropic.ContentBlockParamUnion

		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, tr := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		}
		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if len(tc.Input) > 0 {
				if err := json.Unmarshal(tc.Input, &input); err != nil {
					return nil, fmt.Errorf("invalid tool call input for %s: %w", tc.Name, err)
				}
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}

		if len(content) == 0 {
			continue
		}

		var message anthropic.MessageParam
		if msg.Role == models.RoleAssistant {
			message = anthropic.NewAssistantMessage(content...)
		} else {
			message = anthropic.NewUserMessage(content...)
		}
		result = append(result, message)
	}

	return result, nil
}

func (a *AnthropicAdapter) convertTools(tools []ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.Schema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", t.Name)
		}
		param.OfTool.Description = anthropic.String(t.Description)
		result = append(result, param)
	}
	return result, nil
}

// maxEmptyStreamEvents bounds consecutive no-op events before the stream is
// treated as malformed, guarding against a flood of empty SSE frames.
const maxEmptyStreamEvents = 300

func (a *AnthropicAdapter) processStream(stream interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
}, events chan<- StreamEvent) {
	defer close(events)

	var inputTokens, outputTokens, cacheRead, cacheCreation int64
	var currentToolID, currentToolName string
	var currentToolInput strings.Builder
	inTool := false
	empty := 0

	for stream.Next() {
		event := stream.Current()
		processed := false

		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			inputTokens = ms.Message.Usage.InputTokens
			cacheRead = ms.Message.Usage.CacheReadInputTokens
			cacheCreation = ms.Message.Usage.CacheCreationInputTokens
			processed = true

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				currentToolID = toolUse.ID
				currentToolName = toolUse.Name
				currentToolInput.Reset()
				inTool = true
				events <- StreamEvent{Type: StreamToolUseStart, ToolCallID: currentToolID, ToolName: currentToolName}
				processed = true
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					events <- StreamEvent{Type: StreamTextDelta, Text: delta.Text}
					processed = true
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					events <- StreamEvent{Type: StreamThinkingDelta, Text: delta.Thinking}
					processed = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentToolInput.WriteString(delta.PartialJSON)
					events <- StreamEvent{Type: StreamToolUseDelta, ToolCallID: currentToolID, ToolArgumentDelta: delta.PartialJSON}
					processed = true
				}
			}

		case "content_block_stop":
			if inTool {
				events <- StreamEvent{Type: StreamToolUseStop, ToolCallID: currentToolID, ToolName: currentToolName, ToolArgumentDelta: currentToolInput.String()}
				inTool = false
				processed = true
			}

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = md.Usage.OutputTokens
			}
			processed = true

		case "message_stop":
			events <- StreamEvent{
				Type: StreamUsage,
				Usage: models.TokenSource{
					Provider:         a.Name(),
					RawInput:         int(inputTokens),
					RawOutput:        int(outputTokens),
					RawCacheRead:     int(cacheRead),
					RawCacheCreation: int(cacheCreation),
				},
			}
			events <- StreamEvent{Type: StreamDone, StopReason: "end_turn"}
			return

		case "error":
			events <- StreamEvent{Type: StreamError, Err: a.wrapError(errors.New("anthropic stream error"))}
			return
		}

		if processed {
			empty = 0
		} else if empty++; empty >= maxEmptyStreamEvents {
			events <- StreamEvent{Type: StreamError, Err: a.wrapError(fmt.Errorf("stream appears malformed: %d consecutive empty events", empty))}
			return
		}
	}

	if err := stream.Err(); err != nil {
		events <- StreamEvent{Type: StreamError, Err: a.wrapError(err)}
	}
}

func (a *AnthropicAdapter) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}

	pe := NewProviderError(a.Name(), a.model, err)

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		pe = pe.WithStatus(apiErr.StatusCode).WithRequestID(apiErr.RequestID)
	}
	return pe
}

var _ Provider = (*AnthropicAdapter)(nil)
