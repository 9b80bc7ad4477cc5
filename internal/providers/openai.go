package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/driftcode/agentcore/internal/retry"
	"github.com/driftcode/agentcore/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAIAdapter.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIAdapter implements Provider over github.com/sashabaranov/go-openai.
type OpenAIAdapter struct {
	client *openai.Client
	model  string
	retry  retry.Config
}

// NewOpenAIAdapter constructs an adapter from config.
func NewOpenAIAdapter(cfg OpenAIConfig) (*OpenAIAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		retry:  retry.DefaultConfig(),
	}, nil
}

func (a *OpenAIAdapter) Name() string       { return "openai" }
func (a *OpenAIAdapter) Model() string      { return a.model }
func (a *OpenAIAdapter) IDFormat() IDFormat { return IDFormatOpenAI }

// Stream converts c into a ChatCompletionRequest and relays the resulting
// delta stream as StreamEvents until the finish reason or an error.
func (a *OpenAIAdapter) Stream(ctx context.Context, c Context, opts Options) (<-chan StreamEvent, error) {
	messages, err := a.convertMessages(c)
	if err != nil {
		return nil, NewProviderError(a.Name(), a.model, err).WithCode("invalid_request_error")
	}

	req := openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: messages,
		Stream:   true,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if len(c.Tools) > 0 {
		req.Tools = a.convertTools(c.Tools)
	}

	stream, result := retry.DoWithValue(ctx, a.retry, func() (*openai.ChatCompletionStream, error) {
		return a.client.CreateChatCompletionStream(ctx, req)
	})
	if result.Err != nil {
		return nil, a.wrapError(result.Err)
	}

	events := make(chan StreamEvent)
	go a.processStream(ctx, stream, events)
	return events, nil
}

func (a *OpenAIAdapter) processStream(ctx context.Context, stream *openai.ChatCompletionStream, events chan<- StreamEvent) {
	defer close(events)
	defer stream.Close()

	type pendingCall struct {
		id, name string
		args     string
	}
	calls := make(map[int]*pendingCall)
	var inputTokens, outputTokens int

	flush := func() {
		for _, tc := range calls {
			if tc.id == "" || tc.name == "" {
				continue
			}
			events <- StreamEvent{Type: StreamToolUseStart, ToolCallID: tc.id, ToolName: tc.name}
			events <- StreamEvent{Type: StreamToolUseStop, ToolCallID: tc.id, ToolName: tc.name, ToolArgumentDelta: tc.args}
		}
		calls = make(map[int]*pendingCall)
	}

	for {
		select {
		case <-ctx.Done():
			events <- StreamEvent{Type: StreamError, Err: ctx.Err()}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				flush()
				events <- StreamEvent{
					Type: StreamUsage,
					Usage: models.TokenSource{
						Provider:  a.Name(),
						RawInput:  inputTokens,
						RawOutput: outputTokens,
					},
				}
				events <- StreamEvent{Type: StreamDone, StopReason: "end_turn"}
				return
			}
			events <- StreamEvent{Type: StreamError, Err: a.wrapError(err)}
			return
		}

		if resp.Usage != nil {
			inputTokens = resp.Usage.PromptTokens
			outputTokens = resp.Usage.CompletionTokens
		}

		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta

		if delta.Content != "" {
			events <- StreamEvent{Type: StreamTextDelta, Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if calls[index] == nil {
				calls[index] = &pendingCall{}
			}
			if tc.ID != "" {
				calls[index].id = tc.ID
			}
			if tc.Function.Name != "" {
				calls[index].name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				calls[index].args += tc.Function.Arguments
			}
		}

		if resp.Choices[0].FinishReason == openai.FinishReasonToolCalls {
			flush()
		}
	}
}

func (a *OpenAIAdapter) convertMessages(c Context) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(c.Messages)+1)

	if c.SystemPrompt != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: c.SystemPrompt,
		})
	}

	for _, msg := range c.Messages {
		switch msg.Role {
		case models.RoleTool:
			for _, tr := range msg.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
		case models.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content}
			if len(msg.ToolCalls) > 0 {
				oaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					oaiMsg.ToolCalls[i] = openai.ToolCall{
						ID:   tc.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      tc.Name,
							Arguments: string(tc.Input),
						},
					}
				}
			}
			result = append(result, oaiMsg)
		default:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		}
	}

	return result, nil
}

func (a *OpenAIAdapter) convertTools(tools []ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.Schema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		}
	}
	return result
}

func (a *OpenAIAdapter) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}

	pe := NewProviderError(a.Name(), a.model, err)

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		pe = pe.WithStatus(apiErr.HTTPStatusCode)
		if apiErr.Code != nil {
			if code, ok := apiErr.Code.(string); ok {
				pe = pe.WithCode(code)
			}
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		pe = pe.WithStatus(reqErr.HTTPStatusCode)
	}

	return pe
}

var _ Provider = (*OpenAIAdapter)(nil)
