package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/driftcode/agentcore/internal/retry"
	"github.com/driftcode/agentcore/internal/tokens"
	"github.com/driftcode/agentcore/pkg/models"
	"google.golang.org/genai"
)

// GoogleConfig configures a GoogleAdapter.
type GoogleConfig struct {
	APIKey string
	Model  string
}

// GoogleAdapter implements Provider over google.golang.org/genai.
type GoogleAdapter struct {
	client *genai.Client
	model  string
	retry  retry.Config
}

// NewGoogleAdapter constructs an adapter from config.
func NewGoogleAdapter(ctx context.Context, cfg GoogleConfig) (*GoogleAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("google: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: failed to create client: %w", err)
	}

	return &GoogleAdapter{client: client, model: model, retry: retry.DefaultConfig()}, nil
}

func (a *GoogleAdapter) Name() string       { return "google" }
func (a *GoogleAdapter) Model() string      { return a.model }
func (a *GoogleAdapter) IDFormat() IDFormat { return IDFormatGoogle }

// Stream converts c into a Gemini GenerateContentStream call and relays the
// Go 1.23 iterator's responses as StreamEvents.
func (a *GoogleAdapter) Stream(ctx context.Context, c Context, opts Options) (<-chan StreamEvent, error) {
	contents, err := a.convertMessages(c.Messages)
	if err != nil {
		return nil, NewProviderError(a.Name(), a.model, err).WithCode("invalid_request_error")
	}
	config := a.buildConfig(c, opts)

	events := make(chan StreamEvent)
	go a.runStream(ctx, contents, config, events)
	return events, nil
}

func (a *GoogleAdapter) runStream(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig, events chan<- StreamEvent) {
	defer close(events)

	result := retry.Do(ctx, a.retry, func() error {
		var inputTokens, outputTokens int
		for resp, err := range a.client.Models.GenerateContentStream(ctx, a.model, contents, config) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err != nil {
				return err
			}
			if resp == nil {
				continue
			}
			if resp.UsageMetadata != nil {
				inputTokens = int(resp.UsageMetadata.PromptTokenCount)
				outputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
			}
			for _, candidate := range resp.Candidates {
				if candidate == nil || candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					if part == nil {
						continue
					}
					if part.Text != "" {
						events <- StreamEvent{Type: StreamTextDelta, Text: part.Text}
					}
					if part.FunctionCall != nil {
						argsJSON, err := json.Marshal(part.FunctionCall.Args)
						if err != nil {
							argsJSON = []byte("{}")
						}
						id := "call_" + part.FunctionCall.Name
						events <- StreamEvent{Type: StreamToolUseStart, ToolCallID: id, ToolName: part.FunctionCall.Name}
						events <- StreamEvent{Type: StreamToolUseStop, ToolCallID: id, ToolName: part.FunctionCall.Name, ToolArgumentDelta: string(argsJSON)}
					}
				}
			}
		}

		events <- StreamEvent{Type: StreamUsage, Usage: tokens.ExtractGoogle(tokens.GoogleUsage{
			PromptTokenCount:     inputTokens,
			CandidatesTokenCount: outputTokens,
		})}
		return nil
	})

	if result.Err != nil {
		events <- StreamEvent{Type: StreamError, Err: a.wrapError(result.Err)}
		return
	}
	events <- StreamEvent{Type: StreamDone, StopReason: "end_turn"}
}

func (a *GoogleAdapter) convertMessages(messages []*models.Message) ([]*genai.Content, error) {
	var result []*genai.Content

	for _, msg := range messages {
		content := &genai.Content{}
		switch msg.Role {
		case models.RoleAssistant:
			content.Role = genai.RoleModel
		default:
			content.Role = genai.RoleUser
		}

		if msg.Content != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
		}

		for _, tc := range msg.ToolCalls {
			var args map[string]any
			if len(tc.Input) > 0 {
				if err := json.Unmarshal(tc.Input, &args); err != nil {
					args = make(map[string]any)
				}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: args},
			})
		}

		for _, tr := range msg.ToolResults {
			var response map[string]any
			if err := json.Unmarshal([]byte(tr.Content), &response); err != nil {
				response = map[string]any{"result": tr.Content, "error": tr.IsError}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{Name: toolNameForResult(msg, tr.ToolCallID), Response: response},
			})
		}

		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}

	return result, nil
}

// toolNameForResult resolves the tool name for a result whose call lives in
// an earlier message, falling back to the call ID when unresolved — Gemini's
// function response requires a name, unlike OpenAI/Anthropic's ID-keyed form.
func toolNameForResult(msg *models.Message, toolCallID string) string {
	for _, tc := range msg.ToolCalls {
		if tc.ID == toolCallID {
			return tc.Name
		}
	}
	return toolCallID
}

func (a *GoogleAdapter) buildConfig(c Context, opts Options) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if c.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: c.SystemPrompt}}}
	}
	if opts.MaxTokens > 0 {
		maxTokens := opts.MaxTokens
		if maxTokens > math.MaxInt32 {
			maxTokens = math.MaxInt32
		}
		config.MaxOutputTokens = int32(maxTokens)
	}
	if len(c.Tools) > 0 {
		config.Tools = a.convertTools(c.Tools)
	}

	return config
}

func (a *GoogleAdapter) convertTools(tools []ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		var schema genai.Schema
		if err := json.Unmarshal(t.Schema, &schema); err != nil {
			schema = genai.Schema{Type: genai.TypeObject}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  &schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func (a *GoogleAdapter) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}
	return NewProviderError(a.Name(), a.model, err)
}

var _ Provider = (*GoogleAdapter)(nil)
