package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/driftcode/agentcore/internal/retry"
	"github.com/driftcode/agentcore/pkg/models"
)

// BedrockConfig configures a BedrockAdapter.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Model           string
}

// BedrockAdapter implements Provider over AWS Bedrock's ConverseStream API,
// wrapping github.com/aws/aws-sdk-go-v2/service/bedrockruntime.
type BedrockAdapter struct {
	client *bedrockruntime.Client
	model  string
	retry  retry.Config
}

// NewBedrockAdapter constructs an adapter from config, loading AWS
// credentials explicitly if supplied or falling back to the default chain.
func NewBedrockAdapter(ctx context.Context, cfg BedrockConfig) (*BedrockAdapter, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	model := cfg.Model
	if model == "" {
		model = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
			)),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(region))
	}
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	return &BedrockAdapter{
		client: bedrockruntime.NewFromConfig(awsCfg),
		model:  model,
		retry:  retry.DefaultConfig(),
	}, nil
}

func (a *BedrockAdapter) Name() string       { return "bedrock" }
func (a *BedrockAdapter) Model() string      { return a.model }
func (a *BedrockAdapter) IDFormat() IDFormat { return IDFormatAnthropic }

// Stream issues a ConverseStream request and relays its event channel as
// StreamEvents.
func (a *BedrockAdapter) Stream(ctx context.Context, c Context, opts Options) (<-chan StreamEvent, error) {
	messages, err := a.convertMessages(c.Messages)
	if err != nil {
		return nil, NewProviderError(a.Name(), a.model, err).WithCode("invalid_request_error")
	}

	req := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(a.model),
		Messages: messages,
	}
	if c.SystemPrompt != "" {
		req.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: c.SystemPrompt}}
	}
	if opts.MaxTokens > 0 {
		maxTokens := opts.MaxTokens
		if maxTokens > math.MaxInt32 {
			maxTokens = math.MaxInt32
		}
		req.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(maxTokens))}
	}
	if len(c.Tools) > 0 {
		req.ToolConfig = a.convertTools(c.Tools)
	}

	out, result := retry.DoWithValue(ctx, a.retry, func() (*bedrockruntime.ConverseStreamOutput, error) {
		return a.client.ConverseStream(ctx, req)
	})
	if result.Err != nil {
		return nil, a.wrapError(result.Err)
	}

	events := make(chan StreamEvent)
	go a.processStream(ctx, out, events)
	return events, nil
}

func (a *BedrockAdapter) processStream(ctx context.Context, stream *bedrockruntime.ConverseStreamOutput, events chan<- StreamEvent) {
	defer close(events)

	eventStream := stream.GetStream()
	defer eventStream.Close()

	var currentToolID, currentToolName string
	var toolInput []byte
	var inputTokens, outputTokens int

	eventChan := eventStream.Events()
	for {
		select {
		case <-ctx.Done():
			events <- StreamEvent{Type: StreamError, Err: ctx.Err()}
			return
		case event, ok := <-eventChan:
			if !ok {
				if currentToolID != "" {
					events <- StreamEvent{Type: StreamToolUseStop, ToolCallID: currentToolID, ToolName: currentToolName, ToolArgumentDelta: string(toolInput)}
				}
				if err := eventStream.Err(); err != nil {
					events <- StreamEvent{Type: StreamError, Err: a.wrapError(err)}
					return
				}
				events <- StreamEvent{Type: StreamUsage, Usage: models.TokenSource{Provider: a.Name(), RawInput: inputTokens, RawOutput: outputTokens}}
				events <- StreamEvent{Type: StreamDone, StopReason: "end_turn"}
				return
			}

			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if toolUse, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					currentToolID = aws.ToString(toolUse.Value.ToolUseId)
					currentToolName = aws.ToString(toolUse.Value.Name)
					toolInput = nil
					events <- StreamEvent{Type: StreamToolUseStart, ToolCallID: currentToolID, ToolName: currentToolName}
				}

			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := ev.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if delta.Value != "" {
						events <- StreamEvent{Type: StreamTextDelta, Text: delta.Value}
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if delta.Value.Input != nil {
						toolInput = append(toolInput, []byte(*delta.Value.Input)...)
						events <- StreamEvent{Type: StreamToolUseDelta, ToolCallID: currentToolID, ToolArgumentDelta: *delta.Value.Input}
					}
				}

			case *types.ConverseStreamOutputMemberContentBlockStop:
				if currentToolID != "" {
					events <- StreamEvent{Type: StreamToolUseStop, ToolCallID: currentToolID, ToolName: currentToolName, ToolArgumentDelta: string(toolInput)}
					currentToolID, currentToolName = "", ""
					toolInput = nil
				}

			case *types.ConverseStreamOutputMemberMetadata:
				if ev.Value.Usage != nil {
					inputTokens = int(aws.ToInt32(ev.Value.Usage.InputTokens))
					outputTokens = int(aws.ToInt32(ev.Value.Usage.OutputTokens))
				}

			case *types.ConverseStreamOutputMemberMessageStop:
				events <- StreamEvent{Type: StreamUsage, Usage: models.TokenSource{Provider: a.Name(), RawInput: inputTokens, RawOutput: outputTokens}}
				events <- StreamEvent{Type: StreamDone, StopReason: "end_turn"}
				return
			}
		}
	}
}

func (a *BedrockAdapter) convertMessages(messages []*models.Message) ([]types.Message, error) {
	result := make([]types.Message, 0, len(messages))

	for _, msg := range messages {
		var content []types.ContentBlock

		if msg.Content != "" {
			content = append(content, &types.ContentBlockMemberText{Value: msg.Content})
		}
		for _, tr := range msg.ToolResults {
			content = append(content, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(tr.ToolCallID),
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: tr.Content}},
				},
			})
		}
		for _, tc := range msg.ToolCalls {
			var input any
			if len(tc.Input) > 0 {
				if err := json.Unmarshal(tc.Input, &input); err != nil {
					input = map[string]any{}
				}
			}
			content = append(content, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Name),
					Input:     document.NewLazyDocument(input),
				},
			})
		}

		if len(content) == 0 {
			continue
		}

		role := types.ConversationRoleUser
		if msg.Role == models.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		result = append(result, types.Message{Role: role, Content: content})
	}

	return result, nil
}

func (a *BedrockAdapter) convertTools(tools []ToolDefinition) *types.ToolConfiguration {
	specs := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		var schema any
		if err := json.Unmarshal(t.Schema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		specs = append(specs, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}
	return &types.ToolConfiguration{Tools: specs}
}

func (a *BedrockAdapter) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		pe := NewProviderError(a.Name(), a.model, err)
		pe.Kind = KindInterrupted
		return pe
	}
	return NewProviderError(a.Name(), a.model, err)
}

var _ Provider = (*BedrockAdapter)(nil)
