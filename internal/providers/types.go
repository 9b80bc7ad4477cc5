// Package providers implements the provider stream abstraction (spec
// §4.D): a single contract every LLM backend speaks, built on the shared
// SSE parser and cross-provider tool-call ID remapping in this package.
package providers

import (
	"context"

	"github.com/driftcode/agentcore/pkg/models"
)

// StreamEventType enumerates the kinds of events a Provider's stream can
// yield.
type StreamEventType string

const (
	StreamTextDelta     StreamEventType = "text_delta"
	StreamThinkingDelta StreamEventType = "thinking_delta"
	StreamToolUseStart  StreamEventType = "tool_use_start"
	StreamToolUseDelta  StreamEventType = "tool_use_delta"
	StreamToolUseStop   StreamEventType = "tool_use_stop"
	StreamUsage         StreamEventType = "usage"
	StreamDone          StreamEventType = "done"
	StreamError         StreamEventType = "error"
)

// StreamEvent is the union of every event a provider stream can emit. Only
// the fields relevant to Type are populated.
type StreamEvent struct {
	Type StreamEventType

	// StreamTextDelta / StreamThinkingDelta
	Text string

	// StreamToolUseStart / StreamToolUseDelta / StreamToolUseStop
	ToolCallID        string
	ToolName          string
	ToolArgumentDelta string // partial JSON, accumulated by the caller

	// StreamUsage
	Usage models.TokenSource

	// StreamDone
	StopReason string

	// StreamError
	Err error
}

// Options carries per-call generation parameters that apply across
// providers.
type Options struct {
	MaxTokens            int
	EnableThinking       bool
	ThinkingBudgetTokens int
	// EffortLevel and ReasoningLevel are provider-specific knobs (e.g.
	// OpenAI's reasoning effort, Anthropic's extended-thinking budget tier)
	// passed through as opaque strings.
	EffortLevel    string
	ReasoningLevel string
}

// ToolDefinition is a tool's provider-facing shape: name, description, and
// JSON-schema arguments.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      []byte
}

// Context is the composed input to one provider call (spec §3 Context):
// system prompt, ordered messages, available tools, and working directory.
type Context struct {
	SystemPrompt string
	Messages     []*models.Message
	Tools        []ToolDefinition
	WorkingDir   string
}

// Provider is the single contract every backend implements. The streaming
// sequence is consumed by the turn runner, which decides when to stop.
type Provider interface {
	Name() string
	Model() string
	// IDFormat reports the tool-call ID convention this provider emits, used
	// to build the cross-provider remapping before composing a request.
	IDFormat() IDFormat
	Stream(ctx context.Context, c Context, opts Options) (<-chan StreamEvent, error)
}
