// Package hooks provides a lifecycle hook system for session and tool
// events: handlers register per HookType and are dispatched either
// blocking (able to veto or substitute the outcome) or in parallel
// (observational, never gating the pipeline).
package hooks

import (
	"context"

	"github.com/driftcode/agentcore/pkg/models"
)

// Handler processes a hook invocation and returns the pipeline's next
// decision. Handlers should be fast; long-running work belongs behind
// HookParallel mode rather than blocking the caller.
type Handler func(ctx context.Context, hc *models.HookContext) (*models.HookResult, error)

// Priority determines the order handlers are called within a HookType.
// Higher values run first.
type Priority int

const (
	PriorityHighest Priority = 100
	PriorityHigh    Priority = 75
	PriorityNormal  Priority = 50
	PriorityLow     Priority = 25
	PriorityLowest  Priority = 0
)

// Registration represents a registered hook handler.
type Registration struct {
	// ID is a unique identifier for this registration.
	ID string

	// Type is the lifecycle point this handler listens for.
	Type models.HookType

	// Handler is the function to call.
	Handler Handler

	// Priority determines call order (higher = earlier).
	Priority Priority

	// Mode determines whether this handler blocks the pipeline on its
	// decision or runs alongside it without gating.
	Mode models.HookMode

	// Name is a human-readable name for debugging and replace-on-conflict.
	Name string

	// Source identifies where this handler came from (plugin name, etc).
	Source string
}

// RegisterOption configures a registration.
type RegisterOption func(*Registration)

// WithPriority sets the handler priority.
func WithPriority(p Priority) RegisterOption {
	return func(r *Registration) { r.Priority = p }
}

// WithMode sets the dispatch mode. Registrations default to HookBlocking.
func WithMode(mode models.HookMode) RegisterOption {
	return func(r *Registration) { r.Mode = mode }
}

// WithSource sets the handler source (plugin name, etc).
func WithSource(source string) RegisterOption {
	return func(r *Registration) { r.Source = source }
}

// NewContext builds a HookContext for hookType, ready for field population
// via the With* builders below.
func NewContext(hookType models.HookType, sessionID string) *models.HookContext {
	return &models.HookContext{Type: hookType, SessionID: sessionID}
}

// WithTool attaches a tool invocation's identity and arguments to hc.
func WithTool(hc *models.HookContext, toolName, toolCallID string, args []byte) *models.HookContext {
	hc.ToolName = toolName
	hc.ToolCallID = toolCallID
	hc.Args = args
	return hc
}

// WithToolResult attaches a completed tool result to hc.
func WithToolResult(hc *models.HookContext, result *models.ToolResult) *models.HookContext {
	hc.Result = result
	return hc
}

// WithPrompt attaches a user prompt to hc, for UserPromptSubmit hooks.
func WithPrompt(hc *models.HookContext, prompt string) *models.HookContext {
	hc.Prompt = prompt
	return hc
}
