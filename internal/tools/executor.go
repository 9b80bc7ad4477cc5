package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/driftcode/agentcore/internal/guardrails"
	"github.com/driftcode/agentcore/internal/hooks"
	"github.com/driftcode/agentcore/pkg/models"
)

// DefaultPerCallTimeout bounds how long a single tool invocation may run,
// grounded on the teacher's ToolExecConfig.PerToolTimeout default.
const DefaultPerCallTimeout = 30 * time.Second

// Executor runs one tool call through the full pipeline: pre-tool hooks,
// guardrail evaluation, invocation, post-tool hooks.
type Executor struct {
	registry   *Registry
	hooks      *hooks.Registry
	guardrails *guardrails.Evaluator
	timeout    time.Duration
}

// NewExecutor builds an Executor. hookRegistry and evaluator may be nil, in
// which case their respective pipeline steps are no-ops.
func NewExecutor(registry *Registry, hookRegistry *hooks.Registry, evaluator *guardrails.Evaluator) *Executor {
	return &Executor{
		registry:   registry,
		hooks:      hookRegistry,
		guardrails: evaluator,
		timeout:    DefaultPerCallTimeout,
	}
}

// WithTimeout overrides the per-call timeout.
func (e *Executor) WithTimeout(d time.Duration) *Executor {
	e.timeout = d
	return e
}

// Execute runs one tool call end to end, honoring the 5-step pipeline
// (spec §4.E): pre-tool hooks, guardrails, invocation, post-tool hooks,
// final result. The returned error is only non-nil for a nil HookContext or
// dispatch failure that prevented any result from being produced; tool
// failures and guardrail triggers are represented as IsError results.
func (e *Executor) Execute(ctx context.Context, sessionID string, call models.ToolCall) (models.ToolResult, error) {
	start := time.Now()

	pre := hooks.NewContext(models.HookPreToolUse, sessionID)
	hooks.WithTool(pre, call.Name, call.ID, call.Input)

	if result := e.dispatchPre(ctx, pre); result != nil {
		return e.finish(ctx, sessionID, call, *result, start)
	}

	if trigger := e.evaluateGuardrails(call.Input); trigger != nil {
		result := models.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("blocked by guardrail %s: %s", trigger.RuleID, trigger.Detail),
			IsError:    true,
		}
		return e.finish(ctx, sessionID, call, result, start)
	}

	result := e.invoke(ctx, call)
	return e.finish(ctx, sessionID, call, result, start)
}

// dispatchPre runs pre-tool hooks and returns a non-nil result only when a
// hook short-circuits the pipeline (HookAbort or HookSubstitute).
func (e *Executor) dispatchPre(ctx context.Context, hc *models.HookContext) *models.ToolResult {
	if e.hooks == nil {
		return nil
	}

	hookResult, err := e.hooks.Dispatch(ctx, hc)
	if err != nil || hookResult == nil {
		return nil
	}

	switch hookResult.Decision {
	case models.HookAbort:
		return &models.ToolResult{
			ToolCallID: hc.ToolCallID,
			Content:    hookResult.Reason,
			IsError:    true,
			StopTurn:   true,
		}
	case models.HookSubstitute:
		if hookResult.Substitute != nil {
			return hookResult.Substitute
		}
		return nil
	default:
		return nil
	}
}

func (e *Executor) evaluateGuardrails(args []byte) *models.RuleTrigger {
	if e.guardrails == nil {
		return nil
	}
	trigger, err := e.guardrails.Evaluate(args)
	if err != nil || trigger == nil {
		return nil
	}
	if trigger.Severity != models.SeverityBlock {
		return nil
	}
	return trigger
}

func (e *Executor) invoke(ctx context.Context, call models.ToolCall) models.ToolResult {
	tool, ok := e.registry.Get(call.Name)
	if !ok {
		return models.ToolResult{
			ToolCallID: call.ID,
			Content:    "tool not found: " + call.Name,
			IsError:    true,
		}
	}

	timeout := e.timeout
	if timeout <= 0 {
		timeout = DefaultPerCallTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := tool.Execute(callCtx, call.Input)
	if err != nil {
		return models.ToolResult{ToolCallID: call.ID, Content: err.Error(), IsError: true}
	}
	if result == nil {
		return models.ToolResult{ToolCallID: call.ID, Content: "tool returned no result", IsError: true}
	}
	out := *result
	out.ToolCallID = call.ID
	return out
}

func (e *Executor) finish(ctx context.Context, sessionID string, call models.ToolCall, result models.ToolResult, start time.Time) (models.ToolResult, error) {
	if e.hooks != nil {
		post := hooks.NewContext(models.HookPostToolUse, sessionID)
		hooks.WithTool(post, call.Name, call.ID, call.Input)
		post.Duration = time.Since(start)
		hooks.WithToolResult(post, &result)

		if postResult, err := e.hooks.Dispatch(ctx, post); err == nil && postResult != nil {
			if postResult.Decision == models.HookSubstitute && postResult.Substitute != nil {
				result = *postResult.Substitute
			}
		}
	}
	return result, nil
}
