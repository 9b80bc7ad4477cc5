package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/driftcode/agentcore/internal/hooks"
	"github.com/driftcode/agentcore/internal/observability"
	"github.com/driftcode/agentcore/internal/providers"
	"github.com/driftcode/agentcore/internal/session"
	"github.com/driftcode/agentcore/internal/tools"
	"github.com/driftcode/agentcore/pkg/models"
)

// Runner drives one session's turns. The runner itself is stateless and
// safe to share across sessions; per-session state lives in session.Active,
// which also provides the turn serialisation (the runner never overlaps
// turns within one session, per spec.md §4.I).
type Runner struct {
	hooks     *hooks.Registry
	executor  *tools.Executor
	compactor Compactor

	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// NewRunner builds a Runner. hookRegistry may be nil (pre_compact dispatch
// is skipped). compactor defaults to NewBudgetCompactor if nil.
func NewRunner(hookRegistry *hooks.Registry, executor *tools.Executor, compactor Compactor) *Runner {
	if compactor == nil {
		compactor = NewBudgetCompactor()
	}
	return &Runner{hooks: hookRegistry, executor: executor, compactor: compactor}
}

// WithObservability attaches Prometheus metrics and an otel tracer; either
// may be nil to skip that instrumentation.
func (r *Runner) WithObservability(metrics *observability.Metrics, tracer *observability.Tracer) *Runner {
	r.metrics = metrics
	r.tracer = tracer
	return r
}

// Request is one turn's input: the composed system prompt, the tool
// catalogue in provider-facing shape, and the provider to stream from.
type Request struct {
	TurnNumber int
	System     string
	WorkingDir string
	Provider   providers.Provider
	ToolDefs   []providers.ToolDefinition
	Options    providers.Options
}

// Result is one turn's outcome.
type Result struct {
	StopReason    StopReason
	Usage         models.TokenSource
	HasToolCalls  bool
	ToolCallCount int
}

// Run executes a single turn against active's live state, appending every
// lifecycle event through active.Persist. It returns once the turn has
// ended: normally, on interruption, or on an unrecoverable error.
func (r *Runner) Run(ctx context.Context, active *session.Active, req Request) (result Result, err error) {
	active.Lock()
	defer active.Unlock()

	start := time.Now()

	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.Start(ctx, "turn.run")
		r.tracer.SetAttributes(span, "turn.id", req.TurnNumber, "session.id", active.Session.ID)
		defer func() {
			r.tracer.SetAttributes(span, "stop_reason", string(result.StopReason))
			if err != nil {
				r.tracer.RecordError(span, err)
			}
			span.End()
		}()
	}

	// Phase 1: capacity check / compaction.
	if compactErr := r.maybeCompact(ctx, active); compactErr != nil {
		return Result{StopReason: StopFailed}, fmt.Errorf("compaction: %w", compactErr)
	}

	// Phase 2: emit turn.start.
	if _, appendErr := r.appendEvent(ctx, active, models.EventTurnStart, turnStartPayload{TurnNumber: req.TurnNumber}); appendErr != nil {
		return Result{StopReason: StopFailed}, fmt.Errorf("emit turn.start: %w", appendErr)
	}

	// Phase 3: compose context.
	streamCtx := providers.Context{
		SystemPrompt: req.System,
		Messages:     active.Messages.Get(),
		Tools:        req.ToolDefs,
		WorkingDir:   req.WorkingDir,
	}

	// Phase 4: open stream.
	events, streamErr := req.Provider.Stream(active.Context(), streamCtx, req.Options)
	if streamErr != nil {
		r.recordTurnFailed(ctx, active, streamErr)
		if r.metrics != nil {
			r.metrics.RecordLLMRequest(req.Provider.Name(), req.Provider.Model(), "error", time.Since(start).Seconds(), 0, 0)
		}
		return Result{StopReason: StopFailed}, fmt.Errorf("open stream: %w", streamErr)
	}

	// Phase 5: process stream.
	assistant, toolCalls, usage, providerStopReason, interrupted, procErr := r.processStream(active, events)
	if procErr != nil {
		r.recordTurnFailed(ctx, active, procErr)
		return Result{StopReason: StopFailed}, fmt.Errorf("process stream: %w", procErr)
	}
	if interrupted {
		active.Messages.Add(assistant)
		return Result{StopReason: StopInterrupted, Usage: usage}, nil
	}

	// Phase 6: emit response.complete.
	record := active.Tokens.RecordTurn(req.TurnNumber, usage, 0)
	if _, appendErr := r.appendEvent(ctx, active, models.EventResponseDone, responseCompletePayload{
		TokenRecord:   record,
		StopReason:    providerStopReason,
		HasToolCalls:  len(toolCalls) > 0,
		ToolCallCount: len(toolCalls),
	}); appendErr != nil {
		return Result{StopReason: StopFailed}, fmt.Errorf("emit response.complete: %w", appendErr)
	}

	// Phase 7: append assistant message.
	active.Messages.Add(assistant)
	if _, appendErr := r.appendEvent(ctx, active, models.EventMessageAssist, assistant); appendErr != nil {
		return Result{StopReason: StopFailed}, fmt.Errorf("persist assistant message: %w", appendErr)
	}

	if r.metrics != nil {
		r.metrics.RecordLLMRequest(req.Provider.Name(), req.Provider.Model(), "success", time.Since(start).Seconds(), usage.RawInput, usage.RawOutput)
	}

	// Phase 8: tool batch.
	toolStop := false
	if len(toolCalls) > 0 {
		if _, appendErr := r.appendEvent(ctx, active, models.EventToolUseBatch, toolUseBatchPayload{Calls: toolCalls}); appendErr != nil {
			return Result{StopReason: StopFailed}, fmt.Errorf("emit tool_use_batch: %w", appendErr)
		}
		toolStop, err = r.runToolBatch(ctx, active, toolCalls)
		if err != nil {
			return Result{StopReason: StopFailed}, fmt.Errorf("tool batch: %w", err)
		}
	}

	// Phase 9: emit turn.end.
	if _, appendErr := r.appendEvent(ctx, active, models.EventTurnEnd, turnEndPayload{
		TurnNumber:     req.TurnNumber,
		Duration:       time.Since(start),
		Usage:          usage,
		ContextMaxSize: active.Tokens.State().Window.MaxSize,
	}); appendErr != nil {
		return Result{StopReason: StopFailed}, fmt.Errorf("emit turn.end: %w", appendErr)
	}

	// Phase 10: decide stop reason.
	result = Result{Usage: usage, HasToolCalls: len(toolCalls) > 0, ToolCallCount: len(toolCalls)}
	switch {
	case toolStop:
		result.StopReason = StopToolStop
	case len(toolCalls) == 0 && providerStopReason == "end_turn":
		result.StopReason = StopEndTurn
	case len(toolCalls) == 0:
		result.StopReason = StopNoToolCalls
	default:
		result.StopReason = StopContinue
	}
	return result, nil
}

func (r *Runner) maybeCompact(ctx context.Context, active *session.Active) error {
	messages := active.Messages.Get()
	state := active.Tokens.State()
	if !r.compactor.ShouldCompact(messages, state) {
		return nil
	}

	if r.hooks != nil {
		hc := hooks.NewContext(models.HookPreCompact, active.Session.ID)
		result, dispatchErr := r.hooks.Dispatch(ctx, hc)
		if dispatchErr == nil && result != nil && result.Decision == models.HookAbort {
			return nil
		}
	}

	replacement, err := r.compactor.Compact(ctx, messages, state)
	if err != nil {
		return err
	}
	active.Messages.Set(replacement)

	_, err = r.appendEvent(ctx, active, models.EventCompaction, compactionPayload{
		MessagesBefore: len(messages),
		MessagesAfter:  len(replacement),
	})
	return err
}

func (r *Runner) appendEvent(ctx context.Context, active *session.Active, eventType models.EventType, payload any) (*models.Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return active.Persist.Append(ctx, eventType, data, "")
}

func (r *Runner) recordTurnFailed(ctx context.Context, active *session.Active, cause error) {
	kind := providers.ClassifyError(cause)
	_, _ = r.appendEvent(ctx, active, models.EventTurnFailed, turnFailedPayload{
		Category:    string(kind),
		Recoverable: kind.Recoverable(),
		Message:     cause.Error(),
	})
}

type toolCallBuilder struct {
	id   string
	name string
	args strings.Builder
}

// processStream forwards a provider's event stream into an accumulated
// assistant message, polling active's cancellation token at each event
// (spec §4.I phase 5). On cancellation it returns the partial content
// assembled so far with interrupted=true.
func (r *Runner) processStream(active *session.Active, events <-chan providers.StreamEvent) (assistant *models.Message, toolCalls []models.ToolCall, usage models.TokenSource, stopReason string, interrupted bool, err error) {
	assistant = &models.Message{Role: models.RoleAssistant}
	var text strings.Builder
	var thinking strings.Builder
	builders := make(map[string]*toolCallBuilder)
	var order []string

	finalize := func() {
		assistant.Content = text.String()
		if thinking.Len() > 0 {
			assistant.Blocks = append(assistant.Blocks, models.ContentBlock{Type: models.ContentThinking, Text: thinking.String()})
		}
		toolCalls = finalizeToolCalls(builders, order)
		assistant.ToolCalls = toolCalls
	}

	for {
		select {
		case <-active.Context().Done():
			finalize()
			return assistant, toolCalls, usage, stopReason, true, nil
		case ev, ok := <-events:
			if !ok {
				finalize()
				return assistant, toolCalls, usage, stopReason, false, nil
			}
			switch ev.Type {
			case providers.StreamTextDelta:
				text.WriteString(ev.Text)
			case providers.StreamThinkingDelta:
				thinking.WriteString(ev.Text)
			case providers.StreamToolUseStart:
				builders[ev.ToolCallID] = &toolCallBuilder{id: ev.ToolCallID, name: ev.ToolName}
				order = append(order, ev.ToolCallID)
			case providers.StreamToolUseDelta:
				if b, ok := builders[ev.ToolCallID]; ok {
					b.args.WriteString(ev.ToolArgumentDelta)
				}
			case providers.StreamToolUseStop:
				// Arguments are complete; finalizeToolCalls reads the
				// accumulated builder once the stream ends.
			case providers.StreamUsage:
				usage = ev.Usage
			case providers.StreamDone:
				stopReason = ev.StopReason
				assistant.Usage = &usage
				finalize()
				return assistant, toolCalls, usage, stopReason, false, nil
			case providers.StreamError:
				return nil, nil, usage, "", false, ev.Err
			}
		}
	}
}

func finalizeToolCalls(builders map[string]*toolCallBuilder, order []string) []models.ToolCall {
	if len(order) == 0 {
		return nil
	}
	calls := make([]models.ToolCall, 0, len(order))
	for _, id := range order {
		b, ok := builders[id]
		if !ok {
			continue
		}
		raw := b.args.String()
		if raw == "" {
			raw = "{}"
		}
		calls = append(calls, models.ToolCall{ID: b.id, Name: b.name, Input: json.RawMessage(raw)})
	}
	return calls
}

// runToolBatch executes calls sequentially (spec §4.E), appending each
// result as its own tool_result message and event. It stops after the
// first result with StopTurn set, including a synthetic interrupted result
// if the session's cancellation token trips before a call executes.
func (r *Runner) runToolBatch(ctx context.Context, active *session.Active, calls []models.ToolCall) (bool, error) {
	for _, call := range calls {
		var result models.ToolResult

		select {
		case <-active.Context().Done():
			result = models.ToolResult{ToolCallID: call.ID, Content: "interrupted before execution", IsError: true, StopTurn: true}
		default:
			var execErr error
			result, execErr = r.executor.Execute(active.Context(), active.Session.ID, call)
			if execErr != nil {
				return false, fmt.Errorf("execute tool %s: %w", call.Name, execErr)
			}
		}

		msg := &models.Message{Role: models.RoleTool, ToolResults: []models.ToolResult{result}}
		active.Messages.Add(msg)
		if _, appendErr := r.appendEvent(ctx, active, models.EventToolResult, msg); appendErr != nil {
			return result.StopTurn, fmt.Errorf("persist tool result: %w", appendErr)
		}

		if result.StopTurn {
			return true, nil
		}
	}
	return false, nil
}
