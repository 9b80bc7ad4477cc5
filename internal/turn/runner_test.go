package turn

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftcode/agentcore/internal/providers"
	"github.com/driftcode/agentcore/internal/session"
	"github.com/driftcode/agentcore/internal/store"
	"github.com/driftcode/agentcore/internal/tools"
	"github.com/driftcode/agentcore/pkg/models"
)

type fakeProvider struct {
	name   string
	model  string
	events []providers.StreamEvent
	err    error
	block  bool // never sends or closes, so a waiting select can only take ctx.Done()
}

func (f *fakeProvider) Name() string                 { return f.name }
func (f *fakeProvider) Model() string                { return f.model }
func (f *fakeProvider) IDFormat() providers.IDFormat { return providers.IDFormatAnthropic }
func (f *fakeProvider) Stream(ctx context.Context, c providers.Context, opts providers.Options) (<-chan providers.StreamEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan providers.StreamEvent, len(f.events))
	if f.block {
		return ch, nil
	}
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

type echoTool struct{}

func (echoTool) Name() string                 { return "echo" }
func (echoTool) Description() string          { return "echoes input" }
func (echoTool) Category() tools.Category     { return tools.CategorySystem }
func (echoTool) Schema() json.RawMessage      { return json.RawMessage(`{}`) }
func (echoTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	return &models.ToolResult{Content: "ok"}, nil
}

type stoppingTool struct{}

func (stoppingTool) Name() string             { return "stop_me" }
func (stoppingTool) Description() string      { return "stops the turn" }
func (stoppingTool) Category() tools.Category { return tools.CategorySystem }
func (stoppingTool) Schema() json.RawMessage  { return json.RawMessage(`{}`) }
func (stoppingTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	return &models.ToolResult{Content: "done", StopTurn: true}, nil
}

func newTestActive(t *testing.T) *session.Active {
	t.Helper()
	o := session.NewOrchestrator(store.NewMemoryStore(), 0)
	active, err := o.CreateSession(context.Background(), "test-model", "/workspace", "t")
	require.NoError(t, err)
	return active
}

func newTestRunner(t *testing.T, registry *tools.Registry) *Runner {
	t.Helper()
	executor := tools.NewExecutor(registry, nil, nil)
	return NewRunner(nil, executor, nil)
}

func TestRunner_NoToolCallsEndsTurn(t *testing.T) {
	active := newTestActive(t)
	runner := newTestRunner(t, tools.NewRegistry())

	provider := &fakeProvider{name: "fake", model: "m", events: []providers.StreamEvent{
		{Type: providers.StreamTextDelta, Text: "hello"},
		{Type: providers.StreamDone, StopReason: "end_turn"},
	}}

	result, err := runner.Run(context.Background(), active, Request{TurnNumber: 1, Provider: provider})
	require.NoError(t, err)
	require.Equal(t, StopEndTurn, result.StopReason)
	require.False(t, result.HasToolCalls)
	require.Equal(t, 1, active.Messages.Len())
}

func TestRunner_ToolCallsContinue(t *testing.T) {
	active := newTestActive(t)
	registry := tools.NewRegistry()
	registry.Register(echoTool{})
	runner := newTestRunner(t, registry)

	provider := &fakeProvider{name: "fake", model: "m", events: []providers.StreamEvent{
		{Type: providers.StreamToolUseStart, ToolCallID: "call-1", ToolName: "echo"},
		{Type: providers.StreamToolUseDelta, ToolCallID: "call-1", ToolArgumentDelta: `{}`},
		{Type: providers.StreamToolUseStop, ToolCallID: "call-1"},
		{Type: providers.StreamDone, StopReason: "tool_use"},
	}}

	result, err := runner.Run(context.Background(), active, Request{TurnNumber: 1, Provider: provider})
	require.NoError(t, err)
	require.Equal(t, StopContinue, result.StopReason)
	require.True(t, result.HasToolCalls)
	require.Equal(t, 1, result.ToolCallCount)

	msgs := active.Messages.Get()
	require.Len(t, msgs, 2)
	require.Equal(t, models.RoleTool, msgs[1].Role)
	require.Equal(t, "ok", msgs[1].ToolResults[0].Content)
}

func TestRunner_ToolResultStopsTurn(t *testing.T) {
	active := newTestActive(t)
	registry := tools.NewRegistry()
	registry.Register(stoppingTool{})
	runner := newTestRunner(t, registry)

	provider := &fakeProvider{name: "fake", model: "m", events: []providers.StreamEvent{
		{Type: providers.StreamToolUseStart, ToolCallID: "call-1", ToolName: "stop_me"},
		{Type: providers.StreamToolUseStop, ToolCallID: "call-1"},
		{Type: providers.StreamDone, StopReason: "tool_use"},
	}}

	result, err := runner.Run(context.Background(), active, Request{TurnNumber: 1, Provider: provider})
	require.NoError(t, err)
	require.Equal(t, StopToolStop, result.StopReason)
}

func TestRunner_StreamErrorFails(t *testing.T) {
	active := newTestActive(t)
	runner := newTestRunner(t, tools.NewRegistry())

	provider := &fakeProvider{name: "fake", model: "m", err: providers.NewProviderError("fake", "m", errors.New("503 service unavailable"))}

	result, err := runner.Run(context.Background(), active, Request{TurnNumber: 1, Provider: provider})
	require.Error(t, err)
	require.Equal(t, StopFailed, result.StopReason)
}

func TestRunner_CancellationInterruptsTurn(t *testing.T) {
	active := newTestActive(t)
	runner := newTestRunner(t, tools.NewRegistry())

	active.Cancel()

	provider := &fakeProvider{name: "fake", model: "m", block: true}

	result, err := runner.Run(context.Background(), active, Request{TurnNumber: 1, Provider: provider})
	require.NoError(t, err)
	require.Equal(t, StopInterrupted, result.StopReason)
}
