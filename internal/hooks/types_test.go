package hooks

import (
	"testing"

	"github.com/driftcode/agentcore/pkg/models"
	"github.com/stretchr/testify/require"
)

func TestPriority_Ordering(t *testing.T) {
	require.Greater(t, int(PriorityHighest), int(PriorityHigh))
	require.Greater(t, int(PriorityHigh), int(PriorityNormal))
	require.Greater(t, int(PriorityNormal), int(PriorityLow))
	require.Greater(t, int(PriorityLow), int(PriorityLowest))
}

func TestNewContext(t *testing.T) {
	hc := NewContext(models.HookPreToolUse, "session-123")
	require.Equal(t, models.HookPreToolUse, hc.Type)
	require.Equal(t, "session-123", hc.SessionID)
}

func TestWithTool(t *testing.T) {
	hc := NewContext(models.HookPreToolUse, "session-123")
	WithTool(hc, "bash", "call-1", []byte(`{"command":"ls"}`))

	require.Equal(t, "bash", hc.ToolName)
	require.Equal(t, "call-1", hc.ToolCallID)
	require.JSONEq(t, `{"command":"ls"}`, string(hc.Args))
}

func TestWithToolResult(t *testing.T) {
	hc := NewContext(models.HookPostToolUse, "session-123")
	result := &models.ToolResult{ToolCallID: "call-1", Content: "ok"}
	WithToolResult(hc, result)

	require.Same(t, result, hc.Result)
}

func TestWithPrompt(t *testing.T) {
	hc := NewContext(models.HookUserPromptSubmit, "session-123")
	WithPrompt(hc, "what time is it?")

	require.Equal(t, "what time is it?", hc.Prompt)
}

func TestRegistration_Fields(t *testing.T) {
	reg := &Registration{
		ID:       "reg-123",
		Type:     models.HookPreToolUse,
		Priority: PriorityHigh,
		Mode:     models.HookBlocking,
		Name:     "guardrails",
		Source:   "builtin",
	}

	require.Equal(t, "reg-123", reg.ID)
	require.Equal(t, models.HookPreToolUse, reg.Type)
	require.Equal(t, PriorityHigh, reg.Priority)
	require.Equal(t, models.HookBlocking, reg.Mode)
	require.Equal(t, "guardrails", reg.Name)
	require.Equal(t, "builtin", reg.Source)
}
