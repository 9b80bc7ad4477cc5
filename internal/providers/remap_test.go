package providers

import (
	"encoding/json"
	"testing"

	"github.com/driftcode/agentcore/pkg/models"
	"github.com/stretchr/testify/require"
)

func TestBuildToolCallIDMapping_RewritesCrossProviderID(t *testing.T) {
	messages := []*models.Message{
		{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "toolu_01ABC", Name: "Read", Input: json.RawMessage(`{"path":"a.txt"}`)},
			},
		},
		{
			Role: models.RoleTool,
			ToolResults: []models.ToolResult{
				{ToolCallID: "toolu_01ABC", Content: "file contents"},
			},
		},
	}

	mapping := BuildToolCallIDMapping(messages, IDFormatOpenAI)
	require.Contains(t, mapping, "toolu_01ABC")
	require.Regexp(t, `^call_[0-9a-f]{24}$`, mapping["toolu_01ABC"])

	rewritten := RewriteToolCallIDs(messages, mapping)
	require.Equal(t, mapping["toolu_01ABC"], rewritten[0].ToolCalls[0].ID)
	require.Equal(t, mapping["toolu_01ABC"], rewritten[1].ToolResults[0].ToolCallID)

	// source untouched
	require.Equal(t, "toolu_01ABC", messages[0].ToolCalls[0].ID)
	require.Equal(t, "toolu_01ABC", messages[1].ToolResults[0].ToolCallID)
}

func TestRemapToolCallID_UnknownIDsPassThrough(t *testing.T) {
	mapping := map[string]string{"toolu_known": "call_known"}
	require.Equal(t, "call_known", RemapToolCallID("toolu_known", mapping))
	require.Equal(t, "toolu_unmapped", RemapToolCallID("toolu_unmapped", mapping))
}

func TestBuildToolCallIDMapping_SameFormatMapsToItself(t *testing.T) {
	messages := []*models.Message{
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "call_xyz", Name: "Read"}}},
	}
	mapping := BuildToolCallIDMapping(messages, IDFormatOpenAI)
	require.Equal(t, "call_xyz", mapping["call_xyz"])
}

func TestBuildToolCallIDMapping_IsDeterministic(t *testing.T) {
	messages := []*models.Message{
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "toolu_same", Name: "Read"}}},
	}
	m1 := BuildToolCallIDMapping(messages, IDFormatOpenAI)
	m2 := BuildToolCallIDMapping(messages, IDFormatOpenAI)
	require.Equal(t, m1["toolu_same"], m2["toolu_same"])
}
