package exec

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecTool_RunsCommand(t *testing.T) {
	mgr := NewManager(t.TempDir())
	tool := NewExecTool(mgr)

	args, err := json.Marshal(map[string]any{"command": "echo hello"})
	require.NoError(t, err)

	result, err := tool.Execute(context.Background(), args)
	require.NoError(t, err)
	require.False(t, result.IsError, result.Content)
	require.True(t, strings.Contains(result.Content, "hello"))
}

func TestExecTool_NonZeroExitIsError(t *testing.T) {
	mgr := NewManager(t.TempDir())
	tool := NewExecTool(mgr)

	args, err := json.Marshal(map[string]any{"command": "exit 3"})
	require.NoError(t, err)

	result, err := tool.Execute(context.Background(), args)
	require.NoError(t, err)
	require.True(t, result.IsError)
}

func TestExecTool_CwdEscapeRejected(t *testing.T) {
	mgr := NewManager(t.TempDir())
	tool := NewExecTool(mgr)

	args, err := json.Marshal(map[string]any{"command": "pwd", "cwd": "../../etc"})
	require.NoError(t, err)

	result, err := tool.Execute(context.Background(), args)
	require.NoError(t, err)
	require.True(t, result.IsError)
}

func TestProcessTool_StartStatusRemoveLifecycle(t *testing.T) {
	mgr := NewManager(t.TempDir())
	procTool := NewProcessTool(mgr)

	startArgs, err := json.Marshal(map[string]any{
		"action":  "start",
		"command": "echo background",
	})
	require.NoError(t, err)

	started, err := procTool.Execute(context.Background(), startArgs)
	require.NoError(t, err)
	require.False(t, started.IsError, started.Content)

	var info ProcessInfo
	require.NoError(t, json.Unmarshal([]byte(started.Content), &info))
	require.NotEmpty(t, info.ID)

	require.Eventually(t, func() bool {
		statusArgs, _ := json.Marshal(map[string]any{"action": "status", "id": info.ID})
		result, err := procTool.Execute(context.Background(), statusArgs)
		require.NoError(t, err)
		var got ProcessInfo
		require.NoError(t, json.Unmarshal([]byte(result.Content), &got))
		return got.Status == "exited"
	}, time.Second, 10*time.Millisecond)

	logArgs, err := json.Marshal(map[string]any{"action": "log", "id": info.ID})
	require.NoError(t, err)
	logResult, err := procTool.Execute(context.Background(), logArgs)
	require.NoError(t, err)
	require.True(t, strings.Contains(logResult.Content, "background"))

	removeArgs, err := json.Marshal(map[string]any{"action": "remove", "id": info.ID})
	require.NoError(t, err)
	removeResult, err := procTool.Execute(context.Background(), removeArgs)
	require.NoError(t, err)
	require.False(t, removeResult.IsError, removeResult.Content)

	statusAfterRemove, err := json.Marshal(map[string]any{"action": "status", "id": info.ID})
	require.NoError(t, err)
	afterRemove, err := procTool.Execute(context.Background(), statusAfterRemove)
	require.NoError(t, err)
	require.True(t, afterRemove.IsError)
}

func TestProcessTool_UnknownActionIsError(t *testing.T) {
	mgr := NewManager(t.TempDir())
	procTool := NewProcessTool(mgr)

	args, err := json.Marshal(map[string]any{"action": "dance"})
	require.NoError(t, err)

	result, err := procTool.Execute(context.Background(), args)
	require.NoError(t, err)
	require.True(t, result.IsError)
}
