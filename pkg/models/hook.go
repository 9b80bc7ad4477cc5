package models

import "time"

// HookType enumerates the lifecycle points a Hook can register against.
type HookType string

const (
	HookPreToolUse       HookType = "pre_tool_use"
	HookPostToolUse      HookType = "post_tool_use"
	HookSessionStart     HookType = "session_start"
	HookSessionEnd       HookType = "session_end"
	HookUserPromptSubmit HookType = "user_prompt_submit"
	HookStop             HookType = "stop"
	HookSubagentStop     HookType = "subagent_stop"
	HookPreCompact       HookType = "pre_compact"
	HookNotification     HookType = "notification"
)

// HookMode controls whether a hook blocks the pipeline or runs alongside
// other hooks of its type.
type HookMode string

const (
	HookBlocking HookMode = "blocking"
	HookParallel HookMode = "parallel"
)

// HookDecision is the outcome a hook handler returns.
type HookDecision string

const (
	HookContinue  HookDecision = "continue"
	HookSubstitute HookDecision = "substitute"
	HookAbort     HookDecision = "abort"
)

// HookContext is the payload passed to a hook handler; its populated fields
// depend on HookType.
type HookContext struct {
	Type       HookType    `json:"type"`
	SessionID  string      `json:"sessionId"`
	ToolName   string      `json:"toolName,omitempty"`
	ToolCallID string      `json:"toolCallId,omitempty"`
	Args       []byte      `json:"args,omitempty"`
	Result     *ToolResult `json:"result,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Prompt     string      `json:"prompt,omitempty"`
}

// HookResult is what a hook handler returns to the dispatcher.
type HookResult struct {
	Decision  HookDecision
	Substitute *ToolResult
	Reason    string
}
