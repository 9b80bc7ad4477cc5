package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/driftcode/agentcore/internal/tools"
	"github.com/driftcode/agentcore/pkg/models"
)

// ExecTool runs a shell command to completion and returns its output.
type ExecTool struct {
	manager *Manager
}

// NewExecTool builds the exec tool over m.
func NewExecTool(m *Manager) *ExecTool {
	return &ExecTool{manager: m}
}

func (t *ExecTool) Name() string             { return "exec" }
func (t *ExecTool) Category() tools.Category { return tools.CategoryExec }
func (t *ExecTool) Description() string {
	return "Run a shell command in the workspace and return its stdout, stderr, and exit code."
}

func (t *ExecTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "Shell command to run via /bin/sh -c"},
			"cwd": {"type": "string", "description": "Working directory, relative to the workspace root"},
			"env": {"type": "object", "additionalProperties": {"type": "string"}},
			"input": {"type": "string", "description": "Text piped to the command's stdin"},
			"timeout_seconds": {"type": "integer", "description": "Kill the command after this many seconds"}
		},
		"required": ["command"]
	}`)
}

type execArgs struct {
	Command        string            `json:"command"`
	Cwd            string            `json:"cwd"`
	Env            map[string]string `json:"env"`
	Input          string            `json:"input"`
	TimeoutSeconds int               `json:"timeout_seconds"`
}

func (t *ExecTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var a execArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return &models.ToolResult{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}
	if a.Command == "" {
		return &models.ToolResult{Content: "command is required", IsError: true}, nil
	}

	var timeout time.Duration
	if a.TimeoutSeconds > 0 {
		timeout = time.Duration(a.TimeoutSeconds) * time.Second
	}

	result, err := t.manager.RunCommand(ctx, a.Command, a.Cwd, a.Env, a.Input, timeout)
	if err != nil {
		return &models.ToolResult{Content: err.Error(), IsError: true}, nil
	}

	content, err := json.Marshal(result)
	if err != nil {
		return &models.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &models.ToolResult{Content: string(content), IsError: result.ExitCode != 0}, nil
}

// ProcessTool manages long-lived background processes started outside the
// synchronous exec tool: list, inspect, write to stdin, and terminate.
type ProcessTool struct {
	manager *Manager
}

// NewProcessTool builds the process tool over m.
func NewProcessTool(m *Manager) *ProcessTool {
	return &ProcessTool{manager: m}
}

func (t *ProcessTool) Name() string             { return "process" }
func (t *ProcessTool) Category() tools.Category { return tools.CategoryExec }
func (t *ProcessTool) Description() string {
	return "Start, inspect, and control long-running background processes."
}

func (t *ProcessTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["start", "list", "status", "log", "write", "kill", "remove"]},
			"id": {"type": "string", "description": "Process id, required for all actions except start/list"},
			"command": {"type": "string", "description": "Shell command to run, required for start"},
			"cwd": {"type": "string"},
			"env": {"type": "object", "additionalProperties": {"type": "string"}},
			"input": {"type": "string", "description": "Text written to the process's stdin, for write"},
			"timeout_seconds": {"type": "integer"}
		},
		"required": ["action"]
	}`)
}

type processArgs struct {
	Action         string            `json:"action"`
	ID             string            `json:"id"`
	Command        string            `json:"command"`
	Cwd            string            `json:"cwd"`
	Env            map[string]string `json:"env"`
	Input          string            `json:"input"`
	TimeoutSeconds int               `json:"timeout_seconds"`
}

func (t *ProcessTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var a processArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return &models.ToolResult{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}

	switch a.Action {
	case "start":
		return t.start(ctx, a)
	case "list":
		return t.list()
	case "status":
		return t.withProcess(a.ID, func(p *process) (*models.ToolResult, error) {
			return jsonResult(p.info())
		})
	case "log":
		return t.withProcess(a.ID, func(p *process) (*models.ToolResult, error) {
			return jsonResult(struct {
				Stdout string `json:"stdout"`
				Stderr string `json:"stderr"`
			}{p.stdout.String(), p.stderr.String()})
		})
	case "write":
		return t.withProcess(a.ID, func(p *process) (*models.ToolResult, error) {
			if _, err := p.stdin.Write([]byte(a.Input)); err != nil {
				return &models.ToolResult{Content: err.Error(), IsError: true}, nil
			}
			return &models.ToolResult{Content: "ok"}, nil
		})
	case "kill":
		return t.withProcess(a.ID, func(p *process) (*models.ToolResult, error) {
			if p.cmd.Process == nil {
				return &models.ToolResult{Content: "process has no pid", IsError: true}, nil
			}
			if err := p.cmd.Process.Kill(); err != nil {
				return &models.ToolResult{Content: err.Error(), IsError: true}, nil
			}
			return &models.ToolResult{Content: "killed"}, nil
		})
	case "remove":
		if !t.manager.remove(a.ID) {
			return &models.ToolResult{Content: fmt.Sprintf("no such process: %s", a.ID), IsError: true}, nil
		}
		return &models.ToolResult{Content: "removed"}, nil
	default:
		return &models.ToolResult{Content: fmt.Sprintf("unknown action: %s", a.Action), IsError: true}, nil
	}
}

func (t *ProcessTool) start(ctx context.Context, a processArgs) (*models.ToolResult, error) {
	if a.Command == "" {
		return &models.ToolResult{Content: "command is required", IsError: true}, nil
	}
	var timeout time.Duration
	if a.TimeoutSeconds > 0 {
		timeout = time.Duration(a.TimeoutSeconds) * time.Second
	}
	proc, err := t.manager.startBackground(ctx, a.Command, a.Cwd, a.Env, a.Input, timeout)
	if err != nil {
		return &models.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return jsonResult(proc.info())
}

func (t *ProcessTool) list() (*models.ToolResult, error) {
	return jsonResult(t.manager.list())
}

func (t *ProcessTool) withProcess(id string, fn func(*process) (*models.ToolResult, error)) (*models.ToolResult, error) {
	proc, ok := t.manager.get(id)
	if !ok {
		return &models.ToolResult{Content: fmt.Sprintf("no such process: %s", id), IsError: true}, nil
	}
	return fn(proc)
}

func jsonResult(v any) (*models.ToolResult, error) {
	content, err := json.Marshal(v)
	if err != nil {
		return &models.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &models.ToolResult{Content: string(content)}, nil
}
