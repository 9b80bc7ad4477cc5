// Package tools implements the tool registry and executor (spec §4.E): a
// capability catalogue keyed by name, and a pipeline that wraps every call
// with pre/post hooks and guardrail evaluation.
package tools

import (
	"context"
	"encoding/json"

	"github.com/driftcode/agentcore/pkg/models"
)

// Category groups tools for catalogue presentation and policy matching.
type Category string

const (
	CategoryFilesystem Category = "filesystem"
	CategoryExec       Category = "exec"
	CategoryNetwork    Category = "network"
	CategoryMemory     Category = "memory"
	CategorySearch     Category = "search"
	CategorySystem     Category = "system"
)

// Tool is one capability the agent can invoke. Implementations must be safe
// for concurrent use: the executor may run several calls at once.
type Tool interface {
	// Name identifies the tool for LLM function calling; must be a valid
	// function name (alphanumeric plus underscores).
	Name() string

	// Description explains what the tool does, helping the model decide
	// when to call it.
	Description() string

	// Category groups this tool for catalogue and policy purposes.
	Category() Category

	// Schema is the JSON Schema describing the tool's argument object.
	Schema() json.RawMessage

	// Execute runs the tool against args, honoring ctx's cancellation at
	// its own natural suspension points. Errors are returned as an
	// is_error result, not a propagated exception, except for structural
	// failures (e.g. malformed arguments) which also yield an error
	// result rather than a Go error.
	Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error)
}

// Definition is a tool's catalogue entry: name, description, JSON-schema
// arguments, and category, without the executable behavior.
type Definition struct {
	Name        string
	Description string
	Category    Category
	Schema      json.RawMessage
}
