// Package turn implements the turn runner (spec §4.I): the finite state
// machine that drives one end-to-end exchange with a provider — capacity
// check, stream consumption, tool batch execution, and lifecycle event
// emission — sequentially within a session.
package turn

import (
	"context"

	agentctx "github.com/driftcode/agentcore/internal/context"
	"github.com/driftcode/agentcore/pkg/models"
)

// StopReason is why a turn loop stops continuing to the next turn (spec
// §4.I phase 10).
type StopReason string

const (
	// StopToolStop means a tool result demanded the runner stop looping.
	StopToolStop StopReason = "tool_stop"
	// StopEndTurn means no tool calls were made and the stream ended with
	// end_turn.
	StopEndTurn StopReason = "end_turn"
	// StopNoToolCalls means no tool calls were made but the stream did not
	// end with end_turn.
	StopNoToolCalls StopReason = "no_tool_calls"
	// StopContinue means the turn produced tool calls that did not demand a
	// stop; the runner should loop into another turn.
	StopContinue StopReason = "continue"
	// StopInterrupted means the session's cancellation token tripped
	// mid-stream.
	StopInterrupted StopReason = "interrupted"
	// StopFailed means the turn ended in an unrecoverable error.
	StopFailed StopReason = "failed"
)

// Compactor decides when a session's message history needs compacting and
// performs the replacement (spec §4.I phase 1).
type Compactor interface {
	ShouldCompact(messages []*models.Message, state models.TokenState) bool
	Compact(ctx context.Context, messages []*models.Message, state models.TokenState) ([]*models.Message, error)
}

// BudgetCompactor is the default Compactor: a character-budget-aware
// soft-trim/hard-clear pass over old tool results, triggered once the
// context window crosses TriggerPercent utilisation. Grounded on
// internal/context/pruning.go's PruneByBudget (itself adapted from the
// teacher's internal/agent/context/pruning.go).
type BudgetCompactor struct {
	Settings       agentctx.BudgetPruningSettings
	TriggerPercent float64
}

// NewBudgetCompactor returns a BudgetCompactor using the package's default
// pruning settings, triggering at 80% context-window utilisation.
func NewBudgetCompactor() *BudgetCompactor {
	return &BudgetCompactor{
		Settings:       agentctx.DefaultBudgetPruningSettings(),
		TriggerPercent: 80,
	}
}

func (c *BudgetCompactor) ShouldCompact(messages []*models.Message, state models.TokenState) bool {
	return state.Window.PercentUsed() >= c.TriggerPercent
}

func (c *BudgetCompactor) Compact(ctx context.Context, messages []*models.Message, state models.TokenState) ([]*models.Message, error) {
	charWindow := state.Window.MaxSize * 4
	return agentctx.PruneByBudget(messages, c.Settings, charWindow), nil
}
