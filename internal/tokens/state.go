package tokens

import (
	"time"

	"github.com/driftcode/agentcore/pkg/models"
)

// DefaultContextLimit is the fallback context-window size used until a
// model-specific limit is configured.
const DefaultContextLimit = 200_000

// StateManager is the session-level token-bookkeeping component: it
// normalises each turn's TokenSource, accumulates running totals, and
// tracks context-window utilisation across the session's lifetime.
type StateManager struct {
	state models.TokenState
}

// NewStateManager returns a manager with an empty history and the given
// context limit.
func NewStateManager(contextLimit int) *StateManager {
	if contextLimit <= 0 {
		contextLimit = DefaultContextLimit
	}
	return &StateManager{
		state: models.TokenState{
			Window: models.ContextWindow{MaxSize: contextLimit},
		},
	}
}

// RecordTurn normalises source against the current context-window baseline,
// folds it into the accumulated totals and history, and returns the
// resulting immutable record.
func (m *StateManager) RecordTurn(turn int, source models.TokenSource, costUSD float64) models.TokenRecord {
	previousBaseline := m.state.Window.CurrentSize
	computed := Normalize(source, previousBaseline)

	record := models.TokenRecord{
		TurnNumber: turn,
		Timestamp:  time.Now().UTC(),
		Source:     source,
		Computed:   computed,
	}

	acc := &m.state.Accumulated
	acc.TotalInput += source.RawInput
	acc.TotalOutput += source.RawOutput
	acc.TotalCacheRead += source.RawCacheRead
	acc.TotalCacheCreation += source.RawCacheCreation
	acc.EstimatedCostUSD += costUSD

	m.state.Provider = source.Provider
	m.state.Window.CurrentSize = computed.ContextWindowTokens
	m.state.PreviousContextBaseline = previousBaseline
	m.state.History = append(m.state.History, record)

	return record
}

// State returns a read-only snapshot of the current token state.
func (m *StateManager) State() models.TokenState {
	return m.state
}

// OnProviderChange resets the context-window current size to 0 (the new
// provider starts with an empty window) while preserving accumulated
// totals and history.
func (m *StateManager) OnProviderChange(newProvider string) {
	m.state.Provider = newProvider
	m.state.Window.CurrentSize = 0
}

// SetContextLimit updates the context window's max size, e.g. after a model
// switch.
func (m *StateManager) SetContextLimit(limit int) {
	m.state.Window.MaxSize = limit
}

// RestoreState rehydrates history and accumulated totals (e.g. after
// session resumption), deriving the current context-window size from the
// last record in history.
func (m *StateManager) RestoreState(history []models.TokenRecord, accumulated *models.AccumulatedTokens) {
	m.state.History = history
	if len(history) > 0 {
		last := history[len(history)-1]
		m.state.Window.CurrentSize = last.Computed.ContextWindowTokens
	}
	if accumulated != nil {
		m.state.Accumulated = *accumulated
	}
}
