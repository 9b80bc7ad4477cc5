package tokens

import (
	"testing"

	"github.com/driftcode/agentcore/pkg/models"
	"github.com/stretchr/testify/require"
)

func anthropicSource(input, output, cacheRead int) models.TokenSource {
	return models.TokenSource{Provider: "anthropic", RawInput: input, RawOutput: output, RawCacheRead: cacheRead}
}

func TestStateManager_InitialStateIsEmpty(t *testing.T) {
	m := NewStateManager(200_000)
	s := m.State()
	require.Empty(t, s.History)
	require.Equal(t, 200_000, s.Window.MaxSize)
	require.Equal(t, 0, s.Window.CurrentSize)
}

func TestStateManager_RecordFirstTurnAnthropicCacheAware(t *testing.T) {
	m := NewStateManager(200_000)
	record := m.RecordTurn(1, anthropicSource(604, 100, 8266), 0.05)

	require.Equal(t, 604+8266, record.Computed.ContextWindowTokens)
	require.Equal(t, 604, record.Computed.NewInputTokens)

	s := m.State()
	require.Len(t, s.History, 1)
	require.Equal(t, 604, s.Accumulated.TotalInput)
	require.Equal(t, 100, s.Accumulated.TotalOutput)
	require.Equal(t, 8266, s.Accumulated.TotalCacheRead)
	require.InDelta(t, 0.05, s.Accumulated.EstimatedCostUSD, 1e-9)
	require.Equal(t, 8870, s.Window.CurrentSize)
}

func TestStateManager_SecondTurnUsesPreviousBaseline(t *testing.T) {
	m := NewStateManager(200_000)
	m.RecordTurn(1, anthropicSource(604, 100, 8266), 0.05)
	record2 := m.RecordTurn(2, anthropicSource(700, 150, 8266), 0.03)

	require.Equal(t, 700+8266, record2.Computed.ContextWindowTokens)
	require.Equal(t, 700, record2.Computed.NewInputTokens)

	s := m.State()
	require.Equal(t, 604+700, s.Accumulated.TotalInput)
	require.InDelta(t, 0.08, s.Accumulated.EstimatedCostUSD, 1e-9)
}

func TestStateManager_GenericProviderUsesDeltaAgainstBaseline(t *testing.T) {
	m := NewStateManager(200_000)
	m.RecordTurn(1, models.TokenSource{Provider: "openai", RawInput: 500}, 0)
	// context window baseline is now 500; next call reports raw input 800.
	record := m.RecordTurn(2, models.TokenSource{Provider: "openai", RawInput: 800}, 0)

	require.Equal(t, 800, record.Computed.ContextWindowTokens)
	require.Equal(t, 300, record.Computed.NewInputTokens)
	require.Equal(t, models.CalcGeneric, record.Computed.Method)
}

func TestStateManager_GenericNewInputFlooredAtZero(t *testing.T) {
	m := NewStateManager(200_000)
	m.RecordTurn(1, models.TokenSource{Provider: "openai", RawInput: 800}, 0)
	record := m.RecordTurn(2, models.TokenSource{Provider: "openai", RawInput: 500}, 0)
	require.Equal(t, 0, record.Computed.NewInputTokens)
}

func TestStateManager_ProviderChangeResetsCurrentSizeOnly(t *testing.T) {
	m := NewStateManager(200_000)
	m.RecordTurn(1, anthropicSource(604, 100, 8266), 0.05)
	require.Equal(t, 8870, m.State().Window.CurrentSize)

	m.OnProviderChange("google")

	s := m.State()
	require.Equal(t, 0, s.Window.CurrentSize)
	require.Equal(t, 604, s.Accumulated.TotalInput)
	require.Len(t, s.History, 1)
}

func TestStateManager_RestoreStateDerivesCurrentSizeFromLastRecord(t *testing.T) {
	m := NewStateManager(200_000)
	m.RecordTurn(1, anthropicSource(100, 50, 0), 0.01)
	record2 := m.RecordTurn(2, anthropicSource(200, 75, 0), 0.02)

	history := m.State().History
	accumulated := m.State().Accumulated

	m2 := NewStateManager(200_000)
	m2.RestoreState(history, &accumulated)

	s := m2.State()
	require.Len(t, s.History, 2)
	require.Equal(t, 300, s.Accumulated.TotalInput)
	require.Equal(t, record2.Computed.ContextWindowTokens, s.Window.CurrentSize)
}

func TestContextWindow_PercentUsedClampedAt100(t *testing.T) {
	w := models.ContextWindow{CurrentSize: 300, MaxSize: 200}
	require.Equal(t, 100.0, w.PercentUsed())
	require.Equal(t, 0, w.TokensRemaining())
}
