package context

import (
	"fmt"
	"strconv"
	"time"

	"github.com/driftcode/agentcore/pkg/models"
)

// Prompt-cache pruning constants, matching the originating cache-pruning
// pass exactly (5-minute TTL, last 3 assistant turns kept verbatim, 2 KiB
// per-block threshold).
const (
	DefaultCacheTTL           = 5 * time.Minute
	DefaultRecentTurns        = 3
	DefaultPruneThresholdBytes = 2048
)

// IsCacheCold reports whether the time since the previous provider call
// exceeds ttl, meaning the next call will re-pay cache-write costs.
func IsCacheCold(lastCallAt time.Time, ttl time.Duration) bool {
	if lastCallAt.IsZero() {
		return true
	}
	return time.Since(lastCallAt) > ttl
}

// PruneToolResultsForRecache returns a copy of messages with tool_result
// content in older turns replaced by a length-recording placeholder, ready
// to compose a provider request when the cache is cold. Turns up to but
// excluding the last recentTurns assistant turns are eligible; within the
// eligible region, any tool_result whose content exceeds thresholdBytes is
// replaced. Text content and small results are left untouched. The input
// slice is never mutated; the returned slice has the same length.
func PruneToolResultsForRecache(messages []*models.Message, recentTurns, thresholdBytes int) []*models.Message {
	if len(messages) == 0 {
		return messages
	}
	if recentTurns < 0 {
		recentTurns = 0
	}

	cutoff := len(messages)
	remaining := recentTurns
	if remaining == 0 {
		cutoff = 0
	} else {
		found := false
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i] != nil && messages[i].Role == models.RoleAssistant {
				remaining--
				if remaining == 0 {
					cutoff = i
					found = true
					break
				}
			}
		}
		if !found {
			// Fewer than recentTurns assistant turns exist; nothing is
			// eligible for pruning.
			cutoff = 0
		}
	}

	out := make([]*models.Message, len(messages))
	copy(out, messages)

	for i := 0; i < cutoff; i++ {
		msg := out[i]
		if msg == nil || len(msg.ToolResults) == 0 {
			continue
		}
		var changed bool
		results := append([]models.ToolResult(nil), msg.ToolResults...)
		for j, tr := range results {
			if len(tr.Content) > thresholdBytes {
				results[j].Content = fmt.Sprintf("[pruned %d chars for cache efficiency]", len(tr.Content))
				changed = true
			}
		}
		if changed {
			clone := msg.Clone()
			clone.ToolResults = results
			out[i] = clone
		}
	}

	return out
}

// BudgetPruningSettings configures the secondary, character-budget-aware
// soft-trim/hard-clear pass: an additional pruning strategy distinct from
// the turn-cutoff pass above, applied when the conversation is close to
// filling the provider's context window regardless of cache staleness.
type BudgetPruningSettings struct {
	KeepLastAssistants   int
	SoftTrimRatio        float64
	HardClearRatio       float64
	MinPrunableToolChars int
	SoftTrimMaxChars     int
	SoftTrimHeadChars    int
	SoftTrimTailChars    int
	HardClearPlaceholder string
}

// DefaultBudgetPruningSettings mirrors the thresholds this pass has always
// used in production.
func DefaultBudgetPruningSettings() BudgetPruningSettings {
	return BudgetPruningSettings{
		KeepLastAssistants:   3,
		SoftTrimRatio:        0.3,
		HardClearRatio:       0.5,
		MinPrunableToolChars: 50000,
		SoftTrimMaxChars:     4000,
		SoftTrimHeadChars:    1500,
		SoftTrimTailChars:    1500,
		HardClearPlaceholder: "[Old tool result content cleared]",
	}
}

// PruneByBudget trims or clears old tool results once the conversation
// exceeds a fraction of charWindow (an approximate character budget for the
// provider's context window). It is independent of cache-cold pruning and
// may be applied in addition to it.
func PruneByBudget(messages []*models.Message, settings BudgetPruningSettings, charWindow int) []*models.Message {
	if len(messages) == 0 || charWindow <= 0 {
		return messages
	}

	cutoff, ok := findAssistantCutoff(messages, settings.KeepLastAssistants)
	if !ok {
		return messages
	}

	total := estimateChars(messages)
	if float64(total)/float64(charWindow) < settings.SoftTrimRatio {
		return messages
	}

	out := make([]*models.Message, len(messages))
	copy(out, messages)

	for i := 0; i < cutoff; i++ {
		msg := out[i]
		if msg == nil || len(msg.ToolResults) == 0 {
			continue
		}
		var changed bool
		results := append([]models.ToolResult(nil), msg.ToolResults...)
		for j, tr := range results {
			trimmed, didTrim := softTrim(tr.Content, settings)
			if didTrim {
				before := len(results[j].Content)
				results[j].Content = trimmed
				total += len(trimmed) - before
				changed = true
			}
		}
		if changed {
			clone := msg.Clone()
			clone.ToolResults = results
			out[i] = clone
		}
	}

	if float64(total)/float64(charWindow) < settings.HardClearRatio {
		return out
	}

	prunable := 0
	for i := 0; i < cutoff; i++ {
		if out[i] == nil {
			continue
		}
		for _, tr := range out[i].ToolResults {
			prunable += len(tr.Content)
		}
	}
	if prunable < settings.MinPrunableToolChars {
		return out
	}

	ratio := float64(total) / float64(charWindow)
	for i := 0; i < cutoff && ratio >= settings.HardClearRatio; i++ {
		msg := out[i]
		if msg == nil || len(msg.ToolResults) == 0 {
			continue
		}
		results := append([]models.ToolResult(nil), msg.ToolResults...)
		for j := range results {
			if ratio < settings.HardClearRatio {
				break
			}
			before := len(results[j].Content)
			results[j].Content = settings.HardClearPlaceholder
			total += len(settings.HardClearPlaceholder) - before
			ratio = float64(total) / float64(charWindow)
		}
		clone := msg.Clone()
		clone.ToolResults = results
		out[i] = clone
	}

	return out
}

func findAssistantCutoff(messages []*models.Message, keepLastAssistants int) (int, bool) {
	if keepLastAssistants <= 0 {
		return len(messages), true
	}
	remaining := keepLastAssistants
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i] != nil && messages[i].Role == models.RoleAssistant {
			remaining--
			if remaining == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func estimateChars(messages []*models.Message) int {
	total := 0
	for _, m := range messages {
		if m == nil {
			continue
		}
		total += len(m.Content)
		for _, tr := range m.ToolResults {
			total += len(tr.Content)
		}
	}
	return total
}

func softTrim(content string, settings BudgetPruningSettings) (string, bool) {
	rawLen := len(content)
	if rawLen <= settings.SoftTrimMaxChars {
		return content, false
	}
	head, tail := settings.SoftTrimHeadChars, settings.SoftTrimTailChars
	if head < 0 {
		head = 0
	}
	if tail < 0 {
		tail = 0
	}
	if head+tail >= rawLen {
		return content, false
	}
	trimmed := content[:head] + "\n...\n" + content[rawLen-tail:]
	note := "\n\n[Tool result trimmed: kept first " + strconv.Itoa(head) + " chars and last " +
		strconv.Itoa(tail) + " chars of " + strconv.Itoa(rawLen) + " chars.]"
	return trimmed + note, true
}
