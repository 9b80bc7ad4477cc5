package providers

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/driftcode/agentcore/pkg/models"
)

// IDFormat is a provider's tool-call ID convention.
type IDFormat string

const (
	IDFormatAnthropic IDFormat = "anthropic" // toolu_...
	IDFormatOpenAI    IDFormat = "openai"    // call_...
	IDFormatGoogle    IDFormat = "google"    // passthrough, no fixed prefix
)

const (
	anthropicIDPrefix = "toolu_"
	openAIIDPrefix    = "call_"
)

// formatOf classifies an existing tool-call ID by its prefix.
func formatOf(id string) IDFormat {
	switch {
	case strings.HasPrefix(id, anthropicIDPrefix):
		return IDFormatAnthropic
	case strings.HasPrefix(id, openAIIDPrefix):
		return IDFormatOpenAI
	default:
		return IDFormatGoogle
	}
}

// BuildToolCallIDMapping collects every distinct tool-use ID from assistant
// messages and maps each one whose format differs from target into a
// deterministic ID in target's convention. IDs already in target's format
// are mapped to themselves.
func BuildToolCallIDMapping(messages []*models.Message, target IDFormat) map[string]string {
	mapping := make(map[string]string)
	for _, msg := range messages {
		if msg == nil || msg.Role != models.RoleAssistant {
			continue
		}
		for _, tc := range msg.ToolCalls {
			if _, ok := mapping[tc.ID]; ok {
				continue
			}
			mapping[tc.ID] = remapID(tc.ID, target)
		}
		for _, b := range msg.Blocks {
			if b.Type != models.ContentToolUse || b.ToolCall == nil {
				continue
			}
			if _, ok := mapping[b.ToolCall.ID]; ok {
				continue
			}
			mapping[b.ToolCall.ID] = remapID(b.ToolCall.ID, target)
		}
	}
	return mapping
}

// remapID deterministically derives a target-format ID from the source ID,
// so the same source ID always maps to the same target ID within a build
// (and across repeated calls, since it is a pure function of the input).
func remapID(id string, target IDFormat) string {
	if formatOf(id) == target {
		return id
	}

	sum := sha256.Sum256([]byte(id))
	suffix := hex.EncodeToString(sum[:])[:24]

	switch target {
	case IDFormatAnthropic:
		return anthropicIDPrefix + suffix
	case IDFormatOpenAI:
		return openAIIDPrefix + suffix
	default:
		return id
	}
}

// RemapToolCallID looks up id in mapping, returning it unchanged if absent
// — spec.md §4.D: "Unknown IDs pass through unchanged."
func RemapToolCallID(id string, mapping map[string]string) string {
	if remapped, ok := mapping[id]; ok {
		return remapped
	}
	return id
}

// RewriteToolCallIDs returns a copy of messages with every tool-use and
// tool-result ID rewritten through mapping. The source slice and its
// messages are never mutated.
func RewriteToolCallIDs(messages []*models.Message, mapping map[string]string) []*models.Message {
	out := make([]*models.Message, len(messages))
	for i, msg := range messages {
		if msg == nil {
			continue
		}
		clone := msg.Clone()

		if len(clone.ToolCalls) > 0 {
			calls := append([]models.ToolCall(nil), clone.ToolCalls...)
			for j := range calls {
				calls[j].ID = RemapToolCallID(calls[j].ID, mapping)
			}
			clone.ToolCalls = calls
		}
		if len(clone.ToolResults) > 0 {
			results := append([]models.ToolResult(nil), clone.ToolResults...)
			for j := range results {
				results[j].ToolCallID = RemapToolCallID(results[j].ToolCallID, mapping)
			}
			clone.ToolResults = results
		}
		if len(clone.Blocks) > 0 {
			blocks := append([]models.ContentBlock(nil), clone.Blocks...)
			for j := range blocks {
				if blocks[j].Type == models.ContentToolUse && blocks[j].ToolCall != nil {
					tc := *blocks[j].ToolCall
					tc.ID = RemapToolCallID(tc.ID, mapping)
					blocks[j].ToolCall = &tc
				}
			}
			clone.Blocks = blocks
		}

		out[i] = clone
	}
	return out
}
