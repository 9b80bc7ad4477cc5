// Package tokens implements the token tracker (spec §4.C): per-provider
// raw-usage extraction, cache-aware normalisation, and session-level
// accumulation.
package tokens

import (
	"errors"

	"github.com/driftcode/agentcore/pkg/models"
)

// ErrMissingUsage is returned when a provider response carries no usage
// data to extract.
var ErrMissingUsage = errors.New("tokens: missing usage data")

// AnthropicUsage mirrors the fields split across Anthropic's
// message_start.usage and message_delta.usage SSE events.
type AnthropicUsage struct {
	InputTokens             int
	OutputTokens            int
	CacheCreationInputTokens int
	CacheReadInputTokens     int
	CacheCreation5m          int
	CacheCreation1h          int
}

// ExtractAnthropic builds a TokenSource from Anthropic's usage fields. The
// 5m/1h breakdown is additional accounting alongside the aggregate
// cache-creation count; it is not required to sum to it exactly.
func ExtractAnthropic(u AnthropicUsage) models.TokenSource {
	return models.TokenSource{
		Provider:           "anthropic",
		RawInput:           u.InputTokens,
		RawOutput:          u.OutputTokens,
		RawCacheRead:       u.CacheReadInputTokens,
		RawCacheCreation:   u.CacheCreationInputTokens,
		RawCacheCreation5m: u.CacheCreation5m,
		RawCacheCreation1h: u.CacheCreation1h,
	}
}

// OpenAIUsage mirrors an OpenAI-shaped `usage` response object (also used
// by OpenAI-compatible providers).
type OpenAIUsage struct {
	InputTokens  int
	OutputTokens int
	CachedTokens int
}

// ExtractOpenAI builds a TokenSource from an OpenAI-shaped usage object.
func ExtractOpenAI(provider string, u OpenAIUsage) models.TokenSource {
	return models.TokenSource{
		Provider:     provider,
		RawInput:     u.InputTokens,
		RawOutput:    u.OutputTokens,
		RawCacheRead: u.CachedTokens,
	}
}

// GoogleUsage mirrors Google's `usageMetadata` response object.
type GoogleUsage struct {
	PromptTokenCount     int
	CandidatesTokenCount int
}

// ExtractGoogle builds a TokenSource from Google's usageMetadata.
func ExtractGoogle(u GoogleUsage) models.TokenSource {
	return models.TokenSource{
		Provider:  "google",
		RawInput:  u.PromptTokenCount,
		RawOutput: u.CandidatesTokenCount,
	}
}
