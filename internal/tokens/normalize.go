package tokens

import "github.com/driftcode/agentcore/pkg/models"

// anthropicCacheAware reports whether a provider name uses the cache-aware
// normalisation rule. Bedrock-hosted Claude reuses the Anthropic wire shape
// and prompt cache, so it is cache-aware too.
func anthropicCacheAware(provider string) bool {
	return provider == "anthropic" || provider == "bedrock"
}

// Normalize derives ComputedTokens from a raw TokenSource.
//
// Anthropic (cache-aware): context_window = input + cache_read +
// cache_creation; new_input = input (non-cached tokens only).
//
// Every other provider: context_window = input; new_input = input minus
// the previous baseline, floored at 0.
func Normalize(source models.TokenSource, previousBaseline int) models.ComputedTokens {
	if anthropicCacheAware(source.Provider) {
		return models.ComputedTokens{
			ContextWindowTokens: source.RawInput + source.RawCacheRead + source.RawCacheCreation,
			NewInputTokens:      source.RawInput,
			Method:              models.CalcAnthropicCacheAware,
		}
	}

	newInput := source.RawInput - previousBaseline
	if newInput < 0 {
		newInput = 0
	}
	return models.ComputedTokens{
		ContextWindowTokens: source.RawInput,
		NewInputTokens:      newInput,
		Method:              models.CalcGeneric,
	}
}
