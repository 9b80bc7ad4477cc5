package gateway

import (
	"context"
	"fmt"

	"github.com/driftcode/agentcore/internal/config"
	"github.com/driftcode/agentcore/internal/providers"
)

// ProviderFactory resolves a (provider name, model) pair to a live
// providers.Provider. It is an interface so tests can substitute a fake
// provider without a network-backed adapter.
type ProviderFactory interface {
	Build(ctx context.Context, name, model string) (providers.Provider, error)
	Names() []string
	DefaultModel(name string) string
}

// ConfigProviderFactory builds providers.Provider values from the loaded
// LLM configuration. Built fresh per turn rather than cached, since each
// adapter is cheap to construct and this keeps credential rotation (a
// changed API key on reload) effective immediately.
type ConfigProviderFactory struct {
	cfg config.LLMConfig
}

// NewProviderFactory returns a ConfigProviderFactory over cfg.
func NewProviderFactory(cfg config.LLMConfig) *ConfigProviderFactory {
	return &ConfigProviderFactory{cfg: cfg}
}

// Build resolves name (empty uses the configured default provider) and
// model (empty uses that provider's default model) to a live Provider.
func (f *ConfigProviderFactory) Build(ctx context.Context, name, model string) (providers.Provider, error) {
	if name == "" {
		name = f.cfg.DefaultProvider
	}
	pc, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	if model == "" {
		model = pc.DefaultModel
	}

	switch name {
	case "anthropic":
		return providers.NewAnthropicAdapter(providers.AnthropicConfig{APIKey: pc.APIKey, BaseURL: pc.BaseURL, Model: model})
	case "openai":
		return providers.NewOpenAIAdapter(providers.OpenAIConfig{APIKey: pc.APIKey, BaseURL: pc.BaseURL, Model: model})
	case "google":
		return providers.NewGoogleAdapter(ctx, providers.GoogleConfig{APIKey: pc.APIKey, Model: model})
	case "bedrock":
		return providers.NewBedrockAdapter(ctx, providers.BedrockConfig{Region: pc.Region, Model: model})
	default:
		return nil, fmt.Errorf("unsupported provider %q", name)
	}
}

// Names returns the configured provider names, for model.list.
func (f *ConfigProviderFactory) Names() []string {
	names := make([]string, 0, len(f.cfg.Providers))
	for name := range f.cfg.Providers {
		names = append(names, name)
	}
	return names
}

// DefaultModel returns the configured default model for name, or "" if
// name is unknown.
func (f *ConfigProviderFactory) DefaultModel(name string) string {
	return f.cfg.Providers[name].DefaultModel
}
