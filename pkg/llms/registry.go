package llms

import (
	"fmt"

	"github.com/kadirpekel/deepresearch/pkg/config"
)

// NewProviderFromConfig builds the backend named by the config. The config
// must already have defaults applied and be validated.
func NewProviderFromConfig(cfg *config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case config.LLMProviderOpenAI:
		return NewOpenAIProviderFromConfig(cfg)
	case config.LLMProviderOllama:
		return NewOllamaProviderFromConfig(cfg)
	case config.LLMProviderGemini:
		return NewGeminiProviderFromConfig(cfg)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}

// NewAdapterFromConfig builds the provider and wraps it in an adapter in one
// step. Capabilities are resolved once here, at construction.
func NewAdapterFromConfig(cfg *config.LLMConfig, opts ...AdapterOption) (*Adapter, error) {
	provider, err := NewProviderFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewAdapter(provider, opts...), nil
}
