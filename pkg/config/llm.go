package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// LLMProvider identifies the LLM backend wire protocol.
type LLMProvider string

const (
	LLMProviderOpenAI LLMProvider = "openai"
	LLMProviderOllama LLMProvider = "ollama"
	LLMProviderGemini LLMProvider = "gemini"
)

// LLMConfig configures one LLM backend. The engine holds one of these per
// phase (supervisor, worker, summarization, final report).
type LLMConfig struct {
	// Provider type (openai-compatible, ollama or gemini).
	Provider LLMProvider `yaml:"provider,omitempty" json:"provider,omitempty"`

	// Model name (e.g. "gpt-4o", "qwen3:8b").
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// APIKey for authentication. Falls back to provider env vars.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// BaseURL overrides the default API endpoint.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// Temperature for generation.
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`

	// MaxTokens limits response length.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`

	// ContextWindow is the prompt budget in tokens. Worker pruning keys off this.
	ContextWindow int `yaml:"context_window,omitempty" json:"context_window,omitempty"`

	// Timeout for a single request.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// TransportRetries bounds retries of transport-level failures.
	TransportRetries int `yaml:"transport_retries,omitempty" json:"transport_retries,omitempty"`

	// NativeStructured overrides capability detection for schema-constrained
	// output. When nil the model family decides.
	NativeStructured *bool `yaml:"native_structured,omitempty" json:"native_structured,omitempty"`

	// NativeTools overrides capability detection for tool calling.
	NativeTools *bool `yaml:"native_tools,omitempty" json:"native_tools,omitempty"`
}

// SetDefaults applies default values.
func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = detectProviderFromEnv()
	}

	if c.Model == "" {
		switch c.Provider {
		case LLMProviderOpenAI:
			c.Model = "gpt-4o"
		case LLMProviderOllama:
			c.Model = "qwen3:8b"
		case LLMProviderGemini:
			c.Model = "gemini-2.0-flash"
		}
	}

	if c.BaseURL == "" {
		switch c.Provider {
		case LLMProviderOpenAI:
			c.BaseURL = "https://api.openai.com/v1"
		case LLMProviderOllama:
			c.BaseURL = "http://localhost:11434"
		}
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")

	if c.APIKey == "" {
		c.APIKey = getAPIKeyFromEnv(c.Provider)
	}

	if c.Temperature == nil {
		temp := 0.7
		c.Temperature = &temp
	}

	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}

	if c.ContextWindow == 0 {
		c.ContextWindow = 128000
	}

	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}

	if c.TransportRetries == 0 {
		c.TransportRetries = 3
	}
}

// Validate checks the LLM configuration.
func (c *LLMConfig) Validate() error {
	validProviders := map[LLMProvider]bool{
		LLMProviderOpenAI: true,
		LLMProviderOllama: true,
		LLMProviderGemini: true,
	}

	if c.Provider != "" && !validProviders[c.Provider] {
		return fmt.Errorf("invalid provider %q (valid: openai, ollama, gemini)", c.Provider)
	}

	// Ollama and local OpenAI-compatible endpoints don't require an API key
	if c.Provider == LLMProviderOpenAI && c.APIKey == "" && !isLocalEndpoint(c.BaseURL) {
		return fmt.Errorf("api_key is required for provider %q", c.Provider)
	}
	if c.Provider == LLMProviderGemini && c.APIKey == "" {
		return fmt.Errorf("api_key is required for provider %q", c.Provider)
	}

	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}

	if c.ContextWindow < 0 {
		return fmt.Errorf("context_window must be positive")
	}

	return nil
}

// SupportsNativeStructured reports whether the backend accepts a response
// schema directly. Explicit config wins; otherwise the model family decides.
func (c *LLMConfig) SupportsNativeStructured() bool {
	if c.NativeStructured != nil {
		return *c.NativeStructured
	}
	return !isLocalModelFamily(c.Provider, c.Model)
}

// SupportsNativeTools reports whether the backend has a native tool-call
// interface. Backends without it are driven through the ReAct text protocol.
func (c *LLMConfig) SupportsNativeTools() bool {
	if c.NativeTools != nil {
		return *c.NativeTools
	}
	return !isLocalModelFamily(c.Provider, c.Model)
}

// localModelFamilies lists model name prefixes known to lack native
// structured output and tool calling. Everything else is assumed native.
var localModelFamilies = []string{
	"llama",
	"qwen",
	"mistral",
	"gemma",
	"phi",
	"deepseek",
	"gpt-oss",
}

func isLocalModelFamily(provider LLMProvider, model string) bool {
	if provider == LLMProviderOllama {
		return true
	}
	modelLower := strings.ToLower(model)
	for _, family := range localModelFamilies {
		if strings.HasPrefix(modelLower, family) {
			return true
		}
	}
	return false
}

func isLocalEndpoint(baseURL string) bool {
	return strings.Contains(baseURL, "localhost") || strings.Contains(baseURL, "127.0.0.1")
}

// detectProviderFromEnv detects provider based on available API keys.
func detectProviderFromEnv() LLMProvider {
	if os.Getenv("OPENAI_API_KEY") != "" {
		return LLMProviderOpenAI
	}
	if os.Getenv("GEMINI_API_KEY") != "" || os.Getenv("GOOGLE_API_KEY") != "" {
		return LLMProviderGemini
	}
	if os.Getenv("OLLAMA_HOST") != "" {
		return LLMProviderOllama
	}
	return LLMProviderOpenAI
}

// getAPIKeyFromEnv gets the API key for a provider from environment.
func getAPIKeyFromEnv(provider LLMProvider) string {
	switch provider {
	case LLMProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case LLMProviderGemini:
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	default:
		return ""
	}
}
