package config

import (
	"fmt"
	"time"
)

// Supported completion providers. An empty provider disables the
// probabilistic tier.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"", ProviderOpenAI, ProviderGemini}

// LLMConfig configures the completion service.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai, gemini, or empty
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"` // OpenAI-compatible endpoints only
	Timeout     string  `yaml:"timeout"`
	Temperature float32 `yaml:"temperature"`
}

// Enabled reports whether a provider and key are both configured.
func (l LLMConfig) Enabled() bool {
	return l.Provider != "" && l.APIKey != ""
}

// ModelOrDefault returns the configured model or the provider's default.
func (l LLMConfig) ModelOrDefault() string {
	if l.Model != "" {
		return l.Model
	}
	switch l.Provider {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderGemini:
		return "gemini-2.5-flash"
	}
	return ""
}

// TimeoutDuration parses Timeout, falling back to 30s.
func (l LLMConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(l.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

func (l LLMConfig) validate() error {
	for _, p := range ValidProviders {
		if l.Provider == p {
			return nil
		}
	}
	return fmt.Errorf("invalid LLM provider: %s (valid: %v)", l.Provider, ValidProviders[1:])
}
