package llm

import (
	"fmt"
	"os"

	"charrag/config"
	"charrag/internal/port"
)

// ProviderInfo describes a supported backend.
type ProviderInfo struct {
	Name         string
	DefaultModel string
	APIKeyEnv    string
	BaseURL      string
	Models       []string
}

// Providers lists the supported backends in display order.
var Providers = []ProviderInfo{
	{
		Name:         "openai",
		DefaultModel: "gpt-4o-mini",
		APIKeyEnv:    "OPENAI_API_KEY",
		Models:       []string{"gpt-4o", "gpt-4o-mini", "gpt-3.5-turbo"},
	},
	{
		Name:         "deepseek",
		DefaultModel: "deepseek-chat",
		APIKeyEnv:    "DEEPSEEK_API_KEY",
		BaseURL:      "https://api.deepseek.com/v1",
		Models:       []string{"deepseek-chat", "deepseek-reasoner"},
	},
	{
		Name:         "anthropic",
		DefaultModel: "claude-3-haiku-20240307",
		APIKeyEnv:    "ANTHROPIC_API_KEY",
		Models:       []string{"claude-3-haiku-20240307", "claude-3-5-sonnet-latest"},
	},
	{
		Name:         "gemini",
		DefaultModel: "gemini-2.0-flash",
		APIKeyEnv:    "GEMINI_API_KEY",
		Models:       []string{"gemini-2.0-flash", "gemini-1.5-pro"},
	},
	{
		Name:         "mock",
		DefaultModel: "mock",
	},
}

// LookupProvider returns the info for name.
func LookupProvider(name string) (ProviderInfo, bool) {
	for _, p := range Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderInfo{}, false
}

// New builds the backend selected by cfg. Empty model, key env and base URL
// fall back to the provider defaults.
func New(cfg config.LLMConfig) (port.LLM, error) {
	info, ok := LookupProvider(cfg.Provider)
	if !ok {
		return nil, fmt.Errorf("unknown llm provider: %s (supported: openai, deepseek, anthropic, gemini, mock)", cfg.Provider)
	}

	model := cfg.Model
	if model == "" {
		model = info.DefaultModel
	}
	if info.Name == "mock" {
		return NewMock(""), nil
	}

	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = info.APIKeyEnv
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", keyEnv)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = info.BaseURL
	}

	switch info.Name {
	case "openai", "deepseek":
		return NewOpenAIChat(info.Name, apiKey, model, baseURL), nil
	case "anthropic":
		return NewAnthropic(apiKey, model, baseURL), nil
	case "gemini":
		return NewGemini(apiKey, model), nil
	}
	return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
}

// Available reports which providers have an API key set.
func Available() map[string]bool {
	out := make(map[string]bool, len(Providers))
	for _, p := range Providers {
		out[p.Name] = p.APIKeyEnv == "" || os.Getenv(p.APIKeyEnv) != ""
	}
	return out
}
