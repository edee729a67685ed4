package provider

import (
	"fmt"

	"anvil/chat"
)

// NewProvider creates a provider based on configuration. This is the
// centralized factory; it dispatches on Config.Type.
//
// Returns an error if the type is unknown or the provider-specific
// constructor fails (missing API key, invalid URL).
func NewProvider(cfg Config) (chat.Provider, error) {
	switch cfg.Type {
	case ProviderTypeOllama:
		return NewOllamaProvider(cfg.BaseURL, cfg.Model)
	case ProviderTypeOpenRouter:
		return NewOpenRouterProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case ProviderTypeOpenAI:
		return NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case ProviderTypeAnthropic:
		return NewAnthropicProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

// MapProviderIDToType converts a config provider ID to a factory
// ProviderType. Unknown IDs pass through as-is and the factory errors.
func MapProviderIDToType(id string) ProviderType {
	switch id {
	case "ollama":
		return ProviderTypeOllama
	case "openrouter":
		return ProviderTypeOpenRouter
	case "openai":
		return ProviderTypeOpenAI
	case "anthropic":
		return ProviderTypeAnthropic
	default:
		return ProviderType(id)
	}
}
