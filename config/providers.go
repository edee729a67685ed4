package config

import (
	"fmt"
)

// UpdateProviderField updates a single provider configuration field.
//
// Fields:
//   - Ollama: "host", "enabled"
//   - Cloud providers: "apikey", "enabled"
func UpdateProviderField(dataDir, providerID, fieldName, value string) error {
	cfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch providerID {
	case "ollama":
		switch fieldName {
		case "host":
			cfg.Ollama.Host = value

			// Keep the [[providers]] entry in sync
			for i := range cfg.Providers {
				if cfg.Providers[i].ID == "ollama" {
					cfg.Providers[i].BaseURL = value
					break
				}
			}
		case "enabled":
			setProviderEnabled(cfg, providerID, value == "true")
		default:
			return fmt.Errorf("unknown field for ollama: %s", fieldName)
		}

	case "openrouter", "anthropic", "openai":
		switch fieldName {
		case "apikey":
			// API keys live in the credential store, not the TOML config
			fullCfg, err := Load()
			if err != nil {
				return fmt.Errorf("failed to load full config for credential update: %w", err)
			}

			if fullCfg.CredentialStore != nil {
				if err := fullCfg.CredentialStore.Set(providerID, value); err != nil {
					return fmt.Errorf("failed to set API key: %w", err)
				}
				if err := fullCfg.CredentialStore.Save(dataDir); err != nil {
					return fmt.Errorf("failed to persist credentials: %w", err)
				}
			}
			return nil

		case "enabled":
			setProviderEnabled(cfg, providerID, value == "true")
		default:
			return fmt.Errorf("unknown field for %s: %s", providerID, fieldName)
		}

	default:
		return fmt.Errorf("unknown provider: %s", providerID)
	}

	if err := SaveUserConfig(cfg, dataDir); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// setProviderEnabled updates the enabled status of a provider,
// adding a [[providers]] entry when one doesn't exist yet
func setProviderEnabled(cfg *UserConfig, providerID string, enabled bool) {
	for i := range cfg.Providers {
		if cfg.Providers[i].ID == providerID {
			cfg.Providers[i].Enabled = enabled
			return
		}
	}

	cfg.Providers = append(cfg.Providers, ProviderConfig{
		ID:      providerID,
		Name:    ProviderDisplayName(providerID),
		Enabled: enabled,
		BaseURL: ProviderDefaultBaseURL(providerID),
	})
}

// ProviderDisplayName returns the display name for a provider
func ProviderDisplayName(providerID string) string {
	switch providerID {
	case "ollama":
		return "Ollama"
	case "openrouter":
		return "OpenRouter"
	case "anthropic":
		return "Anthropic"
	case "openai":
		return "OpenAI"
	default:
		return providerID
	}
}

// ProviderDefaultBaseURL returns the default base URL for a provider
func ProviderDefaultBaseURL(providerID string) string {
	switch providerID {
	case "openrouter":
		return "https://openrouter.ai/api/v1"
	case "anthropic":
		return "https://api.anthropic.com"
	case "openai":
		return "https://api.openai.com/v1"
	default:
		return ""
	}
}
