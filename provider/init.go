package provider

import (
	"anvil/chat"
	"anvil/config"
)

// InitializeProviders creates all provider instances for the application:
// Ollama (always attempted) plus every enabled cloud provider from config,
// with API keys pulled from the credential store. Each provider is wrapped
// with the retry policy from config.
//
// Initialization failures degrade gracefully: they are logged and the
// provider is skipped, so the app can still start offline.
func InitializeProviders(cfg *config.Config) map[string]chat.Provider {
	providers := make(map[string]chat.Provider)
	policy := PolicyFromConfig(cfg.Retry)

	ollamaProvider := initializeOllama(cfg)
	if ollamaProvider != nil {
		providers["ollama"] = NewRetryingProvider(ollamaProvider, policy)
		if config.Debug {
			config.DebugLog.Printf("[Provider] Initialized Ollama provider")
		}
	} else if config.Debug {
		config.DebugLog.Printf("[Provider] Ollama provider initialization failed (offline mode)")
	}

	for _, providerCfg := range cfg.Providers {
		if !providerCfg.Enabled || providerCfg.ID == "ollama" {
			continue
		}

		apiKey := ""
		if cfg.CredentialStore != nil {
			apiKey = cfg.CredentialStore.Get(providerCfg.ID)
		}

		p, err := NewProvider(Config{
			Type:    MapProviderIDToType(providerCfg.ID),
			BaseURL: providerCfg.BaseURL,
			APIKey:  apiKey,
			Model:   "", // set when a thread loads
		})

		if err != nil {
			if config.Debug {
				config.DebugLog.Printf("[Provider] Warning: failed to initialize provider %s: %v", providerCfg.ID, err)
			}
			continue
		}

		providers[providerCfg.ID] = NewRetryingProvider(p, policy)
		if config.Debug {
			config.DebugLog.Printf("[Provider] Initialized provider: %s", providerCfg.ID)
		}
	}

	return providers
}

// initializeOllama creates the Ollama provider instance.
// Returns nil if initialization fails (allows offline mode).
func initializeOllama(cfg *config.Config) chat.Provider {
	p, err := NewProvider(Config{
		Type:    ProviderTypeOllama,
		BaseURL: cfg.OllamaHost,
		Model:   cfg.DefaultModel,
	})
	if err != nil {
		if config.Debug {
			config.DebugLog.Printf("[Provider] Ollama provider creation failed: %v", err)
		}
		return nil
	}

	return p
}
