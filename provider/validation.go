package provider

import (
	"context"
	"fmt"

	"anvil/config"
	"anvil/ollama"
)

// PingProvider validates a provider's credentials by calling Ping().
// Used to validate API keys before fetching models.
func PingProvider(ctx context.Context, providerID, baseURL, apiKey string) error {
	p, err := NewProvider(Config{
		Type:    MapProviderIDToType(providerID),
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   "",
	})
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	if config.Debug {
		config.DebugLog.Printf("[Provider] Provider %s ping successful", providerID)
	}
	return nil
}

// FetchProviderModels fetches the model list from a specific provider.
func FetchProviderModels(ctx context.Context, providerID, baseURL, apiKey string) ([]ollama.ModelInfo, error) {
	p, err := NewProvider(Config{
		Type:    MapProviderIDToType(providerID),
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   "",
	})
	if err != nil {
		return nil, err
	}

	models, err := p.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	if config.Debug {
		config.DebugLog.Printf("[Provider] Fetched %d models from provider %s", len(models), providerID)
	}
	return models, nil
}
