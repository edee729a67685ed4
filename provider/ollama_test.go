package provider

import (
	"testing"

	"anvil/chat"
)

// TestProvidersImplementInterface is a compile-time check that every
// provider implements chat.Provider. It fails to compile if one drifts.
func TestProvidersImplementInterface(t *testing.T) {
	var _ chat.Provider = (*OllamaProvider)(nil)
	var _ chat.Provider = (*OpenAIProvider)(nil)
	var _ chat.Provider = (*OpenRouterProvider)(nil)
	var _ chat.Provider = (*AnthropicProvider)(nil)
	var _ chat.Provider = (*RetryingProvider)(nil)
}

// Integration tests that require a running Ollama server live outside the
// unit suite; the contract tests in interface_test.go cover the streaming
// callback behavior through the mock.
