// Package provider implements LLM backends behind the chat.Provider
// interface.
//
// Anvil talks to multiple backends (local Ollama, OpenAI, OpenRouter,
// Anthropic) through one contract, so the agent loop and persistence stay
// provider-agnostic. Each implementation handles its own wire types and
// converts them to anvil's chat types at the boundary; see conversions.go
// and streamargs.go for the shared plumbing.
//
// The interface itself lives in the chat package (chat/provider.go) so
// implementations can import chat without a cycle.
//
// Streaming contract: providers emit chat.StreamEvent increments through
// the callback. Tool call structure is surfaced as early as possible via
// ToolCallFragment events (name first, then per-parameter deltas), and a
// complete parsed call is always delivered in StreamEvent.ToolCalls once
// the provider has seen the whole thing. Wrap any provider with
// NewRetryingProvider to add backoff on transient HTTP failures.
package provider

// ProviderType identifies the provider implementation.
type ProviderType string

const (
	ProviderTypeOllama     ProviderType = "ollama"
	ProviderTypeOpenRouter ProviderType = "openrouter"
	ProviderTypeOpenAI     ProviderType = "openai"
	ProviderTypeAnthropic  ProviderType = "anthropic"
)

// Config holds provider-specific configuration.
type Config struct {
	Type    ProviderType
	BaseURL string
	Model   string
	APIKey  string // unused for Ollama
}
