package provider

import (
	"context"
	"fmt"

	"anvil/chat"
	"anvil/mcp"
	"anvil/ollama"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
)

// OllamaProvider wraps ollama.Client to implement chat.Provider.
//
// Ollama surfaces tool calls whole rather than streaming their arguments,
// so this provider never emits fragments: complete calls arrive through
// StreamEvent.ToolCalls.
type OllamaProvider struct {
	client *ollama.Client
}

// NewOllamaProvider creates a new Ollama provider instance. An empty
// baseURL defaults to "http://localhost:11434".
func NewOllamaProvider(baseURL, model string) (*OllamaProvider, error) {
	client, err := ollama.NewClient(baseURL, model)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}

	return &OllamaProvider{
		client: client,
	}, nil
}

// Chat implements chat.Provider.Chat by delegating to ChatWithTools with no tools.
func (p *OllamaProvider) Chat(ctx context.Context, messages []chat.Message, cb chat.StreamCallback) error {
	return p.ChatWithTools(ctx, messages, nil, cb)
}

// ChatWithTools implements chat.Provider.ChatWithTools with type conversions:
// chat.Message → api.Message, mcptypes.Tool → api.Tool, and api.ToolCall →
// chat.ToolCall on the way back.
func (p *OllamaProvider) ChatWithTools(ctx context.Context, messages []chat.Message, tools []mcptypes.Tool, cb chat.StreamCallback) error {
	ollamaMessages := ConvertToOllamaMessages(messages)

	var ollamaTools []api.Tool
	if len(tools) > 0 {
		ollamaTools = mcp.ConvertMCPToolsToOllama(tools)
	}

	ollamaCallback := func(chunk, thinking string, ollamaCalls []api.ToolCall) error {
		if cb == nil {
			return nil
		}

		ev := chat.StreamEvent{
			ContentDelta:   chunk,
			ReasoningDelta: thinking,
			ToolCalls:      ConvertToProviderToolCalls(ollamaCalls),
		}
		if ev.ContentDelta == "" && ev.ReasoningDelta == "" && ev.ToolCalls == nil {
			return nil
		}
		return cb(ev)
	}

	return p.client.ChatWithTools(ctx, ollamaMessages, ollamaTools, ollamaCallback)
}

// ListModels implements chat.Provider.ListModels (direct passthrough).
func (p *OllamaProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return p.client.ListModels(ctx)
}

// GetModel implements chat.Provider.GetModel (direct passthrough).
func (p *OllamaProvider) GetModel() string {
	return p.client.GetModel()
}

// GetDisplayName implements chat.Provider.GetDisplayName. Ollama model
// names have no vendor prefix, so this equals GetModel.
func (p *OllamaProvider) GetDisplayName() string {
	return p.client.GetModel()
}

// SetModel implements chat.Provider.SetModel (direct passthrough).
func (p *OllamaProvider) SetModel(model string) {
	p.client.SetModel(model)
}

// Ping implements chat.Provider.Ping (direct passthrough).
func (p *OllamaProvider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}
