package provider

import (
	"context"
	"fmt"
	"strings"

	"anvil/chat"
	"anvil/mcp"
	"anvil/ollama"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIProvider implements chat.Provider using OpenAI's official Go SDK.
type OpenAIProvider struct {
	client  openai.Client
	model   string
	baseURL string
	apiKey  string
}

// NewOpenAIProvider creates a new OpenAI provider instance.
// Returns an error if the API key is missing.
func NewOpenAIProvider(baseURL, apiKey, model string) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &OpenAIProvider{
		client:  client,
		model:   model,
		baseURL: baseURL,
		apiKey:  apiKey,
	}, nil
}

// Chat implements chat.Provider.Chat by delegating to ChatWithTools with no tools.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []chat.Message, cb chat.StreamCallback) error {
	return p.ChatWithTools(ctx, messages, nil, cb)
}

// ChatWithTools implements chat.Provider.ChatWithTools with streaming support.
// Tool call arguments stream through per-key fragments as they arrive; the
// complete parsed call follows once the accumulator closes it.
func (p *OpenAIProvider) ChatWithTools(ctx context.Context, messages []chat.Message, tools []mcptypes.Tool, cb chat.StreamCallback) error {
	messagesWithInstructions := messages
	if len(tools) > 0 {
		toolInstruction := chat.Message{
			Role:    chat.RoleSystem,
			Content: buildOpenAIToolInstructions(tools),
		}
		messagesWithInstructions = append([]chat.Message{toolInstruction}, messages...)
	}

	openaiMessages := ConvertToOpenAIMessages(messagesWithInstructions)

	params := openai.ChatCompletionNewParams{
		Messages: openaiMessages,
		Model:    openai.ChatModel(p.model),
	}

	if len(tools) > 0 {
		params.Tools = mcp.ConvertMCPToolsToOpenAIFormat(tools)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	acc := openai.ChatCompletionAccumulator{}

	calls := newToolCallStreamTracker(nil)
	var contentBuilder strings.Builder

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if tool, ok := acc.JustFinishedToolCall(); ok {
			if err := calls.emitFinished(tool.Name, tool.Arguments, cb); err != nil {
				return err
			}
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		for _, tc := range delta.ToolCalls {
			if err := calls.emitDelta(int(tc.Index), tc.ID, tc.Function.Name, tc.Function.Arguments, cb); err != nil {
				return err
			}
		}

		if delta.Content != "" {
			contentBuilder.WriteString(delta.Content)
			if cb != nil {
				if err := cb(chat.StreamEvent{ContentDelta: delta.Content}); err != nil {
					return err
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("OpenAI streaming error: %w", err)
	}

	// Safety net: some models print the tool call instead of using the API
	if !calls.sawAny() && cb != nil {
		if err := emitLeakedToolCalls(contentBuilder.String(), nil, cb); err != nil {
			return err
		}
	}

	return nil
}

// ListModels implements chat.Provider.ListModels.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	modelsPage, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list OpenAI models: %w", err)
	}

	result := make([]ollama.ModelInfo, 0, len(modelsPage.Data))
	for _, m := range modelsPage.Data {
		result = append(result, ollama.ModelInfo{
			Name:         m.ID,
			InternalName: m.ID,
			Size:         0, // OpenAI doesn't provide size info
			Provider:     "openai",
		})
	}

	return result, nil
}

// GetModel implements chat.Provider.GetModel.
func (p *OpenAIProvider) GetModel() string {
	return p.model
}

// GetDisplayName implements chat.Provider.GetDisplayName.
// OpenAI model names have no vendor prefix, so this equals GetModel.
func (p *OpenAIProvider) GetDisplayName() string {
	return p.model
}

// SetModel implements chat.Provider.SetModel.
func (p *OpenAIProvider) SetModel(model string) {
	p.model = model
}

// Ping implements chat.Provider.Ping by attempting to list models.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	_, err := p.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("OpenAI ping failed: %w", err)
	}
	return nil
}
