package provider

import (
	"context"
	"fmt"
	"strings"

	"anvil/chat"
	"anvil/config"
	"anvil/mcp"
	"anvil/ollama"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenRouterProvider implements chat.Provider using OpenAI's official Go
// SDK against OpenRouter's OpenAI-compatible API.
type OpenRouterProvider struct {
	client  openai.Client
	model   string
	baseURL string
	apiKey  string
}

// NewOpenRouterProvider creates a new OpenRouter provider instance.
// Returns an error if the API key is missing.
func NewOpenRouterProvider(baseURL, apiKey, model string) (*OpenRouterProvider, error) {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenRouter API key is required")
	}
	if model == "" {
		model = "qwen/qwen3-coder:free"
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &OpenRouterProvider{
		client:  client,
		model:   model,
		baseURL: baseURL,
		apiKey:  apiKey,
	}, nil
}

// shouldSkipToolInstructions checks if a model BREAKS with explicit tool
// instructions. Most models work well with them, but some (like qwen)
// understand tools natively and get confused by explicit prompting,
// causing XML leakage.
func shouldSkipToolInstructions(modelName string) bool {
	modelLower := strings.ToLower(modelName)

	skipInstructions := []string{
		"qwen", // leaks XML with instructions, works natively without them
	}

	for _, prefix := range skipInstructions {
		if strings.Contains(modelLower, prefix) {
			return true
		}
	}

	return false
}

// convertToolNamesForOpenRouter converts tool names from dotted notation to
// underscore notation. OpenRouter requires names matching
// ^[a-zA-Z0-9_-]{1,64}$ (no dots).
// Example: "server-filesystem.read_file" → "server-filesystem__read_file"
func convertToolNamesForOpenRouter(tools []mcptypes.Tool) []mcptypes.Tool {
	converted := make([]mcptypes.Tool, len(tools))
	for i, tool := range tools {
		converted[i] = tool
		converted[i].Name = strings.ReplaceAll(tool.Name, ".", "__")
	}
	return converted
}

// convertToolNameFromOpenRouter reverses convertToolNamesForOpenRouter.
// Example: "server-filesystem__read_file" → "server-filesystem.read_file"
func convertToolNameFromOpenRouter(toolName string) string {
	return strings.ReplaceAll(toolName, "__", ".")
}

// Chat implements chat.Provider.Chat by delegating to ChatWithTools with no tools.
func (p *OpenRouterProvider) Chat(ctx context.Context, messages []chat.Message, cb chat.StreamCallback) error {
	return p.ChatWithTools(ctx, messages, nil, cb)
}

// ChatWithTools implements chat.Provider.ChatWithTools with streaming support.
func (p *OpenRouterProvider) ChatWithTools(ctx context.Context, messages []chat.Message, tools []mcptypes.Tool, cb chat.StreamCallback) error {
	messagesWithInstructions := messages
	if len(tools) > 0 && !shouldSkipToolInstructions(p.model) {
		toolInstruction := chat.Message{
			Role:    chat.RoleSystem,
			Content: buildOpenRouterToolInstructions(tools),
		}
		messagesWithInstructions = append([]chat.Message{toolInstruction}, messages...)
	}

	if config.DebugLog != nil && len(tools) > 0 {
		if shouldSkipToolInstructions(p.model) {
			config.DebugLog.Printf("[OpenRouter] Model '%s': Skipping tool instructions (uses native understanding)", p.model)
		} else {
			config.DebugLog.Printf("[OpenRouter] Model '%s': Adding tool instructions", p.model)
		}
	}

	openaiMessages := ConvertToOpenAIMessages(messagesWithInstructions)

	params := openai.ChatCompletionNewParams{
		Messages: openaiMessages,
		Model:    openai.ChatModel(p.model),
	}

	// Convert dots to underscores for OpenRouter's tool name restrictions
	if len(tools) > 0 {
		convertedTools := convertToolNamesForOpenRouter(tools)
		params.Tools = mcp.ConvertMCPToolsToOpenAIFormat(convertedTools)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	acc := openai.ChatCompletionAccumulator{}

	calls := newToolCallStreamTracker(convertToolNameFromOpenRouter)
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
		return fmt.Errorf("OpenRouter streaming error: %w", err)
	}

	// Safety net: some models print the tool call instead of using the API
	if !calls.sawAny() && cb != nil {
		if err := emitLeakedToolCalls(contentBuilder.String(), convertToolNameFromOpenRouter, cb); err != nil {
			return err
		}
	}

	return nil
}

// ListModels implements chat.Provider.ListModels with prefix stripping.
func (p *OpenRouterProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	modelsPage, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list OpenRouter models: %w", err)
	}

	result := make([]ollama.ModelInfo, 0, len(modelsPage.Data))
	for _, m := range modelsPage.Data {
		result = append(result, ollama.ModelInfo{
			Name:         stripProviderPrefix(m.ID), // display: "llama-3.2-90b-instruct"
			InternalName: m.ID,                      // API: "meta-llama/llama-3.2-90b-instruct"
			Size:         0,                         // OpenRouter doesn't provide size
			Provider:     "openrouter",
		})
	}

	return result, nil
}

// GetModel implements chat.Provider.GetModel.
// Returns the full model name with vendor prefix for API calls.
func (p *OpenRouterProvider) GetModel() string {
	return p.model
}

// GetDisplayName implements chat.Provider.GetDisplayName.
// Example: "qwen/qwen3-coder:free" → "qwen3-coder:free"
func (p *OpenRouterProvider) GetDisplayName() string {
	return stripProviderPrefix(p.model)
}

// SetModel implements chat.Provider.SetModel.
func (p *OpenRouterProvider) SetModel(model string) {
	p.model = model
}

// Ping implements chat.Provider.Ping by attempting to list models.
func (p *OpenRouterProvider) Ping(ctx context.Context) error {
	_, err := p.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("OpenRouter ping failed: %w", err)
	}
	return nil
}

// stripProviderPrefix removes vendor prefixes from OpenRouter model names.
// "meta-llama/llama-3.2-90b-instruct" → "llama-3.2-90b-instruct"
func stripProviderPrefix(modelName string) string {
	if idx := strings.Index(modelName, "/"); idx != -1 {
		return modelName[idx+1:]
	}
	return modelName
}

// ConvertToOpenAIMessages converts anvil messages to OpenAI format.
func ConvertToOpenAIMessages(messages []chat.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, len(messages))

	for i, msg := range messages {
		switch msg.Role {
		case chat.RoleSystem:
			result[i] = openai.SystemMessage(msg.Content)
		case chat.RoleUser:
			result[i] = openai.UserMessage(msg.Content)
		case chat.RoleAssistant:
			result[i] = openai.AssistantMessage(msg.Content)
		case chat.RoleTool:
			// Tool results travel as user messages; anvil's tool calls
			// don't carry provider-native call IDs across turns
			result[i] = openai.UserMessage(msg.Content)
		default:
			result[i] = openai.UserMessage(msg.Content)
		}
	}

	return result
}
