package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"anvil/chat"
	"anvil/mcp"
	"anvil/ollama"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// AnthropicProvider implements chat.Provider using Anthropic's official Go SDK.
type AnthropicProvider struct {
	client  *anthropic.Client
	model   anthropic.Model
	baseURL string
	apiKey  string
}

// NewAnthropicProvider creates a new Anthropic provider instance.
// Returns an error if the API key is missing.
func NewAnthropicProvider(baseURL, apiKey, model string) (*AnthropicProvider, error) {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	var anthropicModel anthropic.Model
	if model == "" {
		anthropicModel = anthropic.ModelClaudeSonnet4_5_20250929
	} else {
		anthropicModel = anthropic.Model(model)
	}

	client := anthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &AnthropicProvider{
		client:  &client,
		model:   anthropicModel,
		baseURL: baseURL,
		apiKey:  apiKey,
	}, nil
}

// Chat implements chat.Provider.Chat by delegating to ChatWithTools with no tools.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []chat.Message, cb chat.StreamCallback) error {
	return p.ChatWithTools(ctx, messages, nil, cb)
}

// ChatWithTools implements chat.Provider.ChatWithTools with streaming support.
// Tool input streams as partial JSON; it is fed through the argument scanner
// so per-key fragments flow out before the block closes.
func (p *AnthropicProvider) ChatWithTools(ctx context.Context, messages []chat.Message, tools []mcptypes.Tool, cb chat.StreamCallback) error {
	anthropicMessages, systemPrompt := convertToAnthropicMessages(messages)

	// Tool instructions go first, then user-supplied system prompts
	finalSystemPrompt := systemPrompt
	if len(tools) > 0 {
		toolInstructionBlock := anthropic.TextBlockParam{
			Text: buildAnthropicToolInstructions(tools),
		}
		finalSystemPrompt = append([]anthropic.TextBlockParam{toolInstructionBlock}, systemPrompt...)
	}

	params := anthropic.MessageNewParams{
		Model:     p.model,
		Messages:  anthropicMessages,
		MaxTokens: 4096, // required by the Anthropic API
	}

	if len(finalSystemPrompt) > 0 {
		params.System = finalSystemPrompt
	}

	if len(tools) > 0 {
		params.Tools = mcp.ConvertMCPToolsToAnthropicFormat(tools)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	msg := anthropic.Message{}

	// per content block tool-use streaming state, keyed by block index
	scanners := make(map[int64]*argScanner)
	blockIDs := make(map[int64]string)
	blockNames := make(map[int64]string)

	for stream.Next() {
		event := stream.Current()

		if err := msg.Accumulate(event); err != nil {
			return fmt.Errorf("error accumulating message: %w", err)
		}

		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if block, ok := eventVariant.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				scanners[eventVariant.Index] = newArgScanner()
				blockIDs[eventVariant.Index] = block.ID
				blockNames[eventVariant.Index] = block.Name
				if cb != nil {
					ev := chat.StreamEvent{Fragment: &chat.ToolCallFragment{
						ID:   block.ID,
						Name: block.Name,
					}}
					if err := cb(ev); err != nil {
						return err
					}
				}
			}

		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if cb != nil {
					if err := cb(chat.StreamEvent{ContentDelta: deltaVariant.Text}); err != nil {
						return err
					}
				}
			case anthropic.ThinkingDelta:
				if cb != nil {
					if err := cb(chat.StreamEvent{ReasoningDelta: deltaVariant.Thinking}); err != nil {
						return err
					}
				}
			case anthropic.InputJSONDelta:
				scanner := scanners[eventVariant.Index]
				if scanner == nil || cb == nil {
					continue
				}
				for _, se := range scanner.feed(deltaVariant.PartialJSON) {
					ev := chat.StreamEvent{Fragment: &chat.ToolCallFragment{
						ID:         blockIDs[eventVariant.Index],
						Name:       blockNames[eventVariant.Index],
						Key:        se.Key,
						ValueDelta: se.Delta,
						Value:      se.Value,
						KeyDone:    se.Done,
					}}
					if err := cb(ev); err != nil {
						return err
					}
				}
			}

		case anthropic.ContentBlockStopEvent:
			scanner := scanners[eventVariant.Index]
			if scanner == nil || cb == nil {
				continue
			}
			for _, se := range scanner.finish() {
				ev := chat.StreamEvent{Fragment: &chat.ToolCallFragment{
					ID:         blockIDs[eventVariant.Index],
					Name:       blockNames[eventVariant.Index],
					Key:        se.Key,
					ValueDelta: se.Delta,
					Value:      se.Value,
					KeyDone:    se.Done,
				}}
				if err := cb(ev); err != nil {
					return err
				}
			}
			done := chat.StreamEvent{Fragment: &chat.ToolCallFragment{
				ID:       blockIDs[eventVariant.Index],
				Name:     blockNames[eventVariant.Index],
				CallDone: true,
			}}
			if err := cb(done); err != nil {
				return err
			}
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("Anthropic streaming error: %w", err)
	}

	// Deliver the complete parsed calls from the accumulated message
	if cb != nil {
		toolCalls := extractToolCalls(msg.Content)
		if len(toolCalls) > 0 {
			if err := cb(chat.StreamEvent{ToolCalls: toolCalls}); err != nil {
				return err
			}
		}
	}

	return nil
}

// ListModels implements chat.Provider.ListModels.
// Anthropic has no models list API, so this returns a curated list of
// known Claude models for the SDK version in use.
func (p *AnthropicProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	models := []anthropic.Model{
		anthropic.ModelClaudeSonnet4_5_20250929,
		anthropic.ModelClaude3_5Haiku20241022,
		anthropic.ModelClaude_3_Opus_20240229,
		anthropic.ModelClaude_3_Haiku_20240307,
	}

	result := make([]ollama.ModelInfo, 0, len(models))
	for _, m := range models {
		modelStr := string(m)
		result = append(result, ollama.ModelInfo{
			Name:         modelStr,
			InternalName: modelStr,
			Size:         0, // Anthropic doesn't provide size info
			Provider:     "anthropic",
		})
	}

	return result, nil
}

// GetModel implements chat.Provider.GetModel.
func (p *AnthropicProvider) GetModel() string {
	return string(p.model)
}

// GetDisplayName implements chat.Provider.GetDisplayName.
func (p *AnthropicProvider) GetDisplayName() string {
	return string(p.model)
}

// SetModel implements chat.Provider.SetModel.
func (p *AnthropicProvider) SetModel(model string) {
	p.model = anthropic.Model(model)
}

// Ping implements chat.Provider.Ping with a minimal one-token request,
// since Anthropic has no health endpoint.
func (p *AnthropicProvider) Ping(ctx context.Context) error {
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})

	if err != nil {
		return fmt.Errorf("Anthropic ping failed: %w", err)
	}
	return nil
}

// convertToAnthropicMessages converts anvil messages to Anthropic format.
// Returns the message array and any system prompt blocks found.
func convertToAnthropicMessages(messages []chat.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var systemBlocks []anthropic.TextBlockParam
	anthropicMsgs := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleSystem:
			// Anthropic uses a separate system parameter, not the messages array
			systemBlocks = append(systemBlocks, anthropic.TextBlockParam{
				Text: msg.Content,
			})

		case chat.RoleUser:
			anthropicMsgs = append(anthropicMsgs,
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)),
			)

		case chat.RoleAssistant:
			anthropicMsgs = append(anthropicMsgs,
				anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)),
			)

		case chat.RoleTool:
			// Tool results travel as user messages; anvil's tool calls
			// don't carry provider-native block IDs across turns
			anthropicMsgs = append(anthropicMsgs,
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)),
			)

		default:
			anthropicMsgs = append(anthropicMsgs,
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)),
			)
		}
	}

	return anthropicMsgs, systemBlocks
}

// extractToolCalls extracts complete tool calls from accumulated Anthropic
// message content.
func extractToolCalls(content []anthropic.ContentBlockUnion) []*chat.ToolCall {
	var toolCalls []*chat.ToolCall

	for _, block := range content {
		toolUse, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok {
			continue
		}

		var args map[string]any
		if err := json.Unmarshal(toolUse.Input, &args); err != nil {
			// skip calls whose input never became valid JSON
			continue
		}

		call := chat.NewToolCall(toolUse.Name, args)
		if toolUse.ID != "" {
			call.ID = toolUse.ID
		}
		toolCalls = append(toolCalls, call)
	}

	return toolCalls
}
