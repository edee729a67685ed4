package provider

import (
	"encoding/json"

	"anvil/chat"

	"github.com/ollama/ollama/api"
)

// ConvertToOllamaMessages converts anvil chat messages to Ollama api.Message.
//
// Timestamps and tool call metadata are not preserved; the Ollama API has no
// fields for them. Tool messages carry their textual payload (result or
// error) as content, which the orchestrator has already composed.
func ConvertToOllamaMessages(messages []chat.Message) []api.Message {
	result := make([]api.Message, len(messages))
	for i, msg := range messages {
		result[i] = api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}
	return result
}

// ParseToolArguments parses a JSON arguments string into a map.
// Used by the OpenAI and OpenRouter providers for tool call parsing.
func ParseToolArguments(argsJSON string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return make(map[string]any)
	}
	return args
}

// ConvertToProviderToolCalls converts Ollama api.ToolCall to anvil tool
// calls in tool_request state. Ollama surfaces calls whole, so every
// parameter is already complete.
//
// Returns nil for empty input, matching the Ollama API's nil semantics.
func ConvertToProviderToolCalls(ollamaCalls []api.ToolCall) []*chat.ToolCall {
	if len(ollamaCalls) == 0 {
		return nil
	}

	result := make([]*chat.ToolCall, len(ollamaCalls))
	for i, call := range ollamaCalls {
		result[i] = chat.NewToolCall(call.Function.Name, call.Function.Arguments)
	}
	return result
}
