package mcp

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
)

// All tool definitions in anvil use the MCP schema shape internally
// (builtins and plugins alike); these converters translate that shape to
// what each provider SDK expects on the wire.

// ConvertMCPToolsToOllama converts tool definitions to Ollama's api.Tool.
func ConvertMCPToolsToOllama(mcpTools []mcptypes.Tool) []api.Tool {
	ollamaTools := make([]api.Tool, 0, len(mcpTools))

	for _, mcpTool := range mcpTools {
		ollamaTools = append(ollamaTools, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        mcpTool.Name,
				Description: mcpTool.Description,
				Parameters:  toOllamaParameters(mcpTool.InputSchema),
			},
		})
	}

	return ollamaTools
}

func toOllamaParameters(schema mcptypes.ToolInputSchema) api.ToolFunctionParameters {
	params := api.ToolFunctionParameters{
		Type:       schema.Type,
		Required:   schema.Required,
		Properties: make(map[string]api.ToolProperty),
	}
	if schema.Defs != nil {
		params.Defs = schema.Defs
	}
	for name, value := range schema.Properties {
		params.Properties[name] = toOllamaProperty(value)
	}
	return params
}

// toOllamaProperty converts one JSON-schema property. Ollama wants typed
// structs where MCP carries loose maps, so this walks the common fields
// and recurses into anyOf.
func toOllamaProperty(value any) api.ToolProperty {
	prop := api.ToolProperty{}

	propMap, ok := value.(map[string]any)
	if !ok {
		// schemas decoded from typed structs round-trip through JSON
		encoded, err := json.Marshal(value)
		if err != nil {
			return prop
		}
		if err := json.Unmarshal(encoded, &propMap); err != nil {
			return prop
		}
	}

	switch t := propMap["type"].(type) {
	case string:
		prop.Type = api.PropertyType{t}
	case []string:
		prop.Type = api.PropertyType(t)
	case []any:
		types := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				types = append(types, s)
			}
		}
		prop.Type = api.PropertyType(types)
	}

	if desc, ok := propMap["description"].(string); ok {
		prop.Description = desc
	}
	if enum, ok := propMap["enum"].([]any); ok {
		prop.Enum = enum
	}
	if items, ok := propMap["items"]; ok {
		prop.Items = items
	}
	if anyOf, ok := propMap["anyOf"].([]any); ok {
		props := make([]api.ToolProperty, 0, len(anyOf))
		for _, item := range anyOf {
			props = append(props, toOllamaProperty(item))
		}
		prop.AnyOf = props
	}

	return prop
}

// ConvertMCPToolsToOpenAIFormat converts tool definitions to the OpenAI
// chat completions tool format. OpenRouter uses the same wire shape.
func ConvertMCPToolsToOpenAIFormat(mcpTools []mcptypes.Tool) []openai.ChatCompletionToolUnionParam {
	if len(mcpTools) == 0 {
		return nil
	}

	result := make([]openai.ChatCompletionToolUnionParam, len(mcpTools))
	for i, tool := range mcpTools {
		// both sides are JSON Schema, only the envelope differs
		params := openai.FunctionParameters{
			"type":       tool.InputSchema.Type,
			"properties": tool.InputSchema.Properties,
		}
		if len(tool.InputSchema.Required) > 0 {
			params["required"] = tool.InputSchema.Required
		}
		if tool.InputSchema.Defs != nil {
			params["$defs"] = tool.InputSchema.Defs
		}

		result[i] = openai.ChatCompletionFunctionTool(
			openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  params,
			},
		)
	}

	return result
}

// ConvertMCPToolsToAnthropicFormat converts tool definitions to Anthropic
// tool-use params.
func ConvertMCPToolsToAnthropicFormat(mcpTools []mcptypes.Tool) []anthropic.ToolUnionParam {
	if len(mcpTools) == 0 {
		return nil
	}

	result := make([]anthropic.ToolUnionParam, len(mcpTools))
	for i, tool := range mcpTools {
		inputSchema := anthropic.ToolInputSchemaParam{
			// Type defaults to "object" when omitted
			Properties: tool.InputSchema.Properties,
		}
		if len(tool.InputSchema.Required) > 0 {
			inputSchema.Required = tool.InputSchema.Required
		}
		if tool.InputSchema.Defs != nil {
			inputSchema.ExtraFields = map[string]any{
				"$defs": tool.InputSchema.Defs,
			}
		}

		result[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Name)
		if tool.Description != "" {
			result[i].OfTool.Description = anthropic.String(tool.Description)
		}
	}

	return result
}
