package provider

import (
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Tool instruction prompts, tuned per provider family. The body is shared:
// the point is to push models toward executing tools instead of narrating
// them, which is also what the narration detector in the agent package
// guards against.

func toolInstructionBody(tools []mcptypes.Tool) string {
	toolNames := make([]string, 0, len(tools))
	for _, tool := range tools {
		toolNames = append(toolNames, tool.Name)
	}

	return strings.Join([]string{
		"TOOLS: " + strings.Join(toolNames, ", "),
		"",
		"When the user asks you to do something that requires a tool:",
		"1. Determine which tool is needed",
		"2. Check if you have all required parameters",
		"3. If yes: Execute the tool IMMEDIATELY without explanation",
		"4. If no: Ask for the missing parameter ONLY",
		"",
		"DO NOT:",
		"- List available tools",
		"- Explain what you're about to do",
		"- Ask 'what would you like me to do?'",
		"",
		"Example:",
		"User: 'Read Dockerfile'",
		"You: [call read_file('Dockerfile')]",
		"NOT: 'I can read files. What would you like?'",
	}, "\n")
}

// buildOpenAIToolInstructions creates tool instructions for OpenAI models.
func buildOpenAIToolInstructions(tools []mcptypes.Tool) string {
	return toolInstructionBody(tools)
}

// buildAnthropicToolInstructions creates tool instructions for Claude models.
func buildAnthropicToolInstructions(tools []mcptypes.Tool) string {
	return toolInstructionBody(tools)
}

// buildOpenRouterToolInstructions creates tool instructions for OpenRouter.
// Tool names here are already underscore-converted for OpenRouter's name
// restrictions, so the prompt matches what the API sees.
func buildOpenRouterToolInstructions(tools []mcptypes.Tool) string {
	return toolInstructionBody(tools)
}
