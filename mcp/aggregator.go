package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// ToolAggregator presents the tools of all running plugins as one
// namespace. Tool names are exposed as "pluginID.toolName" so calls can be
// routed back to the owning plugin.
type ToolAggregator struct {
	processManager *ProcessManager
}

func NewToolAggregator(pm *ProcessManager) *ToolAggregator {
	return &ToolAggregator{
		processManager: pm,
	}
}

// NamespacedTools returns the advertised tools of the given plugins with
// namespaced names. Plugins that are not running are skipped.
func (ta *ToolAggregator) NamespacedTools(pluginIDs []string) []mcptypes.Tool {
	var allTools []mcptypes.Tool

	for _, pluginID := range pluginIDs {
		tools, err := ta.processManager.GetTools(pluginID)
		if err != nil {
			continue
		}

		for _, tool := range tools {
			namespaced := tool
			namespaced.Name = pluginID + "." + tool.Name
			allTools = append(allTools, namespaced)
		}
	}

	return allTools
}

// ExecuteTool routes a namespaced tool call to its plugin and flattens the
// result into text. A result flagged IsError comes back as a Go error so
// callers treat it like any other tool failure.
func (ta *ToolAggregator) ExecuteTool(ctx context.Context, toolName string, args map[string]any) (string, error) {
	pluginID, actualName := ParseToolName(toolName)
	if pluginID == "" {
		return "", fmt.Errorf("tool %q is not namespaced to a plugin", toolName)
	}

	mcpClient, err := ta.processManager.GetClient(pluginID)
	if err != nil {
		return "", err
	}

	result, err := mcpClient.CallTool(ctx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{
			Name:      actualName,
			Arguments: args,
		},
	})
	if err != nil {
		return "", fmt.Errorf("plugin %s tool %s failed: %w", pluginID, actualName, err)
	}

	text := flattenResult(result)
	if result.IsError {
		return "", fmt.Errorf("plugin %s tool %s returned an error: %s", pluginID, actualName, text)
	}
	return text, nil
}

// ParseToolName splits a namespaced name at the first dot. Names without a
// dot return an empty plugin ID.
func ParseToolName(namespacedName string) (pluginID, toolName string) {
	idx := strings.Index(namespacedName, ".")
	if idx == -1 {
		return "", namespacedName
	}
	return namespacedName[:idx], namespacedName[idx+1:]
}

// flattenResult joins the text content blocks of a tool result. Results
// with no text blocks are JSON-encoded whole so structured content still
// reaches the model.
func flattenResult(result *mcptypes.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if text, ok := content.(mcptypes.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	if len(parts) == 0 && len(result.Content) > 0 {
		if encoded, err := json.Marshal(result.Content); err == nil {
			return string(encoded)
		}
	}
	return strings.Join(parts, "\n")
}
