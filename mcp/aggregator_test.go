package mcp

import (
	"testing"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

func TestParseToolName(t *testing.T) {
	tests := []struct {
		input      string
		wantPlugin string
		wantTool   string
	}{
		{"weather.get_forecast", "weather", "get_forecast"},
		{"github.search.issues", "github", "search.issues"},
		{"read_file", "", "read_file"},
		{"", "", ""},
	}

	for _, tt := range tests {
		plugin, tool := ParseToolName(tt.input)
		if plugin != tt.wantPlugin || tool != tt.wantTool {
			t.Errorf("ParseToolName(%q) = (%q, %q), want (%q, %q)",
				tt.input, plugin, tool, tt.wantPlugin, tt.wantTool)
		}
	}
}

func TestFlattenResult(t *testing.T) {
	t.Run("joins text blocks", func(t *testing.T) {
		result := &mcptypes.CallToolResult{
			Content: []mcptypes.Content{
				mcptypes.TextContent{Type: "text", Text: "first"},
				mcptypes.TextContent{Type: "text", Text: "second"},
			},
		}
		if got := flattenResult(result); got != "first\nsecond" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("empty content", func(t *testing.T) {
		if got := flattenResult(&mcptypes.CallToolResult{}); got != "" {
			t.Errorf("got %q", got)
		}
	})
}

func TestNamespacedToolsSkipsStoppedPlugins(t *testing.T) {
	pm := NewProcessManager()
	ta := NewToolAggregator(pm)

	// nothing running: empty result, not an error
	tools := ta.NamespacedTools([]string{"weather", "github"})
	if len(tools) != 0 {
		t.Errorf("expected no tools, got %d", len(tools))
	}
}
