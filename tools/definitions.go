package tools

import (
	"anvil/chat"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Definitions returns the built-in tool schemas offered for a chat mode:
// none in normal mode, read-only tools in gather mode, everything in agent
// mode. External (MCP) tool schemas are appended by the plugin host, not
// here.
func Definitions(mode chat.Mode) []mcptypes.Tool {
	if mode == chat.ModeNormal {
		return nil
	}

	var defs []mcptypes.Tool
	for _, name := range Builtins() {
		if mode == chat.ModeGather && !name.ReadOnly() {
			continue
		}
		defs = append(defs, definitionFor(name))
	}
	return defs
}

func definitionFor(name Name) mcptypes.Tool {
	switch name {
	case NameLsDir:
		return mcptypes.Tool{
			Name:        string(name),
			Description: "List the contents of a directory in the workspace. Directories are listed with a trailing slash.",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Directory to list, relative to the workspace root. Defaults to the root.",
					},
				},
			},
		}
	case NameReadFile:
		return mcptypes.Tool{
			Name:        string(name),
			Description: "Read a file from the workspace and return its contents.",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "File to read, relative to the workspace root.",
					},
				},
				Required: []string{"path"},
			},
		}
	case NameCreateFile:
		return mcptypes.Tool{
			Name:        string(name),
			Description: "Create a new file with the given content. Fails if the file already exists.",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "File to create, relative to the workspace root. Parent directories are created as needed.",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "Content to write. Defaults to an empty file.",
					},
				},
				Required: []string{"path"},
			},
		}
	case NameEditFile:
		return mcptypes.Tool{
			Name:        string(name),
			Description: "Replace text in an existing file. old_text must appear exactly once.",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "File to edit, relative to the workspace root.",
					},
					"old_text": map[string]any{
						"type":        "string",
						"description": "Exact text to replace. Must match exactly one location in the file.",
					},
					"new_text": map[string]any{
						"type":        "string",
						"description": "Replacement text.",
					},
				},
				Required: []string{"path", "old_text", "new_text"},
			},
		}
	case NameSearchFiles:
		return mcptypes.Tool{
			Name:        string(name),
			Description: "Search workspace files for a regular expression. Returns path:line matches.",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"pattern": map[string]any{
						"type":        "string",
						"description": "Regular expression to search for.",
					},
					"path": map[string]any{
						"type":        "string",
						"description": "Directory to search under, relative to the workspace root. Defaults to the root.",
					},
				},
				Required: []string{"pattern"},
			},
		}
	case NameRunCommand:
		return mcptypes.Tool{
			Name:        string(name),
			Description: "Run a shell command in the workspace and return its combined output.",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"command": map[string]any{
						"type":        "string",
						"description": "Shell command to execute.",
					},
				},
				Required: []string{"command"},
			},
		}
	}
	return mcptypes.Tool{Name: string(name)}
}
