package mcp

import (
	"os/exec"

	"github.com/mark3labs/mcp-go/client"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// PluginProcess tracks one running MCP plugin: the stdio child process,
// its client handle, and the tools it advertised at startup.
type PluginProcess struct {
	ID      string
	Command string
	Args    []string
	Process *exec.Cmd
	Client  *client.Client
	Tools   []mcptypes.Tool
	Running bool
}

// PluginConfig describes how to launch a plugin. Env carries plain
// environment variables; Config carries user-configured values (already
// resolved from the credential store) that are also exported as env vars.
type PluginConfig struct {
	ID      string
	Command string
	Args    []string
	Env     map[string]string
	Config  map[string]string
}
