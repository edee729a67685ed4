package mcp

import (
	"context"

	"anvil/config"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Host owns the plugin processes and presents their tools to the rest of
// the application. It satisfies the tool service's ExternalCaller.
type Host struct {
	processManager *ProcessManager
	aggregator     *ToolAggregator
}

func NewHost() *Host {
	pm := NewProcessManager()
	return &Host{
		processManager: pm,
		aggregator:     NewToolAggregator(pm),
	}
}

// StartFromConfig launches every enabled plugin from the plugins config,
// resolving sensitive config values through the credential store. Plugins
// that fail to start are logged and skipped; one broken plugin should not
// take down the session.
func (h *Host) StartFromConfig(ctx context.Context, cfg *config.Config, pluginsConfig *config.PluginsConfig) {
	for pluginID, entry := range pluginsConfig.Plugins {
		if !entry.Enabled || entry.Command == "" {
			continue
		}

		values, err := config.LoadPluginConfigSecure(cfg, pluginsConfig, pluginID)
		if err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[MCP] Skipping plugin '%s': %v", pluginID, err)
			}
			continue
		}

		pluginCfg := PluginConfig{
			ID:      pluginID,
			Command: entry.Command,
			Args:    entry.Args,
			Env:     entry.Env,
			Config:  values,
		}
		if err := h.processManager.StartPlugin(ctx, pluginCfg); err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[MCP] Failed to start plugin '%s': %v", pluginID, err)
			}
		}
	}
}

// Tools returns the namespaced tool definitions of all running plugins.
func (h *Host) Tools() []mcptypes.Tool {
	return h.aggregator.NamespacedTools(h.processManager.RunningPlugins())
}

// CallTool executes a namespaced plugin tool and returns its text result.
func (h *Host) CallTool(ctx context.Context, toolName string, args map[string]any) (string, error) {
	return h.aggregator.ExecuteTool(ctx, toolName, args)
}

// Shutdown stops all plugins.
func (h *Host) Shutdown(ctx context.Context) error {
	return h.processManager.Shutdown(ctx)
}
