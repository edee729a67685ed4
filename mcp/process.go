package mcp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"anvil/config"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// ProcessManager supervises MCP plugin child processes over stdio.
type ProcessManager struct {
	processes map[string]*PluginProcess
	mu        sync.RWMutex
}

func NewProcessManager() *ProcessManager {
	return &ProcessManager{
		processes: make(map[string]*PluginProcess),
	}
}

// StartPlugin launches a plugin process, initializes the MCP session and
// caches the tool list it advertises.
func (pm *ProcessManager) StartPlugin(ctx context.Context, cfg PluginConfig) error {
	pm.mu.Lock()
	if proc := pm.processes[cfg.ID]; proc != nil && proc.Running {
		pm.mu.Unlock()
		return fmt.Errorf("plugin %s already running", cfg.ID)
	}
	pm.mu.Unlock()

	mcpClient, cmd, err := pm.createStdioClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to start plugin %s: %w", cfg.ID, err)
	}

	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: "2025-06-18",
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    "anvil",
				Version: "1.0.0",
			},
		},
	}

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("failed to initialize plugin %s: %w", cfg.ID, err)
	}

	toolsResult, err := mcpClient.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list tools for %s: %w", cfg.ID, err)
	}

	pm.mu.Lock()
	pm.processes[cfg.ID] = &PluginProcess{
		ID:      cfg.ID,
		Command: cfg.Command,
		Args:    cfg.Args,
		Process: cmd,
		Client:  mcpClient,
		Tools:   toolsResult.Tools,
		Running: true,
	}
	pm.mu.Unlock()

	if config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Plugin '%s' started with %d tools", cfg.ID, len(toolsResult.Tools))
	}
	return nil
}

// StopPlugin closes the plugin's client session and kills the child
// process if closing didn't take it down.
func (pm *ProcessManager) StopPlugin(ctx context.Context, pluginID string) error {
	pm.mu.Lock()
	proc, exists := pm.processes[pluginID]
	if !exists {
		pm.mu.Unlock()
		return fmt.Errorf("plugin %s not found", pluginID)
	}
	// Remove from the map first so nothing dispatches to a dying plugin
	proc.Running = false
	delete(pm.processes, pluginID)
	pm.mu.Unlock()

	if proc.Client != nil {
		closeCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
		defer cancel()

		closeDone := make(chan error, 1)
		go func() {
			closeDone <- proc.Client.Close()
		}()

		select {
		case <-closeDone:
		case <-closeCtx.Done():
			if config.DebugLog != nil {
				config.DebugLog.Printf("[MCP] Plugin '%s' did not close within timeout", pluginID)
			}
		}
	}

	if proc.Process != nil && proc.Process.Process != nil {
		if err := proc.Process.Process.Kill(); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[MCP] Failed to kill plugin '%s': %v", pluginID, err)
		}
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Plugin '%s' stopped", pluginID)
	}
	return nil
}

// GetClient returns the MCP client for a running plugin.
func (pm *ProcessManager) GetClient(pluginID string) (*client.Client, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	proc, exists := pm.processes[pluginID]
	if !exists || !proc.Running {
		return nil, fmt.Errorf("plugin %s not running", pluginID)
	}
	return proc.Client, nil
}

// GetTools returns the cached tool list for a running plugin.
func (pm *ProcessManager) GetTools(pluginID string) ([]mcptypes.Tool, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	proc, exists := pm.processes[pluginID]
	if !exists || !proc.Running {
		return nil, fmt.Errorf("plugin %s not running", pluginID)
	}
	return proc.Tools, nil
}

// RunningPlugins returns the IDs of all running plugins.
func (pm *ProcessManager) RunningPlugins() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	ids := make([]string, 0, len(pm.processes))
	for id, proc := range pm.processes {
		if proc.Running {
			ids = append(ids, id)
		}
	}
	return ids
}

// Shutdown stops all plugins in parallel.
func (pm *ProcessManager) Shutdown(ctx context.Context) error {
	pm.mu.Lock()
	pluginIDs := make([]string, 0, len(pm.processes))
	for id := range pm.processes {
		pluginIDs = append(pluginIDs, id)
	}
	pm.mu.Unlock()

	var wg sync.WaitGroup
	errChan := make(chan error, len(pluginIDs))

	for _, pluginID := range pluginIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := pm.StopPlugin(ctx, id); err != nil {
				errChan <- err
			}
		}(pluginID)
	}

	wg.Wait()
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to stop %d plugins: %v", len(errs), errs)
	}
	return nil
}

// createStdioClient launches the plugin binary and wires an MCP client to
// its stdio. The command func captures the exec.Cmd so StopPlugin can kill
// a process whose client refuses to close.
func (pm *ProcessManager) createStdioClient(ctx context.Context, cfg PluginConfig) (*client.Client, *exec.Cmd, error) {
	env := pluginEnv(cfg.Env, cfg.Config)
	var capturedCmd *exec.Cmd

	cmdFunc := func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = env
		capturedCmd = cmd
		return cmd, nil
	}

	mcpClient, err := client.NewStdioMCPClientWithOptions(
		cfg.Command,
		env,
		cfg.Args,
		transport.WithCommandFunc(cmdFunc),
	)
	if err != nil {
		return nil, nil, err
	}

	if capturedCmd != nil && capturedCmd.Process != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Started plugin '%s' with PID %d", cfg.ID, capturedCmd.Process.Pid)
	}
	return mcpClient, capturedCmd, nil
}

// pluginEnv builds the child environment: the parent environment plus the
// plugin's env vars plus its config values. Config values win.
func pluginEnv(envMap, configMap map[string]string) []string {
	env := os.Environ()
	for k, v := range envMap {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	for k, v := range configMap {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
