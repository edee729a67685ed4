package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

type OllamaConfig struct {
	Host         string `toml:"host"`
	DefaultModel string `toml:"default_model"`
}

type ProviderConfig struct {
	ID      string `toml:"id"`
	Name    string `toml:"name"`
	Enabled bool   `toml:"enabled"`
	BaseURL string `toml:"base_url,omitempty"`
}

type SecurityConfig struct {
	CredentialStorage string `toml:"credential_storage"` // "plaintext" or "ssh_key"
	SSHKeyPath        string `toml:"ssh_key_path,omitempty"`
}

// RetryConfig tunes retries for transient provider failures.
// Delays are in milliseconds so they round-trip cleanly through TOML.
type RetryConfig struct {
	MaxRetries     int     `toml:"max_retries"`
	InitialDelayMS int     `toml:"initial_delay_ms"`
	MaxDelayMS     int     `toml:"max_delay_ms"`
	Multiplier     float64 `toml:"multiplier"`
}

type ToolsConfig struct {
	Workspace     string   `toml:"workspace,omitempty"`
	MaxIterations int      `toml:"max_iterations"`
	AutoApprove   []string `toml:"auto_approve,omitempty"`
	AlwaysAsk     []string `toml:"always_ask,omitempty"`
}

type UserConfig struct {
	Ollama              OllamaConfig     `toml:"ollama"`
	Providers           []ProviderConfig `toml:"providers,omitempty"`
	Security            SecurityConfig   `toml:"security"`
	Retry               RetryConfig      `toml:"retry"`
	Tools               ToolsConfig      `toml:"tools"`
	DefaultSystemPrompt string           `toml:"default_system_prompt,omitempty"`
	DefaultChatMode     string           `toml:"default_chat_mode,omitempty"`
	PluginsEnabled      bool             `toml:"plugins_enabled"`
}

// Config is the resolved runtime configuration: system + user settings
// merged, paths expanded, credentials loaded.
type Config struct {
	DataDirectory       string
	OllamaHost          string
	DefaultModel        string
	DefaultSystemPrompt string
	DefaultChatMode     string
	Providers           []ProviderConfig
	Security            SecurityConfig
	Retry               RetryConfig
	Tools               ToolsConfig
	PluginsEnabled      bool
	CredentialStore     *CredentialStore
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// WorkspaceDir returns the directory file tools operate in.
// Defaults to the current working directory when unset.
func (c *Config) WorkspaceDir() string {
	if c.Tools.Workspace != "" {
		return ExpandPath(c.Tools.Workspace)
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func (c *Config) applyEnvOverrides() {
	if host := os.Getenv("ANVIL_OLLAMA_HOST"); host != "" {
		c.OllamaHost = host
	}
	if model := os.Getenv("ANVIL_MODEL"); model != "" {
		c.DefaultModel = model
	}
	if dataDir := os.Getenv("ANVIL_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
	if ws := os.Getenv("ANVIL_WORKSPACE"); ws != "" {
		c.Tools.Workspace = ws
	}
	if mode := os.Getenv("ANVIL_CHAT_MODE"); mode != "" {
		c.DefaultChatMode = mode
	}
}

func CheckDebug() bool {
	debug := os.Getenv("ANVIL_DEBUG")
	return debug == "true" || debug == "1"
}

func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	// 0600 - debug output can include request payloads
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (ANVIL_DEBUG=%s) ===", os.Getenv("ANVIL_DEBUG"))
	DebugLog.Printf("Log path: %s", logPath)
}

func HasAllEnvVars() bool {
	return os.Getenv("ANVIL_OLLAMA_HOST") != "" &&
		os.Getenv("ANVIL_MODEL") != "" &&
		os.Getenv("ANVIL_DATA_DIR") != ""
}

func Load() (*Config, error) {
	cfg := &Config{
		DataDirectory:   "~/.local/share/anvil",
		OllamaHost:      "http://localhost:11434",
		DefaultModel:    "qwen2.5-coder:latest",
		DefaultChatMode: "normal",
		Retry:           DefaultRetryConfig(),
		Tools:           DefaultToolsConfig(),
		Security:        SecurityConfig{CredentialStorage: string(SecurityPlainText)},
	}

	settingsPath := GetSettingsFilePath()
	if FileExists(settingsPath) || !HasAllEnvVars() {
		systemCfg, err := LoadSystemConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load system config: %w", err)
		}
		cfg.DataDirectory = systemCfg.DataDirectory

		userCfg, err := LoadUserConfig(cfg.DataDir())
		if err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
		cfg.applyUserConfig(userCfg)
	}
	cfg.applyEnvOverrides()

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	store := NewCredentialStore(SecurityMethod(cfg.Security.CredentialStorage), ExpandPath(cfg.Security.SSHKeyPath))
	if err := store.Load(dataDir); err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	cfg.CredentialStore = store

	return cfg, nil
}

func (c *Config) applyUserConfig(userCfg *UserConfig) {
	c.OllamaHost = userCfg.Ollama.Host
	c.DefaultModel = userCfg.Ollama.DefaultModel
	c.DefaultSystemPrompt = userCfg.DefaultSystemPrompt
	c.Providers = userCfg.Providers
	c.PluginsEnabled = userCfg.PluginsEnabled
	if userCfg.DefaultChatMode != "" {
		c.DefaultChatMode = userCfg.DefaultChatMode
	}
	if userCfg.Security.CredentialStorage != "" {
		c.Security = userCfg.Security
	}
	if userCfg.Retry.MaxRetries > 0 || userCfg.Retry.InitialDelayMS > 0 {
		c.Retry = userCfg.Retry
	}
	if userCfg.Tools.MaxIterations > 0 || userCfg.Tools.Workspace != "" ||
		len(userCfg.Tools.AutoApprove) > 0 || len(userCfg.Tools.AlwaysAsk) > 0 {
		merged := DefaultToolsConfig()
		if userCfg.Tools.MaxIterations > 0 {
			merged.MaxIterations = userCfg.Tools.MaxIterations
		}
		merged.Workspace = userCfg.Tools.Workspace
		merged.AutoApprove = userCfg.Tools.AutoApprove
		merged.AlwaysAsk = userCfg.Tools.AlwaysAsk
		c.Tools = merged
	}
}
