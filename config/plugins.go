package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type PluginConfigEntry struct {
	Enabled       bool              `toml:"enabled"`
	Command       string            `toml:"command"` // executable that speaks MCP over stdio
	Args          []string          `toml:"args,omitempty"`
	Env           map[string]string `toml:"env,omitempty"`
	Config        map[string]string `toml:"config,omitempty"`         // non-sensitive OR all values if plaintext
	SensitiveKeys []string          `toml:"sensitive_keys,omitempty"` // keys stored in CredentialStore
}

type PluginsConfig struct {
	Plugins map[string]PluginConfigEntry `toml:"plugins"`
}

func LoadPluginsConfig(dataDir string) (*PluginsConfig, error) {
	pluginsConfigPath := filepath.Join(dataDir, "plugins.toml")

	if _, err := os.Stat(pluginsConfigPath); os.IsNotExist(err) {
		return &PluginsConfig{
			Plugins: make(map[string]PluginConfigEntry),
		}, nil
	}

	var config PluginsConfig
	if _, err := toml.DecodeFile(pluginsConfigPath, &config); err != nil {
		return nil, fmt.Errorf("failed to decode plugins config: %w", err)
	}

	if config.Plugins == nil {
		config.Plugins = make(map[string]PluginConfigEntry)
	}

	return &config, nil
}

func SavePluginsConfig(dataDir string, config *PluginsConfig) error {
	pluginsConfigPath := filepath.Join(dataDir, "plugins.toml")

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// 0600 - plugin config can carry secrets in plaintext mode
	f, err := os.OpenFile(pluginsConfigPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create plugins config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode plugins config: %w", err)
	}

	return nil
}

func (pc *PluginsConfig) GetPluginEnabled(pluginID string) bool {
	entry, exists := pc.Plugins[pluginID]
	if !exists {
		return false
	}
	return entry.Enabled
}

func (pc *PluginsConfig) SetPluginEnabled(pluginID string, enabled bool) {
	if pc.Plugins == nil {
		pc.Plugins = make(map[string]PluginConfigEntry)
	}

	entry, exists := pc.Plugins[pluginID]
	if !exists {
		entry = PluginConfigEntry{
			Config: make(map[string]string),
		}
	}

	entry.Enabled = enabled
	pc.Plugins[pluginID] = entry
}

func (pc *PluginsConfig) GetPluginConfig(pluginID string) map[string]string {
	entry, exists := pc.Plugins[pluginID]
	if !exists || entry.Config == nil {
		return make(map[string]string)
	}
	return entry.Config
}

func (pc *PluginsConfig) SetPluginConfig(pluginID string, config map[string]string) {
	if pc.Plugins == nil {
		pc.Plugins = make(map[string]PluginConfigEntry)
	}

	entry := pc.Plugins[pluginID]
	entry.Config = config
	pc.Plugins[pluginID] = entry
}

func (pc *PluginsConfig) DeletePlugin(pluginID string) {
	if pc.Plugins == nil {
		return
	}
	delete(pc.Plugins, pluginID)
}

// isSensitiveKey determines if a key contains sensitive data
func isSensitiveKey(key string) bool {
	upperKey := strings.ToUpper(key)
	sensitiveWords := []string{"KEY", "TOKEN", "SECRET", "PASSWORD", "AUTH", "CREDENTIAL", "BEARER"}
	for _, word := range sensitiveWords {
		if strings.Contains(upperKey, word) {
			return true
		}
	}
	return false
}

// SavePluginConfigSecure saves plugin config, routing sensitive values to
// the credential store when SSH key encryption is enabled
func SavePluginConfigSecure(cfg *Config, dataDir string, pluginsConfig *PluginsConfig, pluginID string, configValues map[string]string) error {
	switch cfg.Security.CredentialStorage {
	case string(SecuritySSHKey):
		sensitiveKeys := []string{}
		plaintextConfig := make(map[string]string)

		for key, value := range configValues {
			if isSensitiveKey(key) {
				if err := cfg.CredentialStore.SetPlugin(pluginID, key, value); err != nil {
					return fmt.Errorf("failed to save sensitive key %s: %w", key, err)
				}
				sensitiveKeys = append(sensitiveKeys, key)
			} else {
				plaintextConfig[key] = value
			}
		}

		pluginsConfig.Plugins[pluginID] = PluginConfigEntry{
			Enabled:       pluginsConfig.GetPluginEnabled(pluginID),
			Config:        plaintextConfig,
			SensitiveKeys: sensitiveKeys,
		}

		return cfg.CredentialStore.Save(dataDir)

	case string(SecurityPlainText):
		pluginsConfig.Plugins[pluginID] = PluginConfigEntry{
			Enabled:       pluginsConfig.GetPluginEnabled(pluginID),
			Config:        configValues,
			SensitiveKeys: []string{},
		}
		return nil

	default:
		return fmt.Errorf("unknown security method: %s", cfg.Security.CredentialStorage)
	}
}

// LoadPluginConfigSecure loads plugin config, pulling sensitive values
// back out of the credential store when SSH key encryption is enabled
func LoadPluginConfigSecure(cfg *Config, pluginsConfig *PluginsConfig, pluginID string) (map[string]string, error) {
	entry, exists := pluginsConfig.Plugins[pluginID]
	if !exists {
		return make(map[string]string), nil
	}

	result := make(map[string]string)
	for key, value := range entry.Config {
		result[key] = value
	}

	switch cfg.Security.CredentialStorage {
	case string(SecuritySSHKey):
		for _, key := range entry.SensitiveKeys {
			value := cfg.CredentialStore.GetPlugin(pluginID, key)
			if value == "" {
				continue
			}
			result[key] = value
		}
	case string(SecurityPlainText):
		// all values already loaded from Config
	default:
		return nil, fmt.Errorf("unknown security method: %s", cfg.Security.CredentialStorage)
	}

	return result, nil
}
