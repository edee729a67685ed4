package config

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/anvil",
	}
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialDelayMS: 1000,
		MaxDelayMS:     10000,
		Multiplier:     2.0,
	}
}

func DefaultToolsConfig() ToolsConfig {
	return ToolsConfig{
		MaxIterations: 25,
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		Ollama: OllamaConfig{
			Host:         "http://localhost:11434",
			DefaultModel: "qwen2.5-coder:latest",
		},
		Security: SecurityConfig{
			CredentialStorage: string(SecurityPlainText),
		},
		Retry:           DefaultRetryConfig(),
		Tools:           DefaultToolsConfig(),
		DefaultChatMode: "normal",
		PluginsEnabled:  false,
	}
}

func GenerateSystemConfigTemplate() string {
	return `# Anvil System Configuration
# Location: ~/.config/anvil/settings.toml
# This file uses TOML format: https://toml.io

# Directory where threads and user config are stored
data_directory = "~/.local/share/anvil"
`
}

func GenerateUserConfigTemplate() string {
	return `# Anvil User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

[ollama]
# Ollama server URL
host = "http://localhost:11434"

# Default model to use when starting a new thread
default_model = "qwen2.5-coder:latest"

# Default system prompt for new threads (optional)
# Example: "You are a helpful coding assistant."
default_system_prompt = ""

# Chat mode for new threads: "normal", "gather", or "agent"
default_chat_mode = "normal"

[security]
# How API keys are stored: "plaintext" or "ssh_key"
# ssh_key encrypts credentials with a key derived from an SSH key signature
credential_storage = "plaintext"
# ssh_key_path = "~/.ssh/anvil_ed25519"

[retry]
# Retries for transient provider errors (HTTP 429, 503, 504)
max_retries = 3
initial_delay_ms = 1000
max_delay_ms = 10000
multiplier = 2.0

[tools]
# Directory file tools operate in (defaults to the working directory)
# workspace = "~/projects/myapp"

# Cap on consecutive tool-calling rounds in a single turn
max_iterations = 25

# Tool names that run without asking (read-only tools already do)
# auto_approve = ["run_command"]

# Tool names that always require approval, even if read-only
# always_ask = ["read_file"]

# Plugin System (disabled by default)
# Enable to use MCP servers for extended tool capabilities
plugins_enabled = false
`
}
