package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// AnthropicConfig represents configuration for the Anthropic LLM provider.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key,omitempty"` // Anthropic API key
	Model  string `yaml:"model,omitempty"`   // Default model name
}

// OllamaConfig represents configuration for the Ollama LLM provider.
type OllamaConfig struct {
	Host  string `yaml:"host,omitempty"`  // Ollama host (default: "http://localhost:11434")
	Model string `yaml:"model,omitempty"` // Default model name
}

// OpenAIConfig represents configuration for the OpenAI LLM provider.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key,omitempty"`      // OpenAI API key
	BaseURL      string `yaml:"base_url,omitempty"`     // Custom base URL (default: official API)
	Model        string `yaml:"model,omitempty"`        // Default model name
	Organization string `yaml:"organization,omitempty"` // Organization ID
}

// MiniMaxConfig represents configuration for the MiniMax LLM provider.
// MiniMax speaks the OpenAI wire protocol at its own endpoint.
type MiniMaxConfig struct {
	APIKey  string `yaml:"api_key,omitempty"`  // MiniMax API key
	BaseURL string `yaml:"base_url,omitempty"` // Override default MiniMax endpoint
	Model   string `yaml:"model,omitempty"`    // Default model name
}

// PipelineConfig represents configuration for the chat pipeline.
type PipelineConfig struct {
	DisableStreaming      bool `yaml:"disable_streaming,omitempty"`        // Disable streaming responses (enabled by default)
	EnableMetrics         bool `yaml:"enable_metrics,omitempty"`           // Collect stage timing metrics
	MaxToolCallIterations int  `yaml:"max_tool_call_iterations,omitempty"` // Tool loop budget (default: 5)
	RequestTimeout        int  `yaml:"request_timeout,omitempty"`          // Wall-clock budget per request in seconds (default: 300)
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // trace, debug, info, warn, error
	File   string `yaml:"file,omitempty"`   // Log file path (empty = stdout)
	Pretty bool   `yaml:"pretty,omitempty"` // Human-readable console output
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	Path string `yaml:"path,omitempty"` // SQLite database file path
}

// MCPServerConfig represents configuration for an MCP server providing
// additional tools over STDIO.
type MCPServerConfig struct {
	Name    string   `yaml:"name,omitempty"`
	Command string   `yaml:"command,omitempty"` // Executable to launch
	Args    []string `yaml:"args,omitempty"`    // Additional args for the command
	Env     []string `yaml:"env,omitempty"`     // Environment variables for the process
}

// Config is the top-level chatd configuration.
type Config struct {
	// Provider is the name of the default LLM provider: "anthropic",
	// "ollama", "openai", or "minimax".
	Provider string `yaml:"provider,omitempty"`

	// LLM provider configurations
	Anthropic AnthropicConfig `yaml:"anthropic,omitempty"`
	Ollama    OllamaConfig    `yaml:"ollama,omitempty"`
	OpenAI    OpenAIConfig    `yaml:"openai,omitempty"`
	MiniMax   MiniMaxConfig   `yaml:"minimax,omitempty"`

	Pipeline PipelineConfig `yaml:"pipeline,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	Database DatabaseConfig `yaml:"database,omitempty"`

	MCPServers map[string]*MCPServerConfig `yaml:"mcp_servers,omitempty"`
}

// RequestTimeoutDuration returns the configured per-request wall-clock budget.
func (p PipelineConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(p.RequestTimeout) * time.Second
}

// GetConfigPath returns the default config file path.
// Can be overridden via CHATD_CONFIG_PATH environment variable.
func GetConfigPath() string {
	if envPath := os.Getenv("CHATD_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.chatd/config.yaml"
	}
	return filepath.Join(homeDir, ".chatd", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Load loads configuration from the given path, merged onto defaults.
// A missing config file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	defaults := Config{
		Provider: "anthropic",
		Ollama: OllamaConfig{
			Host: "http://localhost:11434",
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
		},
		Pipeline: PipelineConfig{
			MaxToolCallIterations: 5,
			RequestTimeout:        300,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Database: DatabaseConfig{
			Path: defaultDatabasePath(),
		},
		MCPServers: make(map[string]*MCPServerConfig),
	}

	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err != nil {
		return &defaults, nil
	}

	configYAML, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
	}

	var loaded Config
	if err := yaml.Unmarshal(configYAML, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := mergo.Merge(&defaults, loaded, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}

	if defaults.MCPServers == nil {
		defaults.MCPServers = make(map[string]*MCPServerConfig)
	}
	for name, serverCfg := range defaults.MCPServers {
		if serverCfg.Name == "" {
			serverCfg.Name = name
		}
	}

	return &defaults, nil
}

// Save writes the configuration to the specified path.
func Save(cfg *Config, path string) error {
	expandedPath := expandPath(path)

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func defaultDatabasePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.chatd/chatd.db"
	}
	return filepath.Join(homeDir, ".chatd", "chatd.db")
}
