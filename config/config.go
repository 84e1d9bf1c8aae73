package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported values
const (
	BackendLocal  = "local"
	BackendRemote = "remote"

	IsolationNone   = "none"
	IsolationDocker = "docker"
	IsolationPodman = "podman"

	QueryEngineCLI      = "cli"
	QueryEngineEmbedded = "embedded"

	TransportNone  = "none"
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	MCP       MCPConfig                 `mapstructure:"mcp"`
	Sandbox   SandboxConfig             `mapstructure:"sandbox"`
	Remote    RemoteConfig              `mapstructure:"remote"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Assistant AssistantConfig           `mapstructure:"assistant"`
	Languages map[string]LanguageConfig `mapstructure:"languages"`
}

// ServerConfig holds HTTP API configuration
type ServerConfig struct {
	HTTPPort        int `mapstructure:"http_port"`
	ReadTimeoutSec  int `mapstructure:"read_timeout_sec"`
	WriteTimeoutSec int `mapstructure:"write_timeout_sec"`
}

// MCPConfig holds Model Context Protocol transport configuration
type MCPConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// SandboxConfig holds sandbox configuration
type SandboxConfig struct {
	Backend            string `mapstructure:"backend"`
	TimeoutMS          int    `mapstructure:"timeout_ms"`
	OutputLimitBytes   int    `mapstructure:"output_limit_bytes"`
	WorkspaceRoot      string `mapstructure:"workspace_root"`
	Isolation          string `mapstructure:"isolation"`
	MemoryMB           int    `mapstructure:"memory_mb"`
	NetworkEnabled     bool   `mapstructure:"network_enabled"`
	QueryEngine        string `mapstructure:"query_engine"`
	JanitorSchedule    string `mapstructure:"janitor_schedule"`
	JanitorMaxAge      string `mapstructure:"janitor_max_age"`
	EnableLocalBackend bool   `mapstructure:"enable_local_backend"`
	LanguagesFile      string `mapstructure:"languages_file"`
}

// RemoteConfig holds the remote execution service configuration
type RemoteConfig struct {
	URL              string `mapstructure:"url"`
	RunTimeoutMS     int    `mapstructure:"run_timeout_ms"`
	CompileTimeoutMS int    `mapstructure:"compile_timeout_ms"`
	HTTPTimeoutSec   int    `mapstructure:"http_timeout_sec"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// AssistantConfig holds the AI assistant collaborator configuration
type AssistantConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// LanguageConfig overrides deployment specific settings of a language.
// Environment entries are KEY=VALUE strings; a list keeps the key case that
// viper would lower-case in a map.
type LanguageConfig struct {
	Image       string   `mapstructure:"image"`
	Version     string   `mapstructure:"version"`
	Environment []string `mapstructure:"environment"`
}

// New loads and validates the application configuration from the default locations
func New() (*Config, error) {
	return Load("")
}

// Load loads and validates the application configuration. An empty path
// searches for config.yaml in the working directory and ./config.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("CODERUN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("assistant.api_key", "CODERUN_ASSISTANT_API_KEY", "OPENAI_API_KEY")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout_sec", 15)
	v.SetDefault("server.write_timeout_sec", 60)

	v.SetDefault("mcp.transport", TransportNone)
	v.SetDefault("mcp.http_port", 8081)

	v.SetDefault("sandbox.backend", BackendLocal)
	v.SetDefault("sandbox.timeout_ms", 10000)
	v.SetDefault("sandbox.output_limit_bytes", 50000)
	v.SetDefault("sandbox.workspace_root", os.TempDir())
	v.SetDefault("sandbox.isolation", IsolationNone)
	v.SetDefault("sandbox.memory_mb", 256)
	v.SetDefault("sandbox.network_enabled", false)
	v.SetDefault("sandbox.query_engine", QueryEngineCLI)
	v.SetDefault("sandbox.janitor_schedule", "@every 5m")
	v.SetDefault("sandbox.janitor_max_age", "10m")
	v.SetDefault("sandbox.enable_local_backend", true)

	v.SetDefault("remote.url", "https://emkc.org/api/v2/piston/execute")
	v.SetDefault("remote.run_timeout_ms", 3000)
	v.SetDefault("remote.compile_timeout_ms", 10000)
	v.SetDefault("remote.http_timeout_sec", 30)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")

	v.SetDefault("assistant.base_url", "https://api.openai.com/v1")
	v.SetDefault("assistant.model", "gpt-4o-mini")
}

// validate ensures the configuration is valid
//
//nolint:gocyclo // Flat list of independent checks
func (c *Config) validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid server.http_port: %d", c.Server.HTTPPort)
	}

	switch c.MCP.Transport {
	case TransportNone, TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("invalid mcp.transport: %s, must be 'none', 'stdio' or 'http'", c.MCP.Transport)
	}

	if c.MCP.Transport == TransportHTTP && c.MCP.HTTPPort == c.Server.HTTPPort {
		return fmt.Errorf("mcp.http_port must differ from server.http_port, both are %d", c.MCP.HTTPPort)
	}

	if c.Sandbox.TimeoutMS <= 0 {
		return fmt.Errorf("sandbox.timeout_ms must be positive, got: %d", c.Sandbox.TimeoutMS)
	}

	if c.Sandbox.OutputLimitBytes <= 0 {
		return fmt.Errorf("sandbox.output_limit_bytes must be positive, got: %d", c.Sandbox.OutputLimitBytes)
	}

	if c.Sandbox.MemoryMB <= 0 {
		return fmt.Errorf("sandbox.memory_mb must be positive, got: %d", c.Sandbox.MemoryMB)
	}

	supportedBackends := map[string]bool{
		BackendRemote: true,
		BackendLocal:  c.Sandbox.EnableLocalBackend, // local only enabled if specifically allowed
	}

	if !supportedBackends[c.Sandbox.Backend] {
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	switch c.Sandbox.Isolation {
	case IsolationNone, IsolationDocker, IsolationPodman:
	default:
		return fmt.Errorf("invalid sandbox.isolation: %s, must be 'none', 'docker' or 'podman'", c.Sandbox.Isolation)
	}

	switch c.Sandbox.QueryEngine {
	case QueryEngineCLI, QueryEngineEmbedded:
	default:
		return fmt.Errorf("invalid sandbox.query_engine: %s, must be 'cli' or 'embedded'", c.Sandbox.QueryEngine)
	}

	if c.Sandbox.JanitorMaxAge != "" {
		maxAge, err := time.ParseDuration(c.Sandbox.JanitorMaxAge)
		if err != nil {
			return fmt.Errorf("invalid sandbox.janitor_max_age: %w", err)
		}
		// a workspace lives through a compile and a run, each bounded by the timeout
		if floor := 2*c.GetTimeout() + time.Minute; maxAge < floor {
			return fmt.Errorf("sandbox.janitor_max_age must be at least %s for sandbox.timeout_ms %d, got: %s",
				floor, c.Sandbox.TimeoutMS, maxAge)
		}
	}

	if c.Sandbox.Backend == BackendRemote {
		if c.Remote.URL == "" {
			return fmt.Errorf("remote.url is required for the remote backend")
		}
		if c.Remote.RunTimeoutMS <= 0 || c.Remote.CompileTimeoutMS <= 0 {
			return fmt.Errorf("remote.run_timeout_ms and remote.compile_timeout_ms must be positive")
		}
	}

	switch c.Logging.Mode {
	case "production", "development":
	default:
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "dpanic", "panic", "fatal":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	return nil
}

// GetTimeout returns the execution timeout as a duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutMS) * time.Millisecond
}

// GetJanitorMaxAge returns the age after which an abandoned workspace is swept
func (c *Config) GetJanitorMaxAge() time.Duration {
	d, err := time.ParseDuration(c.Sandbox.JanitorMaxAge)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}
