package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all service configuration.
type Config struct {
	Server    ServerConfig
	Terminal  TerminalConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8090"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// TerminalConfig holds terminal engine configuration.
type TerminalConfig struct {
	// Root is the default working directory for new sessions.
	// Empty means the user's home directory, falling back to the
	// OS temp directory.
	Root string `envconfig:"TERMCORE_ROOT" default:""`

	// Shell executes plain shell commands via `shell -c <command>`.
	Shell string `envconfig:"TERMCORE_SHELL" default:"/bin/sh"`

	// Languages optionally points at a YAML file overriding the
	// built-in guest-language toolchain registry.
	Languages string `envconfig:"TERMCORE_LANGUAGES" default:""`

	// HistoryLimit bounds the per-session command history ring.
	HistoryLimit int `envconfig:"TERMCORE_HISTORY_LIMIT" default:"200"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8090",
			Host: "0.0.0.0",
		},
		Terminal: TerminalConfig{
			Shell:        "/bin/sh",
			HistoryLimit: 200,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

// SessionRoot resolves the default working directory for new sessions.
func (c *Config) SessionRoot() string {
	if c.Terminal.Root != "" {
		return c.Terminal.Root
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return os.TempDir()
}
