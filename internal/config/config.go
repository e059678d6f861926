package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Resolver ResolverConfig `yaml:"resolver"`
	Download DownloadConfig `yaml:"download"`
	Session  SessionConfig  `yaml:"session"`
	History  HistoryConfig  `yaml:"history"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host        string        `yaml:"host" envconfig:"SERVER_HOST"`
	Port        int           `yaml:"port" envconfig:"SERVER_PORT"`
	AdminAPIKey string        `yaml:"admin_api_key" envconfig:"ADMIN_API_KEY"`
	ReadTimeout time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
	// WriteTimeout bounds the longest proxied transfer.
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT"`
}

// ResolverConfig holds external extraction tool configuration.
type ResolverConfig struct {
	BinaryPath string        `yaml:"binary_path" envconfig:"RESOLVER_BINARY"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"RESOLVER_TIMEOUT"`
	MaxFormats int           `yaml:"max_formats" envconfig:"RESOLVER_MAX_FORMATS"`
}

// DownloadConfig holds upstream fetch configuration.
type DownloadConfig struct {
	// ReadTimeout is the stall bound: the longest the upstream may go
	// silent before the transfer is aborted.
	ReadTimeout time.Duration `yaml:"read_timeout" envconfig:"DOWNLOAD_READ_TIMEOUT"`
	UserAgent   string        `yaml:"user_agent" envconfig:"DOWNLOAD_USER_AGENT"`
}

// SessionConfig holds session registry configuration.
type SessionConfig struct {
	// GraceWindow is how long terminal sessions remain visible before
	// the reaper removes them.
	GraceWindow   time.Duration `yaml:"grace_window" envconfig:"SESSION_GRACE_WINDOW"`
	SweepInterval time.Duration `yaml:"sweep_interval" envconfig:"SESSION_SWEEP_INTERVAL"`
}

// HistoryConfig holds transfer audit log configuration.
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled" envconfig:"HISTORY_ENABLED"`
	Path          string `yaml:"path" envconfig:"HISTORY_PATH"`
	RetentionDays int    `yaml:"retention_days" envconfig:"HISTORY_RETENTION_DAYS"`
}

// Default returns a config populated with built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8743,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Minute,
		},
		Resolver: ResolverConfig{
			BinaryPath: "yt-dlp",
			Timeout:    45 * time.Second,
			MaxFormats: 40,
		},
		Download: DownloadConfig{
			ReadTimeout: 60 * time.Second,
			UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		},
		Session: SessionConfig{
			GraceWindow:   30 * time.Second,
			SweepInterval: 10 * time.Second,
		},
		History: HistoryConfig{
			Path:          "/data/streamrelay/history.db",
			RetentionDays: 30,
		},
	}
}

// Load reads configuration in three layers: built-in defaults, an
// optional YAML file, and environment variables. Later layers override
// earlier ones.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Resolver.BinaryPath == "" {
		return fmt.Errorf("RESOLVER_BINARY is required")
	}
	if c.Resolver.Timeout <= 0 {
		return fmt.Errorf("resolver timeout must be positive")
	}
	if c.Session.GraceWindow < 0 {
		return fmt.Errorf("session grace window cannot be negative")
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("HISTORY_PATH is required when history is enabled")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
