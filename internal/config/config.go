// Package config loads client configuration from a YAML file and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds all client configuration.
type Config struct {
	// Remote drive API
	BaseURL     string   `yaml:"base_url"`
	HTTPTimeout Duration `yaml:"http_timeout"`

	// Upload
	ChunkSize int64 `yaml:"chunk_size"`

	// Async operation polling
	PollInterval Duration `yaml:"poll_interval"`

	// Auth
	TokenFile    string `yaml:"token_file"`
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Metrics (empty = disabled)
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		BaseURL:      "https://graph.microsoft.com/v1.0/me/drive",
		HTTPTimeout:  Duration(60 * time.Second),
		ChunkSize:    62914560, // 60 MiB, the largest window the upload API accepts
		PollInterval: Duration(time.Second),
		TokenFile:    defaultTokenFile(),
		LogLevel:     "info",
		LogFormat:    "console",
	}
}

// Load reads configuration from the given YAML file (if it exists), then
// applies environment variable overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.BaseURL = envOr("POMELO_BASE_URL", cfg.BaseURL)
	cfg.HTTPTimeout = Duration(envDuration("POMELO_HTTP_TIMEOUT", cfg.HTTPTimeout.Std()))
	cfg.ChunkSize = envInt64("POMELO_CHUNK_SIZE", cfg.ChunkSize)
	cfg.PollInterval = Duration(envDuration("POMELO_POLL_INTERVAL", cfg.PollInterval.Std()))
	cfg.TokenFile = envOr("POMELO_TOKEN_FILE", cfg.TokenFile)
	cfg.TokenURL = envOr("POMELO_TOKEN_URL", cfg.TokenURL)
	cfg.ClientID = envOr("POMELO_CLIENT_ID", cfg.ClientID)
	cfg.ClientSecret = envOr("POMELO_CLIENT_SECRET", cfg.ClientSecret)
	cfg.LogLevel = envOr("POMELO_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOr("POMELO_LOG_FORMAT", cfg.LogFormat)
	cfg.MetricsAddr = envOr("POMELO_METRICS_ADDR", cfg.MetricsAddr)

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base_url is required")
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk_size must be positive")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll_interval must be positive")
	}

	return cfg, nil
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pomelo-token.json"
	}
	return filepath.Join(home, ".pomelo", "token.json")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
