package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.BaseURL == "" {
		t.Error("default BaseURL is empty")
	}
	if cfg.ChunkSize != 62914560 {
		t.Errorf("ChunkSize = %d, want 62914560", cfg.ChunkSize)
	}
	if cfg.PollInterval.Std() != time.Second {
		t.Errorf("PollInterval = %v, want 1s", cfg.PollInterval.Std())
	}
	if cfg.HTTPTimeout.Std() != 60*time.Second {
		t.Errorf("HTTPTimeout = %v, want 60s", cfg.HTTPTimeout.Std())
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
base_url: https://drive.example.com/api
http_timeout: 30s
chunk_size: 1048576
poll_interval: 250ms
log_level: debug
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.BaseURL != "https://drive.example.com/api" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.HTTPTimeout.Std() != 30*time.Second {
		t.Errorf("HTTPTimeout = %v, want 30s", cfg.HTTPTimeout.Std())
	}
	if cfg.ChunkSize != 1048576 {
		t.Errorf("ChunkSize = %d, want 1048576", cfg.ChunkSize)
	}
	if cfg.PollInterval.Std() != 250*time.Millisecond {
		t.Errorf("PollInterval = %v, want 250ms", cfg.PollInterval.Std())
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != Default().BaseURL {
		t.Errorf("BaseURL = %q, want default", cfg.BaseURL)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("base_url: https://from-file\nchunk_size: 100\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("POMELO_BASE_URL", "https://from-env")
	t.Setenv("POMELO_CHUNK_SIZE", "200")
	t.Setenv("POMELO_POLL_INTERVAL", "5s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "https://from-env" {
		t.Errorf("BaseURL = %q, want env value", cfg.BaseURL)
	}
	if cfg.ChunkSize != 200 {
		t.Errorf("ChunkSize = %d, want 200", cfg.ChunkSize)
	}
	if cfg.PollInterval.Std() != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.PollInterval.Std())
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("chunk_size: -1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted a negative chunk size")
	}

	if err := os.WriteFile(path, []byte("http_timeout: banana\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted a malformed duration")
	}
}
