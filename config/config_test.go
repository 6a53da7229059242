package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "medhelp.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.APIURL != "http://localhost:8080/api/v1" {
		t.Errorf("Unexpected api_url %q", cfg.APIURL)
	}
	if cfg.ListenAddr != ":3000" {
		t.Errorf("Unexpected listen_addr %q", cfg.ListenAddr)
	}
	if !cfg.MetricsEnabled {
		t.Error("Expected metrics to be enabled by default")
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("Unexpected request_timeout %s", cfg.RequestTimeout)
	}
	if level, _ := cfg.SlogLevel(); level != slog.LevelInfo {
		t.Errorf("Expected info level, got %s", level)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfigFile(t, `
api_url: https://api.medhelp.example/api/v1
listen_addr: 127.0.0.1:4000
log_level: debug
metrics_enabled: false
request_timeout: 5s
`)

	t.Run("file_values", func(t *testing.T) {
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.APIURL != "https://api.medhelp.example/api/v1" {
			t.Errorf("Unexpected api_url %q", cfg.APIURL)
		}
		if cfg.ListenAddr != "127.0.0.1:4000" || cfg.MetricsEnabled || cfg.RequestTimeout != 5*time.Second {
			t.Errorf("Unexpected config %+v", cfg)
		}
		if level, _ := cfg.SlogLevel(); level != slog.LevelDebug {
			t.Errorf("Expected debug level, got %s", level)
		}
	})

	t.Run("env_overrides_file", func(t *testing.T) {
		t.Setenv("MEDHELP_API_URL", "http://staging:8080/api/v1")
		t.Setenv("MEDHELP_LOG_LEVEL", "warn")

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.APIURL != "http://staging:8080/api/v1" {
			t.Errorf("Expected env api_url, got %q", cfg.APIURL)
		}
		if cfg.LogLevel != "warn" {
			t.Errorf("Expected env log_level, got %q", cfg.LogLevel)
		}
	})
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "bad_api_url", content: "api_url: localhost:8080\n"},
		{name: "bad_log_level", content: "log_level: verbose\n"},
		{name: "zero_timeout", content: "request_timeout: 0s\n"},
		{name: "broken_yaml", content: "api_url: [unterminated\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfigFile(t, tt.content)); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}

	t.Run("missing_explicit_file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("Expected error for a missing explicit config file")
		}
	})
}
