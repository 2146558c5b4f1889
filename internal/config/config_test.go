// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "widget.yaml", `
api:
  base_url: "https://app.example.com"
  request_timeout: "10s"

widget:
  id: "wgt_123"

storage:
  path: "./page.db"

analytics:
  flush_interval: "15s"
  session_window: "45m"

chat:
  render_debounce: "50ms"

forms:
  max_upload_bytes: 1048576

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.BaseURL != "https://app.example.com" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.RequestTimeout != 10*time.Second {
		t.Errorf("API.RequestTimeout = %v, want 10s", cfg.API.RequestTimeout)
	}
	if cfg.Widget.ID != "wgt_123" {
		t.Errorf("Widget.ID = %q, want wgt_123", cfg.Widget.ID)
	}
	if cfg.Storage.Path != "./page.db" {
		t.Errorf("Storage.Path = %q", cfg.Storage.Path)
	}
	if cfg.Analytics.FlushInterval != 15*time.Second {
		t.Errorf("Analytics.FlushInterval = %v, want 15s", cfg.Analytics.FlushInterval)
	}
	if cfg.Analytics.SessionWindow != 45*time.Minute {
		t.Errorf("Analytics.SessionWindow = %v, want 45m", cfg.Analytics.SessionWindow)
	}
	if cfg.Chat.RenderDebounce != 50*time.Millisecond {
		t.Errorf("Chat.RenderDebounce = %v, want 50ms", cfg.Chat.RenderDebounce)
	}
	if cfg.Forms.MaxUploadBytes != 1048576 {
		t.Errorf("Forms.MaxUploadBytes = %d", cfg.Forms.MaxUploadBytes)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "widget.toml", `
[api]
base_url = "http://localhost:3000"

[widget]
id = "wgt_toml"

[chat]
render_debounce = "120ms"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Widget.ID != "wgt_toml" {
		t.Errorf("Widget.ID = %q, want wgt_toml", cfg.Widget.ID)
	}
	if cfg.Chat.RenderDebounce != 120*time.Millisecond {
		t.Errorf("Chat.RenderDebounce = %v, want 120ms", cfg.Chat.RenderDebounce)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "widget.yaml", "api:\n  base_url: \"https://app.example.com\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Analytics.FlushInterval != DefaultFlushInterval {
		t.Errorf("FlushInterval = %v, want %v", cfg.Analytics.FlushInterval, DefaultFlushInterval)
	}
	if cfg.Analytics.SessionWindow != DefaultSessionWindow {
		t.Errorf("SessionWindow = %v, want %v", cfg.Analytics.SessionWindow, DefaultSessionWindow)
	}
	if cfg.Chat.RenderDebounce != DefaultRenderDebounce {
		t.Errorf("RenderDebounce = %v, want %v", cfg.Chat.RenderDebounce, DefaultRenderDebounce)
	}
	if cfg.Forms.MaxUploadBytes != DefaultMaxUploadBytes {
		t.Errorf("MaxUploadBytes = %d, want %d", cfg.Forms.MaxUploadBytes, DefaultMaxUploadBytes)
	}
	if cfg.API.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("RequestTimeout = %v, want %v", cfg.API.RequestTimeout, DefaultRequestTimeout)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_GLANCE_API", "https://env.example.com")
	t.Setenv("TEST_GLANCE_WIDGET", "wgt_env")

	path := writeConfig(t, "widget.yaml", `
api:
  base_url: "${TEST_GLANCE_API}"
widget:
  id: "${TEST_GLANCE_WIDGET}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.BaseURL != "https://env.example.com" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Widget.ID != "wgt_env" {
		t.Errorf("Widget.ID = %q", cfg.Widget.ID)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"missing base url", "a.yaml", "widget:\n  id: x\n", "api.base_url is required"},
		{"relative base url", "b.yaml", "api:\n  base_url: \"/api\"\n", "absolute http(s) URL"},
		{"bad duration", "c.yaml", "api:\n  base_url: \"https://x.io\"\nchat:\n  render_debounce: \"soon\"\n", "render_debounce"},
		{"negative duration", "d.yaml", "api:\n  base_url: \"https://x.io\"\nanalytics:\n  flush_interval: \"-1s\"\n", "must be positive"},
		{"bad format", "e.yaml", "api:\n  base_url: \"https://x.io\"\nlogging:\n  format: \"xml\"\n", "logging.format"},
		{"bad yaml", "f.yaml", "api: [\n", "parsing config file"},
		{"bad toml", "g.toml", "[api\n", "parsing config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() should have returned an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("error = %v, want reading config file error", err)
	}
}

func TestPath(t *testing.T) {
	t.Setenv("GLANCE_CONFIG", "/tmp/custom.yaml")
	if got := Path(); got != "/tmp/custom.yaml" {
		t.Errorf("Path() = %q, want /tmp/custom.yaml", got)
	}

	t.Setenv("GLANCE_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := Path(); got != filepath.Join("/xdg", "glance", "widget.yaml") {
		t.Errorf("Path() = %q", got)
	}
}
