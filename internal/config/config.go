// ABOUTME: Configuration loading and parsing for the glance widget host
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied when a field is left empty.
const (
	DefaultFlushInterval  = 30 * time.Second
	DefaultSessionWindow  = 30 * time.Minute
	DefaultRenderDebounce = 80 * time.Millisecond
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxUploadBytes = 20 << 20
)

// Config represents the complete widget host configuration
type Config struct {
	API       APIConfig       `yaml:"api" toml:"api"`
	Widget    WidgetConfig    `yaml:"widget" toml:"widget"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Analytics AnalyticsConfig `yaml:"analytics" toml:"analytics"`
	Chat      ChatConfig      `yaml:"chat" toml:"chat"`
	Forms     FormsConfig     `yaml:"forms" toml:"forms"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// APIConfig holds the backend location
type APIConfig struct {
	BaseURL        string        `yaml:"base_url" toml:"base_url"`
	RequestTimeout time.Duration `yaml:"-" toml:"-"`

	RequestTimeoutRaw string `yaml:"request_timeout" toml:"request_timeout"`
}

// WidgetConfig identifies which widget to bootstrap (the data-widget-id attribute)
type WidgetConfig struct {
	ID string `yaml:"id" toml:"id"`
}

// StorageConfig holds page-persistent storage configuration.
// An empty path keeps state in memory only.
type StorageConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AnalyticsConfig holds analytics buffer timing
type AnalyticsConfig struct {
	FlushInterval time.Duration `yaml:"-" toml:"-"`
	SessionWindow time.Duration `yaml:"-" toml:"-"`

	FlushIntervalRaw string `yaml:"flush_interval" toml:"flush_interval"`
	SessionWindowRaw string `yaml:"session_window" toml:"session_window"`
}

// ChatConfig holds chat streaming configuration
type ChatConfig struct {
	RenderDebounce time.Duration `yaml:"-" toml:"-"`

	RenderDebounceRaw string `yaml:"render_debounce" toml:"render_debounce"`
}

// FormsConfig holds form upload limits
type FormsConfig struct {
	MaxUploadBytes int64 `yaml:"max_upload_bytes" toml:"max_upload_bytes"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills zero values with defaults
func (c *Config) ApplyDefaults() {
	if c.API.RequestTimeout == 0 {
		c.API.RequestTimeout = DefaultRequestTimeout
	}
	if c.Analytics.FlushInterval == 0 {
		c.Analytics.FlushInterval = DefaultFlushInterval
	}
	if c.Analytics.SessionWindow == 0 {
		c.Analytics.SessionWindow = DefaultSessionWindow
	}
	if c.Chat.RenderDebounce == 0 {
		c.Chat.RenderDebounce = DefaultRenderDebounce
	}
	if c.Forms.MaxUploadBytes == 0 {
		c.Forms.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("api.base_url must be an absolute http(s) URL, got %q", c.API.BaseURL)
	}

	if c.Forms.MaxUploadBytes < 0 {
		return fmt.Errorf("forms.max_upload_bytes must not be negative")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"request_timeout", cfg.API.RequestTimeoutRaw, &cfg.API.RequestTimeout},
		{"flush_interval", cfg.Analytics.FlushIntervalRaw, &cfg.Analytics.FlushInterval},
		{"session_window", cfg.Analytics.SessionWindowRaw, &cfg.Analytics.SessionWindow},
		{"render_debounce", cfg.Chat.RenderDebounceRaw, &cfg.Chat.RenderDebounce},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", f.name, f.raw)
		}
		*f.dst = d
	}

	return nil
}

// Path returns the config file location.
// Priority: GLANCE_CONFIG env var > XDG_CONFIG_HOME/glance/widget.yaml > ~/.config/glance/widget.yaml
func Path() string {
	if envPath := os.Getenv("GLANCE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "widget.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "glance", "widget.yaml")
}
