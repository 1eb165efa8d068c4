package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all matchchat configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Backend (snapshot endpoints)
	Backend BackendConfig `yaml:"backend"`

	// Poll scheduler periods
	Polling PollingConfig `yaml:"polling"`

	// Assistant channel generation
	Assistant AssistantConfig `yaml:"assistant"`

	// Local message archive
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `yaml:"metrics"`
}

// BackendConfig configures the request/response backend.
type BackendConfig struct {
	BaseURL        string  `yaml:"base_url"`
	Token          string  `yaml:"token"`
	RequestTimeout string  `yaml:"request_timeout"`
	RateLimit      float64 `yaml:"rate_limit_per_second"` // 0 disables limiting
	Burst          int     `yaml:"burst"`
}

// PollingConfig configures the three poll loops. Each period is a plain
// duration; there is no "disabled" sentinel.
type PollingConfig struct {
	DirectoryInterval string `yaml:"directory_interval"`
	MessageInterval   string `yaml:"message_interval"`
	PresenceInterval  string `yaml:"presence_interval"`
}

// AssistantConfig configures the generation collaborator.
type AssistantConfig struct {
	Provider string `yaml:"provider"` // gemini, openai
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// StoreConfig configures the optional sqlite archive.
type StoreConfig struct {
	ArchivePath string `yaml:"archive_path"` // empty = in-memory only
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, console
	File       string          `yaml:"file"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"` // empty = not served
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "matchchat",
		Version: "0.4.0",

		Backend: BackendConfig{
			BaseURL:        "http://localhost:8000/api",
			RequestTimeout: "10s",
			RateLimit:      20,
			Burst:          10,
		},

		Polling: PollingConfig{
			DirectoryInterval: "2s",
			MessageInterval:   "1s",
			PresenceInterval:  "1500ms",
		},

		Assistant: AssistantConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
			Timeout:  "60s",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("MATCHCHAT_BACKEND_URL"); url != "" {
		c.Backend.BaseURL = url
	}
	if token := os.Getenv("MATCHCHAT_TOKEN"); token != "" {
		c.Backend.Token = token
	}

	// Assistant API key from environment (later entries win)
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Assistant.APIKey = key
		if c.Assistant.Provider == "" {
			c.Assistant.Provider = "gemini"
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Assistant.APIKey = key
		c.Assistant.Provider = "openai"
	}

	if path := os.Getenv("MATCHCHAT_ARCHIVE"); path != "" {
		c.Store.ArchivePath = path
	}
	if level := os.Getenv("MATCHCHAT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetRequestTimeout returns the per-request backend timeout.
func (c *Config) GetRequestTimeout() time.Duration {
	return parseDuration(c.Backend.RequestTimeout, 10*time.Second)
}

// GetDirectoryInterval returns the directory loop period.
func (c *Config) GetDirectoryInterval() time.Duration {
	return parseDuration(c.Polling.DirectoryInterval, 2*time.Second)
}

// GetMessageInterval returns the message loop period.
func (c *Config) GetMessageInterval() time.Duration {
	return parseDuration(c.Polling.MessageInterval, time.Second)
}

// GetPresenceInterval returns the presence loop period.
func (c *Config) GetPresenceInterval() time.Duration {
	return parseDuration(c.Polling.PresenceInterval, 1500*time.Millisecond)
}

// GetAssistantTimeout returns the generation call timeout.
func (c *Config) GetAssistantTimeout() time.Duration {
	return parseDuration(c.Assistant.Timeout, 60*time.Second)
}

// ValidProviders lists all supported assistant providers.
var ValidProviders = []string{"gemini", "openai"}

// maxPollInterval guards against periods so long they effectively disable a loop.
const maxPollInterval = 10 * time.Minute

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return fmt.Errorf("backend base_url not configured (set MATCHCHAT_BACKEND_URL)")
	}

	for name, raw := range map[string]string{
		"directory_interval": c.Polling.DirectoryInterval,
		"message_interval":   c.Polling.MessageInterval,
		"presence_interval":  c.Polling.PresenceInterval,
	} {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid polling.%s %q: %w", name, raw, err)
		}
		if d <= 0 || d > maxPollInterval {
			return fmt.Errorf("polling.%s must be in (0, %v], got %v", name, maxPollInterval, d)
		}
	}

	if c.Assistant.Provider != "" {
		validProvider := false
		for _, p := range ValidProviders {
			if c.Assistant.Provider == p {
				validProvider = true
				break
			}
		}
		if !validProvider {
			return fmt.Errorf("invalid assistant provider: %s (valid: %v)", c.Assistant.Provider, ValidProviders)
		}
	}

	return nil
}

// IsArchiveEnabled returns whether messages are persisted locally.
func (c *Config) IsArchiveEnabled() bool {
	return strings.TrimSpace(c.Store.ArchivePath) != ""
}
