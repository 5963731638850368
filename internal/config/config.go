// Package config handles client configuration from a YAML file and
// environment variables. Environment variables take precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all client configuration.
type Config struct {
	// Connection
	ServerURL string // WebSocket URL (ws:// or wss://)
	APIURL    string // HTTP base URL; derived from ServerURL when empty
	Token     string // bearer token sent on dial and API calls

	// Push channel behavior
	PingInterval         time.Duration // keepalive ping period
	PongTimeout          time.Duration // no inbound traffic within this window = dead connection
	BackoffBase          time.Duration // reconnect delay is base * attempt
	BackoffMax           time.Duration // cap on the reconnect delay
	MaxReconnectAttempts int           // consecutive failures before degraded mode

	// Polling fallback and fetches
	PollInterval time.Duration // degraded-mode refetch period
	ListLimit    int           // result-count limit for collection fetches

	// Notifications and view lifecycle
	DismissAfter   time.Duration // auto-dismiss delay for non-error notifications
	CompletedGrace time.Duration // delay before a completed task leaves the active view
	FailedGrace    time.Duration // delay before a failed task leaves the active view

	LogLevel string
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		PingInterval:         30 * time.Second,
		PongTimeout:          45 * time.Second,
		BackoffBase:          1 * time.Second,
		BackoffMax:           15 * time.Second,
		MaxReconnectAttempts: 5,
		PollInterval:         10 * time.Second,
		ListLimit:            50,
		DismissAfter:         5 * time.Second,
		CompletedGrace:       3 * time.Second,
		FailedGrace:          5 * time.Second,
		LogLevel:             "info",
	}
}

// fileConfig is the YAML shape. Durations are seconds.
type fileConfig struct {
	URL          string `yaml:"url"`
	APIURL       string `yaml:"apiUrl"`
	Token        string `yaml:"token"`
	PingInterval int    `yaml:"pingInterval"`
	PongTimeout  int    `yaml:"pongTimeout"`
	BackoffBase  int    `yaml:"backoffBase"`
	BackoffMax   int    `yaml:"backoffMax"`
	MaxRetries   int    `yaml:"maxRetries"`
	PollInterval int    `yaml:"pollInterval"`
	ListLimit    int    `yaml:"listLimit"`
	LogLevel     string `yaml:"logLevel"`
}

// Load builds the configuration: defaults, then the YAML file at path (if
// non-empty), then environment variables.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DeriveAPIURL(cfg.ServerURL)
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if fc.URL != "" {
		c.ServerURL = fc.URL
	}
	if fc.APIURL != "" {
		c.APIURL = fc.APIURL
	}
	if fc.Token != "" {
		c.Token = fc.Token
	}
	if fc.PingInterval > 0 {
		c.PingInterval = time.Duration(fc.PingInterval) * time.Second
	}
	if fc.PongTimeout > 0 {
		c.PongTimeout = time.Duration(fc.PongTimeout) * time.Second
	}
	if fc.BackoffBase > 0 {
		c.BackoffBase = time.Duration(fc.BackoffBase) * time.Second
	}
	if fc.BackoffMax > 0 {
		c.BackoffMax = time.Duration(fc.BackoffMax) * time.Second
	}
	if fc.MaxRetries > 0 {
		c.MaxReconnectAttempts = fc.MaxRetries
	}
	if fc.PollInterval > 0 {
		c.PollInterval = time.Duration(fc.PollInterval) * time.Second
	}
	if fc.ListLimit > 0 {
		c.ListLimit = fc.ListLimit
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	return nil
}

func (c *Config) applyEnv() error {
	if url := os.Getenv("SCRAPINIUM_URL"); url != "" {
		c.ServerURL = url
	}
	if url := os.Getenv("SCRAPINIUM_API_URL"); url != "" {
		c.APIURL = url
	}
	if token := os.Getenv("SCRAPINIUM_TOKEN"); token != "" {
		c.Token = token
	}
	if level := os.Getenv("SCRAPINIUM_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}

	for _, v := range []struct {
		name string
		dst  *time.Duration
	}{
		{"SCRAPINIUM_PING_INTERVAL", &c.PingInterval},
		{"SCRAPINIUM_PONG_TIMEOUT", &c.PongTimeout},
		{"SCRAPINIUM_BACKOFF_BASE", &c.BackoffBase},
		{"SCRAPINIUM_BACKOFF_MAX", &c.BackoffMax},
		{"SCRAPINIUM_POLL_INTERVAL", &c.PollInterval},
	} {
		raw := os.Getenv(v.name)
		if raw == "" {
			continue
		}
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return fmt.Errorf("%s must be a positive number of seconds", v.name)
		}
		*v.dst = time.Duration(seconds) * time.Second
	}

	for _, v := range []struct {
		name string
		dst  *int
	}{
		{"SCRAPINIUM_MAX_RETRIES", &c.MaxReconnectAttempts},
		{"SCRAPINIUM_LIST_LIMIT", &c.ListLimit},
	} {
		raw := os.Getenv(v.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive number", v.name)
		}
		*v.dst = n
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server URL is required (SCRAPINIUM_URL)")
	}
	if !strings.HasPrefix(c.ServerURL, "ws://") && !strings.HasPrefix(c.ServerURL, "wss://") {
		return errors.New("server URL must be a ws:// or wss:// URL")
	}
	if c.PingInterval < time.Second {
		return errors.New("ping interval must be at least 1 second")
	}
	if c.PongTimeout <= c.PingInterval {
		return errors.New("pong timeout must exceed the ping interval")
	}
	if c.MaxReconnectAttempts < 1 {
		return errors.New("max reconnect attempts must be at least 1")
	}
	return nil
}

// DeriveAPIURL converts a WebSocket URL into the HTTP base URL of the same
// server, stripping the push-channel path suffix.
func DeriveAPIURL(wsURL string) string {
	url := wsURL
	url = strings.Replace(url, "wss://", "https://", 1)
	url = strings.Replace(url, "ws://", "http://", 1)
	url = strings.TrimSuffix(url, "/ws")
	return strings.TrimSuffix(url, "/")
}
