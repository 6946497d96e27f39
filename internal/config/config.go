// ABOUTME: Configuration loading and parsing for aq-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAdvanceDelay is applied when relay.advance_delay is not set.
const DefaultAdvanceDelay = 2 * time.Second

// Config represents the complete aq-gateway configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Relay    RelayConfig    `yaml:"relay"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// UpstreamConfig holds the workflow API endpoints.
type UpstreamConfig struct {
	// BaseURL is where job submissions and advance calls go.
	BaseURL string `yaml:"base_url"`
	// PublicBaseURL is the externally-reachable address of this relay,
	// used to construct webhook callback URLs.
	PublicBaseURL string `yaml:"public_base_url"`
}

// AuthConfig holds shared secrets.
type AuthConfig struct {
	// WebhookSecret derives webhook tokens. Empty means inbound
	// callbacks are NOT authenticated; the server starts anyway and
	// logs the insecure mode.
	WebhookSecret string `yaml:"webhook_secret"`
	// AdminSecret signs admin API bearer tokens. Empty disables admin
	// auth (also logged at startup).
	AdminSecret string `yaml:"admin_secret"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RelayConfig holds webhook-relay behavior settings.
type RelayConfig struct {
	// FallbackAgent is used when a webhook arrives for a request ID
	// with no registry entry. Empty means fall back to the first
	// configured agent.
	FallbackAgent string `yaml:"fallback_agent"`

	AdvanceDelay time.Duration `yaml:"-"`
	PendingTTL   time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	AdvanceDelayRaw string `yaml:"advance_delay"`
	PendingTTLRaw   string `yaml:"pending_ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse parses raw YAML config bytes, expanding environment variables
// and durations, and validates the result.
func Parse(data []byte) (*Config, error) {
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

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

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if c.Upstream.PublicBaseURL == "" {
		return fmt.Errorf("upstream.public_base_url is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	return nil
}

// Insecure reports whether inbound webhooks run unauthenticated.
// Deployments in this mode must log a startup warning.
func (c *Config) Insecure() bool {
	return c.Auth.WebhookSecret == ""
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	cfg.Relay.AdvanceDelay = DefaultAdvanceDelay
	if cfg.Relay.AdvanceDelayRaw != "" {
		cfg.Relay.AdvanceDelay, err = time.ParseDuration(cfg.Relay.AdvanceDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing advance_delay %q: %w", cfg.Relay.AdvanceDelayRaw, err)
		}
	}

	if cfg.Relay.PendingTTLRaw != "" {
		cfg.Relay.PendingTTL, err = time.ParseDuration(cfg.Relay.PendingTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing pending_ttl %q: %w", cfg.Relay.PendingTTLRaw, err)
		}
	}

	return nil
}
