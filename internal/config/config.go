// ABOUTME: Configuration loading and parsing for interview-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete interview-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Remote   RemoteConfig   `yaml:"remote"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RemoteConfig holds the AI platform connection configuration
type RemoteConfig struct {
	APIServer string `yaml:"api_server"`
	APIKey    string `yaml:"api_key"`

	Timeout    time.Duration `yaml:"-"`
	RetryDelay time.Duration `yaml:"-"`
	MaxRetries int           `yaml:"max_retries"`

	// Raw string values for YAML unmarshaling
	TimeoutRaw    string `yaml:"timeout"`
	RetryDelayRaw string `yaml:"retry_delay"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`

	// TokenEpoch invalidates all tokens issued before it. Bump the value
	// (RFC 3339) to force every client to log in again.
	TokenEpoch time.Time `yaml:"-"`

	TokenEpochRaw string `yaml:"token_epoch"`
}

// LoggingConfig holds logging configuration
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

	// Expand environment variables in the raw YAML content
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

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Remote.APIServer == "" {
		return fmt.Errorf("remote.api_server is required")
	}
	if c.Remote.APIKey == "" {
		return fmt.Errorf("remote.api_key is required")
	}
	if c.Remote.MaxRetries < 0 {
		return fmt.Errorf("remote.max_retries must not be negative")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	return nil
}

// parseDurations converts the raw duration and timestamp strings into typed values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Remote.TimeoutRaw != "" {
		cfg.Remote.Timeout, err = time.ParseDuration(cfg.Remote.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing remote.timeout %q: %w", cfg.Remote.TimeoutRaw, err)
		}
	}

	if cfg.Remote.RetryDelayRaw != "" {
		cfg.Remote.RetryDelay, err = time.ParseDuration(cfg.Remote.RetryDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing remote.retry_delay %q: %w", cfg.Remote.RetryDelayRaw, err)
		}
	}

	if cfg.Auth.TokenEpochRaw != "" {
		cfg.Auth.TokenEpoch, err = time.Parse(time.RFC3339, cfg.Auth.TokenEpochRaw)
		if err != nil {
			return fmt.Errorf("parsing auth.token_epoch %q: %w", cfg.Auth.TokenEpochRaw, err)
		}
	}

	return nil
}
