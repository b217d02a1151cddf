// ABOUTME: Configuration loading and parsing for parley
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete parley configuration
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BackendConfig holds inference backend connection configuration
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
	AppID   string `yaml:"app_id"`
	APIKey  string `yaml:"api_key"`

	RequestTimeout time.Duration `yaml:"-"`
	StreamTimeout  time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	RequestTimeoutRaw string `yaml:"request_timeout"`
	StreamTimeoutRaw  string `yaml:"stream_timeout"`
}

// DatabaseConfig holds local state database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
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
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Backend.AppID == "" {
		return fmt.Errorf("backend.app_id is required")
	}
	if c.Backend.APIKey == "" {
		return fmt.Errorf("backend.api_key is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Backend.RequestTimeoutRaw != "" {
		cfg.Backend.RequestTimeout, err = time.ParseDuration(cfg.Backend.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Backend.RequestTimeoutRaw, err)
		}
	}

	if cfg.Backend.StreamTimeoutRaw != "" {
		cfg.Backend.StreamTimeout, err = time.ParseDuration(cfg.Backend.StreamTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing stream_timeout %q: %w", cfg.Backend.StreamTimeoutRaw, err)
		}
	}

	return nil
}
