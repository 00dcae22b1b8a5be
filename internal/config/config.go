// ABOUTME: Configuration loading and parsing for the aichat service
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lantern-browser/aichat/internal/engine"
)

// Config represents the complete aichat service configuration
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Conversations ConversationsConfig `yaml:"conversations"`
	Models        []ModelConfig       `yaml:"models"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// DatabaseConfig holds conversation database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ConversationsConfig holds conversation lifecycle timing configuration
type ConversationsConfig struct {
	UnloadGracePeriod      time.Duration `yaml:"-"`
	ContentCleanupWindow   time.Duration `yaml:"-"`
	ContentCleanupInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	UnloadGracePeriodRaw      string `yaml:"unload_grace_period"`
	ContentCleanupWindowRaw   string `yaml:"content_cleanup_window"`
	ContentCleanupIntervalRaw string `yaml:"content_cleanup_interval"`
}

// ModelConfig describes one model available to conversations
type ModelConfig struct {
	Key                        string `yaml:"key"`
	Name                       string `yaml:"name"`
	MaxAssociatedContentLength int    `yaml:"max_associated_content_length"`
	PremiumOnly                bool   `yaml:"premium_only"`
	Default                    bool   `yaml:"default"`
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

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if len(c.Models) == 0 {
		return fmt.Errorf("at least one model is required")
	}

	seen := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		if m.Key == "" {
			return fmt.Errorf("models[%d].key is required", i)
		}
		if seen[m.Key] {
			return fmt.Errorf("duplicate model key %q", m.Key)
		}
		seen[m.Key] = true
	}

	return nil
}

// EngineModels converts the configured model list into catalog entries.
func (c *Config) EngineModels() []engine.Model {
	out := make([]engine.Model, 0, len(c.Models))
	for _, m := range c.Models {
		out = append(out, engine.Model{
			Key:                        m.Key,
			Name:                       m.Name,
			MaxAssociatedContentLength: m.MaxAssociatedContentLength,
			PremiumOnly:                m.PremiumOnly,
			Default:                    m.Default,
		})
	}
	return out
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Conversations.UnloadGracePeriodRaw != "" {
		cfg.Conversations.UnloadGracePeriod, err = time.ParseDuration(cfg.Conversations.UnloadGracePeriodRaw)
		if err != nil {
			return fmt.Errorf("parsing unload_grace_period %q: %w", cfg.Conversations.UnloadGracePeriodRaw, err)
		}
	}

	if cfg.Conversations.ContentCleanupWindowRaw != "" {
		cfg.Conversations.ContentCleanupWindow, err = time.ParseDuration(cfg.Conversations.ContentCleanupWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing content_cleanup_window %q: %w", cfg.Conversations.ContentCleanupWindowRaw, err)
		}
	}

	if cfg.Conversations.ContentCleanupIntervalRaw != "" {
		cfg.Conversations.ContentCleanupInterval, err = time.ParseDuration(cfg.Conversations.ContentCleanupIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing content_cleanup_interval %q: %w", cfg.Conversations.ContentCleanupIntervalRaw, err)
		}
	}

	return nil
}
