// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./conversations.db"

conversations:
  unload_grace_period: "5s"
  content_cleanup_window: "10m"
  content_cleanup_interval: "1m"

models:
  - key: "basic"
    name: "Basic"
    max_associated_content_length: 8000
    default: true
  - key: "advanced"
    name: "Advanced"
    max_associated_content_length: 32000
    premium_only: true

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "./conversations.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./conversations.db")
	}

	if cfg.Conversations.UnloadGracePeriod != 5*time.Second {
		t.Errorf("Conversations.UnloadGracePeriod = %v, want %v", cfg.Conversations.UnloadGracePeriod, 5*time.Second)
	}
	if cfg.Conversations.ContentCleanupWindow != 10*time.Minute {
		t.Errorf("Conversations.ContentCleanupWindow = %v, want %v", cfg.Conversations.ContentCleanupWindow, 10*time.Minute)
	}
	if cfg.Conversations.ContentCleanupInterval != time.Minute {
		t.Errorf("Conversations.ContentCleanupInterval = %v, want %v", cfg.Conversations.ContentCleanupInterval, time.Minute)
	}

	if len(cfg.Models) != 2 {
		t.Fatalf("len(Models) = %d, want 2", len(cfg.Models))
	}
	if cfg.Models[0].Key != "basic" || !cfg.Models[0].Default {
		t.Errorf("Models[0] = %+v, want key basic with default true", cfg.Models[0])
	}
	if cfg.Models[1].Key != "advanced" || !cfg.Models[1].PremiumOnly {
		t.Errorf("Models[1] = %+v, want key advanced with premium_only true", cfg.Models[1])
	}
	if cfg.Models[1].MaxAssociatedContentLength != 32000 {
		t.Errorf("Models[1].MaxAssociatedContentLength = %d, want 32000", cfg.Models[1].MaxAssociatedContentLength)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_AICHAT_DB", "/tmp/from-env.db")

	configPath := writeConfig(t, `
database:
  path: "${TEST_AICHAT_DB}"

models:
  - key: "basic"
    name: "Basic"
    default: true
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/from-env.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/from-env.db")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path "missing colon"
`)

	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./conversations.db"

conversations:
  unload_grace_period: "invalid-duration"

models:
  - key: "basic"
    default: true
`)

	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected error for invalid duration, got nil")
	}
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name          string
		configContent string
		wantErrSubstr string
	}{
		{
			name: "missing database path",
			configContent: `
database:
  path: ""
models:
  - key: "basic"
`,
			wantErrSubstr: "database.path is required",
		},
		{
			name: "no models",
			configContent: `
database:
  path: "./test.db"
models: []
`,
			wantErrSubstr: "at least one model is required",
		},
		{
			name: "model missing key",
			configContent: `
database:
  path: "./test.db"
models:
  - name: "No Key"
`,
			wantErrSubstr: "models[0].key is required",
		},
		{
			name: "duplicate model key",
			configContent: `
database:
  path: "./test.db"
models:
  - key: "basic"
  - key: "basic"
`,
			wantErrSubstr: "duplicate model key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, tt.configContent)

			_, err := Load(configPath)
			if err == nil {
				t.Errorf("Load() expected error containing %q, got nil", tt.wantErrSubstr)
				return
			}
			if !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("Load() error = %q, want error containing %q", err.Error(), tt.wantErrSubstr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Setenv("BAZ", "qux")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "single env var",
			input:    "${FOO}",
			expected: "bar",
		},
		{
			name:     "env var with surrounding text",
			input:    "prefix-${FOO}-suffix",
			expected: "prefix-bar-suffix",
		},
		{
			name:     "multiple env vars",
			input:    "${FOO}/${BAZ}",
			expected: "bar/qux",
		},
		{
			name:     "no env vars",
			input:    "no-vars-here",
			expected: "no-vars-here",
		},
		{
			name:     "unset env var",
			input:    "${UNSET_VAR}",
			expected: "",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandEnvVars(tt.input)
			if result != tt.expected {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestEngineModels(t *testing.T) {
	cfg := &Config{
		Models: []ModelConfig{
			{Key: "basic", Name: "Basic", MaxAssociatedContentLength: 8000, Default: true},
			{Key: "advanced", Name: "Advanced", PremiumOnly: true},
		},
	}

	models := cfg.EngineModels()
	if len(models) != 2 {
		t.Fatalf("len(models) = %d, want 2", len(models))
	}
	if models[0].Key != "basic" || !models[0].Default || models[0].MaxAssociatedContentLength != 8000 {
		t.Errorf("models[0] = %+v, want basic/default/8000", models[0])
	}
	if models[1].Key != "advanced" || !models[1].PremiumOnly {
		t.Errorf("models[1] = %+v, want advanced/premium_only", models[1])
	}
}
