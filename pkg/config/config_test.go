package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "info"

storage:
  data_dir: "/srv/assets"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify defaults were applied
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected normalized level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stderr" {
		t.Errorf("Expected default output 'stderr', got %q", cfg.Logging.Output)
	}
	if cfg.Storage.DataDir != "/srv/assets" {
		t.Errorf("Expected data_dir from file, got %q", cfg.Storage.DataDir)
	}
	if cfg.Backup.Keep != 10 {
		t.Errorf("Expected default backup keep 10, got %d", cfg.Backup.Keep)
	}
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Metrics.Port)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// A missing explicit file must not fall back to the user's config
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Expected a default data_dir")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid.yaml", `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[logging]
level = "WARN"
format = "json"

[backup]
keep = 3
schedule = "@daily"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.Backup.Keep != 3 || cfg.Backup.Schedule != "@daily" {
		t.Errorf("Unexpected backup section: %+v", cfg.Backup)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad level", "logging:\n  level: LOUD\n"},
		{"bad format", "logging:\n  format: xml\n"},
		{"negative keep", "backup:\n  keep: -1\n"},
		{"bad schedule", "backup:\n  schedule: \"every tuesday\"\n"},
		{"s3 without bucket", "backup:\n  s3:\n    region: eu-west-1\n"},
		{"in-memory index disabled", "index:\n  enabled: false\n  in_memory: true\n"},
		{"bad port", "metrics:\n  port: 70000\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, "config.yaml", tt.content)); err == nil {
				t.Fatal("Expected validation error, got nil")
			}
		})
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.BufferSize != 1000 {
		t.Errorf("Expected default buffer size 1000, got %d", cfg.Logging.BufferSize)
	}
	if !cfg.Index.Enabled {
		t.Error("Expected index enabled by default")
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics disabled by default")
	}
	if filepath.Base(cfg.Storage.PreferencesPath) != "preferences.json" {
		t.Errorf("Unexpected preferences path %q", cfg.Storage.PreferencesPath)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Default config failed validation: %v", err)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestGetConfigDir(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	if dir := GetConfigDir(); dir != filepath.Join(xdg, "assetvault") {
		t.Errorf("Expected %q, got %q", filepath.Join(xdg, "assetvault"), dir)
	}
}

func TestConfigExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if ConfigExists() {
		t.Fatal("Expected no config in a fresh config dir")
	}
	if _, err := InitConfig(false); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if !ConfigExists() {
		t.Error("Expected config to exist after InitConfig")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("ASSETVAULT_LOGGING_LEVEL", "ERROR")
	t.Setenv("ASSETVAULT_TASKS_MAX_CONCURRENT", "4")

	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// File value overridden, absent key filled from env
	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.Tasks.MaxConcurrent != 4 {
		t.Errorf("Expected max_concurrent 4 from env var, got %d", cfg.Tasks.MaxConcurrent)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("ASSETVAULT_BACKUP_KEEP=4\n"), 0644); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	// godotenv sets the variable directly; register cleanup through Setenv
	t.Setenv("ASSETVAULT_BACKUP_KEEP", "")
	_ = os.Unsetenv("ASSETVAULT_BACKUP_KEEP")

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Backup.Keep != 4 {
		t.Errorf("Expected keep 4 from .env, got %d", cfg.Backup.Keep)
	}
}
