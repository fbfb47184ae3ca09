package config

import (
	"path/filepath"
	"testing"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stderr" {
		t.Errorf("Expected default log output 'stderr', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_NormalizesLevel(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "debug"}}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected 'DEBUG', got %q", cfg.Logging.Level)
	}
}

func TestApplyDefaults_StorageUsesXDG(t *testing.T) {
	data := t.TempDir()
	conf := t.TempDir()
	t.Setenv("XDG_DATA_HOME", data)
	t.Setenv("XDG_CONFIG_HOME", conf)

	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Storage.DataDir != filepath.Join(data, "assetvault") {
		t.Errorf("Unexpected data dir %q", cfg.Storage.DataDir)
	}
	if cfg.Storage.PreferencesPath != filepath.Join(conf, "assetvault", "preferences.json") {
		t.Errorf("Unexpected preferences path %q", cfg.Storage.PreferencesPath)
	}
}

func TestApplyDefaults_Backup(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Backup.Keep != 10 {
		t.Errorf("Expected default keep 10, got %d", cfg.Backup.Keep)
	}
	if cfg.Backup.S3 == nil {
		t.Error("Expected S3 map to be initialized")
	}
	if cfg.Backup.Schedule != "" {
		t.Errorf("Expected no default schedule, got %q", cfg.Backup.Schedule)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Format: "json", Output: "/var/log/assetvault.log", BufferSize: 50},
		Storage: StorageConfig{DataDir: "/data", PreferencesPath: "/prefs.json"},
		Backup:  BackupConfig{Keep: 2},
		Metrics: MetricsConfig{Port: 9200},
	}
	ApplyDefaults(cfg)

	if cfg.Logging.Format != "json" || cfg.Logging.Output != "/var/log/assetvault.log" || cfg.Logging.BufferSize != 50 {
		t.Errorf("Logging values overwritten: %+v", cfg.Logging)
	}
	if cfg.Storage.DataDir != "/data" || cfg.Storage.PreferencesPath != "/prefs.json" {
		t.Errorf("Storage values overwritten: %+v", cfg.Storage)
	}
	if cfg.Backup.Keep != 2 {
		t.Errorf("Expected keep 2, got %d", cfg.Backup.Keep)
	}
	if cfg.Metrics.Port != 9200 {
		t.Errorf("Expected port 9200, got %d", cfg.Metrics.Port)
	}
}
