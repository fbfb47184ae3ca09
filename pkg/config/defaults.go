package config

import (
	"path/filepath"
	"strings"

	"github.com/assetvault/assetvault/pkg/backup"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults
//   - Explicit values are preserved
//   - Booleans keep their zero value except where noted
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyStorageDefaults(&cfg.Storage)
	applyBackupDefaults(&cfg.Backup)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 1000
	}
}

// applyStorageDefaults places the data directory under XDG_DATA_HOME and
// the preferences document next to the config file.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.DataDir == "" {
		cfg.DataDir = getDataDir()
	}
	if cfg.PreferencesPath == "" {
		cfg.PreferencesPath = filepath.Join(getConfigDir(), "preferences.json")
	}
}

// applyBackupDefaults sets backup defaults.
func applyBackupDefaults(cfg *BackupConfig) {
	if cfg.Keep == 0 {
		cfg.Keep = backup.DefaultKeep
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Index: IndexConfig{
			Enabled: true,
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
