package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete assetvault configuration.
//
// This structure captures all configurable aspects of assetvault including:
//   - Logging configuration
//   - Data directory and preferences file locations
//   - Backup rotation, schedule and optional S3 mirror
//   - Identifier index settings
//   - Background task limits
//   - Prometheus metrics
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (ASSETVAULT_*), including those set by a .env file
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Storage locates the data directory and the preferences document
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Backup controls metadata snapshots
	Backup BackupConfig `mapstructure:"backup" yaml:"backup"`

	// Index controls the identifier→kind index
	Index IndexConfig `mapstructure:"index" yaml:"index"`

	// Tasks controls the background task runner
	Tasks TasksConfig `mapstructure:"tasks" yaml:"tasks"`

	// Metrics controls the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`

	// BufferSize is the number of recent entries kept in memory for the
	// log viewer
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size" validate:"gte=0"`
}

// StorageConfig locates on-disk state.
type StorageConfig struct {
	// DataDir is the data directory used when the preferences document does
	// not name one
	DataDir string `mapstructure:"data_dir" yaml:"data_dir" validate:"required"`

	// PreferencesPath is the preferences document location
	PreferencesPath string `mapstructure:"preferences_path" yaml:"preferences_path" validate:"required"`
}

// BackupConfig controls metadata snapshots.
type BackupConfig struct {
	// Keep is the number of snapshots retained
	Keep int `mapstructure:"keep" yaml:"keep" validate:"gte=1"`

	// SkipUnchanged skips a snapshot identical to the latest one
	SkipUnchanged bool `mapstructure:"skip_unchanged" yaml:"skip_unchanged"`

	// Schedule is a cron expression for periodic snapshots (empty disables)
	// Example: "@every 6h" or "0 3 * * *"
	Schedule string `mapstructure:"schedule" yaml:"schedule"`

	// S3 configures an off-site mirror of every new snapshot.
	// Empty disables the mirror. Keys: bucket, region, endpoint, key_prefix,
	// access_key_id, secret_access_key, max_retries
	S3 map[string]any `mapstructure:"s3" yaml:"s3"`
}

// IndexConfig controls the identifier→kind index.
type IndexConfig struct {
	// Enabled turns the index on
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// InMemory keeps the index out of the data directory
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory"`
}

// TasksConfig controls the background task runner.
type TasksConfig struct {
	// MaxConcurrent bounds concurrently executing tasks (0 = unlimited)
	MaxConcurrent int `mapstructure:"max_concurrent" yaml:"max_concurrent" validate:"gte=0"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled turns metrics collection on
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port of the /metrics endpoint
	Port int `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (ASSETVAULT_*)
//  2. Configuration file
//  3. Default values
//
// A .env file in the working directory is read first; variables it defines
// never override ones already set in the process environment.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	// Read configuration file if it exists
	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv loads path into the process environment if it exists.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// envKeys lists every scalar key so AutomaticEnv can override values that
// are absent from the file.
var envKeys = []string{
	"logging.level", "logging.format", "logging.output", "logging.buffer_size",
	"storage.data_dir", "storage.preferences_path",
	"backup.keep", "backup.skip_unchanged", "backup.schedule",
	"index.enabled", "index.in_memory",
	"tasks.max_concurrent",
	"metrics.enabled", "metrics.port",
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use ASSETVAULT_ prefix and underscores
	// Example: ASSETVAULT_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("ASSETVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Configure config file search
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/assetvault/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		// A missing file (searched or explicit) means defaults only
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "assetvault")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "assetvault")
}

// getDataDir returns the default data directory.
//
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share.
func getDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "assetvault")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "assetvault-data")
	}

	return filepath.Join(home, ".local", "share", "assetvault")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
