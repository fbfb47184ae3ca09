package config

import (
	"context"
	"fmt"

	"github.com/assetvault/assetvault/internal/logger"
	"github.com/assetvault/assetvault/pkg/backup"
	"github.com/assetvault/assetvault/pkg/backup/s3mirror"
	"github.com/assetvault/assetvault/pkg/preferences"
	"github.com/assetvault/assetvault/pkg/storage"
	"github.com/assetvault/assetvault/pkg/task"
)

// CreateLogger builds the process logger from the logging section.
func CreateLogger(cfg *LoggingConfig) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		BufferSize: cfg.BufferSize,
	})
}

// ResolveDataDir returns the data directory to open: the one recorded in the
// preferences document, or storage.data_dir when the document is absent.
//
// Returns:
//   - preferences.Preferences: The loaded (or default) preferences
//   - error: The document exists but cannot be decoded
func ResolveDataDir(cfg *StorageConfig) (preferences.Preferences, error) {
	prefs, _, err := preferences.Load(cfg.PreferencesPath, cfg.DataDir)
	if err != nil {
		return preferences.Preferences{}, fmt.Errorf("failed to load preferences: %w", err)
	}
	if prefs.DataDirPath == "" {
		prefs.DataDirPath = cfg.DataDir
	}
	return prefs, nil
}

// CreateBackupMirror creates the S3 snapshot mirror described by the
// backup.s3 map. It returns nil when the map is empty.
//
// Parameters:
//   - ctx: Context for loading AWS configuration
//   - cfg: Backup configuration
//   - log: Logger for the mirror
//   - m: Metrics components
//
// Returns:
//   - backup.Uploader: The mirror, or nil when not configured
//   - error: Configuration or AWS initialization error
func CreateBackupMirror(ctx context.Context, cfg *BackupConfig, log *logger.Logger, m *MetricsResult) (backup.Uploader, error) {
	if len(cfg.S3) == 0 {
		return nil, nil
	}

	mirrorCfg, err := s3mirror.Decode(cfg.S3)
	if err != nil {
		return nil, err
	}

	mirror, err := s3mirror.NewFromConfig(ctx, mirrorCfg, log, m.Backup)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 backup mirror: %w", err)
	}
	return mirror, nil
}

// CreateStorage opens the facade for root with the configured index, backup
// rotation and mirror. The stores are not loaded; call LoadAll.
func CreateStorage(ctx context.Context, cfg *Config, root string, log *logger.Logger, m *MetricsResult) (*storage.Storage, error) {
	mirror, err := CreateBackupMirror(ctx, &cfg.Backup, log, m)
	if err != nil {
		return nil, err
	}

	s, err := storage.New(ctx, root, storage.Options{
		Log:     log,
		Metrics: m.Store,
		Backup: backup.Config{
			Keep:          cfg.Backup.Keep,
			SkipUnchanged: cfg.Backup.SkipUnchanged,
			Mirror:        mirror,
			Log:           log,
			Metrics:       m.Backup,
		},
		Index: storage.IndexOptions{
			Enabled:  cfg.Index.Enabled,
			InMemory: cfg.Index.InMemory,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open data directory %s: %w", root, err)
	}
	return s, nil
}

// CreateTaskRunner creates the background task runner.
func CreateTaskRunner(cfg *TasksConfig, log *logger.Logger, m *MetricsResult) *task.Runner {
	return task.NewRunner(task.Options{
		MaxConcurrent: cfg.MaxConcurrent,
		Log:           log,
		Metrics:       m.Task,
	})
}

// CreateBackupScheduler creates a scheduler that snapshots the current data
// directory of s on backup.schedule. It returns nil when no schedule is set.
func CreateBackupScheduler(cfg *BackupConfig, s *storage.Storage, log *logger.Logger) (*backup.Scheduler, error) {
	if cfg.Schedule == "" {
		return nil, nil
	}

	return backup.NewScheduler(cfg.Schedule, func(ctx context.Context) error {
		_, err := s.Backups().Snapshot(ctx)
		return err
	}, log)
}
