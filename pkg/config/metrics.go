package config

import (
	"github.com/assetvault/assetvault/internal/logger"
	"github.com/assetvault/assetvault/pkg/metrics"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Store records record store operations (never nil, uses noop if disabled)
	Store metrics.StoreMetrics

	// Task records background task transitions (never nil)
	Task metrics.TaskMetrics

	// Backup records snapshots and uploads (never nil)
	Backup metrics.BackupMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
func InitializeMetrics(cfg *MetricsConfig, log *logger.Logger) *MetricsResult {
	if !cfg.Enabled {
		return &MetricsResult{
			Store:  metrics.NewNoopStoreMetrics(),
			Task:   metrics.NewNoopTaskMetrics(),
			Backup: metrics.NewNoopBackupMetrics(),
		}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server: metrics.NewServer(metrics.ServerConfig{Port: cfg.Port}, log),
		Store:  metrics.NewStoreMetrics(),
		Task:   metrics.NewTaskMetrics(),
		Backup: metrics.NewBackupMetrics(),
	}
}
