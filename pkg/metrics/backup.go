package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BackupMetrics provides observability for metadata snapshots and their
// off-site mirror.
type BackupMetrics interface {
	// RecordSnapshot records one snapshot attempt. skipped is true when the
	// metadata was unchanged since the latest snapshot.
	RecordSnapshot(duration time.Duration, skipped bool, err error)

	// RecordPruned counts snapshot folders removed by rotation.
	RecordPruned(count int)

	// RecordUpload records one object uploaded to the mirror.
	RecordUpload(bytes int64, duration time.Duration, err error)
}

type backupMetrics struct {
	snapshots      *prometheus.CounterVec
	snapshotTime   prometheus.Histogram
	pruned         prometheus.Counter
	uploads        *prometheus.CounterVec
	uploadBytes    prometheus.Counter
	uploadDuration prometheus.Histogram
}

var (
	backupMetricsOnce     sync.Once
	backupMetricsInstance BackupMetrics
)

// NewBackupMetrics returns the process-wide Prometheus BackupMetrics, or a
// no-op implementation when metrics are disabled.
func NewBackupMetrics() BackupMetrics {
	if !IsEnabled() {
		return NewNoopBackupMetrics()
	}
	backupMetricsOnce.Do(func() {
		backupMetricsInstance = newBackupMetrics(GetRegistry())
	})
	return backupMetricsInstance
}

func newBackupMetrics(reg prometheus.Registerer) *backupMetrics {
	return &backupMetrics{
		snapshots: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetvault_backup_snapshots_total",
				Help: "Total number of metadata snapshot attempts by outcome",
			},
			[]string{"outcome"}, // created, skipped, error
		),
		snapshotTime: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "assetvault_backup_snapshot_duration_seconds",
			Help:    "Duration of metadata snapshots in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		pruned: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "assetvault_backup_pruned_total",
			Help: "Total number of snapshot folders removed by rotation",
		}),
		uploads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetvault_backup_uploads_total",
				Help: "Total number of objects uploaded to the backup mirror by status",
			},
			[]string{"status"},
		),
		uploadBytes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "assetvault_backup_upload_bytes_total",
			Help: "Total bytes uploaded to the backup mirror",
		}),
		uploadDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "assetvault_backup_upload_duration_seconds",
			Help: "Duration of mirror uploads in seconds",
			Buckets: []float64{
				0.01,  // 10ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.5,   // 500ms
				1.0,   // 1s
				5.0,   // 5s
				30.0,  // 30s
			},
		}),
	}
}

func (m *backupMetrics) RecordSnapshot(duration time.Duration, skipped bool, err error) {
	outcome := "created"
	switch {
	case err != nil:
		outcome = "error"
	case skipped:
		outcome = "skipped"
	}
	m.snapshots.WithLabelValues(outcome).Inc()
	m.snapshotTime.Observe(duration.Seconds())
}

func (m *backupMetrics) RecordPruned(count int) {
	m.pruned.Add(float64(count))
}

func (m *backupMetrics) RecordUpload(bytes int64, duration time.Duration, err error) {
	m.uploads.WithLabelValues(status(err)).Inc()
	if err == nil {
		m.uploadBytes.Add(float64(bytes))
	}
	m.uploadDuration.Observe(duration.Seconds())
}

type noopBackupMetrics struct{}

// NewNoopBackupMetrics returns a BackupMetrics that records nothing.
func NewNoopBackupMetrics() BackupMetrics { return noopBackupMetrics{} }

func (noopBackupMetrics) RecordSnapshot(time.Duration, bool, error) {}
func (noopBackupMetrics) RecordPruned(int) {}
func (noopBackupMetrics) RecordUpload(int64, time.Duration, error) {}
