package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StoreMetrics provides observability for asset record store operations.
//
// This interface is optional - stores constructed without one use a no-op
// implementation.
type StoreMetrics interface {
	// RecordOperation records a completed store operation.
	//
	// Parameters:
	//   - kind: Asset kind of the store (e.g., "avatar")
	//   - operation: Operation name (e.g., "Load", "Add", "Update")
	//   - duration: Time taken to complete the operation
	//   - err: Error if operation failed, nil if successful
	RecordOperation(kind, operation string, duration time.Duration, err error)

	// SetRecordCount updates the number of records held by a store.
	SetRecordCount(kind string, count int)

	// RecordPersist records one whole-file rewrite and the bytes written.
	RecordPersist(kind string, bytes int, duration time.Duration, err error)
}

type storeMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	records           *prometheus.GaugeVec
	persistTotal      *prometheus.CounterVec
	persistBytes      *prometheus.HistogramVec
	persistDuration   *prometheus.HistogramVec
}

var (
	storeMetricsOnce     sync.Once
	storeMetricsInstance StoreMetrics
)

// NewStoreMetrics returns the process-wide Prometheus StoreMetrics, or a
// no-op implementation when metrics are disabled.
func NewStoreMetrics() StoreMetrics {
	if !IsEnabled() {
		return NewNoopStoreMetrics()
	}
	storeMetricsOnce.Do(func() {
		storeMetricsInstance = newStoreMetrics(GetRegistry())
	})
	return storeMetricsInstance
}

func newStoreMetrics(reg prometheus.Registerer) *storeMetrics {
	return &storeMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetvault_store_operations_total",
				Help: "Total number of asset store operations by kind, operation, and status",
			},
			[]string{"kind", "operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "assetvault_store_operation_duration_seconds",
				Help: "Duration of asset store operations in seconds",
				Buckets: []float64{
					0.0005, // 500µs
					0.001,  // 1ms
					0.005,  // 5ms
					0.01,   // 10ms
					0.05,   // 50ms
					0.1,    // 100ms
					0.5,    // 500ms
					1.0,    // 1s
				},
			},
			[]string{"kind", "operation"},
		),
		records: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "assetvault_store_records",
				Help: "Current number of records per asset kind",
			},
			[]string{"kind"},
		),
		persistTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetvault_store_persist_total",
				Help: "Total number of metadata file rewrites by kind and status",
			},
			[]string{"kind", "status"},
		),
		persistBytes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assetvault_store_persist_bytes",
				Help:    "Size of rewritten metadata files in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
			},
			[]string{"kind"},
		),
		persistDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assetvault_store_persist_duration_seconds",
				Help:    "Duration of metadata file rewrites in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
	}
}

func (m *storeMetrics) RecordOperation(kind, operation string, duration time.Duration, err error) {
	m.operationsTotal.WithLabelValues(kind, operation, status(err)).Inc()
	m.operationDuration.WithLabelValues(kind, operation).Observe(duration.Seconds())
}

func (m *storeMetrics) SetRecordCount(kind string, count int) {
	m.records.WithLabelValues(kind).Set(float64(count))
}

func (m *storeMetrics) RecordPersist(kind string, bytes int, duration time.Duration, err error) {
	m.persistTotal.WithLabelValues(kind, status(err)).Inc()
	if err == nil {
		m.persistBytes.WithLabelValues(kind).Observe(float64(bytes))
	}
	m.persistDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// noopStoreMetrics is a no-op implementation of StoreMetrics.
type noopStoreMetrics struct{}

// NewNoopStoreMetrics returns a StoreMetrics that records nothing.
func NewNoopStoreMetrics() StoreMetrics { return noopStoreMetrics{} }

func (noopStoreMetrics) RecordOperation(string, string, time.Duration, error) {}
func (noopStoreMetrics) SetRecordCount(string, int) {}
func (noopStoreMetrics) RecordPersist(string, int, time.Duration, error) {}
