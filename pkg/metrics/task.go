package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TaskMetrics provides observability for the background task runner.
type TaskMetrics interface {
	// RecordSubmitted counts a newly started task.
	RecordSubmitted()

	// RecordFinished counts a task reaching a terminal state.
	//
	// Parameters:
	//   - status: Terminal status name ("completed", "failed", "cancelled")
	//   - duration: Time from submission to the terminal transition
	RecordFinished(status string, duration time.Duration)
}

type taskMetrics struct {
	submitted prometheus.Counter
	finished  *prometheus.CounterVec
	running   prometheus.Gauge
	duration  *prometheus.HistogramVec
}

var (
	taskMetricsOnce     sync.Once
	taskMetricsInstance TaskMetrics
)

// NewTaskMetrics returns the process-wide Prometheus TaskMetrics, or a no-op
// implementation when metrics are disabled.
func NewTaskMetrics() TaskMetrics {
	if !IsEnabled() {
		return NewNoopTaskMetrics()
	}
	taskMetricsOnce.Do(func() {
		taskMetricsInstance = newTaskMetrics(GetRegistry())
	})
	return taskMetricsInstance
}

func newTaskMetrics(reg prometheus.Registerer) *taskMetrics {
	return &taskMetrics{
		submitted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "assetvault_tasks_submitted_total",
			Help: "Total number of background tasks started",
		}),
		finished: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetvault_tasks_finished_total",
				Help: "Total number of background tasks by terminal status",
			},
			[]string{"status"},
		),
		running: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "assetvault_tasks_running",
			Help: "Current number of running background tasks",
		}),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assetvault_task_duration_seconds",
				Help:    "Duration of background tasks in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"status"},
		),
	}
}

func (m *taskMetrics) RecordSubmitted() {
	m.submitted.Inc()
	m.running.Inc()
}

func (m *taskMetrics) RecordFinished(status string, duration time.Duration) {
	m.running.Dec()
	m.finished.WithLabelValues(status).Inc()
	m.duration.WithLabelValues(status).Observe(duration.Seconds())
}

type noopTaskMetrics struct{}

// NewNoopTaskMetrics returns a TaskMetrics that records nothing.
func NewNoopTaskMetrics() TaskMetrics { return noopTaskMetrics{} }

func (noopTaskMetrics) RecordSubmitted() {}
func (noopTaskMetrics) RecordFinished(string, time.Duration) {}
