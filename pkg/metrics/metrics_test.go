package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreMetrics_RecordsByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newStoreMetrics(reg)

	m.RecordOperation("avatar", "Add", time.Millisecond, nil)
	m.RecordOperation("avatar", "Add", time.Millisecond, errors.New("boom"))
	m.SetRecordCount("avatar", 12)
	m.RecordPersist("avatar", 2048, time.Millisecond, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("avatar", "Add", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("avatar", "Add", "error")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.records.WithLabelValues("avatar")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.persistTotal.WithLabelValues("avatar", "success")))
}

func TestTaskMetrics_RunningGauge(t *testing.T) {
	m := newTaskMetrics(prometheus.NewRegistry())

	m.RecordSubmitted()
	m.RecordSubmitted()
	m.RecordFinished("completed", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.running))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.submitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.finished.WithLabelValues("completed")))
}

func TestBackupMetrics_Outcomes(t *testing.T) {
	m := newBackupMetrics(prometheus.NewRegistry())

	m.RecordSnapshot(time.Millisecond, false, nil)
	m.RecordSnapshot(time.Millisecond, true, nil)
	m.RecordSnapshot(time.Millisecond, false, errors.New("disk full"))
	m.RecordPruned(3)
	m.RecordUpload(100, time.Millisecond, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.snapshots.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.snapshots.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.snapshots.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pruned))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.uploadBytes))
}

func TestNoopMetricsWhenDisabled(t *testing.T) {
	if IsEnabled() {
		t.Skip("registry already initialized in this process")
	}

	assert.IsType(t, noopStoreMetrics{}, NewStoreMetrics())
	assert.IsType(t, noopTaskMetrics{}, NewTaskMetrics())
	assert.IsType(t, noopBackupMetrics{}, NewBackupMetrics())

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestConstructorsAreIdempotentWhenEnabled(t *testing.T) {
	InitRegistry()
	require.True(t, IsEnabled())

	require.NotPanics(t, func() {
		a := NewStoreMetrics()
		b := NewStoreMetrics()
		assert.Same(t, a.(*storeMetrics), b.(*storeMetrics))
		_ = NewTaskMetrics()
		_ = NewTaskMetrics()
		_ = NewBackupMetrics()
	})

	NewStoreMetrics().RecordOperation("avatar", "Load", time.Millisecond, nil)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "assetvault_store_operations_total")
}
