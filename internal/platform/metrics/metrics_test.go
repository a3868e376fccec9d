package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.TaskProcessed("completed")
	m.TaskProcessed("completed")
	m.TaskProcessed("requeued")
	m.SchedulerRows("bootstrap", "updated", 3)
	m.SchedulerRows("bootstrap", "updated", 0)
	m.ObserveClassifier(250*time.Millisecond, nil)
	m.ObserveClassifier(time.Second, errors.New("boom"))
	m.SetQueueDepth(map[string]int{"PENDING": 4, "FAILED": 1})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.tasksProcessed.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksProcessed.WithLabelValues("requeued")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.schedulerRows.WithLabelValues("bootstrap", "updated")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.queueDepth.WithLabelValues("PENDING")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.classifierLatency))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.TaskProcessed("failed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `freshness_tasks_processed_total{outcome="failed"} 1`))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TaskProcessed("completed")
		m.ObserveClassifier(time.Second, nil)
		m.SchedulerRows("enqueue", "enqueued", 1)
		m.SetQueueDepth(map[string]int{"PENDING": 1})
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
