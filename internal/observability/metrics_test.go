package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureRegistered_Idempotent(t *testing.T) {
	// Registering twice would panic on duplicate collectors.
	EnsureRegistered()
	EnsureRegistered()
}

func TestRecordersDoNotPanic(t *testing.T) {
	EnsureRegistered()

	RecordQueueEnqueue("session-1", 3)
	SetQueueSize("session-1", 2)
	RecordQueueCompletion("session-1", 120*time.Millisecond, true, 1)
	RecordQueueCompletion("session-1", 40*time.Millisecond, false, 0)
	RecordTaskRetry("session-1")
	SetLanesActive(2)
	RecordCronRun("nightly-sync", true)
	RecordCronRun("nightly-sync", false)
}

func TestMetricsHandler_ExposesLaneMetrics(t *testing.T) {
	RecordQueueEnqueue("scrape-lane", 1)
	RecordQueueCompletion("scrape-lane", 10*time.Millisecond, true, 0)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	MetricsHandler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "lane_enqueue_total")
	assert.Contains(t, body, "lane_dequeue_total")
	assert.Contains(t, body, "lane_task_duration_seconds")
	assert.Contains(t, body, `lane="scrape-lane"`)
}
