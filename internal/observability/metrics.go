package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queueSize    *prometheus.GaugeVec
	enqueueTotal *prometheus.CounterVec
	dequeueTotal *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	taskRetries  *prometheus.CounterVec
	lanesActive  prometheus.Gauge

	cronRunsTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "lane_queue_size",
					Help: "Current pending queue size by lane.",
				},
				[]string{"lane"},
			),
			enqueueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "lane_enqueue_total",
					Help: "Total enqueue operations by lane.",
				},
				[]string{"lane"},
			),
			dequeueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "lane_dequeue_total",
					Help: "Total task completions by lane and status.",
				},
				[]string{"lane", "status"},
			),
			taskDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "lane_task_duration_seconds",
					Help:    "Task execution duration in seconds by lane.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"lane"},
			),
			taskRetries: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "lane_task_retries_total",
					Help: "Total retry attempts by lane.",
				},
				[]string{"lane"},
			),
			lanesActive: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "lanes_active",
					Help: "Current number of lanes.",
				},
			),
			cronRunsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cron_job_runs_total",
					Help: "Total cron job runs by job and status.",
				},
				[]string{"job", "status"},
			),
		}

		prometheus.MustRegister(
			m.queueSize,
			m.enqueueTotal,
			m.dequeueTotal,
			m.taskDuration,
			m.taskRetries,
			m.lanesActive,
			m.cronRunsTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordQueueEnqueue(lane string, queueSize int) {
	m := getMetrics()
	m.enqueueTotal.WithLabelValues(lane).Inc()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func SetQueueSize(lane string, queueSize int) {
	m := getMetrics()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordQueueCompletion(lane string, duration time.Duration, success bool, queueSize int) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.dequeueTotal.WithLabelValues(lane, status).Inc()
	m.taskDuration.WithLabelValues(lane).Observe(duration.Seconds())
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordTaskRetry(lane string) {
	getMetrics().taskRetries.WithLabelValues(lane).Inc()
}

func SetLanesActive(count int) {
	getMetrics().lanesActive.Set(float64(count))
}

func RecordCronRun(job string, success bool) {
	status := "error"
	if success {
		status = "success"
	}
	getMetrics().cronRunsTotal.WithLabelValues(job, status).Inc()
}
