// Package metrics exposes Prometheus counters/gauges/histograms for the
// orchestrator's pipeline execution and the gateway's proxy/webhook
// traffic.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PipelinesStarted counts pipeline runs by task type.
	PipelinesStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_pipelines_started_total",
			Help: "Total number of orchestrator pipeline runs started, by task type",
		},
		[]string{"task_type"},
	)

	// PipelinesCompleted counts pipeline runs by task type and outcome
	// ("completed", "failed").
	PipelinesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_pipelines_completed_total",
			Help: "Total number of orchestrator pipeline runs completed, by task type and outcome",
		},
		[]string{"task_type", "outcome"},
	)

	// PipelineDuration observes total pipeline wall-clock time.
	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "controlplane_pipeline_duration_seconds",
			Help:    "Orchestrator pipeline duration in seconds, by task type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task_type"},
	)

	// StepDuration observes individual step duration within a pipeline.
	StepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "controlplane_pipeline_step_duration_seconds",
			Help:    "Orchestrator pipeline step duration in seconds, by task type and step name",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task_type", "step_name"},
	)

	// QueueDepth tracks the last-observed length of a broker queue.
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "controlplane_queue_depth",
			Help: "Number of tasks waiting in a broker queue, by queue name and priority",
		},
		[]string{"queue", "priority"},
	)

	// WorkersActive tracks how many orchestrator workers currently hold a
	// claimed task.
	WorkersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "controlplane_workers_active",
			Help: "Number of orchestrator worker goroutines currently executing a pipeline",
		},
	)

	// WebhookRequestsTotal counts gateway webhook deliveries by outcome
	// ("dispatched", "ignored", "bad_signature").
	WebhookRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_webhook_requests_total",
			Help: "Total number of tenant webhook deliveries received, by outcome",
		},
		[]string{"outcome"},
	)

	// ProxyRequestsTotal counts gateway-proxied requests by upstream
	// outcome ("ok", "timeout", "unreachable", "error").
	ProxyRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_proxy_requests_total",
			Help: "Total number of gateway-proxied requests, by outcome",
		},
		[]string{"outcome"},
	)

	// AutoStartDuration observes how long a suspended-tenant auto-start
	// poll loop took before the request was proxied or timed out.
	AutoStartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "controlplane_auto_start_duration_seconds",
			Help:    "Time spent waiting for a suspended tenant to become active",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60},
		},
	)
)

func init() {
	prometheus.MustRegister(
		PipelinesStarted,
		PipelinesCompleted,
		PipelineDuration,
		StepDuration,
		QueueDepth,
		WorkersActive,
		WebhookRequestsTotal,
		ProxyRequestsTotal,
		AutoStartDuration,
	)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
