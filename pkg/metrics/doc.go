/*
Package metrics provides Prometheus metrics collection and exposition for the
control plane.

The metrics package defines and registers all control-plane metrics using the
Prometheus client library, providing observability into pipeline execution,
broker queue depth, and gateway traffic. Metrics are exposed via an HTTP
endpoint for scraping by Prometheus servers.

# Metrics Catalog

Pipeline Metrics:

controlplane_pipelines_started_total{task_type}:
  - Type: Counter
  - Description: Total orchestrator pipeline runs started, by task type
  - Example: controlplane_pipelines_started_total{task_type="team.provision"} 42

controlplane_pipelines_completed_total{task_type, outcome}:
  - Type: Counter
  - Description: Total orchestrator pipeline runs completed, by task type and outcome ("completed", "failed")
  - Example: controlplane_pipelines_completed_total{task_type="team.provision",outcome="completed"} 40

controlplane_pipeline_duration_seconds{task_type}:
  - Type: Histogram
  - Description: Pipeline wall-clock duration in seconds, by task type
  - Buckets: Default Prometheus buckets

controlplane_pipeline_step_duration_seconds{task_type, step_name}:
  - Type: Histogram
  - Description: Individual pipeline step duration in seconds
  - Buckets: Default Prometheus buckets

Broker Metrics:

controlplane_queue_depth{queue, priority}:
  - Type: Gauge
  - Description: Number of tasks waiting in a broker queue, by queue name and priority ("high", "normal")
  - Example: controlplane_queue_depth{queue="provisioning",priority="high"} 3

controlplane_workers_active:
  - Type: Gauge
  - Description: Number of orchestrator worker goroutines currently executing a pipeline

Gateway Metrics:

controlplane_webhook_requests_total{outcome}:
  - Type: Counter
  - Description: Total tenant webhook deliveries received, by outcome ("dispatched", "ignored", "bad_signature")

controlplane_proxy_requests_total{outcome}:
  - Type: Counter
  - Description: Total gateway-proxied requests, by upstream outcome ("ok", "timeout", "unreachable", "error")

controlplane_auto_start_duration_seconds:
  - Type: Histogram
  - Description: Time spent waiting for a suspended tenant to become active before a proxied request is served
  - Buckets: 1, 2, 5, 10, 20, 30, 45, 60

# Usage

Recording Counter and Gauge Observations:

	import "github.com/kanbanhq/controlplane/pkg/metrics"

	metrics.PipelinesStarted.WithLabelValues("team.provision").Inc()
	metrics.QueueDepth.WithLabelValues("provisioning", "high").Set(3)

Recording Histogram Observations With the Timer Helper:

	timer := metrics.NewTimer()
	runStep()
	timer.ObserveDurationVec(metrics.StepDuration, "team.provision", "create_team_directory")

Exposing the Endpoint:

	http.Handle("/metrics", metrics.Handler())

# Queue Depth Collection

Collector polls a broker's QueueDepth method on a ticker and republishes the
result into the QueueDepth gauge, so queue backlog is visible even between
pipeline steps:

	c := metrics.NewCollector(brk, []string{"provisioning", "agents"})
	c.Start()
	defer c.Stop()

# Health and Readiness

RegisterComponent/UpdateComponent track named subsystems ("store", "broker",
"containerd"); GetReadiness reports not_ready until all three are healthy.
HealthHandler, ReadyHandler, and LivenessHandler expose these over HTTP for
container orchestrator probes.

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics
