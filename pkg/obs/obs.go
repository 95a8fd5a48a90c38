// Package obs is the observability surface co-located with the runtime: the
// metric registry with its text exposition, the health endpoint and the
// structured log writer with recursive redaction.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rustkas/beamline-worker/pkg/core"
)

// Histogram bucket bounds, in seconds.
var (
	stepDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5}
	flowDurationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60}
)

// Observability bundles the metric families, the endpoint servers and the
// structured logger for one worker process. The registry is shared: every
// actor writes, the exposition endpoint reads; the families synchronize
// internally.
type Observability struct {
	workerID string
	registry *prometheus.Registry
	logger   *Logger

	stepExecutions *counterFamily
	stepErrors     *counterFamily
	stepDuration   *histogramFamily
	flowDuration   *histogramFamily

	queueDepth   *prometheus.GaugeVec
	activeTasks  *prometheus.GaugeVec
	healthStatus *prometheus.GaugeVec

	health  *endpoint
	metrics *endpoint
}

// New builds the observability surface for the given worker identity.
func New(workerID string) *Observability {
	o := &Observability{
		workerID: workerID,
		registry: prometheus.NewRegistry(),
		logger:   NewLogger(workerID),

		stepExecutions: newCounterFamily(
			"worker_step_executions_total",
			"Total number of step executions by type and final status.",
		),
		stepErrors: newCounterFamily(
			"worker_step_errors_total",
			"Total number of step errors by type and error code.",
		),
		stepDuration: newHistogramFamily(
			"worker_step_execution_duration_seconds",
			"Step execution duration in seconds.",
			stepDurationBuckets,
		),
		flowDuration: newHistogramFamily(
			"worker_flow_execution_duration_seconds",
			"Flow execution duration in seconds.",
			flowDurationBuckets,
		),

		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Number of queued requests per resource pool.",
		}, []string{"resource_pool"}),
		activeTasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worker_active_tasks",
			Help: "Number of in-flight requests per resource pool.",
		}, []string{"resource_pool"}),
		healthStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worker_health_status",
			Help: "Health status per check (1 = healthy, 0 = unhealthy).",
		}, []string{"check"}),
	}

	o.registry.MustRegister(
		o.stepExecutions,
		o.stepErrors,
		o.stepDuration,
		o.flowDuration,
		o.queueDepth,
		o.activeTasks,
		o.healthStatus,
	)

	return o
}

// Registry exposes the shared metric registry.
func (o *Observability) Registry() *prometheus.Registry {
	return o.registry
}

// Logger exposes the structured log writer.
func (o *Observability) Logger() *Logger {
	return o.logger
}

// correlationLabels appends the metric correlation labels that are non-empty.
// trace_id is attached to logs only, never to metrics.
func correlationLabels(base []Label, meta core.ResultMetadata) []Label {
	if meta.TenantID != "" {
		base = append(base, Label{Name: "tenant_id", Value: meta.TenantID})
	}

	if meta.RunID != "" {
		base = append(base, Label{Name: "run_id", Value: meta.RunID})
	}

	if meta.FlowID != "" {
		base = append(base, Label{Name: "flow_id", Value: meta.FlowID})
	}

	if meta.StepID != "" {
		base = append(base, Label{Name: "step_id", Value: meta.StepID})
	}

	return base
}

// RecordStepExecution counts one terminal step execution.
func (o *Observability) RecordStepExecution(stepType, executionStatus string, meta core.ResultMetadata) {
	labels := []Label{
		{Name: "step_type", Value: stepType},
		{Name: "execution_status", Value: executionStatus},
	}
	o.stepExecutions.Inc(correlationLabels(labels, meta))
}

// RecordStepDuration observes the wall-clock duration of one terminal step
// execution.
func (o *Observability) RecordStepDuration(stepType, executionStatus string, seconds float64, meta core.ResultMetadata) {
	labels := []Label{
		{Name: "step_type", Value: stepType},
		{Name: "execution_status", Value: executionStatus},
	}
	o.stepDuration.Observe(correlationLabels(labels, meta), seconds)
}

// RecordStepError counts one failed step attempt by error code.
func (o *Observability) RecordStepError(stepType, errorCode string, meta core.ResultMetadata) {
	labels := []Label{
		{Name: "step_type", Value: stepType},
		{Name: "error_code", Value: errorCode},
	}
	o.stepErrors.Inc(correlationLabels(labels, meta))
}

// RecordFlowDuration observes the duration of one flow execution.
func (o *Observability) RecordFlowDuration(seconds float64, meta core.ResultMetadata) {
	o.flowDuration.Observe(correlationLabels(nil, core.ResultMetadata{
		TenantID: meta.TenantID,
		RunID:    meta.RunID,
		FlowID:   meta.FlowID,
	}), seconds)
}

// SetQueueDepth refreshes the queue-depth gauge for a resource pool.
func (o *Observability) SetQueueDepth(resourcePool string, depth int) {
	o.queueDepth.WithLabelValues(resourcePool).Set(float64(depth))
}

// SetActiveTasks refreshes the in-flight gauge for a resource pool.
func (o *Observability) SetActiveTasks(resourcePool string, count int) {
	o.activeTasks.WithLabelValues(resourcePool).Set(float64(count))
}

// SetHealthStatus flips a named health check.
func (o *Observability) SetHealthStatus(check string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}

	o.healthStatus.WithLabelValues(check).Set(value)
}
