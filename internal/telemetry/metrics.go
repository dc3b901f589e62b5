// Package telemetry is the orchestration core's metrics and tracing layer,
// relabeled from the teacher's channel-centric observability surface
// (messages/channels/sessions) to this platform's tenant/provider/workflow
// domain (provider requests, tool executions, workflow runs, queue depth).
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the core emits. Unlike the
// teacher's NewMetrics, which always registers against the global default
// registry, NewMetrics here takes an explicit prometheus.Registerer so
// tests can pass a fresh *prometheus.Registry and construct Metrics more
// than once per process without a duplicate-registration panic.
type Metrics struct {
	// ProviderRequestCounter counts LLM provider calls.
	// Labels: provider, model, status (success|error)
	ProviderRequestCounter *prometheus.CounterVec

	// ProviderRequestDuration measures provider call latency in seconds.
	// Labels: provider, model
	ProviderRequestDuration *prometheus.HistogramVec

	// ProviderTokensUsed tracks token consumption.
	// Labels: provider, model, kind (prompt|completion)
	ProviderTokensUsed *prometheus.CounterVec

	// ProviderCostUSD tracks estimated spend.
	// Labels: provider, model
	ProviderCostUSD *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_id, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool run time in seconds.
	// Labels: tool_id
	ToolExecutionDuration *prometheus.HistogramVec

	// WorkflowExecutionCounter counts workflow executions by outcome.
	// Labels: workflow_id, status (completed|failed|cancelled)
	WorkflowExecutionCounter *prometheus.CounterVec

	// WorkflowExecutionDuration measures a full execution's wall time.
	// Labels: workflow_id
	WorkflowExecutionDuration *prometheus.HistogramVec

	// WorkflowStepCounter counts individual task completions by type.
	// Labels: task_type, status (success|error|retry)
	WorkflowStepCounter *prometheus.CounterVec

	// QueueDepth is the current job queue depth.
	// Labels: priority (high|default|low)
	QueueDepth *prometheus.GaugeVec

	// QueueWait measures time a job spent queued before being dequeued.
	// Labels: priority
	QueueWait *prometheus.HistogramVec

	// SchedulerFireCounter counts scheduled-job firings.
	// Labels: status (fired|skipped|error)
	SchedulerFireCounter *prometheus.CounterVec

	// ErrorCounter tracks errors by component and kind.
	// Labels: component, error_kind
	ErrorCounter *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP API request latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// DatabaseQueryDuration measures query latency.
	// Labels: operation, table
	DatabaseQueryDuration *prometheus.HistogramVec

	// DatabaseQueryCounter counts queries.
	// Labels: operation, table, status
	DatabaseQueryCounter *prometheus.CounterVec
}

// NewMetrics builds and registers every collector against reg. Pass
// prometheus.DefaultRegisterer at startup; tests should pass a fresh
// prometheus.NewRegistry() instead.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		ProviderRequestCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrail_provider_requests_total",
				Help: "Total LLM provider requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		ProviderRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrail_provider_request_duration_seconds",
				Help:    "LLM provider request latency",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		ProviderTokensUsed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrail_provider_tokens_total",
				Help: "Tokens consumed by provider, model, and kind",
			},
			[]string{"provider", "model", "kind"},
		),
		ProviderCostUSD: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrail_provider_cost_usd_total",
				Help: "Estimated provider spend in USD",
			},
			[]string{"provider", "model"},
		),
		ToolExecutionCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrail_tool_executions_total",
				Help: "Tool invocations by tool and status",
			},
			[]string{"tool_id", "status"},
		),
		ToolExecutionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrail_tool_execution_duration_seconds",
				Help:    "Tool execution latency",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_id"},
		),
		WorkflowExecutionCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrail_workflow_executions_total",
				Help: "Workflow executions by workflow and outcome",
			},
			[]string{"workflow_id", "status"},
		),
		WorkflowExecutionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrail_workflow_execution_duration_seconds",
				Help:    "Full workflow execution wall time",
				Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 3600},
			},
			[]string{"workflow_id"},
		),
		WorkflowStepCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrail_workflow_steps_total",
				Help: "Workflow task completions by task type and status",
			},
			[]string{"task_type", "status"},
		),
		QueueDepth: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agentrail_queue_depth",
				Help: "Current job queue depth by priority",
			},
			[]string{"priority"},
		),
		QueueWait: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrail_queue_wait_seconds",
				Help:    "Time a job waited in queue before being dequeued",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"priority"},
		),
		SchedulerFireCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrail_scheduler_fires_total",
				Help: "Scheduled job firings by outcome",
			},
			[]string{"status"},
		),
		ErrorCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrail_errors_total",
				Help: "Errors by component and kind",
			},
			[]string{"component", "error_kind"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrail_http_request_duration_seconds",
				Help:    "HTTP API request latency",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrail_http_requests_total",
				Help: "HTTP API requests",
			},
			[]string{"method", "path", "status_code"},
		),
		DatabaseQueryDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrail_database_query_duration_seconds",
				Help:    "Database query latency",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation", "table"},
		),
		DatabaseQueryCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrail_database_queries_total",
				Help: "Database queries by operation, table, and status",
			},
			[]string{"operation", "table", "status"},
		),
	}
}

func (m *Metrics) RecordProviderRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.ProviderRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.ProviderTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.ProviderTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

func (m *Metrics) RecordProviderCost(provider, model string, costUSD float64) {
	m.ProviderCostUSD.WithLabelValues(provider, model).Add(costUSD)
}

func (m *Metrics) RecordToolExecution(toolID, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolID, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolID).Observe(durationSeconds)
}

func (m *Metrics) RecordWorkflowExecution(workflowID, status string, durationSeconds float64) {
	m.WorkflowExecutionCounter.WithLabelValues(workflowID, status).Inc()
	m.WorkflowExecutionDuration.WithLabelValues(workflowID).Observe(durationSeconds)
}

func (m *Metrics) RecordWorkflowStep(taskType, status string) {
	m.WorkflowStepCounter.WithLabelValues(taskType, status).Inc()
}

func (m *Metrics) SetQueueDepth(priority string, depth int) {
	m.QueueDepth.WithLabelValues(priority).Set(float64(depth))
}

func (m *Metrics) RecordQueueWait(priority string, waitSeconds float64) {
	m.QueueWait.WithLabelValues(priority).Observe(waitSeconds)
}

func (m *Metrics) RecordSchedulerFire(status string) {
	m.SchedulerFireCounter.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordError(component, errorKind string) {
	m.ErrorCounter.WithLabelValues(component, errorKind).Inc()
}

func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

func (m *Metrics) RecordDatabaseQuery(operation, table, status string, durationSeconds float64) {
	m.DatabaseQueryCounter.WithLabelValues(operation, table, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(durationSeconds)
}
