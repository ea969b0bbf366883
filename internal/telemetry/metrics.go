// Package telemetry exposes Prometheus metrics for workflow runs and the
// HTTP traffic they cause.
package telemetry

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "oic_devops"

// MetricsConfig configures the collector.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
	Buckets   []float64
}

// Metrics provides Prometheus metrics for oic-devops. A nil or disabled
// Metrics accepts every call and records nothing.
type Metrics struct {
	config MetricsConfig

	// Workflow metrics
	workflowsStarted   *prometheus.CounterVec
	workflowsCompleted *prometheus.CounterVec
	workflowDuration   *prometheus.HistogramVec
	activeWorkflows    prometheus.Gauge

	// Resource metrics
	resourcesProcessed *prometheus.CounterVec

	// HTTP metrics
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{config: cfg}
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}

	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		workflowsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflows_started_total",
				Help:      "Total number of workflow operations started",
			},
			[]string{"family", "operation"},
		),
		workflowsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflows_completed_total",
				Help:      "Total number of workflow operations completed",
			},
			[]string{"family", "operation", "status"},
		),
		workflowDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "workflow_duration_seconds",
				Help:      "Duration of workflow operations in seconds",
				Buckets:   buckets,
			},
			[]string{"family", "operation"},
		),
		activeWorkflows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_workflows",
				Help:      "Current number of running workflow operations",
			},
		),
		resourcesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resources_processed_total",
				Help:      "Total number of resources handled by workflows",
			},
			[]string{"kind", "outcome"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of OIC API requests",
			},
			[]string{"method", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of OIC API requests in seconds",
				Buckets:   buckets,
			},
			[]string{"method"},
		),
	}

	registry.MustRegister(
		m.workflowsStarted,
		m.workflowsCompleted,
		m.workflowDuration,
		m.activeWorkflows,
		m.resourcesProcessed,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// Workflow Metrics

// WorkflowStarted records the start of an operation.
func (m *Metrics) WorkflowStarted(family, operation string) {
	if !m.enabled() {
		return
	}

	m.workflowsStarted.WithLabelValues(family, operation).Inc()
	m.activeWorkflows.Inc()
}

// WorkflowCompleted records the outcome and duration of an operation.
func (m *Metrics) WorkflowCompleted(family, operation string, success bool, duration time.Duration) {
	if !m.enabled() {
		return
	}

	status := "success"
	if !success {
		status = "failure"
	}

	m.workflowsCompleted.WithLabelValues(family, operation, status).Inc()
	m.workflowDuration.WithLabelValues(family, operation).Observe(duration.Seconds())
	m.activeWorkflows.Dec()
}

// Resource Metrics

// ResourceProcessed counts one resource outcome such as "exported" or "failed".
func (m *Metrics) ResourceProcessed(kind, outcome string) {
	if !m.enabled() {
		return
	}

	m.resourcesProcessed.WithLabelValues(kind, outcome).Inc()
}

// HTTP Metrics

// ObserveRequest implements the dispatcher's request observer. Transport
// failures are counted under code "0".
func (m *Metrics) ObserveRequest(method string, statusCode int, duration time.Duration) {
	if !m.enabled() {
		return
	}

	m.httpRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	m.httpDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// Registry returns the underlying registry, nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}

	return m.registry
}

// WriteTextfile writes every metric in the text exposition format, suitable
// for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if !m.enabled() {
		return nil
	}

	err := prometheus.WriteToTextfile(path, m.registry)
	if err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}

	return nil
}
