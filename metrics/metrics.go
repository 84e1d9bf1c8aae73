// Package metrics exposes the Prometheus metrics of coderun.
//
// All metrics live on a private registry, so several collectors can coexist
// in one process (tests rely on this). Every recording method is safe to
// call on a nil *Collector, which lets components run without metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coderun"

// Collector holds all Prometheus metrics for coderun
type Collector struct {
	Registry *prometheus.Registry

	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	SafetyRejections  *prometheus.CounterVec
	ActiveExecutions  prometheus.Gauge

	WorkspaceCleanupFailures prometheus.Counter
	JanitorRemoved           prometheus.Counter

	HTTPRequestsTotal *prometheus.CounterVec
}

// New creates a Collector with all metrics registered on a custom registry
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,

		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Total code executions by language and outcome.",
		}, []string{"language", "outcome"}),

		ExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock execution duration in seconds, compile phase included.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"language"}),

		SafetyRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_rejections_total",
			Help:      "Query submissions rejected by the safety gate.",
		}, []string{"language"}),

		ActiveExecutions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_executions",
			Help:      "Number of executions currently in flight.",
		}),

		WorkspaceCleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workspace_cleanup_failures_total",
			Help:      "Workspaces that could not be removed after an execution.",
		}),

		JanitorRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "janitor_removed_total",
			Help:      "Stale workspaces removed by the janitor.",
		}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		c.ExecutionsTotal,
		c.ExecutionDuration,
		c.SafetyRejections,
		c.ActiveExecutions,
		c.WorkspaceCleanupFailures,
		c.JanitorRemoved,
		c.HTTPRequestsTotal,
	)

	return c
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})
}

// RecordExecution counts a finished execution and observes its duration
func (c *Collector) RecordExecution(language, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.ExecutionsTotal.WithLabelValues(language, outcome).Inc()
	c.ExecutionDuration.WithLabelValues(language).Observe(d.Seconds())
}

// RecordSafetyRejection counts a query refused by the safety gate
func (c *Collector) RecordSafetyRejection(language string) {
	if c == nil {
		return
	}
	c.SafetyRejections.WithLabelValues(language).Inc()
}

// ExecutionStarted increments the in-flight gauge. The returned func decrements it.
func (c *Collector) ExecutionStarted() func() {
	if c == nil {
		return func() {}
	}
	c.ActiveExecutions.Inc()
	return c.ActiveExecutions.Dec
}

// RecordCleanupFailure counts a workspace that could not be removed
func (c *Collector) RecordCleanupFailure() {
	if c == nil {
		return
	}
	c.WorkspaceCleanupFailures.Inc()
}

// RecordJanitorRemoved adds n swept workspaces
func (c *Collector) RecordJanitorRemoved(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.JanitorRemoved.Add(float64(n))
}

// RecordHTTPRequest counts a served HTTP request. route is the matched
// route pattern, never the raw path, to keep label cardinality bounded.
func (c *Collector) RecordHTTPRequest(method, route string, status int) {
	if c == nil {
		return
	}
	c.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
