// Package metrics holds the Prometheus instrumentation for schema compilation
// and tool dispatch. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "toolbridge"

// Dispatch modes.
const (
	ModeLocal      = "local"
	ModeBody       = "body"
	ModeQuery      = "query"
	ModeUnresolved = "unresolved" // rejected before a mode was known
)

// Dispatch outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeHTTPError  = "http_error"
	OutcomeError      = "error"
	OutcomeStructural = "structural"
)

// Metrics groups the collectors used across the bridge.
type Metrics struct {
	registry *prometheus.Registry

	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	compiledTools    prometheus.Counter
	compileSkipped   prometheus.Counter
	routeCollisions  prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Function calls dispatched, by mode and outcome.",
		}, []string{"mode", "outcome"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent executing a dispatched function call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		compiledTools: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compile_tools_total",
			Help:      "Tool specs compiled successfully.",
		}),
		compileSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compile_skipped_total",
			Help:      "Tool specs skipped because their schema could not be compiled.",
		}),
		routeCollisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_collisions_total",
			Help:      "Route map entries shadowed by a later tool during a merge.",
		}),
	}
	m.registry.MustRegister(
		m.dispatchTotal,
		m.dispatchDuration,
		m.compiledTools,
		m.compileSkipped,
		m.routeCollisions,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveDispatch records one dispatched call.
func (m *Metrics) ObserveDispatch(mode, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(mode, outcome).Inc()
	if mode != ModeUnresolved {
		m.dispatchDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	}
}

// ToolCompiled records a successfully compiled tool spec.
func (m *Metrics) ToolCompiled() {
	if m == nil {
		return
	}
	m.compiledTools.Inc()
}

// ToolSkipped records a tool spec dropped during compilation.
func (m *Metrics) ToolSkipped() {
	if m == nil {
		return
	}
	m.compileSkipped.Inc()
}

// RouteShadowed records n shadowed route map entries.
func (m *Metrics) RouteShadowed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.routeCollisions.Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
