package gateway

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowchat/gateway/internal/tool"
)

// Metrics holds the gateway's prometheus collectors. It implements
// tool.Metrics so the dispatcher can record one observation per call.
type Metrics struct {
	reg        *prometheus.Registry
	dispatches *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics builds the collector set on a private registry so tests can
// create several instances without double-registration panics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		reg: reg,
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowgate_tool_dispatches_total",
			Help: "Tool dispatches by tool, category and outcome.",
		}, []string{"tool", "category", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowgate_tool_duration_seconds",
			Help:    "Tool dispatch duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool", "category"}),
	}
	reg.MustRegister(m.dispatches, m.duration)
	return m
}

// RecordDispatch implements tool.Metrics.
func (m *Metrics) RecordDispatch(toolName string, category tool.Category, outcome string, seconds float64) {
	m.dispatches.WithLabelValues(toolName, string(category), outcome).Inc()
	m.duration.WithLabelValues(toolName, string(category)).Observe(seconds)
}

// SetPendingFunc registers a gauge reporting undecided approval requests.
func (m *Metrics) SetPendingFunc(fn func() float64) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "flowgate_hitl_pending_requests",
		Help: "Approval requests currently awaiting a human decision.",
	}, fn))
}

// Handler returns the /metrics scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
