package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the ambient Prometheus instrumentation point for the
// gateway's call-count and duration — out of scope as a product surface
// (spec.md's Non-goals exclude an exposed metrics endpoint) but carried
// regardless, per SPEC_FULL.md's ambient-stack rule.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers gateway metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_tool_calls_total",
			Help: "Total tool calls handled by the gateway, by tool and status.",
		}, []string{"tool", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentcore_tool_call_duration_seconds",
			Help:    "Tool call duration as measured by the gateway.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
	}
	reg.MustRegister(m.calls, m.duration)
	return m
}

// ObserveCall records one completed call.
func (m *Metrics) ObserveCall(tool, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(tool, status).Inc()
	if elapsed > 0 {
		m.duration.WithLabelValues(tool).Observe(elapsed.Seconds())
	}
}
