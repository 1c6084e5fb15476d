// Package metrics defines the Prometheus collectors for the control plane.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the collectors. All methods are nil-safe so callers can
// run without a registry (tests, embedded use).
type Metrics struct {
	commandsTotal     *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	interpretations   *prometheus.CounterVec
	agentsActive      prometheus.Gauge
}

// New registers the collectors on reg and returns the bundle.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skylink",
			Name:      "commands_total",
			Help:      "Commands processed, by final report status.",
		}, []string{"status"}),
		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "skylink",
			Name:      "operation_duration_seconds",
			Help:      "Duration of individual drone operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		interpretations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skylink",
			Name:      "interpretations_total",
			Help:      "Interpreter calls, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		agentsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "skylink",
			Name:      "agents_active",
			Help:      "Number of initialized drone agents.",
		}),
	}
}

// ObserveCommand counts one finished command by report status.
func (m *Metrics) ObserveCommand(status string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(status).Inc()
}

// ObserveOperation records the duration of one drone operation.
func (m *Metrics) ObserveOperation(op, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(op, status).Observe(d.Seconds())
}

// ObserveInterpretation counts one interpreter call.
func (m *Metrics) ObserveInterpretation(provider, outcome string) {
	if m == nil {
		return
	}
	m.interpretations.WithLabelValues(provider, outcome).Inc()
}

// AgentRegistered bumps the active-agent gauge.
func (m *Metrics) AgentRegistered() {
	if m == nil {
		return
	}
	m.agentsActive.Inc()
}

// AgentDeregistered drops the active-agent gauge when an agent is removed.
func (m *Metrics) AgentDeregistered() {
	if m == nil {
		return
	}
	m.agentsActive.Dec()
}
