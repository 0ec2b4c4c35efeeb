package automation

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the engine.
// A nil *Metrics records nothing.
type Metrics struct {
	eventsTotal        *prometheus.CounterVec
	executionsTotal    *prometheus.CounterVec
	executionDuration  *prometheus.HistogramVec
	actionsTotal       *prometheus.CounterVec
	actionDuration     *prometheus.HistogramVec
	disposeErrorsTotal prometheus.Counter
	activeRules        prometheus.Gauge
}

// NewMetrics creates the engine collectors and registers them with reg.
// A nil registerer returns nil metrics.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil //nolint:nilnil // nil registerer disables metrics
	}

	m := &Metrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graylogic",
			Subsystem: "rules",
			Name:      "events_total",
			Help:      "Trigger events received per rule, by outcome. Events for unknown rules carry an empty rule label",
		}, []string{"rule", "outcome"}),

		executionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graylogic",
			Subsystem: "rules",
			Name:      "executions_total",
			Help:      "Processed rule events by final status",
		}, []string{"rule", "status"}),

		executionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "graylogic",
			Subsystem: "rules",
			Name:      "execution_duration_seconds",
			Help:      "Time spent evaluating conditions and running the body",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5, 30},
		}, []string{"rule"}),

		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graylogic",
			Subsystem: "rules",
			Name:      "actions_total",
			Help:      "Action handler invocations by type and result",
		}, []string{"type", "result"}),

		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "graylogic",
			Subsystem: "rules",
			Name:      "action_duration_seconds",
			Help:      "Time spent inside action handlers",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"type"}),

		disposeErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graylogic",
			Subsystem: "rules",
			Name:      "handler_dispose_errors_total",
			Help:      "Handlers that failed to dispose during rule removal",
		}),

		activeRules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "graylogic",
			Subsystem: "rules",
			Name:      "active",
			Help:      "Rules currently active in the engine",
		}),
	}

	collectors := []prometheus.Collector{
		m.eventsTotal, m.executionsTotal, m.executionDuration,
		m.actionsTotal, m.actionDuration, m.disposeErrorsTotal, m.activeRules,
	}
	var errs []error
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("registering rule metrics: %w", errors.Join(errs...))
	}
	return m, nil
}

func (m *Metrics) recordEvent(rule, outcome string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(rule, outcome).Inc()
}

func (m *Metrics) recordExecution(exec *RuleExecution, d time.Duration) {
	if m == nil {
		return
	}
	m.executionsTotal.WithLabelValues(exec.RuleUID, string(exec.Status)).Inc()
	m.executionDuration.WithLabelValues(exec.RuleUID).Observe(d.Seconds())
}

// forgetRule drops every series labelled with the rule's UID.
func (m *Metrics) forgetRule(rule string) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"rule": rule}
	m.eventsTotal.DeletePartialMatch(labels)
	m.executionsTotal.DeletePartialMatch(labels)
	m.executionDuration.DeletePartialMatch(labels)
}

func (m *Metrics) recordAction(typeID string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.actionsTotal.WithLabelValues(typeID, result).Inc()
	m.actionDuration.WithLabelValues(typeID).Observe(d.Seconds())
}

func (m *Metrics) recordDisposeError() {
	if m == nil {
		return
	}
	m.disposeErrorsTotal.Inc()
}

func (m *Metrics) ruleAdded() {
	if m == nil {
		return
	}
	m.activeRules.Inc()
}

func (m *Metrics) ruleRemoved() {
	if m == nil {
		return
	}
	m.activeRules.Dec()
}
