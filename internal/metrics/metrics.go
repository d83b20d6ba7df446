// Package metrics exposes Prometheus collectors for a goaldeck session.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for the Session Core
// =============================================================================

const namespace = "goaldeck"

// Metrics holds the session collectors. A nil *Metrics records nothing.
type Metrics struct {
	// dispatches counts user intents by kind and outcome (accepted, rejected).
	dispatches *prometheus.CounterVec
	// systemEvents counts system events by kind.
	systemEvents *prometheus.CounterVec
	// diffEntries counts diff entries by operation and result (applied, skipped).
	diffEntries *prometheus.CounterVec
	// violations counts invariant failures by invariant name.
	violations *prometheus.CounterVec
	// forwardErrors counts intents the backend forwarder failed to deliver.
	forwardErrors *prometheus.CounterVec
	// visibleNodes is the size of the filtered node set after the last diff.
	visibleNodes prometheus.Gauge
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in
// tests to avoid collisions on the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "statemachine",
			Name:      "dispatches_total",
			Help:      "User intents dispatched by kind and outcome",
		}, []string{"kind", "outcome"}),
		systemEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "system_events_total",
			Help:      "System events handled by kind",
		}, []string{"kind"}),
		diffEntries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "diff_entries_total",
			Help:      "Diff entries by operation and result",
		}, []string{"op", "result"}),
		violations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "statemachine",
			Name:      "invariant_violations_total",
			Help:      "Invariant failures by invariant name",
		}, []string{"invariant"}),
		forwardErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "forward_errors_total",
			Help:      "Intents the backend forwarder failed to deliver",
		}, []string{"kind"}),
		visibleNodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "visible_nodes",
			Help:      "Nodes passing the filter pipeline after the last update",
		}),
	}
}

// RecordDispatch records one Dispatch outcome.
func (m *Metrics) RecordDispatch(kind string, accepted bool) {
	if m == nil {
		return
	}
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	m.dispatches.WithLabelValues(kind, outcome).Inc()
}

// RecordSystemEvent records one handled system event.
func (m *Metrics) RecordSystemEvent(kind string) {
	if m == nil {
		return
	}
	m.systemEvents.WithLabelValues(kind).Inc()
}

// RecordDiff records the per-operation counts of one applied diff.
//
// Inputs:
//
//	added, updated, removed - entries that changed the node set.
//	skipped - update or remove entries naming unknown ids.
func (m *Metrics) RecordDiff(added, updated, removed, skipped int) {
	if m == nil {
		return
	}
	m.diffEntries.WithLabelValues("add", "applied").Add(float64(added))
	m.diffEntries.WithLabelValues("update", "applied").Add(float64(updated))
	m.diffEntries.WithLabelValues("remove", "applied").Add(float64(removed))
	m.diffEntries.WithLabelValues("update_or_remove", "skipped").Add(float64(skipped))
}

// RecordViolations counts each failing invariant.
func (m *Metrics) RecordViolations(names []string) {
	if m == nil {
		return
	}
	for _, n := range names {
		m.violations.WithLabelValues(n).Inc()
	}
}

// RecordForwardError counts a failed backend forward.
func (m *Metrics) RecordForwardError(kind string) {
	if m == nil {
		return
	}
	m.forwardErrors.WithLabelValues(kind).Inc()
}

// SetVisibleNodes records the filtered node count.
func (m *Metrics) SetVisibleNodes(n int) {
	if m == nil {
		return
	}
	m.visibleNodes.Set(float64(n))
}
