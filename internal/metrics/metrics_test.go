package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordDispatch(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordDispatch("SELECT_NODE", true)
	m.RecordDispatch("SELECT_NODE", true)
	m.RecordDispatch("REQUEST_DECOMPOSE", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dispatches.WithLabelValues("SELECT_NODE", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatches.WithLabelValues("REQUEST_DECOMPOSE", "rejected")))
}

func TestRecordDiff(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordDiff(3, 1, 0, 2)
	m.RecordDiff(1, 0, 1, 0)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.diffEntries.WithLabelValues("add", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.diffEntries.WithLabelValues("remove", "applied")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.diffEntries.WithLabelValues("update_or_remove", "skipped")))
}

func TestViolationsAndGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordViolations([]string{"focus_pairing", "positive_zoom", "focus_pairing"})
	m.SetVisibleNodes(7)
	m.RecordSystemEvent("GRAPH_UPDATED")
	m.RecordForwardError("OVERRIDE_DECISION")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.violations.WithLabelValues("focus_pairing")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.visibleNodes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.systemEvents.WithLabelValues("GRAPH_UPDATED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.forwardErrors.WithLabelValues("OVERRIDE_DECISION")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordDispatch("x", true)
	m.RecordDiff(1, 1, 1, 1)
	m.RecordViolations([]string{"a"})
	m.RecordSystemEvent("x")
	m.RecordForwardError("x")
	m.SetVisibleNodes(1)
}

func TestRegistersOnInjectedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RecordDispatch("CHANGE_MODE", true)

	n, err := testutil.GatherAndCount(reg, "goaldeck_statemachine_dispatches_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}
