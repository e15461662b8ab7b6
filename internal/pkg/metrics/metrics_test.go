//go:build unit

package metrics_test

import (
	"testing"

	"auditorium-reservation/internal/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.ObserveTransition("approve", "ok")
	m.ObserveTransition("approve", "ok")
	m.ObserveTransition("approve", "conflict")
	m.ObserveSweepItem("notified", 3)
	m.ObserveSweepItem("failed", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("approve", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("approve", "conflict")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ReminderSweepItemsTotal.WithLabelValues("notified")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ReminderSweepItemsTotal.WithLabelValues("failed")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.ObserveTransition("approve", "ok")
		m.ObserveSweepItem("notified", 1)
	})
}
