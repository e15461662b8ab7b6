package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine and scheduler collectors.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// transition: request, approve, reject, reschedule, withdraw; outcome: ok, conflict, invalid_state, ...
	TransitionsTotal *prometheus.CounterVec

	// reminder sweep results (result: processed, notified, failed, inconsistent)
	ReminderSweepItemsTotal *prometheus.CounterVec
	ReminderSweepDuration   prometheus.Histogram
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_transitions_total",
				Help: "Reservation lifecycle operations by kind and outcome",
			},
			[]string{"transition", "outcome"},
		),
		ReminderSweepItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reminder_sweep_items_total",
				Help: "Reservations handled by the reminder sweep",
			},
			[]string{"result"},
		),
		ReminderSweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reminder_sweep_duration_seconds",
				Help:    "Wall time of one reminder sweep",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TransitionsTotal,
		m.ReminderSweepItemsTotal,
		m.ReminderSweepDuration,
	)

	return m
}

// NewNop returns collectors registered nowhere, for tests and tooling.
func NewNop() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

func (m *Metrics) ObserveTransition(transition, outcome string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(transition, outcome).Inc()
}

func (m *Metrics) ObserveSweepItem(result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ReminderSweepItemsTotal.WithLabelValues(result).Add(float64(n))
}
