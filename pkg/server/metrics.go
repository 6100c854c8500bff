package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the server's Prometheus collectors. A nil *Metrics is a
// valid no-op, which keeps tests and embedded uses free of a registry.
type Metrics struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	framesRead        prometheus.Counter
	framesWritten     prometheus.Counter
	errorsTotal       *prometheus.CounterVec
	dispatchDuration  *prometheus.HistogramVec
}

// NewMetrics builds the collectors and registers them on reg. A nil reg
// returns nil, disabling metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "beam_connections_active",
			Help: "Connections currently being served.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beam_connections_total",
			Help: "Total connections accepted.",
		}),
		framesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beam_frames_read_total",
			Help: "Inbound frames read across all connections.",
		}),
		framesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beam_frames_written_total",
			Help: "Outbound frames written across all connections.",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beam_errors_total",
			Help: "Errors by kind.",
		}, []string{"kind"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "beam_dispatch_duration_seconds",
			Help:    "Handler dispatch latency by message kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.connectionsActive,
		m.connectionsTotal,
		m.framesRead,
		m.framesWritten,
		m.errorsTotal,
		m.dispatchDuration,
	)
	return m
}

func (m *Metrics) connOpened() {
	if m == nil {
		return
	}
	m.connectionsActive.Inc()
	m.connectionsTotal.Inc()
}

func (m *Metrics) connClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

func (m *Metrics) frameRead() {
	if m == nil {
		return
	}
	m.framesRead.Inc()
}

func (m *Metrics) frameWritten() {
	if m == nil {
		return
	}
	m.framesWritten.Inc()
}

func (m *Metrics) errorByKind(kind string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) observeDispatch(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.dispatchDuration.WithLabelValues(kind).Observe(seconds)
}
