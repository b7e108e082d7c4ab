// ABOUTME: Prometheus instruments for the event channel and the REST client
// ABOUTME: All methods are nil-safe so components run without a registry

// Package metrics exposes Prometheus counters and gauges for the chat client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chatsync"

// Metrics groups every instrument the client exports.
type Metrics struct {
	framesReceived *prometheus.CounterVec
	duplicates     prometheus.Counter
	reconnects     prometheus.Counter
	connectErrors  prometheus.Counter
	connected      prometheus.Gauge
	requests       *prometheus.CounterVec
	dropped        *prometheus.CounterVec
}

// New creates the instruments and registers them with reg. A nil reg uses
// the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "events_received_total",
			Help:      "Server-pushed events delivered to subscribers, by event name.",
		}, []string{"event"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "duplicate_events_total",
			Help:      "Events suppressed by the dedupe window.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts after a lost or failed connection.",
		}),
		connectErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "connect_errors_total",
			Help:      "Failed connection or namespace handshake attempts.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "connected",
			Help:      "1 while the event channel is connected.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "REST requests by operation and outcome.",
		}, []string{"op", "outcome"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "dropped_events_total",
			Help:      "Live events ignored by the reconciler, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.framesReceived,
		m.duplicates,
		m.reconnects,
		m.connectErrors,
		m.connected,
		m.requests,
		m.dropped,
	)
	return m
}

func (m *Metrics) EventReceived(event string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(event).Inc()
}

func (m *Metrics) DuplicateSuppressed() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) ConnectError() {
	if m == nil {
		return
	}
	m.connectErrors.Inc()
}

func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *Metrics) Request(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}
