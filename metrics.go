package authsync

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors. Each server owns its
// own registry so multiple servers can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	SessionsAccepted  prometheus.Counter
	SessionsLive      prometheus.Gauge
	HandshakeFailures prometheus.Counter
	ProtocolErrors    prometheus.Counter
	RecordsPublished  prometheus.Counter
	RecordsDelivered  prometheus.Counter
	DeliveriesDropped prometheus.Counter
	StoreFailures     prometheus.Counter
}

// NewMetrics creates and registers the server collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SessionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authsync",
			Name:      "sessions_accepted_total",
			Help:      "Connections accepted by the listener.",
		}),
		SessionsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "authsync",
			Name:      "sessions_live",
			Help:      "Currently open sessions.",
		}),
		HandshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authsync",
			Name:      "handshake_failures_total",
			Help:      "Challenge handshakes that failed verification.",
		}),
		ProtocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authsync",
			Name:      "protocol_errors_total",
			Help:      "Malformed frames and framing violations.",
		}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authsync",
			Name:      "records_published_total",
			Help:      "Authorization records published by clients.",
		}),
		RecordsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authsync",
			Name:      "records_delivered_total",
			Help:      "Record deliveries enqueued to sessions (broadcast and replay).",
		}),
		DeliveriesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authsync",
			Name:      "deliveries_dropped_total",
			Help:      "Record deliveries dropped because a session send queue was full.",
		}),
		StoreFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authsync",
			Name:      "store_failures_total",
			Help:      "Persistence operations that returned an error.",
		}),
	}

	m.registry.MustRegister(
		m.SessionsAccepted,
		m.SessionsLive,
		m.HandshakeFailures,
		m.ProtocolErrors,
		m.RecordsPublished,
		m.RecordsDelivered,
		m.DeliveriesDropped,
		m.StoreFailures,
	)

	return m
}

// Handler returns an HTTP handler exposing the collectors in the Prometheus
// text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
