package server

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the ingestion counters exposed on the debug server's
// /metrics endpoint.
type Metrics struct {
	RecordsAppended   prometheus.Counter
	DecodeFailures    prometheus.Counter
	PeersRejected     prometheus.Counter
	ActiveConnections prometheus.Gauge
}

// NewMetrics creates the ingestion metrics and registers them with reg.
// A nil registerer yields unregistered metrics, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RecordsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "motionrelay_records_appended_total",
			Help: "Total records durably appended to the store.",
		}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "motionrelay_decode_failures_total",
			Help: "Frames dropped because they did not decode to a valid wire record.",
		}),
		PeersRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "motionrelay_peers_rejected_total",
			Help: "Connection attempts rejected by the peer allowlist.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "motionrelay_active_connections",
			Help: "Currently open handler connections.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.RecordsAppended, m.DecodeFailures, m.PeersRejected, m.ActiveConnections)
	}
	return m
}
