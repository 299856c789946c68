package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "miditip"

// metrics holds the Prometheus collectors of one Server.
type metrics struct {
	peers      prometheus.Gauge
	slots      prometheus.Gauge
	sessions   *prometheus.CounterVec
	events     *prometheus.CounterVec
	broadcasts *prometheus.CounterVec
	slowPeers  prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		peers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "peers",
			Help:      "Number of peers in the session",
		}),

		slots: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "state_slots",
			Help:      "Number of slots in the authoritative state",
		}),

		sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "sessions_total",
			Help:      "Control connections by handshake result",
		}, []string{"result"}),

		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "events_total",
			Help:      "Reported events by merge result",
		}, []string{"result"}),

		broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "broadcasts_total",
			Help:      "Messages queued to peers by type",
		}, []string{"type"}),

		slowPeers: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "slow_peers_total",
			Help:      "Peers dropped because their outbound queue was full",
		}),
	}
}
