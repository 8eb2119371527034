// Package metrics holds the prometheus collectors of the signaling server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stage"

var (
	SignalRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signal",
		Name:      "requests_total",
		Help:      "Signaling requests by message type and result code.",
	}, []string{"type", "code"})

	SignalRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "signal",
		Name:      "request_duration_seconds",
		Help:      "Time spent handling a signaling request.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"type"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signal",
		Name:      "notifications_total",
		Help:      "Server notifications by method and delivery result.",
	}, []string{"method", "result"})

	RelayPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sfu",
		Name:      "relay_packets_total",
		Help:      "RTP packets written to consumer tracks by result.",
	}, []string{"result"})

	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "signal",
		Name:      "connections",
		Help:      "Open signaling connections.",
	})
)

// TopologyStats is read on every scrape.
type TopologyStats struct {
	Rooms      int
	Peers      int
	Transports int
	Producers  int
	Consumers  int
}

// RegisterTopology exposes the live entity counts reported by stats.
func RegisterTopology(reg prometheus.Registerer, stats func() TopologyStats) error {
	gauges := map[string]func(TopologyStats) int{
		"rooms":      func(s TopologyStats) int { return s.Rooms },
		"peers":      func(s TopologyStats) int { return s.Peers },
		"transports": func(s TopologyStats) int { return s.Transports },
		"producers":  func(s TopologyStats) int { return s.Producers },
		"consumers":  func(s TopologyStats) int { return s.Consumers },
	}
	for name, pick := range gauges {
		g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "topology",
			Name:      name,
			Help:      "Live " + name + " in the topology store.",
		}, func() float64 { return float64(pick(stats())) })
		if err := reg.Register(g); err != nil {
			return err
		}
	}
	return nil
}
