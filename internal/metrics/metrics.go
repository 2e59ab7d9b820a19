package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "channel_connections_active",
			Help: "Number of live WebSocket connections",
		},
	)

	AgentsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "channel_agents_active",
			Help: "Number of live agents (per-connection, per-channel joins)",
		},
	)

	ChannelsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "channel_channels_active",
			Help: "Number of registered channels",
		},
	)

	FramesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "channel_frames_received_total",
			Help: "Total inbound frames by event",
		},
		[]string{"event"},
	)

	BroadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "channel_broadcasts_total",
			Help: "Total channel broadcasts by outcome",
		},
		[]string{"outcome"},
	)

	RedisPublishFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "channel_redis_publish_failures_total",
			Help: "Total failed publishes to Redis",
		},
	)
)

func init() {
	prometheus.MustRegister(ConnectionsActive)
	prometheus.MustRegister(AgentsActive)
	prometheus.MustRegister(ChannelsActive)
	prometheus.MustRegister(FramesReceivedTotal)
	prometheus.MustRegister(BroadcastsTotal)
	prometheus.MustRegister(RedisPublishFailuresTotal)
}

// Handler exposes the registered collectors for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
