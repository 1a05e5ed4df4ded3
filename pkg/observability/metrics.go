package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Viewer metrics
	ActiveViewers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sideboard",
			Subsystem: "sidebar",
			Name:      "active_viewers",
			Help:      "Number of viewers currently attached to sidebars",
		},
	)

	PrunedViewers = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sideboard",
			Subsystem: "sidebar",
			Name:      "pruned_viewers_total",
			Help:      "Total number of unresolvable viewers dropped before a broadcast",
		},
	)

	// Broadcast metrics
	Broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sideboard",
			Subsystem: "sidebar",
			Name:      "broadcasts_total",
			Help:      "Total number of broadcast passes by operation",
		},
		[]string{"op"},
	)

	BroadcastFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sideboard",
			Subsystem: "sidebar",
			Name:      "broadcast_failures_total",
			Help:      "Total number of per-viewer delivery failures by operation",
		},
		[]string{"op"},
	)

	BroadcastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sideboard",
			Subsystem: "sidebar",
			Name:      "broadcast_duration_seconds",
			Help:      "Broadcast fan-out latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12), // 100µs to ~400ms
		},
	)

	// Title metrics
	TitleUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sideboard",
			Subsystem: "sidebar",
			Name:      "title_updates_total",
			Help:      "Total number of title frames broadcast to viewers",
		},
	)

	// WebSocket transport metrics
	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sideboard",
			Subsystem: "transport",
			Name:      "websocket_connections",
			Help:      "Number of active viewer WebSocket connections",
		},
	)

	WebsocketBackpressureDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sideboard",
			Subsystem: "transport",
			Name:      "websocket_backpressure_drops_total",
			Help:      "Total number of frames dropped because a viewer's send buffer was full",
		},
	)
)
