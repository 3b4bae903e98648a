package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// Connection metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_connections_active",
			Help: "Currently attached websocket connections",
		},
	)

	// Delivery metrics
	MessagesPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_persisted_total",
			Help: "Total messages persisted",
		},
		[]string{"scope_type"},
	)

	SendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_send_failures_total",
			Help: "Total rejected or failed sends",
		},
		[]string{"code"},
	)

	BroadcastDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_broadcast_drops_total",
			Help: "Frames dropped because a connection's queue was full",
		},
	)

	// Infrastructure metrics
	PersistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_persist_duration_seconds",
			Help:    "Time from scope lock request to persisted message",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
	)
)
