package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentwise_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rentwise_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// NotificationsPersisted counts notification inserts by result (success|failure).
	NotificationsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentwise_notifications_persisted_total",
			Help: "Total number of notification persist attempts",
		},
		[]string{"result"},
	)

	// RealtimeConnections tracks open live connections by state (connecting|authenticated).
	RealtimeConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rentwise_realtime_connections",
			Help: "Number of open realtime connections",
		},
		[]string{"state"},
	)

	// RealtimeDeliveries counts per-connection event deliveries (delivered|dropped|no_audience).
	RealtimeDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentwise_realtime_deliveries_total",
			Help: "Total number of realtime event deliveries",
		},
		[]string{"event", "result"},
	)

	// RelayMessages counts cross-instance relay traffic by direction (published|received|failed|dropped).
	RelayMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentwise_realtime_relay_messages_total",
			Help: "Total number of realtime relay messages",
		},
		[]string{"direction"},
	)

	// MaintenanceRuns records maintenance job executions by job and result.
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentwise_maintenance_runs_total",
			Help: "Total number of maintenance job runs",
		},
		[]string{"job", "result"},
	)
)
