package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// singleton instance
	instance *Metrics
	once     sync.Once
)

// Metrics holds Prometheus metrics for the delivery core
type Metrics struct {
	// API metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	APIErrorsTotal     *prometheus.CounterVec

	// Bus metrics
	BusEventsPublished  *prometheus.CounterVec
	BusListenerFailures *prometheus.CounterVec
	BusSubscriptions    prometheus.Gauge
	BusDispatchDuration prometheus.Histogram

	// Registry metrics
	RegistryConnectionsActive prometheus.Gauge
	RegistryUsersActive       prometheus.Gauge
	RegistrySendsTotal        *prometheus.CounterVec
	RegistryEvictionsTotal    prometheus.Counter

	// Notification metrics
	NotificationsCreatedTotal prometheus.Counter
	NotificationsReadTotal    prometheus.Counter
	NotificationPushesTotal   *prometheus.CounterVec

	// Chat metrics
	ChatMessagesTotal     prometheus.Counter
	ChatReadReceiptsTotal prometheus.Counter
	ChatPushesTotal       *prometheus.CounterVec

	// Storage metrics
	StorageOperations        *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec
	DBSize                   prometheus.Gauge
}

// GetMetrics returns the metrics singleton
func GetMetrics() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

// newMetrics initializes and registers all metrics
func newMetrics() *Metrics {
	m := &Metrics{}

	// API metrics
	m.APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	m.APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulse_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // from 1ms to ~16s
		},
		[]string{"method", "path"},
	)

	m.APIErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_api_errors_total",
			Help: "Total number of API errors",
		},
		[]string{"method", "path", "error_type"},
	)

	// Bus metrics
	m.BusEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_bus_events_published_total",
			Help: "Total number of events published on the bus",
		},
		[]string{"topic"},
	)

	m.BusListenerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_bus_listener_failures_total",
			Help: "Total number of listeners that panicked during dispatch",
		},
		[]string{"topic"},
	)

	m.BusSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_bus_subscriptions",
			Help: "Number of live bus subscriptions",
		},
	)

	m.BusDispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulse_bus_dispatch_duration_seconds",
			Help:    "Duration of a full topic dispatch in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 10), // from 0.1ms to ~51ms
		},
	)

	// Registry metrics
	m.RegistryConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_registry_connections_active",
			Help: "Number of live connections in the registry",
		},
	)

	m.RegistryUsersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_registry_users_active",
			Help: "Number of users with at least one live connection",
		},
	)

	m.RegistrySendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_registry_sends_total",
			Help: "Total number of transport sends attempted by the registry",
		},
		[]string{"result"}, // delivered, failed, offline
	)

	m.RegistryEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_registry_evictions_total",
			Help: "Total number of connections lazily removed after a failed send",
		},
	)

	// Notification metrics
	m.NotificationsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_notifications_created_total",
			Help: "Total number of notifications persisted",
		},
	)

	m.NotificationsReadTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_notifications_read_total",
			Help: "Total number of notifications acknowledged",
		},
	)

	m.NotificationPushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_notification_pushes_total",
			Help: "Total number of live notification pushes",
		},
		[]string{"result"}, // delivered, offline, skipped
	)

	// Chat metrics
	m.ChatMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_chat_messages_total",
			Help: "Total number of chat messages persisted",
		},
	)

	m.ChatReadReceiptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_chat_read_receipts_total",
			Help: "Total number of read receipt operations",
		},
	)

	m.ChatPushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_chat_pushes_total",
			Help: "Total number of live chat pushes",
		},
		[]string{"kind"}, // message, echo, receipt
	)

	// Storage metrics
	m.StorageOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "success"},
	)

	m.StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulse_storage_operation_duration_seconds",
			Help:    "Duration of storage operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15), // from 0.1ms to ~1.6s
		},
		[]string{"operation"},
	)

	m.DBSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_db_size_bytes",
			Help: "Size of the database in bytes",
		},
	)

	return m
}
