package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestGetMetrics(t *testing.T) {
	// Get metrics instance
	metrics := GetMetrics()

	// Verify it's not nil
	assert.NotNil(t, metrics, "Metrics should not be nil")

	// Call again to test singleton behavior
	metrics2 := GetMetrics()

	// Verify both instances are the same
	assert.Equal(t, metrics, metrics2, "GetMetrics should return the same instance")
}

func TestAllMetricsInitialized(t *testing.T) {
	// Get metrics instance
	m := GetMetrics()

	// API metrics should be initialized
	assert.NotNil(t, m.APIRequestsTotal, "APIRequestsTotal should be initialized")
	assert.NotNil(t, m.APIRequestDuration, "APIRequestDuration should be initialized")
	assert.NotNil(t, m.APIErrorsTotal, "APIErrorsTotal should be initialized")

	// Bus metrics should be initialized
	assert.NotNil(t, m.BusEventsPublished, "BusEventsPublished should be initialized")
	assert.NotNil(t, m.BusListenerFailures, "BusListenerFailures should be initialized")
	assert.NotNil(t, m.BusSubscriptions, "BusSubscriptions should be initialized")
	assert.NotNil(t, m.BusDispatchDuration, "BusDispatchDuration should be initialized")

	// Registry metrics should be initialized
	assert.NotNil(t, m.RegistryConnectionsActive, "RegistryConnectionsActive should be initialized")
	assert.NotNil(t, m.RegistryUsersActive, "RegistryUsersActive should be initialized")
	assert.NotNil(t, m.RegistrySendsTotal, "RegistrySendsTotal should be initialized")
	assert.NotNil(t, m.RegistryEvictionsTotal, "RegistryEvictionsTotal should be initialized")

	// Notification metrics should be initialized
	assert.NotNil(t, m.NotificationsCreatedTotal, "NotificationsCreatedTotal should be initialized")
	assert.NotNil(t, m.NotificationsReadTotal, "NotificationsReadTotal should be initialized")
	assert.NotNil(t, m.NotificationPushesTotal, "NotificationPushesTotal should be initialized")

	// Chat metrics should be initialized
	assert.NotNil(t, m.ChatMessagesTotal, "ChatMessagesTotal should be initialized")
	assert.NotNil(t, m.ChatReadReceiptsTotal, "ChatReadReceiptsTotal should be initialized")
	assert.NotNil(t, m.ChatPushesTotal, "ChatPushesTotal should be initialized")

	// Storage metrics should be initialized
	assert.NotNil(t, m.StorageOperations, "StorageOperations should be initialized")
	assert.NotNil(t, m.StorageOperationDuration, "StorageOperationDuration should be initialized")
	assert.NotNil(t, m.DBSize, "DBSize should be initialized")
}

func TestMetricsOperations(t *testing.T) {
	// Create a new registry for isolated testing
	registry := prometheus.NewRegistry()

	m := &Metrics{}

	m.RegistrySendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_registry_sends_total",
			Help: "Test metric",
		},
		[]string{"result"},
	)
	registry.MustRegister(m.RegistrySendsTotal)

	m.BusSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "test_bus_subscriptions",
			Help: "Test metric",
		},
	)
	registry.MustRegister(m.BusSubscriptions)

	// Counter operations
	m.RegistrySendsTotal.WithLabelValues("delivered").Inc()
	m.RegistrySendsTotal.WithLabelValues("offline").Add(5)

	// Gauge operations
	m.BusSubscriptions.Set(10)
	m.BusSubscriptions.Inc()
	m.BusSubscriptions.Dec()

	// Gather and verify something was recorded
	families, err := registry.Gather()
	assert.NoError(t, err)
	assert.Len(t, families, 2)
}
