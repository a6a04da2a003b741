package bus

import (
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pulsehub/pulse/internal/domain"
	"github.com/pulsehub/pulse/internal/metrics"
	"github.com/pulsehub/pulse/pkg/model"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Ensure Bus implements domain.Dispatcher
var _ domain.Dispatcher = (*Bus)(nil)

// entry pairs a subscription handle with its listener. The slice order
// is subscription order, which is the dispatch order.
type entry struct {
	id       string
	listener domain.Listener
}

// Bus is a synchronous in-process publish/subscribe dispatcher. It
// holds no durable state; events published before a subscription or
// across restarts are gone.
type Bus struct {
	topics  map[string][]entry
	mu      sync.RWMutex
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewBus creates a new event bus
func NewBus() *Bus {
	logger := log.With().Str("component", "bus").Logger()

	return &Bus{
		topics:  make(map[string][]entry),
		logger:  logger,
		metrics: metrics.GetMetrics(),
	}
}

// Subscribe registers a listener for a topic. Dispatch order for a
// topic equals subscription order.
func (b *Bus) Subscribe(topic string, fn domain.Listener) *domain.Subscription {
	sub := &domain.Subscription{
		ID:    generateID(),
		Topic: topic,
	}

	b.mu.Lock()
	b.topics[topic] = append(b.topics[topic], entry{id: sub.ID, listener: fn})
	b.mu.Unlock()

	b.metrics.BusSubscriptions.Inc()

	return sub
}

// Unsubscribe removes a subscription. Unsubscribing a subscription
// that is not registered is a no-op.
func (b *Bus) Unsubscribe(sub *domain.Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entries, ok := b.topics[sub.Topic]
	if !ok {
		return
	}

	for i, e := range entries {
		if e.id == sub.ID {
			b.topics[sub.Topic] = append(entries[:i:i], entries[i+1:]...)
			if len(b.topics[sub.Topic]) == 0 {
				delete(b.topics, sub.Topic)
			}
			b.metrics.BusSubscriptions.Dec()
			return
		}
	}
}

// Publish synchronously invokes every listener currently subscribed to
// topic, in subscription order. Publishing to a topic with no
// subscribers is a no-op. The event pointer is shared across
// listeners.
func (b *Bus) Publish(topic string, evt *model.Event) {
	timer := prometheus.NewTimer(b.metrics.BusDispatchDuration)
	defer timer.ObserveDuration()

	b.mu.RLock()
	entries := b.topics[topic]
	// Snapshot so no lock is held while listeners run
	snapshot := make([]entry, len(entries))
	copy(snapshot, entries)
	b.mu.RUnlock()

	b.metrics.BusEventsPublished.WithLabelValues(topic).Inc()

	for _, e := range snapshot {
		b.dispatch(topic, e, evt)
	}
}

// dispatch runs one listener inside a recover boundary. A panicking
// listener must not prevent the remaining listeners from running and
// must not reach the publisher.
func (b *Bus) dispatch(topic string, e entry, evt *model.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.BusListenerFailures.WithLabelValues(topic).Inc()
			b.logger.Error().
				Str("topic", topic).
				Str("subscription_id", e.id).
				Interface("panic", r).
				Msg("Listener panicked during dispatch")
		}
	}()

	e.listener(evt)
}

// SubscriberCount returns the number of listeners currently subscribed
// to a topic
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Variable for generating unique subscription IDs
// Can be replaced in tests for deterministic behavior
var generateID = func() string {
	return uuid.NewString()
}
