package bus

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pulsehub/pulse/internal/domain"
	"github.com/pulsehub/pulse/pkg/model"
	"github.com/stretchr/testify/assert"
)

// Fixed ID generation for testing
func init() {
	// Replace the generateID function with a deterministic version for testing
	var counter int64
	generateID = func() string {
		n := atomic.AddInt64(&counter, 1)
		return fmt.Sprintf("test-subscription-id-%d", n)
	}
}

func testEvent(recipient string) *model.Event {
	return &model.Event{
		RecipientId: recipient,
		ActorId:     "actor-1",
		Kind:        model.KindComment,
	}
}

func TestBusSubscribe(t *testing.T) {
	b := NewBus()

	sub := b.Subscribe("t", func(evt *model.Event) {})

	assert.Contains(t, sub.ID, "test-subscription-id")
	assert.Equal(t, "t", sub.Topic)
	assert.Equal(t, 1, b.SubscriberCount("t"))
}

func TestBusPublishNoSubscribers(t *testing.T) {
	b := NewBus()

	// Publishing with zero subscribers is a no-op that returns normally
	assert.NotPanics(t, func() {
		b.Publish("empty-topic", testEvent("user-1"))
	})
}

func TestBusDispatchOrder(t *testing.T) {
	b := NewBus()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		b.Subscribe("t", func(evt *model.Event) {
			order = append(order, i)
		})
	}

	b.Publish("t", testEvent("user-1"))

	// Dispatch order equals subscription order
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestBusListenerPanicIsolation(t *testing.T) {
	b := NewBus()

	var counter int
	b.Subscribe("t", func(evt *model.Event) {
		panic("listener blew up")
	})
	b.Subscribe("t", func(evt *model.Event) {
		counter++
	})

	// The panic must not reach the publisher and must not stop the
	// second listener
	assert.NotPanics(t, func() {
		b.Publish("t", testEvent("user-1"))
	})
	assert.Equal(t, 1, counter)
}

func TestBusSharedPayload(t *testing.T) {
	b := NewBus()

	evt := testEvent("user-1")
	var got1, got2 *model.Event
	b.Subscribe("t", func(e *model.Event) { got1 = e })
	b.Subscribe("t", func(e *model.Event) { got2 = e })

	b.Publish("t", evt)

	// Payload is passed by reference to every listener
	assert.Same(t, evt, got1)
	assert.Same(t, evt, got2)
}

func TestBusUnsubscribe(t *testing.T) {
	b := NewBus()

	var calls int
	sub := b.Subscribe("t", func(evt *model.Event) { calls++ })

	b.Publish("t", testEvent("user-1"))
	assert.Equal(t, 1, calls)

	b.Unsubscribe(sub)
	b.Publish("t", testEvent("user-1"))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, b.SubscriberCount("t"))

	// Unsubscribing again is a no-op, not an error
	assert.NotPanics(t, func() {
		b.Unsubscribe(sub)
		b.Unsubscribe(nil)
	})
}

func TestBusUnsubscribeKeepsOrder(t *testing.T) {
	b := NewBus()

	var order []string
	subA := b.Subscribe("t", func(evt *model.Event) { order = append(order, "a") })
	b.Subscribe("t", func(evt *model.Event) { order = append(order, "b") })
	b.Subscribe("t", func(evt *model.Event) { order = append(order, "c") })

	b.Unsubscribe(subA)
	b.Publish("t", testEvent("user-1"))

	assert.Equal(t, []string{"b", "c"}, order)
}

func TestBusTopicsAreIndependent(t *testing.T) {
	b := NewBus()

	var tCalls, uCalls int
	b.Subscribe("t", func(evt *model.Event) { tCalls++ })
	b.Subscribe("u", func(evt *model.Event) { uCalls++ })

	b.Publish("t", testEvent("user-1"))

	assert.Equal(t, 1, tCalls)
	assert.Equal(t, 0, uCalls)
}

func TestBusConcurrentSubscriptions(t *testing.T) {
	b := NewBus()

	// The dispatcher must hold at least 50 concurrent live
	// subscriptions while publishes run against it
	const subscribers = 60

	var delivered int64
	subs := make([]*domain.Subscription, 0, subscribers)
	var subsMu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < subscribers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := b.Subscribe("t", func(evt *model.Event) {
				atomic.AddInt64(&delivered, 1)
			})
			subsMu.Lock()
			subs = append(subs, sub)
			subsMu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, subscribers, b.SubscriberCount("t"))

	// Concurrent publishes must be safe against the populated topic
	const publishers = 10
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Publish("t", testEvent("user-1"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(subscribers*publishers), atomic.LoadInt64(&delivered))

	// Tear everything down; topic entry must disappear with the last
	// subscription
	for _, sub := range subs {
		b.Unsubscribe(sub)
	}
	assert.Equal(t, 0, b.SubscriberCount("t"))
}
