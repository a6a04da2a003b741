package badger

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pulsehub/pulse/internal/metrics"
	"github.com/pulsehub/pulse/pkg/model"
)

// Cache is a read-through cache for notification lookups by id. Unread
// counts are deliberately never cached; they are recomputed from the
// persisted record set on every call.
type Cache struct {
	notifications *lru.TwoQueueCache
	mutex         sync.RWMutex
	metrics       *metrics.Metrics
	expiration    time.Duration
}

// cacheItem represents an item in the cache with an expiration time
type cacheItem struct {
	value      *model.Notification
	expiration time.Time
}

// NewCache creates a new cache with the given capacity
func NewCache(capacity int, expiration time.Duration) (*Cache, error) {
	notifications, err := lru.New2Q(capacity)
	if err != nil {
		return nil, err
	}

	return &Cache{
		notifications: notifications,
		metrics:       metrics.GetMetrics(),
		expiration:    expiration,
	}, nil
}

// GetNotification retrieves a notification from the cache
func (c *Cache) GetNotification(id string) (*model.Notification, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	value, found := c.notifications.Get(id)
	if !found {
		c.metrics.StorageOperations.WithLabelValues("cache_miss_notification", "true").Inc()
		return nil, false
	}

	item := value.(cacheItem)
	if time.Now().After(item.expiration) {
		c.notifications.Remove(id)
		c.metrics.StorageOperations.WithLabelValues("cache_expired_notification", "true").Inc()
		return nil, false
	}

	c.metrics.StorageOperations.WithLabelValues("cache_hit_notification", "true").Inc()
	return item.value, true
}

// SetNotification adds a notification to the cache
func (c *Cache) SetNotification(n *model.Notification) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.notifications.Add(n.Id, cacheItem{
		value:      n,
		expiration: time.Now().Add(c.expiration),
	})
}

// InvalidateNotification removes a notification from the cache
func (c *Cache) InvalidateNotification(id string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.notifications.Remove(id)
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.notifications.Purge()
}
