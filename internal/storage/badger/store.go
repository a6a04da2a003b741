package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pulsehub/pulse/internal/api/errors"
	"github.com/pulsehub/pulse/internal/domain"
	"github.com/pulsehub/pulse/internal/metrics"
	"github.com/pulsehub/pulse/pkg/model"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Ensure Store implements domain.Store
var _ domain.Store = (*Store)(nil)

const (
	// Key prefixes for the different record families
	prefixNotification      = "ntf:"
	prefixNotificationIndex = "ntfid:"
	prefixMessage           = "msg:"
	prefixSequence          = "seq:"

	// Sentinel used to seek past the newest record when no cursor is
	// given; both padded segments sort below it lexicographically
	maxKeySegment = "99999999999999999999"
)

// Config contains storage configuration
type Config struct {
	// Base directory for data files
	DataDir string

	// Value log garbage collection interval
	GCInterval time.Duration

	// Cache settings
	CacheEnabled          bool
	NotificationCacheSize int
	CacheExpiration       time.Duration
}

// DefaultConfig returns a default configuration for Badger-based storage
func DefaultConfig() Config {
	return Config{
		DataDir:               "./data",
		GCInterval:            10 * time.Minute,
		CacheEnabled:          true,
		NotificationCacheSize: 10000,
		CacheExpiration:       30 * time.Second,
	}
}

// Store persists notifications and chat messages in Badger. Sequence
// assignment for a conversation is serialized by a per-conversation
// mutex held only around the increment-and-insert transaction, so
// unrelated conversations never contend.
type Store struct {
	config    Config
	db        *badger.DB
	cache     *Cache
	convLocks map[string]*sync.Mutex
	convMu    sync.Mutex
	logger    zerolog.Logger
}

// NewStore creates a new Badger-backed store
func NewStore(config Config) (*Store, error) {
	logger := log.With().Str("component", "storage-badger").Logger()

	if config.GCInterval <= 0 {
		config.GCInterval = DefaultConfig().GCInterval
	}

	// Ensure data directory exists
	dbPath := filepath.Join(config.DataDir, "badger")
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	options := badger.DefaultOptions(dbPath)
	options = options.WithLoggingLevel(badger.WARNING) // Reduce logging noise

	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open Badger: %w", err)
	}

	s := &Store{
		config:    config,
		db:        db,
		convLocks: make(map[string]*sync.Mutex),
		logger:    logger,
	}

	if config.CacheEnabled {
		if config.NotificationCacheSize <= 0 {
			config.NotificationCacheSize = DefaultConfig().NotificationCacheSize
		}
		if config.CacheExpiration <= 0 {
			config.CacheExpiration = DefaultConfig().CacheExpiration
		}

		cache, err := NewCache(config.NotificationCacheSize, config.CacheExpiration)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
		s.cache = cache
		s.logger.Info().
			Int("notification_cache_size", config.NotificationCacheSize).
			Dur("cache_expiration", config.CacheExpiration).
			Msg("Cache initialized")
	}

	return s, nil
}

// Start runs background maintenance until the context is canceled
func (s *Store) Start(ctx context.Context) error {
	go s.runMaintenance(ctx)

	<-ctx.Done()
	return nil
}

// runMaintenance periodically runs value log GC and reports DB size
func (s *Store) runMaintenance(ctx context.Context) {
	ticker := time.NewTicker(s.config.GCInterval)
	defer ticker.Stop()

	m := metrics.GetMetrics()

	for {
		select {
		case <-ticker.C:
			// Badger returns an error when no GC was needed; that is
			// the common case and not worth logging
			if err := s.db.RunValueLogGC(0.5); err == nil {
				s.logger.Debug().Msg("Value log GC reclaimed space")
			}

			dbPath := filepath.Join(s.config.DataDir, "badger")
			if size, err := dirSize(dbPath); err == nil {
				m.DBSize.Set(float64(size))
			}

		case <-ctx.Done():
			return
		}
	}
}

// Shutdown closes the database
func (s *Store) Shutdown(ctx context.Context) error {
	if s.cache != nil {
		s.cache.Clear()
	}

	if err := s.db.Close(); err != nil {
		s.logger.Error().Err(err).Msg("Error closing Badger database")
		return err
	}
	return nil
}

// notificationKey builds the primary key for a notification. The
// zero-padded timestamp makes lexicographic order chronological.
func notificationKey(userID string, createdAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", prefixNotification, userID, createdAt.UnixNano(), id))
}

// messageKey builds the primary key for a chat message. The zero-padded
// sequence makes lexicographic order equal to sequence order.
func messageKey(conversationID string, sequence uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixMessage, conversationID, sequence))
}

// CreateNotification persists a new notification record
func (s *Store) CreateNotification(ctx context.Context, recipientID string, kind model.NotificationKind, payload []byte) (*model.Notification, error) {
	m := metrics.GetMetrics()
	timer := prometheus.NewTimer(m.StorageOperationDuration.WithLabelValues("create_notification"))
	defer timer.ObserveDuration()

	if err := ctx.Err(); err != nil {
		return nil, errors.Persistence("context_done", "persistence aborted").WithCause(err)
	}

	now := time.Now()
	notification := &model.Notification{
		Id:          uuid.NewString(),
		RecipientId: recipientID,
		Kind:        kind,
		Payload:     payload,
		CreatedAt:   timestamppb.New(now),
	}

	data, err := json.Marshal(notification)
	if err != nil {
		m.StorageOperations.WithLabelValues("create_notification", "false").Inc()
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}

	key := notificationKey(recipientID, now, notification.Id)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		// Secondary index so read acknowledgments can find the record
		// by id alone
		return txn.Set([]byte(prefixNotificationIndex+notification.Id), key)
	})
	if err != nil {
		m.StorageOperations.WithLabelValues("create_notification", "false").Inc()
		return nil, errors.Persistence("notification_write", "failed to store notification").WithCause(err)
	}

	if s.cache != nil {
		s.cache.SetNotification(notification)
	}

	m.NotificationsCreatedTotal.Inc()
	m.StorageOperations.WithLabelValues("create_notification", "true").Inc()

	return notification, nil
}

// GetNotification retrieves a notification by id
func (s *Store) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	m := metrics.GetMetrics()
	timer := prometheus.NewTimer(m.StorageOperationDuration.WithLabelValues("get_notification"))
	defer timer.ObserveDuration()

	if s.cache != nil {
		if notification, found := s.cache.GetNotification(id); found {
			return notification, nil
		}
	}

	var notification model.Notification
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixNotificationIndex + id))
		if err != nil {
			return err
		}
		var key []byte
		if err := item.Value(func(v []byte) error {
			key = append([]byte(nil), v...)
			return nil
		}); err != nil {
			return err
		}

		item, err = txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &notification)
		})
	})
	if err == badger.ErrKeyNotFound {
		m.StorageOperations.WithLabelValues("get_notification", "false").Inc()
		return nil, errors.NotFound("notification_not_found", "notification not found")
	}
	if err != nil {
		m.StorageOperations.WithLabelValues("get_notification", "false").Inc()
		return nil, errors.Persistence("notification_read", "failed to read notification").WithCause(err)
	}

	if s.cache != nil {
		s.cache.SetNotification(&notification)
	}

	m.StorageOperations.WithLabelValues("get_notification", "true").Inc()
	return &notification, nil
}

// MarkNotificationRead sets readAt on a notification. Re-marking an
// already-read notification is a no-op that returns the stored record.
func (s *Store) MarkNotificationRead(ctx context.Context, id string) (*model.Notification, error) {
	m := metrics.GetMetrics()
	timer := prometheus.NewTimer(m.StorageOperationDuration.WithLabelValues("mark_notification_read"))
	defer timer.ObserveDuration()

	var notification model.Notification
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixNotificationIndex + id))
		if err != nil {
			return err
		}
		var key []byte
		if err := item.Value(func(v []byte) error {
			key = append([]byte(nil), v...)
			return nil
		}); err != nil {
			return err
		}

		item, err = txn.Get(key)
		if err != nil {
			return err
		}
		if err := item.Value(func(v []byte) error {
			return json.Unmarshal(v, &notification)
		}); err != nil {
			return err
		}

		if notification.ReadAt != nil {
			return nil // already acknowledged
		}

		notification.ReadAt = timestamppb.Now()
		data, err := json.Marshal(&notification)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if err == badger.ErrKeyNotFound {
		m.StorageOperations.WithLabelValues("mark_notification_read", "false").Inc()
		return nil, errors.NotFound("notification_not_found", "notification not found")
	}
	if err != nil {
		m.StorageOperations.WithLabelValues("mark_notification_read", "false").Inc()
		return nil, errors.Persistence("notification_write", "failed to mark notification read").WithCause(err)
	}

	if s.cache != nil {
		s.cache.SetNotification(&notification)
	}

	m.NotificationsReadTotal.Inc()
	m.StorageOperations.WithLabelValues("mark_notification_read", "true").Inc()
	return &notification, nil
}

// CountUnread recomputes the number of unread notifications for a user
// by scanning the persisted record set. Nothing is cached; the records
// are the single source of truth.
func (s *Store) CountUnread(ctx context.Context, userID string) (int, error) {
	m := metrics.GetMetrics()
	timer := prometheus.NewTimer(m.StorageOperationDuration.WithLabelValues("count_unread"))
	defer timer.ObserveDuration()

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixNotification + userID + ":")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				var notification model.Notification
				if err := json.Unmarshal(v, &notification); err != nil {
					return err
				}
				if notification.ReadAt == nil {
					count++
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		m.StorageOperations.WithLabelValues("count_unread", "false").Inc()
		return 0, errors.Persistence("unread_count", "failed to count unread notifications").WithCause(err)
	}

	m.StorageOperations.WithLabelValues("count_unread", "true").Inc()
	return count, nil
}

// ListNotifications retrieves a page of notifications for a user,
// newest first. The cursor is the key remainder returned by the
// previous page; an empty cursor starts from the newest record.
func (s *Store) ListNotifications(ctx context.Context, userID string, limit int, cursor string) ([]*model.Notification, string, error) {
	m := metrics.GetMetrics()
	timer := prometheus.NewTimer(m.StorageOperationDuration.WithLabelValues("list_notifications"))
	defer timer.ObserveDuration()

	var notifications []*model.Notification
	var lastKey string

	err := s.db.View(func(txn *badger.Txn) error {
		prefixStr := prefixNotification + userID + ":"
		prefix := []byte(prefixStr)

		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		if cursor == "" {
			seekKey = append(prefix, []byte(maxKeySegment)...)
		} else {
			seekKey = append(prefix, []byte(cursor)...)
		}

		it.Seek(seekKey)
		if cursor != "" && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(notifications) >= limit {
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			err := item.Value(func(v []byte) error {
				var notification model.Notification
				if err := json.Unmarshal(v, &notification); err != nil {
					return err
				}
				notifications = append(notifications, &notification)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		m.StorageOperations.WithLabelValues("list_notifications", "false").Inc()
		return nil, "", errors.Persistence("notification_list", "failed to list notifications").WithCause(err)
	}

	m.StorageOperations.WithLabelValues("list_notifications", "true").Inc()
	return notifications, lastKey, nil
}

// conversationLock returns the mutex serializing sequence assignment
// for one conversation, creating it on first use
func (s *Store) conversationLock(conversationID string) *sync.Mutex {
	s.convMu.Lock()
	defer s.convMu.Unlock()

	mu, ok := s.convLocks[conversationID]
	if !ok {
		mu = &sync.Mutex{}
		s.convLocks[conversationID] = mu
	}
	return mu
}

// CreateChatMessage persists a message, assigning the next sequence for
// the conversation atomically with the insert. Two concurrent sends on
// the same conversation can never observe the same sequence.
func (s *Store) CreateChatMessage(ctx context.Context, senderID, recipientID, body string) (*model.ChatMessage, error) {
	m := metrics.GetMetrics()
	timer := prometheus.NewTimer(m.StorageOperationDuration.WithLabelValues("create_chat_message"))
	defer timer.ObserveDuration()

	if err := ctx.Err(); err != nil {
		return nil, errors.Persistence("context_done", "persistence aborted").WithCause(err)
	}

	conversationID := model.ConversationID(senderID, recipientID)

	// Narrow critical section: only this conversation's writes are
	// serialized, unrelated conversations proceed concurrently
	mu := s.conversationLock(conversationID)
	mu.Lock()
	defer mu.Unlock()

	message := &model.ChatMessage{
		Id:          uuid.NewString(),
		SenderId:    senderID,
		RecipientId: recipientID,
		Body:        body,
		CreatedAt:   timestamppb.Now(),
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		seqKey := []byte(prefixSequence + conversationID)

		var last uint64
		item, err := txn.Get(seqKey)
		if err == nil {
			if err := item.Value(func(v []byte) error {
				last = binary.BigEndian.Uint64(v)
				return nil
			}); err != nil {
				return err
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		message.Sequence = last + 1

		data, err := json.Marshal(message)
		if err != nil {
			return err
		}
		if err := txn.Set(messageKey(conversationID, message.Sequence), data); err != nil {
			return err
		}

		next := make([]byte, 8)
		binary.BigEndian.PutUint64(next, message.Sequence)
		return txn.Set(seqKey, next)
	})
	if err != nil {
		m.StorageOperations.WithLabelValues("create_chat_message", "false").Inc()
		return nil, errors.Persistence("message_write", "failed to store chat message").WithCause(err)
	}

	m.ChatMessagesTotal.Inc()
	m.StorageOperations.WithLabelValues("create_chat_message", "true").Inc()
	return message, nil
}

// ListMessages retrieves a page of conversation history, newest first.
// Thanks to the padded sequence in the key, messages are naturally
// sorted by sequence.
func (s *Store) ListMessages(ctx context.Context, userID, partnerID string, limit int, cursor string) ([]*model.ChatMessage, string, error) {
	m := metrics.GetMetrics()
	timer := prometheus.NewTimer(m.StorageOperationDuration.WithLabelValues("list_messages"))
	defer timer.ObserveDuration()

	conversationID := model.ConversationID(userID, partnerID)

	var messages []*model.ChatMessage
	var lastKey string

	err := s.db.View(func(txn *badger.Txn) error {
		prefixStr := prefixMessage + conversationID + ":"
		prefix := []byte(prefixStr)

		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		if cursor == "" {
			seekKey = append(prefix, []byte(maxKeySegment)...)
		} else {
			seekKey = append(prefix, []byte(cursor)...)
		}

		it.Seek(seekKey)
		if cursor != "" && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) >= limit {
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			err := item.Value(func(v []byte) error {
				var message model.ChatMessage
				if err := json.Unmarshal(v, &message); err != nil {
					return err
				}
				messages = append(messages, &message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		m.StorageOperations.WithLabelValues("list_messages", "false").Inc()
		return nil, "", errors.Persistence("message_list", "failed to list messages").WithCause(err)
	}

	m.StorageOperations.WithLabelValues("list_messages", "true").Inc()
	return messages, lastKey, nil
}

// MarkMessagesRead sets readAt on every unread message sent by
// partnerID to readerID and returns how many were newly marked.
// Re-marking already-read messages is a no-op, so repeated calls
// return zero.
func (s *Store) MarkMessagesRead(ctx context.Context, readerID, partnerID string) (int, error) {
	m := metrics.GetMetrics()
	timer := prometheus.NewTimer(m.StorageOperationDuration.WithLabelValues("mark_messages_read"))
	defer timer.ObserveDuration()

	conversationID := model.ConversationID(readerID, partnerID)

	// Serialized against concurrent sends on the same conversation so
	// the read marks never race an insert inside the same key range
	mu := s.conversationLock(conversationID)
	mu.Lock()
	defer mu.Unlock()

	marked := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		prefix := []byte(prefixMessage + conversationID + ":")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		now := timestamppb.Now()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)

			var message model.ChatMessage
			if err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &message)
			}); err != nil {
				return err
			}

			if message.RecipientId != readerID || message.ReadAt != nil {
				continue
			}

			message.ReadAt = now
			data, err := json.Marshal(&message)
			if err != nil {
				return err
			}
			if err := txn.Set(key, data); err != nil {
				return err
			}
			marked++
		}
		return nil
	})
	if err != nil {
		m.StorageOperations.WithLabelValues("mark_messages_read", "false").Inc()
		return 0, errors.Persistence("message_write", "failed to mark messages read").WithCause(err)
	}

	m.ChatReadReceiptsTotal.Inc()
	m.StorageOperations.WithLabelValues("mark_messages_read", "true").Inc()
	return marked, nil
}

// dirSize returns the size of a directory and its subdirectories in bytes
func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
