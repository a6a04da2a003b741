package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pulsehub/pulse/internal/api/errors"
	"github.com/pulsehub/pulse/internal/domain"
	"github.com/pulsehub/pulse/internal/metrics"
	"github.com/pulsehub/pulse/internal/telemetry"
	"github.com/pulsehub/pulse/pkg/model"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Config contains notification engine configuration
type Config struct {
	// Timeout applied to persistence when handling a dispatched event
	PersistTimeout time.Duration
}

// DefaultConfig returns a default configuration for the notification engine
func DefaultConfig() Config {
	return Config{
		PersistTimeout: 5 * time.Second,
	}
}

// Engine turns domain events into persisted notifications and pushes
// them to the recipient's live connections. Persistence always happens
// before any push; if the write fails nothing is pushed.
type Engine struct {
	config   Config
	bus      domain.Dispatcher
	registry domain.Registry
	store    domain.Store
	subs     []*domain.Subscription
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// kindForTopic maps event topics to the notification kind they produce
var kindForTopic = map[string]model.NotificationKind{
	model.TopicCommentCreated: model.KindComment,
	model.TopicPostVoted:      model.KindVote,
	model.TopicUserFollowed:   model.KindFollow,
}

// NewEngine creates a notification engine wired to the given bus,
// registry and store
func NewEngine(config Config, bus domain.Dispatcher, registry domain.Registry, store domain.Store) *Engine {
	if config.PersistTimeout <= 0 {
		config.PersistTimeout = DefaultConfig().PersistTimeout
	}

	return &Engine{
		config:   config,
		bus:      bus,
		registry: registry,
		store:    store,
		logger:   log.With().Str("component", "notification").Logger(),
		metrics:  metrics.GetMetrics(),
	}
}

// Start subscribes to the notification topics and blocks until the
// context is canceled
func (e *Engine) Start(ctx context.Context) error {
	for topic, kind := range kindForTopic {
		kind := kind
		e.subs = append(e.subs, e.bus.Subscribe(topic, func(evt *model.Event) {
			e.handleEvent(kind, evt)
		}))
	}
	e.logger.Info().Int("topics", len(e.subs)).Msg("Notification engine started")

	<-ctx.Done()

	for _, sub := range e.subs {
		e.bus.Unsubscribe(sub)
	}
	e.subs = nil
	return nil
}

// handleEvent persists a notification for the event and pushes it to
// the recipient. Runs synchronously on the publisher's goroutine.
func (e *Engine) handleEvent(kind model.NotificationKind, evt *model.Event) {
	if evt == nil || evt.RecipientId == "" {
		e.logger.Warn().Str("kind", string(kind)).Msg("Dropping event without recipient")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.config.PersistTimeout)
	defer cancel()

	ctx, span := telemetry.StartSpan(ctx, "notification.HandleEvent")
	defer span.End()
	telemetry.AddSpanAttributes(ctx, attribute.String("notification.kind", string(kind)))

	notification, err := e.store.CreateNotification(ctx, evt.RecipientId, kind, evt.Payload)
	if err != nil {
		telemetry.MarkSpanError(ctx, err)
		e.logger.Error().Err(err).
			Str("recipient_id", evt.RecipientId).
			Str("kind", string(kind)).
			Msg("Failed to persist notification; nothing pushed")
		return
	}

	e.push(ctx, notification)
}

// push sends the notification and a refreshed unread count to the
// recipient's connections. The record is already durable; push is best
// effort and an offline recipient is not an error.
func (e *Engine) push(ctx context.Context, notification *model.Notification) {
	payload, err := json.Marshal(model.NotificationPush{
		Type:         model.PushTypeNotification,
		Notification: notification,
	})
	if err != nil {
		e.logger.Error().Err(err).Str("notification_id", notification.Id).Msg("Failed to encode push")
		return
	}

	delivered := e.registry.Send(notification.RecipientId, payload)
	if delivered > 0 {
		e.metrics.NotificationPushesTotal.WithLabelValues("delivered").Inc()
	} else {
		e.metrics.NotificationPushesTotal.WithLabelValues("offline").Inc()
		e.logger.Debug().Str("recipient_id", notification.RecipientId).Msg("Recipient offline, notification stored only")
	}

	e.pushUnread(ctx, notification.RecipientId)
}

// pushUnread recomputes and pushes the unread badge count
func (e *Engine) pushUnread(ctx context.Context, userID string) {
	count, err := e.store.CountUnread(ctx, userID)
	if err != nil {
		e.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to count unread notifications")
		return
	}

	payload, err := json.Marshal(model.UnreadPush{
		Type:   model.PushTypeUnread,
		Unread: count,
	})
	if err != nil {
		e.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to encode unread push")
		return
	}

	e.registry.Send(userID, payload)
}

// MarkRead acknowledges a notification for a user and pushes the
// refreshed unread count to their connections
func (e *Engine) MarkRead(ctx context.Context, userID, notificationID string) (*model.Notification, error) {
	ctx, span := telemetry.StartSpan(ctx, "notification.MarkRead")
	defer span.End()

	if userID == "" || notificationID == "" {
		return nil, errors.InvalidArgument("missing_id", "user id and notification id are required")
	}

	notification, err := e.store.GetNotification(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if notification.RecipientId != userID {
		return nil, errors.NotFound("notification_not_found", "notification not found")
	}

	notification, err = e.store.MarkNotificationRead(ctx, notificationID)
	if err != nil {
		return nil, err
	}

	e.pushUnread(ctx, userID)
	return notification, nil
}

// Unread returns the number of unread notifications for a user
func (e *Engine) Unread(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, errors.InvalidArgument("missing_user_id", "user id is required")
	}
	return e.store.CountUnread(ctx, userID)
}

// List returns a page of a user's notifications, newest first
func (e *Engine) List(ctx context.Context, userID string, limit int, cursor string) ([]*model.Notification, string, error) {
	if userID == "" {
		return nil, "", errors.InvalidArgument("missing_user_id", "user id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return e.store.ListNotifications(ctx, userID, limit, cursor)
}
