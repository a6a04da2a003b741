package chat

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pulsehub/pulse/internal/api/errors"
	"github.com/pulsehub/pulse/internal/domain"
	"github.com/pulsehub/pulse/internal/metrics"
	"github.com/pulsehub/pulse/internal/telemetry"
	"github.com/pulsehub/pulse/pkg/model"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Config contains chat engine configuration
type Config struct {
	// Maximum accepted message body length in bytes
	MaxBodyBytes int
}

// DefaultConfig returns a default configuration for the chat engine
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes: 4096,
	}
}

// Engine handles chat message exchange. Messages are persisted with a
// conversation sequence before any live delivery, so history and the
// live stream can never disagree on order.
type Engine struct {
	config   Config
	registry domain.Registry
	store    domain.Store
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// NewEngine creates a chat engine wired to the given registry and store
func NewEngine(config Config, registry domain.Registry, store domain.Store) *Engine {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	return &Engine{
		config:   config,
		registry: registry,
		store:    store,
		logger:   log.With().Str("component", "chat").Logger(),
		metrics:  metrics.GetMetrics(),
	}
}

// SendMessage validates, persists and delivers a chat message. The
// persisted record is returned to the caller even when the recipient
// is offline; live delivery is best effort.
func (e *Engine) SendMessage(ctx context.Context, senderID, recipientID, body string) (*model.ChatMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "chat.SendMessage")
	defer span.End()

	if senderID == "" || recipientID == "" {
		return nil, errors.InvalidArgument("missing_participant", "sender id and recipient id are required")
	}
	if senderID == recipientID {
		return nil, errors.InvalidArgument("self_send", "cannot send a message to yourself")
	}
	if strings.TrimSpace(body) == "" {
		return nil, errors.InvalidArgument("empty_body", "message body must not be empty")
	}
	if len(body) > e.config.MaxBodyBytes {
		return nil, errors.InvalidArgument("body_too_large", "message body exceeds the size limit")
	}

	message, err := e.store.CreateChatMessage(ctx, senderID, recipientID, body)
	if err != nil {
		telemetry.MarkSpanError(ctx, err)
		return nil, err
	}
	telemetry.AddSpanAttributes(ctx, attribute.Int64("chat.sequence", int64(message.Sequence)))

	payload, err := json.Marshal(model.ChatMessagePush{
		Type:    model.PushTypeChatMessage,
		Message: message,
	})
	if err != nil {
		e.logger.Error().Err(err).Str("message_id", message.Id).Msg("Failed to encode message push")
		return message, nil
	}

	if e.registry.Send(recipientID, payload) > 0 {
		e.metrics.ChatPushesTotal.WithLabelValues("message").Inc()
	}

	// Echo to the sender's other sessions so every open client renders
	// the message with its authoritative sequence
	if e.registry.Send(senderID, payload) > 0 {
		e.metrics.ChatPushesTotal.WithLabelValues("echo").Inc()
	}

	return message, nil
}

// ReadMessages marks everything the partner sent to the reader as read
// and notifies the partner's live sessions. Calling it again with no
// new messages marks nothing and sends no receipt.
func (e *Engine) ReadMessages(ctx context.Context, readerID, partnerID string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "chat.ReadMessages")
	defer span.End()

	if readerID == "" || partnerID == "" {
		return 0, errors.InvalidArgument("missing_participant", "reader id and partner id are required")
	}
	if readerID == partnerID {
		return 0, errors.InvalidArgument("self_read", "cannot acknowledge your own conversation side")
	}

	marked, err := e.store.MarkMessagesRead(ctx, readerID, partnerID)
	if err != nil {
		telemetry.MarkSpanError(ctx, err)
		return 0, err
	}
	if marked == 0 {
		return 0, nil
	}

	payload, err := json.Marshal(model.ReadReceiptPush{
		Type:      model.PushTypeChatRead,
		ReaderId:  readerID,
		PartnerId: partnerID,
		Count:     marked,
	})
	if err != nil {
		e.logger.Error().Err(err).Str("reader_id", readerID).Msg("Failed to encode read receipt")
		return marked, nil
	}

	if e.registry.Send(partnerID, payload) > 0 {
		e.metrics.ChatPushesTotal.WithLabelValues("receipt").Inc()
	}

	return marked, nil
}

// History returns a page of the conversation between userID and
// partnerID, newest first
func (e *Engine) History(ctx context.Context, userID, partnerID string, limit int, cursor string) ([]*model.ChatMessage, string, error) {
	if userID == "" || partnerID == "" {
		return nil, "", errors.InvalidArgument("missing_participant", "user id and partner id are required")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return e.store.ListMessages(ctx, userID, partnerID, limit, cursor)
}
