package api

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	apierrors "github.com/pulsehub/pulse/internal/api/errors"
	"github.com/pulsehub/pulse/internal/chat"
	"github.com/pulsehub/pulse/internal/domain"
	"github.com/pulsehub/pulse/internal/metrics"
	"github.com/pulsehub/pulse/internal/notification"
	"github.com/pulsehub/pulse/pkg/model"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config contains API configuration
type Config struct {
	// Server address
	Addr string

	// Maximum request body size in bytes
	MaxBodySize int

	// HTTP timeouts
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Live connection settings
	HeartbeatInterval  time.Duration
	StreamWriteTimeout time.Duration
	SSEBufferSize      int
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Addr:               ":8080",
		MaxBodySize:        1024 * 1024,
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       10 * time.Second,
		IdleTimeout:        120 * time.Second,
		HeartbeatInterval:  25 * time.Second,
		StreamWriteTimeout: 10 * time.Second,
		SSEBufferSize:      64,
	}
}

// API handles HTTP endpoints
type API struct {
	config        Config
	app           *fiber.App
	bus           domain.Dispatcher
	registry      domain.Registry
	notifications *notification.Engine
	chat          *chat.Engine
	logger        zerolog.Logger
	metrics       *metrics.Metrics
}

// NewAPI creates a new API instance
func NewAPI(config Config, bus domain.Dispatcher, registry domain.Registry, notifications *notification.Engine, chatEngine *chat.Engine) *API {
	logger := log.With().Str("component", "api").Logger()

	defaults := DefaultConfig()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = defaults.MaxBodySize
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if config.StreamWriteTimeout <= 0 {
		config.StreamWriteTimeout = defaults.StreamWriteTimeout
	}
	if config.SSEBufferSize <= 0 {
		config.SSEBufferSize = defaults.SSEBufferSize
	}

	return &API{
		config:        config,
		bus:           bus,
		registry:      registry,
		notifications: notifications,
		chat:          chatEngine,
		logger:        logger,
		metrics:       metrics.GetMetrics(),
	}
}

// Start initializes and runs the API server
func (a *API) Start(ctx context.Context) error {
	a.logger.Info().Str("addr", a.config.Addr).Msg("Starting API server")

	app := fiber.New(fiber.Config{
		ReadTimeout:  a.config.ReadTimeout,
		WriteTimeout: a.config.WriteTimeout,
		IdleTimeout:  a.config.IdleTimeout,
		BodyLimit:    a.config.MaxBodySize,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())
	app.Use(a.requestMetrics)

	// Register routes
	a.registerRoutes(app)

	// Store app reference
	a.app = app

	// Start server
	go func() {
		if err := app.Listen(a.config.Addr); err != nil {
			a.logger.Error().Err(err).Msg("API server error")
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()
	return nil
}

// registerRoutes sets up all API endpoints
func (a *API) registerRoutes(app *fiber.App) {
	// Health checks
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	app.Get("/readyz", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	// Live delivery streams
	a.registerWebSocketHandler(app)
	a.registerSSEHandler(app)

	// Event ingress
	app.Post("/events", a.handlePublishEvent)

	// Chat endpoints
	app.Post("/chat/messages", a.handleSendMessage)
	app.Post("/chat/read", a.handleReadMessages)
	app.Get("/chat/:partnerId/messages", a.handleListMessages)

	// Notification endpoints
	app.Get("/notifications", a.handleListNotifications)
	app.Get("/notifications/unread", a.handleUnreadCount)
	app.Post("/notifications/:id/read", a.handleMarkNotificationRead)
}

// requestMetrics records request counts and latency per route
func (a *API) requestMetrics(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	path := c.Route().Path
	status := strconv.Itoa(c.Response().StatusCode())
	a.metrics.APIRequestsTotal.WithLabelValues(c.Method(), path, status).Inc()
	a.metrics.APIRequestDuration.WithLabelValues(c.Method(), path).Observe(time.Since(start).Seconds())
	return err
}

// userID extracts the authenticated user identity. Authentication is
// handled upstream; the gateway forwards the resolved identity in a
// header.
func userID(c *fiber.Ctx) string {
	if id := c.Get("X-User-ID"); id != "" {
		return id
	}
	return c.Query("user_id")
}

// sendError maps an error onto the wire format shared by all endpoints
func (a *API) sendError(c *fiber.Ctx, err error) error {
	apiErr := apierrors.FromError(err)
	a.metrics.APIErrorsTotal.WithLabelValues(c.Method(), c.Route().Path, string(apiErr.Type)).Inc()
	return c.Status(apiErr.HTTPCode).JSON(fiber.Map{
		"error": apiErr,
	})
}

// handlePublishEvent accepts a domain event and dispatches it on the bus
func (a *API) handlePublishEvent(c *fiber.Ctx) error {
	var req model.PublishEventRequest
	if err := c.BodyParser(&req); err != nil {
		return a.sendError(c, apierrors.InvalidArgument("invalid_body", "Invalid request body"))
	}

	if req.Topic == "" || req.Event == nil {
		return a.sendError(c, apierrors.InvalidArgument("missing_field", "Topic and event are required"))
	}
	if req.Event.RecipientId == "" {
		return a.sendError(c, apierrors.InvalidArgument("missing_recipient", "Event recipient is required"))
	}

	a.bus.Publish(req.Topic, req.Event)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"accepted": true,
	})
}

// handleSendMessage creates and delivers a chat message
func (a *API) handleSendMessage(c *fiber.Ctx) error {
	var req model.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return a.sendError(c, apierrors.InvalidArgument("invalid_body", "Invalid request body"))
	}

	if req.SenderId == "" {
		req.SenderId = userID(c)
	}

	message, err := a.chat.SendMessage(c.Context(), req.SenderId, req.RecipientId, req.Body)
	if err != nil {
		return a.sendError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(model.SendMessageResponse{
		Message: message,
	})
}

// handleReadMessages acknowledges all messages from a partner
func (a *API) handleReadMessages(c *fiber.Ctx) error {
	var req model.ReadMessagesRequest
	if err := c.BodyParser(&req); err != nil {
		return a.sendError(c, apierrors.InvalidArgument("invalid_body", "Invalid request body"))
	}

	if req.ReaderId == "" {
		req.ReaderId = userID(c)
	}

	marked, err := a.chat.ReadMessages(c.Context(), req.ReaderId, req.PartnerId)
	if err != nil {
		return a.sendError(c, err)
	}

	return c.JSON(model.ReadMessagesResponse{
		Marked: marked,
	})
}

// handleListMessages returns a page of conversation history
func (a *API) handleListMessages(c *fiber.Ctx) error {
	partnerID := c.Params("partnerId")
	uid := userID(c)

	limit := parseLimit(c.Query("limit", "50"))
	cursor := c.Query("cursor", "")

	messages, nextCursor, err := a.chat.History(c.Context(), uid, partnerID, limit, cursor)
	if err != nil {
		return a.sendError(c, err)
	}

	return c.JSON(model.ListMessagesResponse{
		Messages:   messages,
		NextCursor: nextCursor,
	})
}

// handleListNotifications returns a page of the user's notifications
func (a *API) handleListNotifications(c *fiber.Ctx) error {
	uid := userID(c)

	limit := parseLimit(c.Query("limit", "50"))
	cursor := c.Query("cursor", "")

	notifications, nextCursor, err := a.notifications.List(c.Context(), uid, limit, cursor)
	if err != nil {
		return a.sendError(c, err)
	}

	return c.JSON(model.ListNotificationsResponse{
		Notifications: notifications,
		NextCursor:    nextCursor,
	})
}

// handleUnreadCount returns the user's unread notification count
func (a *API) handleUnreadCount(c *fiber.Ctx) error {
	count, err := a.notifications.Unread(c.Context(), userID(c))
	if err != nil {
		return a.sendError(c, err)
	}

	return c.JSON(model.UnreadCountResponse{
		Unread: count,
	})
}

// handleMarkNotificationRead acknowledges a single notification
func (a *API) handleMarkNotificationRead(c *fiber.Ctx) error {
	id := c.Params("id")

	notification, err := a.notifications.MarkRead(c.Context(), userID(c), id)
	if err != nil {
		return a.sendError(c, err)
	}

	return c.JSON(fiber.Map{
		"notification": notification,
	})
}

// parseLimit parses a pagination limit, falling back to the default
func parseLimit(s string) int {
	limit, err := strconv.Atoi(s)
	if err != nil || limit <= 0 || limit > 100 {
		return 50
	}
	return limit
}

// Shutdown stops the API server
func (a *API) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down API server")
	if a.app != nil {
		return a.app.Shutdown()
	}
	return nil
}
