package api

import (
	"bufio"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	apierrors "github.com/pulsehub/pulse/internal/api/errors"
	"github.com/pulsehub/pulse/internal/domain"
	"github.com/pulsehub/pulse/pkg/model"
)

// Compile-time interface checks
var (
	_ domain.Connection = (*wsConn)(nil)
	_ domain.Connection = (*sseConn)(nil)
)

// wsConn adapts a WebSocket session to domain.Connection. Writes are
// serialized by a mutex because both the registry and the heartbeat
// goroutine send on the same socket.
type wsConn struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func (w *wsConn) ID() string {
	return w.id
}

func (w *wsConn) Send(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writeTimeout > 0 {
		if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
			return err
		}
	}
	return w.conn.WriteMessage(websocket.TextMessage, payload)
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}

// sseConn adapts a Server-Sent Events session to domain.Connection.
// Payloads go through a buffered channel drained by the response
// stream writer; a full buffer drops the payload rather than blocking
// the sender.
type sseConn struct {
	id     string
	ch     chan []byte
	closed bool
	mu     sync.Mutex
}

func (s *sseConn) ID() string {
	return s.id
}

func (s *sseConn) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("sse connection %s is closed", s.id)
	}

	select {
	case s.ch <- payload:
		return nil
	default:
		// Slow consumer; persisted state is still authoritative
		return nil
	}
}

func (s *sseConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// registerWebSocketHandler registers the WebSocket stream endpoint
func (a *API) registerWebSocketHandler(app *fiber.App) {
	// Middleware to upgrade connections to WebSocket
	app.Use("/stream", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		c.Locals("user_id", userID(c))
		return c.Next()
	})

	app.Get("/stream", websocket.New(func(c *websocket.Conn) {
		uid, _ := c.Locals("user_id").(string)
		if uid == "" {
			c.WriteJSON(fiber.Map{
				"error": "User ID is required",
			})
			c.Close()
			return
		}

		a.handleWebSocketClient(c, uid)
	}))
}

// handleWebSocketClient runs for the lifetime of one WebSocket session
func (a *API) handleWebSocketClient(c *websocket.Conn, uid string) {
	conn := &wsConn{
		id:           uuid.NewString(),
		conn:         c,
		writeTimeout: a.config.StreamWriteTimeout,
	}

	a.registry.Register(uid, conn)
	a.logger.Debug().Str("user_id", uid).Str("connection_id", conn.id).Msg("WebSocket client connected")

	// Heartbeats keep intermediaries from reaping the idle socket. A
	// failed write ends the session; the registry entry goes with it.
	stopHeartbeat := make(chan struct{})
	go func() {
		ticker := time.NewTicker(a.config.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				payload := []byte(`{"type":"` + model.PushTypeHeartbeat + `","ts":"` + time.Now().Format(time.RFC3339) + `"}`)
				if err := conn.Send(payload); err != nil {
					c.Close()
					return
				}
			case <-stopHeartbeat:
				return
			}
		}
	}()

	// Read loop. Inbound frames only refresh liveness; all client
	// operations go through the HTTP endpoints.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			a.logger.Debug().Err(err).Str("connection_id", conn.id).Msg("WebSocket read error")
			break
		}
	}

	close(stopHeartbeat)
	a.registry.Unregister(uid, conn)
	c.Close()
	a.logger.Debug().Str("user_id", uid).Str("connection_id", conn.id).Msg("WebSocket client disconnected")
}

// registerSSEHandler registers the Server-Sent Events stream endpoint
func (a *API) registerSSEHandler(app *fiber.App) {
	app.Get("/stream-sse", func(c *fiber.Ctx) error {
		uid := userID(c)
		if uid == "" {
			return a.sendError(c, apierrors.InvalidArgument("missing_user_id", "User ID is required"))
		}

		// Set SSE headers
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("Transfer-Encoding", "chunked")

		conn := &sseConn{
			id: uuid.NewString(),
			ch: make(chan []byte, a.config.SSEBufferSize),
		}

		a.registry.Register(uid, conn)
		a.logger.Debug().Str("user_id", uid).Str("connection_id", conn.id).Msg("SSE client connected")

		heartbeat := a.config.HeartbeatInterval
		reg := a.registry
		logger := a.logger

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer func() {
				reg.Unregister(uid, conn)
				conn.Close()
				logger.Debug().Str("user_id", uid).Str("connection_id", conn.id).Msg("SSE client disconnected")
			}()

			// Initial event so clients know the stream is live
			fmt.Fprintf(w, "event: connected\ndata: {\"connection_id\":%q}\n\n", conn.id)
			if err := w.Flush(); err != nil {
				return
			}

			ticker := time.NewTicker(heartbeat)
			defer ticker.Stop()

			for {
				select {
				case msg, ok := <-conn.ch:
					if !ok {
						return
					}
					fmt.Fprintf(w, "data: %s\n\n", msg)
					if err := w.Flush(); err != nil {
						return
					}

				case <-ticker.C:
					fmt.Fprint(w, ": ping\n\n")
					if err := w.Flush(); err != nil {
						return
					}
				}
			}
		})

		return nil
	})
}
