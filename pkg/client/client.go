package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pulsehub/pulse/pkg/model"
)

// Client is an HTTP client for interacting with the Pulse API
type Client struct {
	baseURL         string
	httpClient      *http.Client
	userID          string
	headers         http.Header
	websocketDialer *websocket.Dialer
	timeout         time.Duration
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
		c.httpClient.Timeout = timeout
	}
}

// WithUserID sets the user identity for requests
func WithUserID(userID string) ClientOption {
	return func(c *Client) {
		c.userID = userID
		c.headers.Set("X-User-ID", userID)
	}
}

// WithHeaders sets additional HTTP headers
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.headers.Set(k, v)
		}
	}
}

// New creates a new Pulse API client
func New(baseURL string, options ...ClientOption) *Client {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")

	client := &Client{
		baseURL:         baseURL,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
		headers:         headers,
		websocketDialer: websocket.DefaultDialer,
		timeout:         10 * time.Second,
	}

	// Apply options
	for _, option := range options {
		option(client)
	}

	return client
}

// PublishEvent publishes a domain event for dispatch
func (c *Client) PublishEvent(ctx context.Context, topic string, event *model.Event) error {
	resp, err := c.do(ctx, "POST", "/events", model.PublishEventRequest{
		Topic: topic,
		Event: event,
	})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// SendMessage sends a chat message and returns the persisted record
func (c *Client) SendMessage(ctx context.Context, recipientID, body string) (*model.ChatMessage, error) {
	resp, err := c.do(ctx, "POST", "/chat/messages", model.SendMessageRequest{
		SenderId:    c.userID,
		RecipientId: recipientID,
		Body:        body,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var response model.SendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return response.Message, nil
}

// ReadMessages acknowledges all messages from a partner and returns
// how many were newly marked
func (c *Client) ReadMessages(ctx context.Context, partnerID string) (int, error) {
	resp, err := c.do(ctx, "POST", "/chat/read", model.ReadMessagesRequest{
		ReaderId:  c.userID,
		PartnerId: partnerID,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var response model.ReadMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	return response.Marked, nil
}

// Messages retrieves a page of conversation history, newest first
func (c *Client) Messages(ctx context.Context, partnerID string, limit int, cursor string) ([]*model.ChatMessage, string, error) {
	path := fmt.Sprintf("/chat/%s/messages?limit=%d", url.PathEscape(partnerID), limit)
	if cursor != "" {
		path += "&cursor=" + url.QueryEscape(cursor)
	}

	resp, err := c.do(ctx, "GET", path, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	var response model.ListMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, "", fmt.Errorf("failed to decode response: %w", err)
	}

	return response.Messages, response.NextCursor, nil
}

// Notifications retrieves a page of the user's notifications
func (c *Client) Notifications(ctx context.Context, limit int, cursor string) ([]*model.Notification, string, error) {
	path := fmt.Sprintf("/notifications?limit=%d", limit)
	if cursor != "" {
		path += "&cursor=" + url.QueryEscape(cursor)
	}

	resp, err := c.do(ctx, "GET", path, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	var response model.ListNotificationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, "", fmt.Errorf("failed to decode response: %w", err)
	}

	return response.Notifications, response.NextCursor, nil
}

// UnreadCount returns the number of unread notifications
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	resp, err := c.do(ctx, "GET", "/notifications/unread", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var response model.UnreadCountResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	return response.Unread, nil
}

// MarkNotificationRead acknowledges a notification
func (c *Client) MarkNotificationRead(ctx context.Context, id string) (*model.Notification, error) {
	resp, err := c.do(ctx, "POST", fmt.Sprintf("/notifications/%s/read", url.PathEscape(id)), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var response struct {
		Notification *model.Notification `json:"notification"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return response.Notification, nil
}

// Push is one envelope delivered on a live stream. Raw holds the full
// message for decoding into the matching model push type.
type Push struct {
	Type string
	Raw  json.RawMessage
}

// Subscription represents a WebSocket subscription for live delivery
type Subscription struct {
	Conn   *websocket.Conn
	Pushes chan *Push
	Done   chan struct{}
}

// Stream opens the live delivery stream for the client's user
func (c *Client) Stream(ctx context.Context) (*Subscription, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}

	// Convert to WebSocket scheme
	if u.Scheme == "http" {
		u.Scheme = "ws"
	} else if u.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = "/stream"

	headers := make(http.Header)
	headers.Set("X-User-ID", c.userID)
	conn, _, err := c.websocketDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	sub := &Subscription{
		Conn:   conn,
		Pushes: make(chan *Push, 100),
		Done:   make(chan struct{}),
	}

	go sub.receivePushes()

	return sub, nil
}

// receivePushes processes WebSocket messages
func (s *Subscription) receivePushes() {
	defer func() {
		close(s.Pushes)
		close(s.Done)
		s.Conn.Close()
	}()

	for {
		_, message, err := s.Conn.ReadMessage()
		if err != nil {
			// Connection closed
			return
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &envelope); err != nil {
			continue
		}
		if envelope.Type == "" || envelope.Type == model.PushTypeHeartbeat {
			continue
		}

		select {
		case s.Pushes <- &Push{Type: envelope.Type, Raw: message}:
		default:
			// Channel is full, drop push; durable state wins
		}
	}
}

// Close closes the subscription
func (s *Subscription) Close() error {
	err := s.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	select {
	case <-s.Done:
	case <-time.After(time.Second):
		s.Conn.Close()
	}

	return err
}

// do makes an HTTP request
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, err
	}

	for k, v := range c.headers {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	// Check for errors
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()

		data, _ := io.ReadAll(resp.Body)

		var errResp struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}

		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, resp.Status)
	}

	return resp, nil
}
