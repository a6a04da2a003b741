package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/protobuf/types/known/timestamppb"
)

// Topics published on the event bus. Publishers and subscribers agree
// on the payload carried under each topic; the bus itself enforces no
// schema.
const (
	TopicCommentCreated = "notification.comment.created"
	TopicPostVoted      = "notification.post.voted"
	TopicUserFollowed   = "notification.user.followed"
)

// NotificationKind classifies a persisted notification
type NotificationKind string

const (
	KindComment NotificationKind = "comment"
	KindVote    NotificationKind = "vote"
	KindFollow  NotificationKind = "follow"
)

// Event is the payload carried on the bus. Listeners receive the same
// pointer the publisher handed in and must not mutate it.
type Event struct {
	RecipientId string                 `json:"recipient_id"`
	ActorId     string                 `json:"actor_id,omitempty"`
	Kind        NotificationKind       `json:"kind"`
	Payload     json.RawMessage        `json:"payload,omitempty"`
	Ts          *timestamppb.Timestamp `json:"ts,omitempty"`
}

// Notification is a durable record of something a user should see.
// ReadAt is nil until the recipient acknowledges it.
type Notification struct {
	Id          string                 `json:"id"`
	RecipientId string                 `json:"recipient_id"`
	Kind        NotificationKind       `json:"kind"`
	Payload     json.RawMessage        `json:"payload,omitempty"`
	CreatedAt   *timestamppb.Timestamp `json:"created_at,omitempty"`
	ReadAt      *timestamppb.Timestamp `json:"read_at,omitempty"`
}

// ChatMessage is a durable chat record. Sequence totally orders the
// message within its conversation, independent of wall-clock skew.
type ChatMessage struct {
	Id          string                 `json:"id"`
	SenderId    string                 `json:"sender_id"`
	RecipientId string                 `json:"recipient_id"`
	Body        string                 `json:"body"`
	Sequence    uint64                 `json:"sequence"`
	CreatedAt   *timestamppb.Timestamp `json:"created_at,omitempty"`
	ReadAt      *timestamppb.Timestamp `json:"read_at,omitempty"`
}

// ConversationID derives the canonical ordering-domain key for the
// unordered pair of user identities. Both orderings of a and b map to
// the same key.
func ConversationID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "|")
}

// Push envelope types delivered on live connections
const (
	PushTypeNotification = "notification"
	PushTypeUnread       = "notification.unread"
	PushTypeChatMessage  = "chat.message"
	PushTypeChatRead     = "chat.read"
	PushTypeHeartbeat    = "heartbeat"
)

// NotificationPush wraps a freshly persisted notification for live delivery
type NotificationPush struct {
	Type         string        `json:"type"`
	Notification *Notification `json:"notification"`
}

// UnreadPush carries a recomputed unread count to a user's open sessions
type UnreadPush struct {
	Type   string `json:"type"`
	Unread int    `json:"unread"`
}

// ChatMessagePush wraps a persisted chat message for live delivery
type ChatMessagePush struct {
	Type    string       `json:"type"`
	Message *ChatMessage `json:"message"`
}

// ReadReceiptPush tells the original sender their messages were read
type ReadReceiptPush struct {
	Type      string `json:"type"`
	ReaderId  string `json:"reader_id"`
	PartnerId string `json:"partner_id"`
	Count     int    `json:"count"`
}

// SendMessageRequest creates a new chat message
type SendMessageRequest struct {
	SenderId    string `json:"sender_id"`
	RecipientId string `json:"recipient_id"`
	Body        string `json:"body"`
}

// SendMessageResponse returns the persisted message
type SendMessageResponse struct {
	Message *ChatMessage `json:"message"`
}

// ReadMessagesRequest acknowledges all messages from a partner
type ReadMessagesRequest struct {
	ReaderId  string `json:"reader_id"`
	PartnerId string `json:"partner_id"`
}

// ReadMessagesResponse reports how many messages were newly marked
type ReadMessagesResponse struct {
	Marked int `json:"marked"`
}

// ListMessagesResponse returns a page of conversation history
type ListMessagesResponse struct {
	Messages   []*ChatMessage `json:"messages"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ListNotificationsResponse returns a page of persisted notifications
type ListNotificationsResponse struct {
	Notifications []*Notification `json:"notifications"`
	NextCursor    string          `json:"next_cursor,omitempty"`
}

// UnreadCountResponse returns the recomputed unread notification count
type UnreadCountResponse struct {
	Unread int `json:"unread"`
}

// PublishEventRequest announces a domain event over the HTTP surface
type PublishEventRequest struct {
	Topic string `json:"topic"`
	Event *Event `json:"event"`
}

// Error wraps an error message for consistent error handling
type Error struct {
	Message string
}

// NewError creates a new Error
func NewError(msg string) error {
	return &Error{Message: msg}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("pulse: %s", e.Message)
}
