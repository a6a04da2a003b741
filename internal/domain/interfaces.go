package domain

import (
	"context"

	"github.com/pulsehub/pulse/pkg/model"
)

// Listener reacts to events published on a topic. The event is shared
// with every other listener on the topic; listeners must not mutate it.
type Listener func(evt *model.Event)

// Subscription identifies one (topic, listener) registration on the bus
type Subscription struct {
	ID    string
	Topic string
}

// Dispatcher defines the in-process publish/subscribe bus
type Dispatcher interface {
	// Publish synchronously invokes every listener subscribed to topic,
	// in subscription order. It returns after all listeners have run; a
	// panicking listener never reaches the publisher.
	Publish(topic string, evt *model.Event)

	// Subscribe registers a listener for a topic and returns the handle
	// used to remove it.
	Subscribe(topic string, fn Listener) *Subscription

	// Unsubscribe removes a subscription. Removing a subscription that
	// is not registered is a no-op.
	Unsubscribe(sub *Subscription)
}

// Connection is one live transport session belonging to exactly one user
type Connection interface {
	// ID uniquely identifies the connection
	ID() string

	// Send pushes a serialized payload down the transport
	Send(payload []byte) error

	// Close terminates the transport session
	Close() error
}

// Registry maps user identities to their live connections
type Registry interface {
	// Register adds a connection to the user's live set
	Register(userID string, conn Connection)

	// Unregister removes a connection; an emptied user entry is dropped
	Unregister(userID string, conn Connection)

	// ActiveConnections returns a point-in-time snapshot of the user's
	// live connections
	ActiveConnections(userID string) []Connection

	// Send pushes payload to every live connection for userID and
	// returns how many sends succeeded. Zero live connections is a
	// silent no-op.
	Send(userID string, payload []byte) int
}

// Store is the persistence collaborator for notifications and chat.
// Implementations may fail with a persistence error; callers never
// retry internally.
type Store interface {
	// Lifecycle
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error

	// Notification operations
	CreateNotification(ctx context.Context, recipientID string, kind model.NotificationKind, payload []byte) (*model.Notification, error)
	GetNotification(ctx context.Context, id string) (*model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) (*model.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	ListNotifications(ctx context.Context, userID string, limit int, cursor string) ([]*model.Notification, string, error)

	// Chat operations. CreateChatMessage assigns the next sequence for
	// the conversation atomically with the insert.
	CreateChatMessage(ctx context.Context, senderID, recipientID, body string) (*model.ChatMessage, error)
	ListMessages(ctx context.Context, userID, partnerID string, limit int, cursor string) ([]*model.ChatMessage, string, error)
	MarkMessagesRead(ctx context.Context, readerID, partnerID string) (int, error)
}
