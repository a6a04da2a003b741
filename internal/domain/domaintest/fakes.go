// Package domaintest provides in-memory fakes for the domain
// interfaces, used by engine and handler tests.
package domaintest

import (
	"context"
	"fmt"
	"sync"

	"github.com/pulsehub/pulse/internal/api/errors"
	"github.com/pulsehub/pulse/internal/domain"
	"github.com/pulsehub/pulse/pkg/model"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// FakeStore is an in-memory domain.Store. Error fields let tests force
// failures on individual operations.
type FakeStore struct {
	mu            sync.Mutex
	notifications []*model.Notification
	messages      map[string][]*model.ChatMessage
	sequences     map[string]uint64
	nextID        int

	CreateNotificationErr error
	CreateMessageErr      error
	MarkReadErr           error
	CountUnreadErr        error
}

// NewFakeStore creates an empty fake store
func NewFakeStore() *FakeStore {
	return &FakeStore{
		messages:  make(map[string][]*model.ChatMessage),
		sequences: make(map[string]uint64),
	}
}

func (s *FakeStore) Start(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (s *FakeStore) Shutdown(ctx context.Context) error { return nil }

func (s *FakeStore) genID() string {
	s.nextID++
	return fmt.Sprintf("id-%d", s.nextID)
}

func (s *FakeStore) CreateNotification(ctx context.Context, recipientID string, kind model.NotificationKind, payload []byte) (*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CreateNotificationErr != nil {
		return nil, s.CreateNotificationErr
	}

	n := &model.Notification{
		Id:          s.genID(),
		RecipientId: recipientID,
		Kind:        kind,
		Payload:     payload,
		CreatedAt:   timestamppb.Now(),
	}
	s.notifications = append(s.notifications, n)
	return n, nil
}

func (s *FakeStore) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.notifications {
		if n.Id == id {
			return n, nil
		}
	}
	return nil, errors.NotFound("notification_not_found", "notification not found")
}

func (s *FakeStore) MarkNotificationRead(ctx context.Context, id string) (*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.MarkReadErr != nil {
		return nil, s.MarkReadErr
	}

	for _, n := range s.notifications {
		if n.Id == id {
			if n.ReadAt == nil {
				n.ReadAt = timestamppb.Now()
			}
			return n, nil
		}
	}
	return nil, errors.NotFound("notification_not_found", "notification not found")
}

func (s *FakeStore) CountUnread(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CountUnreadErr != nil {
		return 0, s.CountUnreadErr
	}

	count := 0
	for _, n := range s.notifications {
		if n.RecipientId == userID && n.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (s *FakeStore) ListNotifications(ctx context.Context, userID string, limit int, cursor string) ([]*model.Notification, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if s.notifications[i].RecipientId == userID {
			out = append(out, s.notifications[i])
		}
	}
	return out, "", nil
}

func (s *FakeStore) CreateChatMessage(ctx context.Context, senderID, recipientID, body string) (*model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CreateMessageErr != nil {
		return nil, s.CreateMessageErr
	}

	conv := model.ConversationID(senderID, recipientID)
	s.sequences[conv]++

	msg := &model.ChatMessage{
		Id:          s.genID(),
		SenderId:    senderID,
		RecipientId: recipientID,
		Body:        body,
		Sequence:    s.sequences[conv],
		CreatedAt:   timestamppb.Now(),
	}
	s.messages[conv] = append(s.messages[conv], msg)
	return msg, nil
}

func (s *FakeStore) ListMessages(ctx context.Context, userID, partnerID string, limit int, cursor string) ([]*model.ChatMessage, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := model.ConversationID(userID, partnerID)
	msgs := s.messages[conv]

	var out []*model.ChatMessage
	for i := len(msgs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, msgs[i])
	}
	return out, "", nil
}

func (s *FakeStore) MarkMessagesRead(ctx context.Context, readerID, partnerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := model.ConversationID(readerID, partnerID)
	marked := 0
	for _, msg := range s.messages[conv] {
		if msg.RecipientId == readerID && msg.ReadAt == nil {
			msg.ReadAt = timestamppb.Now()
			marked++
		}
	}
	return marked, nil
}

// Notifications returns a snapshot of all stored notifications
func (s *FakeStore) Notifications() []*model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.Notification(nil), s.notifications...)
}

// FakeRegistry records payloads sent per user instead of delivering
// them. Offline users receive nothing and report zero deliveries.
type FakeRegistry struct {
	mu     sync.Mutex
	online map[string]bool
	sent   map[string][][]byte
}

// NewFakeRegistry creates a fake registry with no users online
func NewFakeRegistry() *FakeRegistry {
	return &FakeRegistry{
		online: make(map[string]bool),
		sent:   make(map[string][][]byte),
	}
}

// SetOnline marks a user as having a live connection
func (r *FakeRegistry) SetOnline(userID string, online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online[userID] = online
}

func (r *FakeRegistry) Register(userID string, conn domain.Connection) {}

func (r *FakeRegistry) Unregister(userID string, conn domain.Connection) {}

func (r *FakeRegistry) ActiveConnections(userID string) []domain.Connection {
	return nil
}

func (r *FakeRegistry) Send(userID string, payload []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.online[userID] {
		return 0
	}
	r.sent[userID] = append(r.sent[userID], append([]byte(nil), payload...))
	return 1
}

// Sent returns the payloads delivered to a user, in send order
func (r *FakeRegistry) Sent(userID string) [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.sent[userID]...)
}
