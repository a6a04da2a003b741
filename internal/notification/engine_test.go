package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pulsehub/pulse/internal/api/errors"
	"github.com/pulsehub/pulse/internal/bus"
	"github.com/pulsehub/pulse/internal/domain/domaintest"
	"github.com/pulsehub/pulse/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	engine   *Engine
	bus      *bus.Bus
	store    *domaintest.FakeStore
	registry *domaintest.FakeRegistry
	cancel   context.CancelFunc
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	b := bus.NewBus()
	store := domaintest.NewFakeStore()
	registry := domaintest.NewFakeRegistry()
	engine := NewEngine(DefaultConfig(), b, registry, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.Start(ctx)
		close(done)
	}()

	// Start subscribes before blocking, but give the goroutine a chance
	// to run
	require.Eventually(t, func() bool {
		return b.SubscriberCount(model.TopicCommentCreated) == 1
	}, time.Second, time.Millisecond)

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &engineFixture{engine: engine, bus: b, store: store, registry: registry, cancel: cancel}
}

func TestEventPersistsAndPushes(t *testing.T) {
	f := newEngineFixture(t)
	f.registry.SetOnline("alice", true)

	payload, _ := json.Marshal(map[string]string{"commentId": "c1"})
	f.bus.Publish(model.TopicCommentCreated, &model.Event{
		RecipientId: "alice",
		ActorId:     "bob",
		Payload:     payload,
	})

	stored := f.store.Notifications()
	require.Len(t, stored, 1)
	assert.Equal(t, "alice", stored[0].RecipientId)
	assert.Equal(t, model.KindComment, stored[0].Kind)

	sent := f.registry.Sent("alice")
	require.Len(t, sent, 2) // notification push and unread push

	var push model.NotificationPush
	require.NoError(t, json.Unmarshal(sent[0], &push))
	assert.Equal(t, model.PushTypeNotification, push.Type)
	assert.Equal(t, stored[0].Id, push.Notification.Id)

	var unread model.UnreadPush
	require.NoError(t, json.Unmarshal(sent[1], &unread))
	assert.Equal(t, model.PushTypeUnread, unread.Type)
	assert.Equal(t, 1, unread.Unread)
}

func TestOfflineRecipientStillPersisted(t *testing.T) {
	f := newEngineFixture(t)

	f.bus.Publish(model.TopicUserFollowed, &model.Event{RecipientId: "alice"})

	stored := f.store.Notifications()
	require.Len(t, stored, 1)
	assert.Equal(t, model.KindFollow, stored[0].Kind)
	assert.Empty(t, f.registry.Sent("alice"))
}

func TestPersistenceFailureMeansNoPush(t *testing.T) {
	f := newEngineFixture(t)
	f.registry.SetOnline("alice", true)
	f.store.CreateNotificationErr = errors.Persistence("disk_full", "write failed")

	f.bus.Publish(model.TopicPostVoted, &model.Event{RecipientId: "alice"})

	assert.Empty(t, f.store.Notifications())
	assert.Empty(t, f.registry.Sent("alice"))
}

func TestEventWithoutRecipientDropped(t *testing.T) {
	f := newEngineFixture(t)

	f.bus.Publish(model.TopicCommentCreated, &model.Event{ActorId: "bob"})
	f.bus.Publish(model.TopicCommentCreated, nil)

	assert.Empty(t, f.store.Notifications())
}

func TestMarkReadPushesUnreadCount(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.bus.Publish(model.TopicCommentCreated, &model.Event{RecipientId: "alice"})
	f.bus.Publish(model.TopicCommentCreated, &model.Event{RecipientId: "alice"})

	stored := f.store.Notifications()
	require.Len(t, stored, 2)

	f.registry.SetOnline("alice", true)
	read, err := f.engine.MarkRead(ctx, "alice", stored[0].Id)
	require.NoError(t, err)
	assert.NotNil(t, read.ReadAt)

	sent := f.registry.Sent("alice")
	require.Len(t, sent, 1)
	var unread model.UnreadPush
	require.NoError(t, json.Unmarshal(sent[0], &unread))
	assert.Equal(t, 1, unread.Unread)
}

func TestMarkReadRejectsForeignNotification(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.bus.Publish(model.TopicCommentCreated, &model.Event{RecipientId: "alice"})
	stored := f.store.Notifications()
	require.Len(t, stored, 1)

	_, err := f.engine.MarkRead(ctx, "mallory", stored[0].Id)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestMarkReadValidation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.engine.MarkRead(ctx, "", "n1")
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))

	_, err = f.engine.MarkRead(ctx, "alice", "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
}

func TestUnreadAndList(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.bus.Publish(model.TopicPostVoted, &model.Event{RecipientId: "alice"})
	}

	count, err := f.engine.Unread(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	list, _, err := f.engine.List(ctx, "alice", 10, "")
	require.NoError(t, err)
	assert.Len(t, list, 3)

	_, err = f.engine.Unread(ctx, "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
}
