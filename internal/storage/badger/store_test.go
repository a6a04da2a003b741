package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pulsehub/pulse/internal/api/errors"
	"github.com/pulsehub/pulse/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	config := DefaultConfig()
	config.DataDir = t.TempDir()
	config.CacheEnabled = true
	config.NotificationCacheSize = 100
	config.CacheExpiration = time.Minute

	store, err := NewStore(config)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Shutdown(context.Background())
	})

	return store
}

func TestCreateAndGetNotification(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	payload, _ := json.Marshal(map[string]string{"postId": "p1"})
	created, err := store.CreateNotification(ctx, "alice", model.KindComment, payload)
	require.NoError(t, err)
	assert.NotEmpty(t, created.Id)
	assert.Equal(t, "alice", created.RecipientId)
	assert.Equal(t, model.KindComment, created.Kind)
	assert.NotNil(t, created.CreatedAt)
	assert.Nil(t, created.ReadAt)

	got, err := store.GetNotification(ctx, created.Id)
	require.NoError(t, err)
	assert.Equal(t, created.Id, got.Id)
	assert.JSONEq(t, string(payload), string(got.Payload))
}

func TestGetNotificationNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetNotification(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestMarkNotificationRead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateNotification(ctx, "alice", model.KindVote, nil)
	require.NoError(t, err)

	read, err := store.MarkNotificationRead(ctx, created.Id)
	require.NoError(t, err)
	require.NotNil(t, read.ReadAt)

	// Re-marking keeps the original readAt
	again, err := store.MarkNotificationRead(ctx, created.Id)
	require.NoError(t, err)
	assert.Equal(t, read.ReadAt.AsTime(), again.ReadAt.AsTime())
}

func TestCountUnread(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var last *model.Notification
	for i := 0; i < 5; i++ {
		n, err := store.CreateNotification(ctx, "alice", model.KindFollow, nil)
		require.NoError(t, err)
		last = n
	}
	// Another user's notifications are not counted
	_, err := store.CreateNotification(ctx, "bob", model.KindFollow, nil)
	require.NoError(t, err)

	count, err := store.CountUnread(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	_, err = store.MarkNotificationRead(ctx, last.Id)
	require.NoError(t, err)

	count, err = store.CountUnread(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestListNotificationsPaging(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 7; i++ {
		n, err := store.CreateNotification(ctx, "alice", model.KindComment, nil)
		require.NoError(t, err)
		ids = append(ids, n.Id)
		time.Sleep(time.Millisecond) // distinct timestamps
	}

	first, cursor, err := store.ListNotifications(ctx, "alice", 3, "")
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.NotEmpty(t, cursor)
	// Newest first
	assert.Equal(t, ids[6], first[0].Id)
	assert.Equal(t, ids[5], first[1].Id)
	assert.Equal(t, ids[4], first[2].Id)

	second, cursor, err := store.ListNotifications(ctx, "alice", 3, cursor)
	require.NoError(t, err)
	require.Len(t, second, 3)
	assert.Equal(t, ids[3], second[0].Id)

	third, _, err := store.ListNotifications(ctx, "alice", 3, cursor)
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, ids[0], third[0].Id)
}

func TestCreateChatMessageSequences(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		msg, err := store.CreateChatMessage(ctx, "alice", "bob", fmt.Sprintf("hello %d", i))
		require.NoError(t, err)
		assert.Equal(t, uint64(i), msg.Sequence)
	}

	// Sequences are per conversation
	msg, err := store.CreateChatMessage(ctx, "alice", "carol", "hi carol")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), msg.Sequence)

	// Direction does not matter within a conversation
	msg, err = store.CreateChatMessage(ctx, "bob", "alice", "hello back")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), msg.Sequence)
}

func TestConcurrentSendersGetUniqueContiguousSequences(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const senders = 8
	const perSender = 10

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[uint64]bool)

	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sender, recipient := "alice", "bob"
			if n%2 == 1 {
				sender, recipient = "bob", "alice"
			}
			for j := 0; j < perSender; j++ {
				msg, err := store.CreateChatMessage(ctx, sender, recipient, "m")
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				if seen[msg.Sequence] {
					t.Errorf("duplicate sequence %d", msg.Sequence)
				}
				seen[msg.Sequence] = true
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, seen, senders*perSender)
	for seq := uint64(1); seq <= senders*perSender; seq++ {
		assert.True(t, seen[seq], "missing sequence %d", seq)
	}
}

func TestListMessagesPaging(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := store.CreateChatMessage(ctx, "alice", "bob", fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	first, cursor, err := store.ListMessages(ctx, "bob", "alice", 2, "")
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, uint64(5), first[0].Sequence)
	assert.Equal(t, uint64(4), first[1].Sequence)

	second, cursor, err := store.ListMessages(ctx, "bob", "alice", 2, cursor)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, uint64(3), second[0].Sequence)

	third, _, err := store.ListMessages(ctx, "bob", "alice", 2, cursor)
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, uint64(1), third[0].Sequence)
}

func TestMarkMessagesReadIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.CreateChatMessage(ctx, "alice", "bob", "hi")
		require.NoError(t, err)
	}
	// A message in the other direction is not marked by bob's read
	_, err := store.CreateChatMessage(ctx, "bob", "alice", "yes?")
	require.NoError(t, err)

	marked, err := store.MarkMessagesRead(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, marked)

	marked, err = store.MarkMessagesRead(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, marked)

	msgs, _, err := store.ListMessages(ctx, "bob", "alice", 0, "")
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for _, msg := range msgs {
		if msg.RecipientId == "bob" {
			assert.NotNil(t, msg.ReadAt)
		} else {
			assert.Nil(t, msg.ReadAt)
		}
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	config := DefaultConfig()
	config.DataDir = dir
	config.CacheEnabled = false

	store, err := NewStore(config)
	require.NoError(t, err)

	ctx := context.Background()
	created, err := store.CreateNotification(ctx, "alice", model.KindComment, nil)
	require.NoError(t, err)
	_, err = store.CreateChatMessage(ctx, "alice", "bob", "persisted")
	require.NoError(t, err)
	require.NoError(t, store.Shutdown(ctx))

	reopened, err := NewStore(config)
	require.NoError(t, err)
	defer reopened.Shutdown(ctx)

	got, err := reopened.GetNotification(ctx, created.Id)
	require.NoError(t, err)
	assert.Equal(t, created.Id, got.Id)

	// Sequence counter continues after restart
	msg, err := reopened.CreateChatMessage(ctx, "alice", "bob", "again")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), msg.Sequence)
}
