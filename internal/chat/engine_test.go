package chat

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pulsehub/pulse/internal/api/errors"
	"github.com/pulsehub/pulse/internal/domain/domaintest"
	"github.com/pulsehub/pulse/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() (*Engine, *domaintest.FakeStore, *domaintest.FakeRegistry) {
	store := domaintest.NewFakeStore()
	registry := domaintest.NewFakeRegistry()
	return NewEngine(DefaultConfig(), registry, store), store, registry
}

func TestSendMessageValidation(t *testing.T) {
	engine, _, _ := newTestEngine()
	ctx := context.Background()

	cases := []struct {
		name      string
		sender    string
		recipient string
		body      string
	}{
		{"missing sender", "", "bob", "hi"},
		{"missing recipient", "alice", "", "hi"},
		{"self send", "alice", "alice", "hi"},
		{"empty body", "alice", "bob", ""},
		{"whitespace body", "alice", "bob", "   "},
		{"oversized body", "alice", "bob", strings.Repeat("x", 5000)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.SendMessage(ctx, tc.sender, tc.recipient, tc.body)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
		})
	}
}

func TestSendMessagePersistsAndPushesBothSides(t *testing.T) {
	engine, _, registry := newTestEngine()
	ctx := context.Background()

	registry.SetOnline("alice", true)
	registry.SetOnline("bob", true)

	msg, err := engine.SendMessage(ctx, "alice", "bob", "hello")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), msg.Sequence)
	assert.Equal(t, "hello", msg.Body)

	for _, user := range []string{"alice", "bob"} {
		sent := registry.Sent(user)
		require.Len(t, sent, 1, "user %s", user)

		var push model.ChatMessagePush
		require.NoError(t, json.Unmarshal(sent[0], &push))
		assert.Equal(t, model.PushTypeChatMessage, push.Type)
		assert.Equal(t, msg.Id, push.Message.Id)
		assert.Equal(t, msg.Sequence, push.Message.Sequence)
	}
}

func TestSendMessageOfflineRecipient(t *testing.T) {
	engine, _, registry := newTestEngine()
	ctx := context.Background()

	msg, err := engine.SendMessage(ctx, "alice", "bob", "are you there?")
	require.NoError(t, err)
	require.NotNil(t, msg)

	assert.Empty(t, registry.Sent("bob"))

	// The message is still durable and readable later
	history, _, err := engine.History(ctx, "bob", "alice", 10, "")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, msg.Id, history[0].Id)
}

func TestSendMessagePersistenceFailure(t *testing.T) {
	engine, store, registry := newTestEngine()
	ctx := context.Background()

	registry.SetOnline("bob", true)
	store.CreateMessageErr = errors.Persistence("disk_full", "write failed")

	_, err := engine.SendMessage(ctx, "alice", "bob", "hello")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypePersistence))
	assert.Empty(t, registry.Sent("bob"))
}

func TestSequencesIncreaseAcrossDirections(t *testing.T) {
	engine, _, _ := newTestEngine()
	ctx := context.Background()

	m1, err := engine.SendMessage(ctx, "alice", "bob", "one")
	require.NoError(t, err)
	m2, err := engine.SendMessage(ctx, "bob", "alice", "two")
	require.NoError(t, err)
	m3, err := engine.SendMessage(ctx, "alice", "bob", "three")
	require.NoError(t, err)

	assert.Equal(t, uint64(1), m1.Sequence)
	assert.Equal(t, uint64(2), m2.Sequence)
	assert.Equal(t, uint64(3), m3.Sequence)

	// A different conversation starts its own sequence
	other, err := engine.SendMessage(ctx, "alice", "carol", "hi")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), other.Sequence)
}

func TestReadMessagesSendsReceipt(t *testing.T) {
	engine, _, registry := newTestEngine()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := engine.SendMessage(ctx, "alice", "bob", "hi")
		require.NoError(t, err)
	}

	registry.SetOnline("alice", true)
	marked, err := engine.ReadMessages(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, marked)

	sent := registry.Sent("alice")
	require.Len(t, sent, 1)

	var receipt model.ReadReceiptPush
	require.NoError(t, json.Unmarshal(sent[0], &receipt))
	assert.Equal(t, model.PushTypeChatRead, receipt.Type)
	assert.Equal(t, "bob", receipt.ReaderId)
	assert.Equal(t, 3, receipt.Count)
}

func TestReadMessagesIdempotent(t *testing.T) {
	engine, _, registry := newTestEngine()
	ctx := context.Background()

	_, err := engine.SendMessage(ctx, "alice", "bob", "hi")
	require.NoError(t, err)

	registry.SetOnline("alice", true)

	marked, err := engine.ReadMessages(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	// Second acknowledgment marks nothing and sends no receipt
	marked, err = engine.ReadMessages(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, marked)
	assert.Len(t, registry.Sent("alice"), 1)
}

func TestReadMessagesValidation(t *testing.T) {
	engine, _, _ := newTestEngine()
	ctx := context.Background()

	_, err := engine.ReadMessages(ctx, "", "alice")
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))

	_, err = engine.ReadMessages(ctx, "bob", "bob")
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
}

func TestHistoryValidation(t *testing.T) {
	engine, _, _ := newTestEngine()

	_, _, err := engine.History(context.Background(), "", "bob", 10, "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
}
