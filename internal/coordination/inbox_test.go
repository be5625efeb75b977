package coordination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInbox_SendAndRead(t *testing.T) {
	ib := NewInbox()
	ib.RegisterWorker("alice")
	ib.RegisterWorker("bob")

	msg := ib.Send("alice", "bob", TextPayload("hello"))
	require.NotNil(t, msg)
	assert.NotEmpty(t, msg.ID)

	got := ib.Read("bob")
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Payload.Content)
	assert.False(t, got[0].Read)

	assert.Empty(t, ib.Read("alice"), "alice is the sender, not a recipient")
}

func TestInbox_BroadcastExcludesSender(t *testing.T) {
	ib := NewInbox()
	ib.RegisterWorker("alice")
	ib.RegisterWorker("bob")
	ib.RegisterWorker("carol")

	delivered := ib.Broadcast("alice", TextPayload("status"))
	require.Len(t, delivered, 2)

	assert.Empty(t, ib.Read("alice"))
	assert.Len(t, ib.Read("bob"), 1)
	assert.Len(t, ib.Read("carol"), 1)
}

func TestInbox_BroadcastToSubsetExcludesSender(t *testing.T) {
	ib := NewInbox()
	ib.RegisterWorker("alice")
	ib.RegisterWorker("bob")
	ib.RegisterWorker("carol")

	delivered := ib.BroadcastTo("alice", TextPayload("hi"), []WorkerID{"alice", "bob"})
	require.Len(t, delivered, 1)
	assert.Len(t, ib.Read("bob"), 1)
	assert.Empty(t, ib.Read("carol"))
}

func TestInbox_ReadUnreadAndMarkRead(t *testing.T) {
	ib := NewInbox()
	ib.RegisterWorker("alice")
	ib.RegisterWorker("bob")

	m1 := ib.Send("alice", "bob", TextPayload("one"))
	ib.Send("alice", "bob", TextPayload("two"))

	unread := ib.ReadUnread("bob")
	require.Len(t, unread, 2)

	ib.MarkRead("bob", []MessageID{m1.ID})

	unread = ib.ReadUnread("bob")
	require.Len(t, unread, 1)
	assert.Equal(t, "two", unread[0].Payload.Content)
}

func TestInbox_MarkAllRead(t *testing.T) {
	ib := NewInbox()
	ib.RegisterWorker("alice")
	ib.RegisterWorker("bob")

	ib.Send("alice", "bob", TextPayload("one"))
	ib.Send("alice", "bob", TextPayload("two"))

	ib.MarkAllRead("bob")
	assert.Empty(t, ib.ReadUnread("bob"))
	assert.Equal(t, 0, ib.Count("bob", true))
	assert.Equal(t, 2, ib.Count("bob", false))
}

func TestInbox_Count(t *testing.T) {
	ib := NewInbox()
	ib.RegisterWorker("alice")
	ib.RegisterWorker("bob")

	assert.Equal(t, 0, ib.Count("bob", false))

	ib.Send("alice", "bob", TextPayload("one"))
	assert.Equal(t, 1, ib.Count("bob", false))
	assert.Equal(t, 1, ib.Count("bob", true))
}

func TestInbox_UnregisterKeepsHistory(t *testing.T) {
	ib := NewInbox()
	ib.RegisterWorker("alice")
	ib.RegisterWorker("bob")
	ib.Send("alice", "bob", TextPayload("keep me"))

	ib.UnregisterWorker("bob")

	assert.Len(t, ib.Read("bob"), 1, "unregistering a worker must not drop its mailbox history")
	assert.NotContains(t, ib.Workers(), WorkerID("bob"))
}

func TestInbox_RegisterWorkerIdempotent(t *testing.T) {
	ib := NewInbox()
	ib.RegisterWorker("alice")
	ib.Send("bob", "alice", TextPayload("first"))
	ib.RegisterWorker("alice")

	assert.Len(t, ib.Read("alice"), 1, "re-registering must not clear existing messages")
}
