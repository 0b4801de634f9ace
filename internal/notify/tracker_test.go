package notify

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritachen3656251-design/Danlink/internal/chat"
	"github.com/ritachen3656251-design/Danlink/internal/store"
)

type recordingPusher struct {
	mu     sync.Mutex
	events []chat.Event
	to     []string
}

func (p *recordingPusher) Push(profileID string, evt chat.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.to = append(p.to, profileID)
	p.events = append(p.events, evt)
}

func (p *recordingPusher) typed(kind string) []chat.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []chat.Event
	for _, e := range p.events {
		if e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}

func newTestTracker(t *testing.T) (*Tracker, *store.Memory, *recordingPusher) {
	t.Helper()
	mem := store.NewMemory()
	mem.SeedProfile(store.Profile{ID: "alice", StudentID: "20230001", Name: "小A"})
	mem.SeedProfile(store.Profile{ID: "bob", StudentID: "20230002", Name: "小B"})
	pusher := &recordingPusher{}
	return NewTracker(mem.Messages, mem.Profiles, pusher), mem, pusher
}

func userMsg(id, conv, sender, receiver string) store.Message {
	return store.Message{ID: id, ConversationID: conv, SenderID: sender, ReceiverID: receiver, Content: "hi", Type: "user"}
}

func TestOwnMessagesNeverCount(t *testing.T) {
	tracker, _, _ := newTestTracker(t)

	tracker.OnMessage(userMsg("m1", "c1", "alice", "alice"))
	total, _ := tracker.Snapshot("alice")
	assert.Zero(t, total)
}

func TestSystemMessagesNeverCount(t *testing.T) {
	tracker, _, _ := newTestTracker(t)

	tracker.OnMessage(store.Message{ID: "m1", ConversationID: "c1", SenderID: "alice", ReceiverID: "bob", Type: "system", SysTemplate: chat.TplDelivered})
	total, _ := tracker.Snapshot("bob")
	assert.Zero(t, total)
}

func TestFocusedConversationNeverCounts(t *testing.T) {
	tracker, _, _ := newTestTracker(t)

	tracker.SetFocused("bob", "c1")
	tracker.OnMessage(userMsg("m1", "c1", "alice", "bob"))
	total, _ := tracker.Snapshot("bob")
	assert.Zero(t, total)

	tracker.ClearFocused("bob", "c1")
	tracker.OnMessage(userMsg("m2", "c1", "alice", "bob"))
	total, _ = tracker.Snapshot("bob")
	assert.Equal(t, 1, total)
}

func TestPushAndPollCountOnce(t *testing.T) {
	tracker, mem, _ := newTestTracker(t)
	ctx := context.Background()

	m := userMsg("m1", "c1", "alice", "bob")
	require.NoError(t, mem.Messages.Insert(ctx, &m))

	// Push path sees the insert first, poll rebuild follows.
	tracker.OnMessage(m)
	require.NoError(t, tracker.Refresh(ctx, "bob"))
	total, counts := tracker.Snapshot("bob")
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, counts["c1"])

	// Duplicate push delivery after the rebuild is also a no-op.
	tracker.OnMessage(m)
	total, _ = tracker.Snapshot("bob")
	assert.Equal(t, 1, total)
}

func TestMarkConversationAsReadScope(t *testing.T) {
	tracker, mem, _ := newTestTracker(t)
	ctx := context.Background()

	// Two unread for bob in c1, one in c2, and one unread for alice in c1.
	for _, m := range []store.Message{
		userMsg("m1", "c1", "alice", "bob"),
		userMsg("m2", "c1", "alice", "bob"),
		userMsg("m3", "c2", "alice", "bob"),
		userMsg("m4", "c1", "bob", "alice"),
	} {
		mm := m
		require.NoError(t, mem.Messages.Insert(ctx, &mm))
	}
	require.NoError(t, tracker.Refresh(ctx, "bob"))
	require.NoError(t, tracker.Refresh(ctx, "alice"))

	require.NoError(t, tracker.MarkConversationAsRead(ctx, "bob", "c1"))

	total, counts := tracker.Snapshot("bob")
	assert.Equal(t, 1, total)
	assert.Zero(t, counts["c1"])
	assert.Equal(t, 1, counts["c2"])

	// Alice's unread in the same conversation is untouched.
	total, _ = tracker.Snapshot("alice")
	assert.Equal(t, 1, total)

	rows, err := mem.Messages.UnreadByReceiver(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "c2", rows[0].ConversationID)
}

func TestSubscribersSeeEveryChange(t *testing.T) {
	tracker, _, _ := newTestTracker(t)

	ch, cancel := tracker.Subscribe()
	defer cancel()

	tracker.OnMessage(userMsg("m1", "c1", "alice", "bob"))

	change := <-ch
	assert.Equal(t, "bob", change.ProfileID)
	assert.Equal(t, 1, change.Total)
	assert.True(t, change.HasUnread)
}

func TestToastNamesSender(t *testing.T) {
	tracker, _, pusher := newTestTracker(t)

	tracker.OnMessage(userMsg("m1", "c1", "alice", "bob"))

	toasts := pusher.typed("toast")
	require.Len(t, toasts, 1)
	data := toasts[0].Data.(map[string]any)
	assert.Equal(t, "收到来自 小A 的一条新消息", data["message"])
	assert.Equal(t, "c1", data["conversation_id"])
}

func TestToastFallsBackForUnknownSender(t *testing.T) {
	tracker, _, pusher := newTestTracker(t)

	tracker.OnMessage(userMsg("m1", "c1", "ghost", "bob"))

	toasts := pusher.typed("toast")
	require.Len(t, toasts, 1)
	data := toasts[0].Data.(map[string]any)
	assert.Equal(t, "收到来自 已实名同学 的一条新消息", data["message"])
}

func TestRefreshFailureKeepsLastKnownGood(t *testing.T) {
	tracker, mem, _ := newTestTracker(t)
	ctx := context.Background()

	m := userMsg("m1", "c1", "alice", "bob")
	require.NoError(t, mem.Messages.Insert(ctx, &m))
	require.NoError(t, tracker.Refresh(ctx, "bob"))

	failing := NewTracker(&failingMessages{}, mem.Profiles, nil)
	failing.OnMessage(m)
	total, _ := failing.Snapshot("bob")
	require.Equal(t, 1, total)

	// The rebuild errors out; the projection is untouched.
	require.Error(t, failing.Refresh(ctx, "bob"))
	total, _ = failing.Snapshot("bob")
	assert.Equal(t, 1, total)
}

type failingMessages struct{ store.Messages }

func (f *failingMessages) UnreadByReceiver(context.Context, string) ([]store.Message, error) {
	return nil, assert.AnError
}
