package chatlist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritachen3656251-design/Danlink/internal/store"
)

func strptr(s string) *string { return &s }

func newTestProjector(t *testing.T) (*Projector, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	mem.SeedProfile(store.Profile{ID: "alice", StudentID: "20230001", Name: "小A", AvatarURL: "a.png"})
	mem.SeedProfile(store.Profile{ID: "bob", StudentID: "20230002", Name: "小B"})
	return NewProjector(mem.Conversations, mem.Messages, mem.Tasks, mem.Profiles), mem
}

func seedConversation(t *testing.T, mem *store.Memory, id, taskID, pub string, acc *string, lastAt time.Time) {
	t.Helper()
	require.NoError(t, mem.Conversations.Insert(context.Background(), &store.Conversation{
		ID: id, TaskID: taskID, PublisherID: pub, AcceptorID: acc, LastMessageAt: lastAt, CreatedAt: lastAt,
	}))
}

func seedTask(t *testing.T, mem *store.Memory, id, title, pub string) {
	t.Helper()
	require.NoError(t, mem.Tasks.Insert(context.Background(), &store.Task{
		ID: id, Type: "delivery", Title: title, Price: "5", PublisherID: pub, Status: "accepted",
	}))
}

func TestRebuildOrdersByRecency(t *testing.T) {
	p, mem := newTestProjector(t)
	ctx := context.Background()

	seedTask(t, mem, "t1", "取快递", "alice")
	seedTask(t, mem, "t2", "带早餐", "alice")
	now := time.Now()
	seedConversation(t, mem, "c1", "t1", "alice", strptr("bob"), now.Add(-time.Hour))
	seedConversation(t, mem, "c2", "t2", "alice", strptr("bob"), now)

	entries, err := p.Rebuild(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c2", entries[0].ConversationID)
	assert.Equal(t, "c1", entries[1].ConversationID)
	assert.Equal(t, "小A", entries[0].CounterpartName)
	assert.Equal(t, "a.png", entries[0].CounterpartAvatar)
	assert.Equal(t, "带早餐", entries[0].TaskTitle)
}

func TestRebuildUsesLatestMessagePreview(t *testing.T) {
	p, mem := newTestProjector(t)
	ctx := context.Background()

	seedTask(t, mem, "t1", "取快递", "alice")
	seedConversation(t, mem, "c1", "t1", "alice", strptr("bob"), time.Now().Add(-time.Minute))
	for i, content := range []string{"在吗", "麻烦放前台"} {
		require.NoError(t, mem.Messages.Insert(ctx, &store.Message{
			ID: string(rune('a' + i)), ConversationID: "c1", SenderID: "alice", ReceiverID: "bob",
			Content: content, Type: "user", CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	entries, err := p.Rebuild(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "麻烦放前台", entries[0].Preview)
}

func TestRebuildStaleCounterpartGetsPlaceholder(t *testing.T) {
	p, mem := newTestProjector(t)
	ctx := context.Background()

	seedTask(t, mem, "t1", "取快递", "ghost")
	seedConversation(t, mem, "c1", "t1", "ghost", strptr("bob"), time.Now())

	entries, err := p.Rebuild(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "已实名同学", entries[0].CounterpartName)
	assert.Empty(t, entries[0].CounterpartAvatar)
}

type switchableConvs struct {
	store.Conversations
	empty bool
}

func (s *switchableConvs) ListByParticipant(ctx context.Context, profileID string) ([]store.Conversation, error) {
	if s.empty {
		return nil, nil
	}
	return s.Conversations.ListByParticipant(ctx, profileID)
}

func TestRebuildZeroRowsWipesCache(t *testing.T) {
	_, mem := newTestProjector(t)
	ctx := context.Background()

	seedTask(t, mem, "t1", "取快递", "alice")
	seedConversation(t, mem, "c1", "t1", "alice", strptr("bob"), time.Now())

	convs := &switchableConvs{Conversations: mem.Conversations}
	p := NewProjector(convs, mem.Messages, mem.Tasks, mem.Profiles)

	entries, err := p.Rebuild(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// The store now reports no conversations at all (server-side reset); the
	// cached entry must not survive as a ghost.
	convs.empty = true
	entries, err = p.Rebuild(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, entries)
	cached, ok := p.Cached("bob")
	assert.True(t, ok)
	assert.Empty(t, cached)
}

func TestOnMessageUpsertsToFront(t *testing.T) {
	p, mem := newTestProjector(t)
	ctx := context.Background()

	seedTask(t, mem, "t1", "取快递", "alice")
	seedTask(t, mem, "t2", "带早餐", "alice")
	now := time.Now()
	seedConversation(t, mem, "c1", "t1", "alice", strptr("bob"), now.Add(-time.Hour))
	seedConversation(t, mem, "c2", "t2", "alice", strptr("bob"), now)

	_, err := p.Rebuild(ctx, "bob")
	require.NoError(t, err)

	// A new message in the older conversation moves it to the front of both
	// participants' lists without duplicating the entry.
	_, err = p.Rebuild(ctx, "alice")
	require.NoError(t, err)
	m := store.Message{
		ID: "m1", ConversationID: "c1", SenderID: "alice", ReceiverID: "bob",
		Content: "到了吗", Type: "user", CreatedAt: now.Add(time.Minute),
	}
	require.NoError(t, mem.Messages.Insert(ctx, &m))
	p.OnMessage(m)

	for _, viewer := range []string{"bob", "alice"} {
		entries, ok := p.Cached(viewer)
		require.True(t, ok)
		require.Len(t, entries, 2)
		assert.Equal(t, "c1", entries[0].ConversationID, viewer)
		assert.Equal(t, "到了吗", entries[0].Preview)
	}
}

func TestOnMessageIgnoresUntrackedUsers(t *testing.T) {
	p, mem := newTestProjector(t)
	ctx := context.Background()

	seedTask(t, mem, "t1", "取快递", "alice")
	seedConversation(t, mem, "c1", "t1", "alice", strptr("bob"), time.Now())

	m := store.Message{ID: "m1", ConversationID: "c1", SenderID: "alice", ReceiverID: "bob", Content: "hi", Type: "user", CreatedAt: time.Now()}
	require.NoError(t, mem.Messages.Insert(ctx, &m))
	p.OnMessage(m)

	_, ok := p.Cached("bob")
	assert.False(t, ok, "no list materialized this session, nothing to upsert")
}
