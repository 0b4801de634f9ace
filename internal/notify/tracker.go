package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ritachen3656251-design/Danlink/internal/chat"
	"github.com/ritachen3656251-design/Danlink/internal/store"
)

// Pusher delivers realtime frames to a user's open sockets.
type Pusher interface {
	Push(profileID string, evt chat.Event)
}

// Change is the tracker's process-wide "unread changed" signal, fired after
// every mutation so co-mounted consumers stay consistent without sharing
// memory with the tracker.
type Change struct {
	ProfileID string
	Total     int
	HasUnread bool
}

type userState struct {
	counts  map[string]int // conversation id -> unread count
	total   int
	focused string              // conversation currently open in the UI, "" if none
	seen    map[string]struct{} // message ids already reflected in counts
}

// Tracker maintains each signed-in user's unread projection: the set of
// conversations with unread messages, the per-conversation counts and the
// total. Two producers feed it, the message insert feed (push) and a periodic
// rebuild from durable rows (poll), reconciled by message id so a
// message seen through both paths counts once.
//
// The tracker is constructed at startup and handed to its consumers
// explicitly; there is no package-level instance.
type Tracker struct {
	mu       sync.Mutex
	msgs     store.Messages
	profiles store.Profiles
	pusher   Pusher

	users map[string]*userState

	subMu   sync.Mutex
	subs    map[int]chan Change
	nextSub int
}

func NewTracker(msgs store.Messages, profiles store.Profiles, pusher Pusher) *Tracker {
	return &Tracker{
		msgs:     msgs,
		profiles: profiles,
		pusher:   pusher,
		users:    make(map[string]*userState),
		subs:     make(map[int]chan Change),
	}
}

// Subscribe returns a change feed plus its cancel func. Events are dropped,
// not blocked on, when a subscriber lags.
func (t *Tracker) Subscribe() (<-chan Change, func()) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	id := t.nextSub
	t.nextSub++
	ch := make(chan Change, 16)
	t.subs[id] = ch
	return ch, func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		if c, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(c)
		}
	}
}

func (t *Tracker) signal(profileID string, total int) {
	c := Change{ProfileID: profileID, Total: total, HasUnread: total > 0}
	t.subMu.Lock()
	for _, ch := range t.subs {
		select {
		case ch <- c:
		default:
		}
	}
	t.subMu.Unlock()

	if t.pusher != nil {
		t.pusher.Push(profileID, chat.Event{Type: "unread_changed", Data: map[string]any{
			"total_unread": total,
			"has_unread":   total > 0,
		}})
	}
}

func (t *Tracker) state(profileID string) *userState {
	st, ok := t.users[profileID]
	if !ok {
		st = &userState{counts: make(map[string]int), seen: make(map[string]struct{})}
		t.users[profileID] = st
	}
	return st
}

// Refresh rebuilds one user's projection from durable rows. Unread means
// receiver = self, sender != self, read flag false; system notices never
// count toward the badge.
func (t *Tracker) Refresh(ctx context.Context, profileID string) error {
	rows, err := t.msgs.UnreadByReceiver(ctx, profileID)
	if err != nil {
		return fmt.Errorf("unread rebuild: %w", err)
	}

	counts := make(map[string]int)
	seen := make(map[string]struct{}, len(rows))
	total := 0
	for _, m := range rows {
		if m.SenderID == profileID || m.Type == "system" {
			continue
		}
		counts[m.ConversationID]++
		seen[m.ID] = struct{}{}
		total++
	}

	t.mu.Lock()
	st := t.state(profileID)
	st.counts = counts
	st.seen = seen
	st.total = total
	t.mu.Unlock()

	t.signal(profileID, total)
	return nil
}

// OnMessage implements chat.MessageObserver: the push producer.
func (t *Tracker) OnMessage(m store.Message) {
	// Sender-authored messages must never increment the sender's own unread
	// count; the feed is receiver-filtered but this is checked regardless.
	if m.SenderID == m.ReceiverID {
		return
	}
	if m.Type == "system" {
		return
	}

	t.mu.Lock()
	st := t.state(m.ReceiverID)
	if m.SenderID == m.ReceiverID || st.focused == m.ConversationID {
		t.mu.Unlock()
		return
	}
	if _, dup := st.seen[m.ID]; dup {
		t.mu.Unlock()
		return
	}
	st.seen[m.ID] = struct{}{}
	st.counts[m.ConversationID]++
	st.total++
	total := st.total
	t.mu.Unlock()

	t.signal(m.ReceiverID, total)
	t.toast(m)
}

// toast surfaces a new-message notice naming the sender by the anonymized
// display convention.
func (t *Tracker) toast(m store.Message) {
	if t.pusher == nil {
		return
	}
	senderName := "已实名同学"
	if p, err := t.profiles.Get(context.Background(), m.SenderID); err == nil && p.Name != "" {
		senderName = p.Name
	}
	t.pusher.Push(m.ReceiverID, chat.Event{Type: "toast", Data: map[string]any{
		"message":         fmt.Sprintf("收到来自 %s 的一条新消息", senderName),
		"conversation_id": m.ConversationID,
	}})
}

// MarkConversationAsRead persists the read flip for the conversation's
// messages addressed to the user, then rolls the projection forward: total
// drops by the conversation's stored count and the conversation leaves the
// unread set. The store scopes the flip to receiver_id = profileID, so
// sender-authored rows are never touched.
func (t *Tracker) MarkConversationAsRead(ctx context.Context, profileID, conversationID string) error {
	if _, err := t.msgs.MarkRead(ctx, conversationID, profileID); err != nil {
		return err
	}

	t.mu.Lock()
	st := t.state(profileID)
	if n, ok := st.counts[conversationID]; ok {
		st.total -= n
		if st.total < 0 {
			st.total = 0
		}
		delete(st.counts, conversationID)
	}
	total := st.total
	t.mu.Unlock()

	t.signal(profileID, total)
	return nil
}

// SetFocused marks the conversation currently open in the user's UI; pushed
// messages for it are considered already being read.
func (t *Tracker) SetFocused(profileID, conversationID string) {
	t.mu.Lock()
	t.state(profileID).focused = conversationID
	t.mu.Unlock()
}

// ClearFocused drops the focus mark if it still points at conversationID.
func (t *Tracker) ClearFocused(profileID, conversationID string) {
	t.mu.Lock()
	st := t.state(profileID)
	if st.focused == conversationID {
		st.focused = ""
	}
	t.mu.Unlock()
}

// Snapshot returns the current projection for one user.
func (t *Tracker) Snapshot(profileID string) (total int, counts map[string]int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.users[profileID]
	if !ok {
		return 0, map[string]int{}
	}
	out := make(map[string]int, len(st.counts))
	for k, v := range st.counts {
		out[k] = v
	}
	return st.total, out
}

// Registered reports whether the user's projection has been initialized.
func (t *Tracker) Registered(profileID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.users[profileID]
	return ok
}

// Run is the poll producer: a fixed-interval rebuild for every registered
// user, so a stuck or missed push cannot permanently desync the badge.
// Failures keep the last-known-good projection and retry next cycle.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			ids := make([]string, 0, len(t.users))
			for id := range t.users {
				ids = append(ids, id)
			}
			t.mu.Unlock()
			for _, id := range ids {
				if err := t.Refresh(ctx, id); err != nil {
					log.Printf("[notify] unread rebuild failed for %s: %v", id, err)
				}
			}
		}
	}
}
