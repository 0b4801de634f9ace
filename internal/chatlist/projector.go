package chatlist

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/ritachen3656251-design/Danlink/internal/chat"
	"github.com/ritachen3656251-design/Danlink/internal/store"
)

// placeholderName is the fallback display identity when a cached counterpart
// reference no longer resolves.
const placeholderName = "已实名同学"

// Entry is one row of a user's conversation list.
type Entry struct {
	ConversationID    string    `json:"conversation_id"`
	TaskID            string    `json:"task_id"`
	TaskTitle         string    `json:"task_title"`
	CounterpartID     string    `json:"counterpart_id"`
	CounterpartName   string    `json:"counterpart_name"`
	CounterpartAvatar string    `json:"counterpart_avatar"`
	Preview           string    `json:"preview"`
	LastMessageAt     time.Time `json:"last_message_at"`
}

// Projector materializes the per-user, recency-ordered conversation list with
// last-message previews. Entry to the message screen rebuilds it wholesale
// from durable rows; between rebuilds the message insert feed upserts entries
// to the front. De-duplication is keyed by (task, counterpart), not by
// conversation id, since legacy cached entries may lack one.
type Projector struct {
	mu       sync.Mutex
	convs    store.Conversations
	msgs     store.Messages
	tasks    store.Tasks
	profiles store.Profiles

	lists map[string][]Entry
}

func NewProjector(convs store.Conversations, msgs store.Messages, tasks store.Tasks, profiles store.Profiles) *Projector {
	return &Projector{
		convs:    convs,
		msgs:     msgs,
		tasks:    tasks,
		profiles: profiles,
		lists:    make(map[string][]Entry),
	}
}

// Rebuild replaces the cached projection for one user from durable rows.
// Counterpart identities are resolved fresh so the list reflects the latest
// profile edits. A store that reports zero conversations wipes the cache
// (no ghost entries after a server-side reset).
func (p *Projector) Rebuild(ctx context.Context, profileID string) ([]Entry, error) {
	convs, err := p.convs.ListByParticipant(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		p.mu.Lock()
		p.lists[profileID] = []Entry{}
		p.mu.Unlock()
		return []Entry{}, nil
	}

	byKey := make(map[[2]string]Entry)
	for _, conv := range convs {
		e := p.buildEntry(ctx, conv, profileID)
		key := [2]string{e.TaskID, e.CounterpartID}
		if prev, ok := byKey[key]; !ok || e.LastMessageAt.After(prev.LastMessageAt) {
			byKey[key] = e
		}
	}

	entries := make([]Entry, 0, len(byKey))
	for _, e := range byKey {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastMessageAt.After(entries[j].LastMessageAt)
	})

	p.mu.Lock()
	p.lists[profileID] = entries
	p.mu.Unlock()
	return entries, nil
}

func (p *Projector) buildEntry(ctx context.Context, conv store.Conversation, profileID string) Entry {
	e := Entry{
		ConversationID: conv.ID,
		TaskID:         conv.TaskID,
		LastMessageAt:  conv.LastMessageAt,
	}

	e.CounterpartID = counterpartID(conv, profileID)

	// Counterpart identity is never served from cache; stale references fall
	// back to the placeholder instead of failing the screen.
	e.CounterpartName = placeholderName
	if e.CounterpartID != "" {
		if prof, err := p.profiles.Get(ctx, e.CounterpartID); err == nil {
			e.CounterpartName = prof.Name
			e.CounterpartAvatar = prof.AvatarURL
		}
	}

	var viewerRole = chat.RoleAcceptor
	if task, err := p.tasks.Get(ctx, conv.TaskID); err == nil {
		e.TaskTitle = task.Title
		viewerRole = chat.ViewerRole(task, profileID)
	}

	if last, err := p.msgs.Latest(ctx, conv.ID); err == nil {
		e.Preview = chat.DisplayText(*last, viewerRole)
		e.LastMessageAt = last.CreatedAt
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Printf("[chatlist] latest message lookup failed for %s: %v", conv.ID, err)
	}
	return e
}

func counterpartID(conv store.Conversation, profileID string) string {
	if conv.AcceptorID != nil {
		if *conv.AcceptorID == profileID {
			return conv.PublisherID
		}
		return *conv.AcceptorID
	}
	if conv.PublisherID == profileID {
		// Open inquiry viewed by the publisher: the asker is not recorded yet.
		return ""
	}
	return conv.PublisherID
}

// Cached returns the last materialized projection for a user, if any.
func (p *Projector) Cached(profileID string) ([]Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entries, ok := p.lists[profileID]
	if !ok {
		return nil, false
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, true
}

// OnMessage implements chat.MessageObserver: upserts the conversation to the
// front of both participants' cached lists with the new preview, creating the
// entry (task details looked up) when the conversation was not known yet.
func (p *Projector) OnMessage(m store.Message) {
	ctx := context.Background()
	conv, err := p.convs.Get(ctx, m.ConversationID)
	if err != nil {
		log.Printf("[chatlist] conversation lookup failed for %s: %v", m.ConversationID, err)
		return
	}
	for _, profileID := range []string{m.ReceiverID, m.SenderID} {
		p.upsert(ctx, *conv, m, profileID)
	}
}

func (p *Projector) upsert(ctx context.Context, conv store.Conversation, m store.Message, profileID string) {
	p.mu.Lock()
	_, tracked := p.lists[profileID]
	p.mu.Unlock()
	if !tracked {
		// The user has not materialized a list this session; the next
		// Rebuild picks the message up from durable rows.
		return
	}

	e := p.buildEntry(ctx, conv, profileID)
	e.Preview = chat.DisplayText(m, roleFor(ctx, p.tasks, conv.TaskID, profileID))
	e.LastMessageAt = m.CreatedAt

	p.mu.Lock()
	defer p.mu.Unlock()
	entries := p.lists[profileID]
	next := make([]Entry, 0, len(entries)+1)
	next = append(next, e)
	for _, prev := range entries {
		if prev.TaskID == e.TaskID && prev.CounterpartID == e.CounterpartID {
			continue
		}
		next = append(next, prev)
	}
	p.lists[profileID] = next
}

func roleFor(ctx context.Context, tasks store.Tasks, taskID, profileID string) string {
	if task, err := tasks.Get(ctx, taskID); err == nil {
		return chat.ViewerRole(task, profileID)
	}
	return chat.RoleAcceptor
}
