package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory bundles a mutex-guarded in-process implementation of every store
// interface. It honors the same uniqueness rules as the Postgres schema
// (conversation pair key, one acceptance per task and acceptor) and backs the
// concurrency-sensitive tests.
type Memory struct {
	Conversations Conversations
	Messages      Messages
	Acceptances   Acceptances
	Tasks         Tasks
	Profiles      Profiles
}

func NewMemory() *Memory {
	return &Memory{
		Conversations: &memConversations{rows: map[string]*Conversation{}},
		Messages:      &memMessages{},
		Acceptances:   &memAcceptances{},
		Tasks:         &memTasks{rows: map[string]*Task{}, completed: map[string]bool{}},
		Profiles:      &memProfiles{rows: map[string]*Profile{}},
	}
}

type memConversations struct {
	mu   sync.Mutex
	rows map[string]*Conversation
}

func pairMatches(c *Conversation, p1 string, p2 *string) bool {
	if p2 == nil {
		return c.AcceptorID == nil && c.PublisherID == p1
	}
	if c.AcceptorID == nil {
		return false
	}
	a, b := c.PublisherID, *c.AcceptorID
	return (a == p1 && b == *p2) || (a == *p2 && b == p1)
}

func (s *memConversations) FindByKey(_ context.Context, taskID, p1 string, p2 *string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.rows {
		if c.TaskID == taskID && pairMatches(c, p1, p2) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memConversations) FindOpenInquiry(_ context.Context, taskID, ownerID string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.rows {
		if c.TaskID == taskID && c.AcceptorID == nil && c.PublisherID == ownerID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memConversations) AssignPair(_ context.Context, id, p1, p2 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	for _, c := range s.rows {
		if c.ID != id && c.TaskID == target.TaskID && pairMatches(c, p1, &p2) {
			return ErrConflict
		}
	}
	target.PublisherID = p1
	target.AcceptorID = &p2
	return nil
}

func (s *memConversations) Insert(_ context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.rows {
		if c.TaskID == conv.TaskID && pairMatches(c, conv.PublisherID, conv.AcceptorID) {
			return ErrConflict
		}
	}
	now := time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.LastMessageAt.IsZero() {
		conv.LastMessageAt = now
	}
	cp := *conv
	s.rows[conv.ID] = &cp
	return nil
}

func (s *memConversations) Get(_ context.Context, id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memConversations) ListByParticipant(_ context.Context, profileID string) ([]Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Conversation
	for _, c := range s.rows {
		if c.PublisherID == profileID || (c.AcceptorID != nil && *c.AcceptorID == profileID) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

func (s *memConversations) TouchLastMessage(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if at.After(c.LastMessageAt) {
		c.LastMessageAt = at
	}
	return nil
}

type memMessages struct {
	mu   sync.Mutex
	rows []Message
}

func (s *memMessages) Insert(_ context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	s.rows = append(s.rows, *m)
	return nil
}

func (s *memMessages) List(_ context.Context, conversationID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.rows {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sortMessages(out)
	return out, nil
}

func (s *memMessages) ListSince(_ context.Context, conversationID string, since time.Time) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.rows {
		if m.ConversationID == conversationID && m.CreatedAt.After(since) {
			out = append(out, m)
		}
	}
	sortMessages(out)
	return out, nil
}

func (s *memMessages) Latest(_ context.Context, conversationID string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *Message
	for i := range s.rows {
		m := &s.rows[i]
		if m.ConversationID != conversationID {
			continue
		}
		if latest == nil || m.CreatedAt.After(latest.CreatedAt) {
			latest = m
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *memMessages) MarkRead(_ context.Context, conversationID, receiverID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.rows {
		m := &s.rows[i]
		if m.ConversationID == conversationID && m.ReceiverID == receiverID && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

func (s *memMessages) UnreadByReceiver(_ context.Context, receiverID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.rows {
		if m.ReceiverID == receiverID && m.SenderID != receiverID && !m.IsRead {
			out = append(out, m)
		}
	}
	sortMessages(out)
	return out, nil
}

func (s *memMessages) HasSystem(_ context.Context, conversationID, template string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.rows {
		if m.ConversationID == conversationID && m.Type == "system" && m.SysTemplate == template {
			return true, nil
		}
	}
	return false, nil
}

func sortMessages(out []Message) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
}

type memAcceptances struct {
	mu   sync.Mutex
	rows []Acceptance
}

func (s *memAcceptances) Insert(_ context.Context, a *Acceptance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.TaskID == a.TaskID && r.AcceptorID == a.AcceptorID {
			return ErrConflict
		}
	}
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	s.rows = append(s.rows, *a)
	return nil
}

func (s *memAcceptances) Find(_ context.Context, taskID, acceptorID string) (*Acceptance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.TaskID == taskID && r.AcceptorID == acceptorID {
			cp := r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memAcceptances) FirstForTask(_ context.Context, taskID string) (*Acceptance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first *Acceptance
	for i := range s.rows {
		r := &s.rows[i]
		if r.TaskID != taskID {
			continue
		}
		if first == nil || r.CreatedAt.Before(first.CreatedAt) {
			first = r
		}
	}
	if first == nil {
		return nil, ErrNotFound
	}
	cp := *first
	return &cp, nil
}

func (s *memAcceptances) UpdateStatusCAS(_ context.Context, taskID, acceptorID, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		r := &s.rows[i]
		if r.TaskID == taskID && r.AcceptorID == acceptorID && r.Status == from {
			r.Status = to
			r.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

type memTasks struct {
	mu        sync.Mutex
	rows      map[string]*Task
	completed map[string]bool
}

func (s *memTasks) Insert(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[t.ID]; exists {
		return ErrConflict
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	cp := *t
	s.rows[t.ID] = &cp
	return nil
}

func (s *memTasks) Get(_ context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memTasks) ListOpen(_ context.Context) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Task
	for _, t := range s.rows {
		if (t.Status == "active" || t.Status == "accepted") && !s.completed[t.ID] {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memTasks) ListByPublisher(_ context.Context, publisherID string) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Task
	for _, t := range s.rows {
		if t.PublisherID == publisherID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memTasks) UpdateStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	t.Status = status
	return nil
}

func (s *memTasks) MarkCompleted(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[id] = true
	return nil
}

type memProfiles struct {
	mu   sync.Mutex
	rows map[string]*Profile
}

// Put seeds a profile row. Test helper, not part of the Profiles interface.
func (s *memProfiles) Put(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[p.ID] = &p
}

func (s *memProfiles) Get(_ context.Context, id string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memProfiles) GetByStudentID(_ context.Context, studentID string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.rows {
		if p.StudentID == studentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memProfiles) Update(_ context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	cp.UpdatedAt = time.Now()
	s.rows[p.ID] = &cp
	return nil
}

// SeedProfile inserts a profile into a Memory bundle.
func (m *Memory) SeedProfile(p Profile) {
	m.Profiles.(*memProfiles).Put(p)
}
