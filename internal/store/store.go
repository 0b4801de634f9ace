package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when an insert loses a uniqueness race.
	ErrConflict = errors.New("store: unique conflict")
)

// Profile is a verified campus identity.
type Profile struct {
	ID             string    `json:"id"`
	StudentID      string    `json:"student_id"`
	Name           string    `json:"name"`
	College        string    `json:"college,omitempty"`
	Major          string    `json:"major,omitempty"`
	GraduationYear string    `json:"graduation_year,omitempty"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Task is an errand listing published by a student.
type Task struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"` // delivery, study, tutor
	Title       string    `json:"title"`
	Price       string    `json:"price"`
	Description string    `json:"description,omitempty"`
	PublisherID string    `json:"publisher_id"`
	Status      string    `json:"status"` // active, accepted, completed, revoked
	CreatedAt   time.Time `json:"created_at"`
}

// Acceptance records one acceptor committing to one task.
// At most one row exists per (task, acceptor).
type Acceptance struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	AcceptorID string    `json:"acceptor_id"`
	Status     string    `json:"status"` // active, waiting_confirmation, waiting_receipt, completed
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Conversation is the unique chat channel between one participant pair scoped
// to one task. AcceptorID nil means an open inquiry with no committed acceptor.
// Participant ids are stored sorted; PublisherID/AcceptorID are positional
// column names, not roles.
type Conversation struct {
	ID            string    `json:"id"`
	TaskID        string    `json:"task_id"`
	PublisherID   string    `json:"publisher_id"`
	AcceptorID    *string   `json:"acceptor_id"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// Message is an append-only chat entry. System messages carry a structured
// template plus the actor's role instead of free text; Content stays empty
// for them and display text is rendered per viewer at read time.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	ReceiverID     string    `json:"receiver_id"`
	Content        string    `json:"content"`
	Type           string    `json:"message_type"` // user, system
	SysTemplate    string    `json:"sys_template,omitempty"`
	SysActorRole   string    `json:"sys_actor_role,omitempty"` // publisher, acceptor
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

// Conversations is the durable side of the conversation resolver.
type Conversations interface {
	// FindByKey looks up the conversation for (taskID, pair) checking both
	// stored participant orders. p2 nil matches the open-inquiry row for p1.
	FindByKey(ctx context.Context, taskID, p1 string, p2 *string) (*Conversation, error)
	// FindOpenInquiry returns the acceptor-less row authored for ownerID, if any.
	FindOpenInquiry(ctx context.Context, taskID, ownerID string) (*Conversation, error)
	// AssignPair updates an inquiry row in place to carry the committed pair.
	AssignPair(ctx context.Context, id, p1, p2 string) error
	// Insert adds a new row; ErrConflict when the unique key already exists.
	Insert(ctx context.Context, c *Conversation) error
	Get(ctx context.Context, id string) (*Conversation, error)
	ListByParticipant(ctx context.Context, profileID string) ([]Conversation, error)
	TouchLastMessage(ctx context.Context, id string, at time.Time) error
}

// Messages is the append-only per-conversation log.
type Messages interface {
	Insert(ctx context.Context, m *Message) error
	// List returns all messages ascending by created_at, id as tiebreak.
	List(ctx context.Context, conversationID string) ([]Message, error)
	ListSince(ctx context.Context, conversationID string, since time.Time) ([]Message, error)
	Latest(ctx context.Context, conversationID string) (*Message, error)
	// MarkRead flips is_read only where receiver_id = receiverID. Returns rows flipped.
	MarkRead(ctx context.Context, conversationID, receiverID string) (int64, error)
	// UnreadByReceiver returns unread messages addressed to receiverID from others.
	UnreadByReceiver(ctx context.Context, receiverID string) ([]Message, error)
	// HasSystem reports whether the conversation already carries a system
	// message with the given template (used to keep transition retries from
	// duplicating announcements).
	HasSystem(ctx context.Context, conversationID, template string) (bool, error)
}

// Acceptances tracks task commitments and their transaction state.
type Acceptances interface {
	Insert(ctx context.Context, a *Acceptance) error
	Find(ctx context.Context, taskID, acceptorID string) (*Acceptance, error)
	// FirstForTask returns the earliest acceptance for the task, ErrNotFound if none.
	FirstForTask(ctx context.Context, taskID string) (*Acceptance, error)
	// UpdateStatusCAS moves status from -> to; reports false when the row was
	// not in the expected state (someone else already moved it).
	UpdateStatusCAS(ctx context.Context, taskID, acceptorID, from, to string) (bool, error)
}

// Tasks is the errand listing store.
type Tasks interface {
	Insert(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	ListOpen(ctx context.Context) ([]Task, error)
	ListByPublisher(ctx context.Context, publisherID string) ([]Task, error)
	UpdateStatus(ctx context.Context, id, status string) error
	// MarkCompleted writes the listing-exclusion marker. Idempotent.
	MarkCompleted(ctx context.Context, id string) error
}

// Profiles resolves display identities.
type Profiles interface {
	Get(ctx context.Context, id string) (*Profile, error)
	GetByStudentID(ctx context.Context, studentID string) (*Profile, error)
	Update(ctx context.Context, p *Profile) error
}
