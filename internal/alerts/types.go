package alerts

import "time"

// Task type constants
const (
	TaskMessageNew    = "email:message_new"
	TaskTaskDelivered = "email:task_delivered"
	TaskTaskPaid      = "email:task_paid"
	TaskTaskCompleted = "email:task_completed"
	TaskPasswordReset = "email:password_reset"
)

// Common envelope for email-like notifications
type EmailEnvelope struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Message new payload (sent to the receiver on new chat message)
type MessageNewPayload struct {
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	ReceiverID     string        `json:"receiver_id"`
	Email          string        `json:"email"`
	Preview        string        `json:"preview"`
	Envelope       EmailEnvelope `json:"envelope"`
	SentAt         time.Time     `json:"sent_at"`
}

// Password reset payload (sent to a student's campus mailbox)
type PasswordResetPayload struct {
	ProfileID string        `json:"profile_id"`
	Email     string        `json:"email"`
	ResetURL  string        `json:"reset_url"`
	Name      string        `json:"name"`
	Envelope  EmailEnvelope `json:"envelope"`
	SentAt    time.Time     `json:"sent_at"`
}

// Transition payload covers delivered / paid / completed announcements
type TransitionPayload struct {
	TaskID     string        `json:"task_id"`
	ActorID    string        `json:"actor_id"`
	ReceiverID string        `json:"receiver_id"`
	Email      string        `json:"email"`
	Envelope   EmailEnvelope `json:"envelope"`
	SentAt     time.Time     `json:"sent_at"`
}
