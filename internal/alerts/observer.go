package alerts

import (
	"context"
	"log"

	"github.com/ritachen3656251-design/Danlink/internal/store"
)

// MailObserver watches the message insert feed and enqueues a campus mail
// alert for every user message. System messages are announced by the
// transaction state machine itself, so they are skipped here.
type MailObserver struct {
	Profiles store.Profiles
}

func (o *MailObserver) OnMessage(m store.Message) {
	if m.Type != "user" || m.SenderID == m.ReceiverID {
		return
	}
	receiver, err := o.Profiles.Get(context.Background(), m.ReceiverID)
	if err != nil {
		log.Printf("[notify] mail alert skipped, receiver lookup failed: %v", err)
		return
	}
	preview := m.Content
	if len([]rune(preview)) > 50 {
		preview = string([]rune(preview)[:50]) + "…"
	}
	if err := EnqueueMessageNew(m.ConversationID, m.SenderID, m.ReceiverID, CampusEmail(receiver.StudentID), preview); err != nil {
		log.Printf("[notify] mail alert enqueue failed: %v", err)
	}
}
