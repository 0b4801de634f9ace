package transaction

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ritachen3656251-design/Danlink/internal/alerts"
	"github.com/ritachen3656251-design/Danlink/internal/chat"
	"github.com/ritachen3656251-design/Danlink/internal/store"
)

var (
	// ErrWrongActor - the caller does not hold the role this transition requires.
	ErrWrongActor = errors.New("transition not allowed for this participant")
	// ErrInvalidTransition - the acceptance is not in the expected state.
	// Transitions never skip a state and never reverse.
	ErrInvalidTransition = errors.New("invalid transaction state transition")
	// ErrPartialTransition - the status update landed but the paired system
	// message did not. The caller must retry; re-running the transition with
	// the status already advanced re-issues only the missing message.
	ErrPartialTransition = errors.New("transition partially applied, retry required")
	// ErrNoAcceptance - no committed acceptor exists for the task.
	ErrNoAcceptance = errors.New("task has no committed acceptance")
)

// Machine drives the per-task transaction lifecycle between publisher and
// acceptor: active -> waiting_confirmation -> waiting_receipt -> completed.
// Each transition pairs a status compare-and-set with a system message in the
// resolved conversation; both halves must be confirmed before the caller may
// render the new state.
type Machine struct {
	Tasks    store.Tasks
	Accs     store.Acceptances
	Msgs     store.Messages
	Profiles store.Profiles
	Resolver *chat.Resolver
	Chat     *chat.Handler
}

// Deliver - acceptor announces delivery: active -> waiting_confirmation.
func (m *Machine) Deliver(ctx context.Context, taskID, actorID string) error {
	return m.transition(ctx, taskID, actorID, chat.RoleAcceptor, "active", "waiting_confirmation", chat.TplDelivered)
}

// ConfirmAndPay - publisher confirms the work and pays off-platform:
// waiting_confirmation -> waiting_receipt.
func (m *Machine) ConfirmAndPay(ctx context.Context, taskID, actorID string) error {
	return m.transition(ctx, taskID, actorID, chat.RolePublisher, "waiting_confirmation", "waiting_receipt", chat.TplPaid)
}

// ConfirmReceipt - acceptor confirms the payment arrived:
// waiting_receipt -> completed. Also records task completion for listing
// exclusion.
func (m *Machine) ConfirmReceipt(ctx context.Context, taskID, actorID string) error {
	if err := m.transition(ctx, taskID, actorID, chat.RoleAcceptor, "waiting_receipt", "completed", chat.TplReceived); err != nil {
		return err
	}
	if err := m.Tasks.MarkCompleted(ctx, taskID); err != nil {
		return fmt.Errorf("%w: completion marker: %v", ErrPartialTransition, err)
	}
	if err := m.Tasks.UpdateStatus(ctx, taskID, "completed"); err != nil {
		return fmt.Errorf("%w: task status: %v", ErrPartialTransition, err)
	}
	return nil
}

// Status re-fetches the current transaction state from durable storage. Both
// participants poll this on a fixed interval so a missed push can never
// permanently desync their views.
func (m *Machine) Status(ctx context.Context, taskID string) (*store.Task, *store.Acceptance, error) {
	task, err := m.Tasks.Get(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	acc, err := m.Accs.FirstForTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return task, nil, nil
		}
		return nil, nil, err
	}
	return task, acc, nil
}

func (m *Machine) transition(ctx context.Context, taskID, actorID, actorRole, from, to, template string) error {
	task, err := m.Tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}

	var acc *store.Acceptance
	switch actorRole {
	case chat.RolePublisher:
		if actorID != task.PublisherID {
			return ErrWrongActor
		}
		acc, err = m.Accs.FirstForTask(ctx, taskID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoAcceptance
		}
	case chat.RoleAcceptor:
		if actorID == task.PublisherID {
			return ErrWrongActor
		}
		acc, err = m.Accs.Find(ctx, taskID, actorID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrWrongActor
		}
	}
	if err != nil {
		return err
	}

	// Status half. The CAS guard makes a stale or duplicate submission a
	// no-op instead of a skipped or reversed state; a row already at the
	// target state is a retry whose status half previously landed, so only
	// the message half remains.
	switch acc.Status {
	case from:
		ok, cerr := m.Accs.UpdateStatusCAS(ctx, taskID, acc.AcceptorID, from, to)
		if cerr != nil {
			return cerr
		}
		if !ok {
			latest, ferr := m.Accs.Find(ctx, taskID, acc.AcceptorID)
			if ferr != nil || latest.Status != to {
				return ErrInvalidTransition
			}
		}
	case to:
		// retry path: proceed to the message half
	default:
		return ErrInvalidTransition
	}

	// Message half. Both halves must be confirmed or the operation reports
	// failure; the status update is not rolled back (recognized consistency
	// gap, surfaced instead of hidden).
	convID, err := m.Resolver.Resolve(ctx, taskID, task.PublisherID, &acc.AcceptorID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPartialTransition, err)
	}
	already, err := m.Msgs.HasSystem(ctx, convID, template)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPartialTransition, err)
	}
	if !already {
		conv, gerr := m.Chat.Convs.Get(ctx, convID)
		if gerr != nil {
			return fmt.Errorf("%w: %v", ErrPartialTransition, gerr)
		}
		receiverID := task.PublisherID
		if actorRole == chat.RolePublisher {
			receiverID = acc.AcceptorID
		}
		if _, aerr := m.Chat.AppendSystem(ctx, conv, actorID, receiverID, template, actorRole); aerr != nil {
			return fmt.Errorf("%w: %v", ErrPartialTransition, aerr)
		}
		m.notifyByMail(ctx, taskID, template, actorID, receiverID)
	}
	return nil
}

// notifyByMail enqueues the best-effort campus mail alert for a transition.
func (m *Machine) notifyByMail(ctx context.Context, taskID, template, actorID, receiverID string) {
	receiver, err := m.Profiles.Get(ctx, receiverID)
	if err != nil {
		log.Printf("[transaction] mail alert skipped, receiver lookup failed: %v", err)
		return
	}
	email := alerts.CampusEmail(receiver.StudentID)
	switch template {
	case chat.TplDelivered:
		_ = alerts.EnqueueTaskDelivered(taskID, actorID, receiverID, email)
	case chat.TplPaid:
		_ = alerts.EnqueueTaskPaid(taskID, actorID, receiverID, email)
	case chat.TplReceived:
		_ = alerts.EnqueueTaskCompleted(taskID, actorID, receiverID, email)
	}
}
