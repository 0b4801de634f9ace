package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ritachen3656251-design/Danlink/internal/store"
)

// ErrConversationUnavailable means the durable store could not be reached
// while resolving a conversation id. Callers must disable message sending
// until a retry succeeds rather than operating on a stale or absent id.
var ErrConversationUnavailable = errors.New("conversation service unavailable")

// Resolver maps (task, participant pair) onto exactly one conversation row.
//
// UniqueKey = task id + sorted participant pair. The same key resolves to the
// same conversation id no matter which entry point asks (task detail screen
// or message list), and the strict lookup-before-insert protocol below is
// what keeps concurrent first-contact from creating duplicates. Direct
// creation without the prior lookups is forbidden.
type Resolver struct {
	convs store.Conversations
}

func NewResolver(convs store.Conversations) *Resolver {
	return &Resolver{convs: convs}
}

// normalizePair sorts the two participant ids so the canonical key is
// independent of which side invokes the resolver. A nil second id stays nil
// (open inquiry, no committed acceptor yet).
func normalizePair(a string, b *string) (string, *string) {
	if b == nil {
		return a, nil
	}
	if *b < a {
		return *b, &a
	}
	return a, b
}

// Resolve returns the conversation id for (taskID, publisherID, acceptorID).
// acceptorID nil resolves the pre-acceptance inquiry thread.
//
// Protocol: look up, reuse an open inquiry on acceptance, re-check, and only
// then insert; an insert that loses the race falls back to the lookup and
// returns the winner's id instead of surfacing the conflict.
func (r *Resolver) Resolve(ctx context.Context, taskID, publisherID string, acceptorID *string) (string, error) {
	p1, p2 := normalizePair(publisherID, acceptorID)

	// 1. Look up first: already exists in either stored order.
	if existing, err := r.convs.FindByKey(ctx, taskID, p1, p2); err == nil {
		return existing.ID, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: %v", ErrConversationUnavailable, err)
	}

	// 2. Reuse on acceptance: an open inquiry authored by either side of the
	// pair is updated in place so its message history is not orphaned into a
	// duplicate conversation.
	if acceptorID != nil {
		for _, owner := range []string{publisherID, *acceptorID} {
			inquiry, err := r.convs.FindOpenInquiry(ctx, taskID, owner)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrConversationUnavailable, err)
			}
			if err := r.convs.AssignPair(ctx, inquiry.ID, p1, *p2); err == nil {
				return inquiry.ID, nil
			} else if !errors.Is(err, store.ErrConflict) && !errors.Is(err, store.ErrNotFound) {
				return "", fmt.Errorf("%w: %v", ErrConversationUnavailable, err)
			}
			// Conflict means a concurrent caller already materialized the
			// committed pair; the re-check below will find it.
		}
	}

	// 3. Re-check: a concurrent caller may have created the row between the
	// first lookup and now.
	if existing, err := r.convs.FindByKey(ctx, taskID, p1, p2); err == nil {
		return existing.ID, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: %v", ErrConversationUnavailable, err)
	}

	// 4. Insert, falling back to lookup when the insert loses the race.
	conv := &store.Conversation{
		ID:          uuid.New().String(),
		TaskID:      taskID,
		PublisherID: p1,
		AcceptorID:  p2,
	}
	err := r.convs.Insert(ctx, conv)
	if err == nil {
		return conv.ID, nil
	}
	if errors.Is(err, store.ErrConflict) {
		winner, ferr := r.convs.FindByKey(ctx, taskID, p1, p2)
		if ferr != nil {
			return "", fmt.Errorf("%w: %v", ErrConversationUnavailable, ferr)
		}
		return winner.ID, nil
	}
	return "", fmt.Errorf("%w: %v", ErrConversationUnavailable, err)
}
