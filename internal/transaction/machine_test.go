package transaction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritachen3656251-design/Danlink/internal/chat"
	"github.com/ritachen3656251-design/Danlink/internal/store"
)

const (
	pubID = "11111111-1111-1111-1111-111111111111"
	accID = "22222222-2222-2222-2222-222222222222"
)

type fixture struct {
	mem     *store.Memory
	msgs    *flakyMessages
	machine *Machine
}

// flakyMessages lets a test fail the system-message insert to force the
// status-landed, message-missing half state.
type flakyMessages struct {
	store.Messages
	failInsert bool
}

func (f *flakyMessages) Insert(ctx context.Context, m *store.Message) error {
	if f.failInsert && m.Type == "system" {
		return errors.New("insert refused")
	}
	return f.Messages.Insert(ctx, m)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()

	mem.SeedProfile(store.Profile{ID: pubID, StudentID: "20230001", Name: "发布者"})
	mem.SeedProfile(store.Profile{ID: accID, StudentID: "20230002", Name: "接单者"})

	require.NoError(t, mem.Tasks.Insert(ctx, &store.Task{
		ID: "task-1", Type: "delivery", Title: "取快递", Price: "5", PublisherID: pubID, Status: "accepted",
	}))
	require.NoError(t, mem.Acceptances.Insert(ctx, &store.Acceptance{
		ID: "acc-1", TaskID: "task-1", AcceptorID: accID, Status: "active",
	}))

	msgs := &flakyMessages{Messages: mem.Messages}
	resolver := chat.NewResolver(mem.Conversations)
	handler := &chat.Handler{Convs: mem.Conversations, Msgs: msgs, Tasks: mem.Tasks, Resolver: resolver}
	return &fixture{
		mem:  mem,
		msgs: msgs,
		machine: &Machine{
			Tasks:    mem.Tasks,
			Accs:     mem.Acceptances,
			Msgs:     msgs,
			Profiles: mem.Profiles,
			Resolver: resolver,
			Chat:     handler,
		},
	}
}

func (f *fixture) acceptanceStatus(t *testing.T) string {
	t.Helper()
	acc, err := f.mem.Acceptances.Find(context.Background(), "task-1", accID)
	require.NoError(t, err)
	return acc.Status
}

func (f *fixture) systemMessages(t *testing.T) []store.Message {
	t.Helper()
	ctx := context.Background()
	acceptor := accID
	convID, err := f.machine.Resolver.Resolve(ctx, "task-1", pubID, &acceptor)
	require.NoError(t, err)
	all, err := f.mem.Messages.List(ctx, convID)
	require.NoError(t, err)
	var sys []store.Message
	for _, m := range all {
		if m.Type == "system" {
			sys = append(sys, m)
		}
	}
	return sys
}

func TestFullLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.machine.Deliver(ctx, "task-1", accID))
	assert.Equal(t, "waiting_confirmation", f.acceptanceStatus(t))

	require.NoError(t, f.machine.ConfirmAndPay(ctx, "task-1", pubID))
	assert.Equal(t, "waiting_receipt", f.acceptanceStatus(t))

	require.NoError(t, f.machine.ConfirmReceipt(ctx, "task-1", accID))
	assert.Equal(t, "completed", f.acceptanceStatus(t))

	task, err := f.mem.Tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", task.Status)

	open, err := f.mem.Tasks.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open, "completed task must leave the open listing")

	sys := f.systemMessages(t)
	require.Len(t, sys, 3)
	assert.Equal(t, chat.TplDelivered, sys[0].SysTemplate)
	assert.Equal(t, chat.TplPaid, sys[1].SysTemplate)
	assert.Equal(t, chat.TplReceived, sys[2].SysTemplate)
}

func TestActorGating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Publisher cannot announce delivery.
	assert.ErrorIs(t, f.machine.Deliver(ctx, "task-1", pubID), ErrWrongActor)
	// A stranger holds no acceptance.
	assert.ErrorIs(t, f.machine.Deliver(ctx, "task-1", "stranger"), ErrWrongActor)

	require.NoError(t, f.machine.Deliver(ctx, "task-1", accID))

	// Acceptor cannot confirm their own delivery.
	assert.ErrorIs(t, f.machine.ConfirmAndPay(ctx, "task-1", accID), ErrWrongActor)
}

func TestNoStateSkipping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Payment before delivery.
	assert.ErrorIs(t, f.machine.ConfirmAndPay(ctx, "task-1", pubID), ErrInvalidTransition)
	// Receipt before payment.
	assert.ErrorIs(t, f.machine.ConfirmReceipt(ctx, "task-1", accID), ErrInvalidTransition)

	require.NoError(t, f.machine.Deliver(ctx, "task-1", accID))
	assert.ErrorIs(t, f.machine.ConfirmReceipt(ctx, "task-1", accID), ErrInvalidTransition)
}

func TestNoReversal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.machine.Deliver(ctx, "task-1", accID))
	require.NoError(t, f.machine.ConfirmAndPay(ctx, "task-1", pubID))

	// A late Deliver cannot pull the state back; the acceptance is past both
	// its from and to states.
	assert.ErrorIs(t, f.machine.Deliver(ctx, "task-1", accID), ErrInvalidTransition)
	assert.Equal(t, "waiting_receipt", f.acceptanceStatus(t))
}

func TestDuplicateSubmissionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.machine.Deliver(ctx, "task-1", accID))
	// Double-tap of the same action: status already at target, message already
	// present, so nothing new happens.
	require.NoError(t, f.machine.Deliver(ctx, "task-1", accID))
	assert.Equal(t, "waiting_confirmation", f.acceptanceStatus(t))
	assert.Len(t, f.systemMessages(t), 1)
}

func TestPartialTransitionAndRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.msgs.failInsert = true
	err := f.machine.Deliver(ctx, "task-1", accID)
	assert.ErrorIs(t, err, ErrPartialTransition)
	// The status half landed; only the announcement is missing.
	assert.Equal(t, "waiting_confirmation", f.acceptanceStatus(t))
	assert.Empty(t, f.systemMessages(t))

	f.msgs.failInsert = false
	require.NoError(t, f.machine.Deliver(ctx, "task-1", accID))
	sys := f.systemMessages(t)
	require.Len(t, sys, 1)
	assert.Equal(t, chat.TplDelivered, sys[0].SysTemplate)
	assert.Equal(t, pubID, sys[0].ReceiverID)
}

func TestPublisherTransitionWithoutAcceptance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.mem.Tasks.Insert(ctx, &store.Task{
		ID: "task-2", Type: "study", Title: "带本书", Price: "3", PublisherID: pubID, Status: "active",
	}))
	assert.ErrorIs(t, f.machine.ConfirmAndPay(ctx, "task-2", pubID), ErrNoAcceptance)
}

func TestStatusReportsDurableState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, acc, err := f.machine.Status(ctx, "task-1")
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, "accepted", task.Status)
	assert.Equal(t, "active", acc.Status)

	require.NoError(t, f.machine.Deliver(ctx, "task-1", accID))
	_, acc, err = f.machine.Status(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "waiting_confirmation", acc.Status)
}
