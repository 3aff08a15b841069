package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/fair-ticketing/internal/idempotency"
	"github.com/iliyamo/fair-ticketing/internal/ledger"
	"github.com/iliyamo/fair-ticketing/internal/model"
)

func TestBootstrapReleasesGrantsOfPreviousRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{}, MarketOptions{})
	ev := f.publish(10, 4)
	admit(t, f, ev.ID, "alice", 3)
	require.Equal(t, 3, f.counts(ev.ID).Held)

	// An event stored without a ledger row, as after a crash between the two writes.
	orphan := &model.Event{Name: "Late Show", TicketPrice: decimal.RequireFromString("10"),
		TotalSeats: 5, MaxTicketsPerPerson: 2, Status: model.EventPublished}
	require.NoError(t, f.events.Create(ctx, orphan))

	restarted := NewBoxOffice(Deps{
		Ledger:      f.ledger,
		Events:      f.events,
		Idempotency: idempotency.NewMemory(f.clock, 0),
		Issuer:      f.issuer,
		Notifier:    f.notes,
		Clock:       f.clock,
		Logger:      quietLogger(),
	}, Options{})
	require.NoError(t, restarted.Bootstrap(ctx))

	assert.Equal(t, ledger.Counts{Total: 10}, f.counts(ev.ID))
	assert.Equal(t, ledger.Counts{Total: 5}, f.counts(orphan.ID))

	e, err := restarted.Queue.Join(ctx, orphan.ID, "bob", 2)
	require.NoError(t, err)
	assert.Equal(t, model.QueueCanBuy, e.State)
}

func TestResizeGrowsAndAdmitsWaiting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{}, MarketOptions{})
	ev := f.publish(2, 2)
	admit(t, f, ev.ID, "alice", 2)

	bob, err := f.office.Queue.Join(ctx, ev.ID, "bob", 2)
	require.NoError(t, err)
	require.Equal(t, model.QueueWaiting, bob.State)

	assert.ErrorIs(t, f.office.ResizeEvent(ctx, ev.ID, 1), ErrInvalidRequest)
	require.NoError(t, f.office.ResizeEvent(ctx, ev.ID, 4))

	st, err := f.office.Queue.Status(ctx, ev.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, model.QueueCanBuy, st.State)
	assert.True(t, f.notes.has(model.NotifyPromoted, "bob"))

	stored, err := f.office.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.TotalSeats)
}

func TestEventStatusLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{}, MarketOptions{})
	ev := &model.Event{Name: "Opening", TicketPrice: decimal.RequireFromString("25"),
		TotalSeats: 3, MaxTicketsPerPerson: 1}
	require.NoError(t, f.office.CreateEvent(ctx, ev))
	assert.Equal(t, model.EventDraft, ev.Status)

	_, err := f.office.Queue.Join(ctx, ev.ID, "alice", 1)
	assert.ErrorIs(t, err, ErrEventNotOpen)

	// Draft capacity may shrink.
	require.NoError(t, f.office.ResizeEvent(ctx, ev.ID, 2))
	require.NoError(t, f.office.SetEventStatus(ctx, ev.ID, model.EventPublished))
	assert.ErrorIs(t, f.office.SetEventStatus(ctx, ev.ID, model.EventDraft), ErrInvalidRequest)
	assert.ErrorIs(t, f.office.SetEventStatus(ctx, ev.ID, "SOLD"), ErrInvalidRequest)
	assert.ErrorIs(t, f.office.SetEventStatus(ctx, 404, model.EventClosed), ErrEventNotFound)

	admit(t, f, ev.ID, "alice", 1)
	require.NoError(t, f.office.SetEventStatus(ctx, ev.ID, model.EventClosed))
	_, err = f.office.Queue.Join(ctx, ev.ID, "bob", 1)
	assert.ErrorIs(t, err, ErrEventNotOpen)

	counts, err := f.office.Counts(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Counts{Total: 2, Held: 1}, counts)
}

func TestCreateEventRejectsInvalid(t *testing.T) {
	f := newFixture(Options{}, MarketOptions{})
	for _, ev := range []model.Event{
		{Name: "", TotalSeats: 1, MaxTicketsPerPerson: 1},
		{Name: "x", TotalSeats: -1, MaxTicketsPerPerson: 1},
		{Name: "x", TotalSeats: 1, MaxTicketsPerPerson: 0},
		{Name: "x", TotalSeats: 1, MaxTicketsPerPerson: 1, TicketPrice: decimal.NewFromInt(-1)},
	} {
		assert.ErrorIs(t, f.office.CreateEvent(context.Background(), &ev), ErrInvalidRequest)
	}
}
