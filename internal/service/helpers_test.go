package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/fair-ticketing/internal/idempotency"
	"github.com/iliyamo/fair-ticketing/internal/ledger"
	"github.com/iliyamo/fair-ticketing/internal/model"
	"github.com/iliyamo/fair-ticketing/internal/repository"
)

var testStart = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type recorder struct {
	mu    sync.Mutex
	notes []model.Notification
}

func (r *recorder) Notify(_ context.Context, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

func (r *recorder) has(kind model.NotificationKind, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notes {
		if n.Kind == kind && n.UserID == userID {
			return true
		}
	}
	return false
}

// countingIssuer wraps StoreIssuer and can fail a number of calls first.
type countingIssuer struct {
	inner    *StoreIssuer
	calls    atomic.Int32
	failures atomic.Int32
}

func (c *countingIssuer) Issue(ctx context.Context, h model.Hold, p model.PaymentProof) ([]string, error) {
	c.calls.Add(1)
	if c.failures.Add(-1) >= 0 {
		return nil, errors.New("issuer unavailable")
	}
	return c.inner.Issue(ctx, h, p)
}

type fixture struct {
	clock   *clockwork.FakeClock
	ledger  *ledger.Memory
	events  *repository.MemEventRepo
	tickets *repository.MemTicketRepo
	notes   *recorder
	issuer  *countingIssuer
	office  *BoxOffice
	market  *ResaleMarket
}

func newFixture(opts Options, mopts MarketOptions) *fixture {
	f := &fixture{
		clock:   clockwork.NewFakeClockAt(testStart),
		ledger:  ledger.NewMemory(quietLogger()),
		events:  repository.NewMemEventRepo(),
		tickets: repository.NewMemTicketRepo(),
		notes:   &recorder{},
	}
	f.issuer = &countingIssuer{inner: NewStoreIssuer(f.tickets, f.events, f.clock)}
	f.office = NewBoxOffice(Deps{
		Ledger:      f.ledger,
		Events:      f.events,
		Idempotency: idempotency.NewMemory(f.clock, time.Hour),
		Issuer:      f.issuer,
		Notifier:    f.notes,
		Clock:       f.clock,
		Logger:      quietLogger(),
	}, opts)
	f.market = NewResaleMarket(f.tickets, f.events, f.notes, f.clock, quietLogger(), mopts)
	return f
}

// publish creates a published event with the given capacity.
func (f *fixture) publish(seats, maxPerPerson int) model.Event {
	ev := &model.Event{
		Name:                "Finals",
		VenueName:           "Arena",
		City:                "Lyon",
		TicketPrice:         decimal.RequireFromString("40.00"),
		TotalSeats:          seats,
		MaxTicketsPerPerson: maxPerPerson,
		Status:              model.EventPublished,
	}
	if err := f.office.CreateEvent(context.Background(), ev); err != nil {
		panic(err)
	}
	return *ev
}

func (f *fixture) counts(eventID int64) ledger.Counts {
	c, err := f.ledger.Snapshot(context.Background(), eventID)
	if err != nil {
		panic(err)
	}
	return c
}

// issueTicket stores an AVAILABLE ticket for owner.
func (f *fixture) issueTicket(eventID int64, owner string) model.Ticket {
	t := &model.Ticket{
		Serial:  owner + "-serial",
		EventID: eventID,
		OrderID: "order-" + owner,
		OwnerID: owner,
		Price:   decimal.RequireFromString("40.00"),
		Status:  model.TicketAvailable,
	}
	if err := f.tickets.Create(context.Background(), t); err != nil {
		panic(err)
	}
	return *t
}
