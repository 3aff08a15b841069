// Package service implements the admission queue, the reservation holds
// and the resale market on top of the seat ledger.
//
// Queue entries and holds of one event are guarded by a single per-event
// lock shared by AdmissionQueue and ReservationManager, so a ledger effect
// and the state change it backs are applied together.  Notifications are
// collected under the lock and sent after it is released.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/iliyamo/fair-ticketing/internal/idempotency"
	"github.com/iliyamo/fair-ticketing/internal/ledger"
	"github.com/iliyamo/fair-ticketing/internal/model"
	"github.com/iliyamo/fair-ticketing/internal/repository"
)

const (
	DefaultHoldTTL       = 10 * time.Minute
	DefaultMaxQueueDepth = 10000
)

// Deps are the collaborators shared by the box office components.
type Deps struct {
	Ledger      ledger.SeatLedger
	Events      EventStore
	Idempotency idempotency.Store
	Issuer      TicketIssuer
	Notifier    Notifier
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

// Options tune admission and holds.  Zero values fall back to defaults;
// a negative MaxQueueDepth disables the depth bound.
type Options struct {
	HoldTTL       time.Duration
	MaxQueueDepth int
}

// BoxOffice wires the admission queue to the reservation manager and owns
// event administration.
type BoxOffice struct {
	Queue        *AdmissionQueue
	Reservations *ReservationManager

	ledger ledger.SeatLedger
	events EventStore
	logger *slog.Logger
}

// NewBoxOffice builds both components around one per-event lock table.
func NewBoxOffice(d Deps, opts Options) *BoxOffice {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Notifier == nil {
		d.Notifier = LogNotifier{Logger: d.Logger}
	}
	if opts.HoldTTL <= 0 {
		opts.HoldTTL = DefaultHoldTTL
	}
	if opts.MaxQueueDepth == 0 {
		opts.MaxQueueDepth = DefaultMaxQueueDepth
	}

	locks := &keyedMutex[int64]{}
	q := &AdmissionQueue{
		ledger:   d.Ledger,
		events:   d.Events,
		notifier: d.Notifier,
		clock:    d.Clock,
		logger:   d.Logger.With("component", "admission"),
		maxDepth: opts.MaxQueueDepth,
		locks:    locks,
		lines:    make(map[int64]*eventLine),
	}
	rm := &ReservationManager{
		ledger:   d.Ledger,
		idem:     d.Idempotency,
		issuer:   d.Issuer,
		notifier: d.Notifier,
		clock:    d.Clock,
		logger:   d.Logger.With("component", "reservations"),
		ttl:      opts.HoldTTL,
		locks:    locks,
		holds:    make(map[string]*holdRecord),
	}
	q.holds = rm
	rm.queue = q

	return &BoxOffice{
		Queue:        q,
		Reservations: rm,
		ledger:       d.Ledger,
		events:       d.Events,
		logger:       d.Logger,
	}
}

// Bootstrap prepares the ledger after a restart: grants left HELD by the
// previous process are released and every known event gets a ledger row.
func (b *BoxOffice) Bootstrap(ctx context.Context) error {
	n, err := b.ledger.ReleaseOutstanding(ctx)
	if err != nil {
		return fmt.Errorf("release outstanding grants: %w", err)
	}
	if n > 0 {
		b.logger.Info("released grants left by previous run", "grants", n)
	}
	events, err := b.events.List(ctx)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if err := b.ledger.Open(ctx, ev.ID, ev.TotalSeats); err != nil {
			return fmt.Errorf("open ledger for event %d: %w", ev.ID, err)
		}
	}
	return nil
}

// CreateEvent stores a new event and opens its ledger.
func (b *BoxOffice) CreateEvent(ctx context.Context, ev *model.Event) error {
	if ev.Name == "" || ev.TotalSeats < 0 || ev.MaxTicketsPerPerson < 1 || ev.TicketPrice.IsNegative() {
		return ErrInvalidRequest
	}
	if ev.Status == "" {
		ev.Status = model.EventDraft
	}
	if err := b.events.Create(ctx, ev); err != nil {
		return err
	}
	if err := b.ledger.Open(ctx, ev.ID, ev.TotalSeats); err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	b.logger.Info("event created", "event_id", ev.ID, "total_seats", ev.TotalSeats, "status", ev.Status)
	return nil
}

// GetEvent returns one event.
func (b *BoxOffice) GetEvent(ctx context.Context, id int64) (model.Event, error) {
	ev, err := b.events.Get(ctx, id)
	return ev, mapEventErr(err)
}

// SearchEvents returns one page of the catalog and the total match count.
func (b *BoxOffice) SearchEvents(ctx context.Context, q repository.EventSearchQuery) ([]model.Event, int64, error) {
	return b.events.Search(ctx, q)
}

// Counts exposes the ledger counters of an event.
func (b *BoxOffice) Counts(ctx context.Context, id int64) (ledger.Counts, error) {
	if _, err := b.GetEvent(ctx, id); err != nil {
		return ledger.Counts{}, err
	}
	return b.ledger.Snapshot(ctx, id)
}

// SetEventStatus publishes or closes an event.  Publishing runs an
// admission pass in case entries are already waiting; closing cancels the
// entries still waiting and stops further admission.
func (b *BoxOffice) SetEventStatus(ctx context.Context, id int64, status model.EventStatus) error {
	switch status {
	case model.EventDraft, model.EventPublished, model.EventClosed:
	default:
		return ErrInvalidRequest
	}
	ev, err := b.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	if ev.Status != model.EventDraft && status == model.EventDraft {
		return fmt.Errorf("%w: event %d already left draft", ErrInvalidRequest, id)
	}
	if err := b.events.UpdateStatus(ctx, id, status); err != nil {
		return mapEventErr(err)
	}
	ev.Status = status
	b.logger.Info("event status changed", "event_id", id, "status", status)
	b.Queue.Refresh(ctx, ev)
	return nil
}

// ResizeEvent changes an event's capacity.  A published event may only
// grow; new capacity is offered to waiting entries right away.
func (b *BoxOffice) ResizeEvent(ctx context.Context, id int64, totalSeats int) error {
	if totalSeats < 0 {
		return ErrInvalidRequest
	}
	ev, err := b.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	if ev.Status != model.EventDraft && totalSeats < ev.TotalSeats {
		return fmt.Errorf("%w: published capacity can only grow", ErrInvalidRequest)
	}
	if err := b.ledger.Resize(ctx, id, totalSeats); err != nil {
		return err
	}
	if err := b.events.UpdateCapacity(ctx, id, totalSeats); err != nil {
		return mapEventErr(err)
	}
	b.logger.Info("event capacity changed", "event_id", id, "from", ev.TotalSeats, "to", totalSeats)
	ev.TotalSeats = totalSeats
	b.Queue.Refresh(ctx, ev)
	return nil
}
