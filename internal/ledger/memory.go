package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process SeatLedger.  Each event has its own mutex so
// callers for different events never contend.
type Memory struct {
	mu     sync.Mutex
	events map[int64]*eventBook
	logger *slog.Logger
}

type eventBook struct {
	mu     sync.Mutex
	counts Counts
	grants map[string]*grantRecord
}

type grantRecord struct {
	grant Grant
	state GrantState
}

// NewMemory returns an empty in-memory ledger.
func NewMemory(logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{events: make(map[int64]*eventBook), logger: logger}
}

func (m *Memory) book(eventID int64) (*eventBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.events[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEvent, eventID)
	}
	return b, nil
}

func (m *Memory) Open(_ context.Context, eventID int64, totalSeats int) error {
	if totalSeats < 0 {
		return fmt.Errorf("%w: negative capacity %d", ErrCapacityBelowUsage, totalSeats)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[eventID]; ok {
		return nil
	}
	m.events[eventID] = &eventBook{
		counts: Counts{Total: totalSeats},
		grants: make(map[string]*grantRecord),
	}
	return nil
}

func (m *Memory) Resize(_ context.Context, eventID int64, totalSeats int) error {
	b, err := m.book(eventID)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if totalSeats < b.counts.Sold+b.counts.Held {
		return fmt.Errorf("%w: requested %d, in use %d", ErrCapacityBelowUsage, totalSeats, b.counts.Sold+b.counts.Held)
	}
	b.counts.Total = totalSeats
	return nil
}

func (m *Memory) TryHold(_ context.Context, eventID int64, seats int) (Grant, error) {
	if seats <= 0 {
		return Grant{}, fmt.Errorf("%w: non-positive request %d", ErrDenied, seats)
	}
	b, err := m.book(eventID)
	if err != nil {
		return Grant{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.counts.Sold+b.counts.Held+seats > b.counts.Total {
		return Grant{}, ErrDenied
	}
	next := b.counts
	next.Held += seats
	if err := m.check(eventID, next); err != nil {
		return Grant{}, err
	}
	g := Grant{ID: uuid.NewString(), EventID: eventID, Seats: seats}
	b.counts = next
	b.grants[g.ID] = &grantRecord{grant: g, state: GrantHeld}
	return g, nil
}

func (m *Memory) Commit(_ context.Context, g Grant) error {
	return m.consume(g, GrantCommitted)
}

func (m *Memory) Release(_ context.Context, g Grant) error {
	return m.consume(g, GrantReleased)
}

func (m *Memory) consume(g Grant, to GrantState) error {
	b, err := m.book(g.EventID)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.grants[g.ID]
	if !ok {
		return fmt.Errorf("%w: unknown grant %s", ErrGrantConsumed, g.ID)
	}
	if rec.state != GrantHeld {
		return fmt.Errorf("%w: grant %s is %s", ErrGrantConsumed, g.ID, rec.state)
	}
	next := b.counts
	next.Held -= rec.grant.Seats
	if to == GrantCommitted {
		next.Sold += rec.grant.Seats
	}
	if err := m.check(g.EventID, next); err != nil {
		return err
	}
	b.counts = next
	rec.state = to
	return nil
}

func (m *Memory) Snapshot(_ context.Context, eventID int64) (Counts, error) {
	b, err := m.book(eventID)
	if err != nil {
		return Counts{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts, nil
}

func (m *Memory) ReleaseOutstanding(ctx context.Context) (int, error) {
	m.mu.Lock()
	books := make([]*eventBook, 0, len(m.events))
	for _, b := range m.events {
		books = append(books, b)
	}
	m.mu.Unlock()

	var held []Grant
	for _, b := range books {
		b.mu.Lock()
		for _, rec := range b.grants {
			if rec.state == GrantHeld {
				held = append(held, rec.grant)
			}
		}
		b.mu.Unlock()
	}
	released := 0
	for _, g := range held {
		if err := m.Release(ctx, g); err != nil {
			if errors.Is(err, ErrGrantConsumed) {
				continue
			}
			return released, err
		}
		released++
	}
	return released, nil
}

func (m *Memory) check(eventID int64, next Counts) error {
	if err := CheckInvariant(next); err != nil {
		m.logger.Error("seat ledger invariant violated", "event_id", eventID, "error", err)
		return err
	}
	return nil
}
