// Package ledger keeps the authoritative per-event seat counters.  Every
// change to sold or held seats goes through a SeatLedger so that
// sold + held <= total holds under concurrent callers.
package ledger

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDenied is returned by TryHold when the event lacks free seats.
	ErrDenied = errors.New("ledger: insufficient seats")
	// ErrUnknownEvent is returned for an event that was never opened.
	ErrUnknownEvent = errors.New("ledger: unknown event")
	// ErrGrantConsumed is returned when a grant was already committed or
	// released.  Callers treat it as a no-op, never as a second effect.
	ErrGrantConsumed = errors.New("ledger: grant already consumed")
	// ErrCapacityBelowUsage rejects a resize under the seats already in use.
	ErrCapacityBelowUsage = errors.New("ledger: capacity below sold and held seats")
	// ErrInvariantViolation signals a concurrency bug.  The offending
	// mutation is aborted without partial effect.
	ErrInvariantViolation = errors.New("ledger: seat invariant violated")
)

// GrantState tracks the single consumption of a grant.
type GrantState string

const (
	GrantHeld      GrantState = "HELD"
	GrantCommitted GrantState = "COMMITTED"
	GrantReleased  GrantState = "RELEASED"
)

// Grant is the receipt of a successful TryHold.  It is consumed exactly
// once by Commit or Release.
type Grant struct {
	ID      string
	EventID int64
	Seats   int
}

// Counts is a point-in-time view of an event's ledger.
type Counts struct {
	Total int `json:"totalSeats"`
	Sold  int `json:"soldCount"`
	Held  int `json:"heldCount"`
}

// Available returns the seats neither sold nor held.
func (c Counts) Available() int { return c.Total - c.Sold - c.Held }

// Unsold returns the seats that could still be sold once every hold ends.
func (c Counts) Unsold() int { return c.Total - c.Sold }

// SeatLedger is the single point of truth for seat math.
type SeatLedger interface {
	// Open registers an event's capacity.  Opening an existing event is a no-op.
	Open(ctx context.Context, eventID int64, totalSeats int) error
	// Resize changes the capacity; it never drops below sold + held.
	Resize(ctx context.Context, eventID int64, totalSeats int) error
	// TryHold atomically reserves seats or returns ErrDenied.
	TryHold(ctx context.Context, eventID int64, seats int) (Grant, error)
	// Commit turns the grant's held seats into sold seats.
	Commit(ctx context.Context, g Grant) error
	// Release returns the grant's held seats to the available pool.
	Release(ctx context.Context, g Grant) error
	// Snapshot reads the current counters.
	Snapshot(ctx context.Context, eventID int64) (Counts, error)
	// ReleaseOutstanding releases every grant still held and returns how
	// many were released.  It runs at startup, before any hold exists.
	ReleaseOutstanding(ctx context.Context) (int, error)
}

// CheckInvariant validates a prospective counter state.
func CheckInvariant(c Counts) error {
	if c.Sold < 0 || c.Held < 0 || c.Sold+c.Held > c.Total {
		return fmt.Errorf("%w: total=%d sold=%d held=%d", ErrInvariantViolation, c.Total, c.Sold, c.Held)
	}
	return nil
}
