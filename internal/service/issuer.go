package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/iliyamo/fair-ticketing/internal/model"
)

// StoreIssuer issues tickets by writing them to the ticket store.  It stands
// in for an external issuance service and keys idempotency on the order id:
// tickets already stored for the order are returned instead of re-created.
type StoreIssuer struct {
	tickets TicketStore
	events  EventStore
	clock   clockwork.Clock
}

// NewStoreIssuer returns a StoreIssuer.
func NewStoreIssuer(tickets TicketStore, events EventStore, clock clockwork.Clock) *StoreIssuer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StoreIssuer{tickets: tickets, events: events, clock: clock}
}

func (s *StoreIssuer) Issue(ctx context.Context, h model.Hold, _ model.PaymentProof) ([]string, error) {
	existing, err := s.tickets.ListByOrder(ctx, h.ID)
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0, h.ReservedTickets)
	for _, t := range existing {
		refs = append(refs, t.Serial)
	}
	if len(existing) >= h.ReservedTickets {
		return refs[:h.ReservedTickets], nil
	}

	ev, err := s.events.Get(ctx, h.EventID)
	if err != nil {
		return nil, fmt.Errorf("load event %d: %w", h.EventID, mapEventErr(err))
	}
	now := s.clock.Now()
	for i := len(existing); i < h.ReservedTickets; i++ {
		t := &model.Ticket{
			Serial:    uuid.NewString(),
			EventID:   h.EventID,
			OrderID:   h.ID,
			OwnerID:   h.UserID,
			Price:     ev.TicketPrice,
			Status:    model.TicketAvailable,
			CreatedAt: now,
		}
		if err := s.tickets.Create(ctx, t); err != nil {
			return nil, err
		}
		refs = append(refs, t.Serial)
	}
	return refs, nil
}
