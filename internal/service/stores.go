package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/iliyamo/fair-ticketing/internal/model"
	"github.com/iliyamo/fair-ticketing/internal/repository"
)

// EventStore is the catalog of events.  repository.EventRepo and
// repository.MemEventRepo satisfy it.
type EventStore interface {
	Create(ctx context.Context, ev *model.Event) error
	Get(ctx context.Context, id int64) (model.Event, error)
	List(ctx context.Context) ([]model.Event, error)
	Search(ctx context.Context, q repository.EventSearchQuery) ([]model.Event, int64, error)
	UpdateCapacity(ctx context.Context, id int64, totalSeats int) error
	UpdateStatus(ctx context.Context, id int64, status model.EventStatus) error
}

// TicketStore holds issued tickets.  Transition is a compare-and-set on
// owner and status and fails with repository.ErrConflict when stale.
type TicketStore interface {
	Create(ctx context.Context, t *model.Ticket) error
	Get(ctx context.Context, id int64) (model.Ticket, error)
	ListByOrder(ctx context.Context, orderID string) ([]model.Ticket, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Ticket, error)
	ListByStatus(ctx context.Context, status model.TicketStatus) ([]model.Ticket, error)
	Transition(ctx context.Context, id int64, from, to model.TicketState) error
}

// TicketIssuer turns a closed hold into issued tickets and returns their
// references.  Issue may be called more than once for the same hold and
// must not issue twice.
type TicketIssuer interface {
	Issue(ctx context.Context, hold model.Hold, proof model.PaymentProof) ([]string, error)
}

// Notifier receives user-facing engine events.  Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// LogNotifier writes notifications to the structured log.  It is used when
// no broker is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(_ context.Context, n model.Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification", "kind", n.Kind, "user_id", n.UserID, "event_id", n.EventID,
		"order_id", n.OrderID, "offer_id", n.OfferID)
	return nil
}

// dispatch sends notifications collected inside a critical section.  It
// must be called after the lock is released.
func dispatch(ctx context.Context, notifier Notifier, logger *slog.Logger, notes []model.Notification) {
	if notifier == nil {
		return
	}
	for _, n := range notes {
		if err := notifier.Notify(ctx, n); err != nil {
			logger.Warn("notification failed", "kind", n.Kind, "user_id", n.UserID, "error", err)
		}
	}
}

func mapEventErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrEventNotFound
	}
	return err
}
