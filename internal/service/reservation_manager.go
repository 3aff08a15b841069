package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/iliyamo/fair-ticketing/internal/idempotency"
	"github.com/iliyamo/fair-ticketing/internal/ledger"
	"github.com/iliyamo/fair-ticketing/internal/model"
)

const timeLayout = time.RFC3339

// ReservationManager owns the holds created by admission.  Each hold ends
// exactly once, as CLOSED, EXPIRED or CANCELLED, and its ledger grant is
// consumed by that same transition.
type ReservationManager struct {
	ledger   ledger.SeatLedger
	idem     idempotency.Store
	issuer   TicketIssuer
	notifier Notifier
	clock    clockwork.Clock
	logger   *slog.Logger
	ttl      time.Duration
	locks    *keyedMutex[int64]
	queue    *AdmissionQueue

	mu    sync.RWMutex
	holds map[string]*holdRecord
}

type holdRecord struct {
	hold  model.Hold
	timer clockwork.Timer
}

// Completion is the outcome of Complete.  Snapshot is the stored response
// body; replays return it unchanged.
type Completion struct {
	Result   model.CompletionResult
	Snapshot []byte
	Replayed bool
}

func (rm *ReservationManager) record(holdID string) (*holdRecord, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	r, ok := rm.holds[holdID]
	return r, ok
}

// lookup returns a copy of the hold.
func (rm *ReservationManager) lookup(holdID string) (model.Hold, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	r, ok := rm.holds[holdID]
	if !ok {
		return model.Hold{}, false
	}
	return r.hold, true
}

// Get returns a hold by its order id.
func (rm *ReservationManager) Get(holdID string) (model.Hold, error) {
	h, ok := rm.lookup(holdID)
	if !ok {
		return model.Hold{}, ErrHoldNotFound
	}
	return h, nil
}

// update applies fn to the stored hold.  Callers hold the event lock, so
// the lock here only publishes the change to readers.
func (rm *ReservationManager) update(r *holdRecord, fn func(h *model.Hold)) {
	rm.mu.Lock()
	fn(&r.hold)
	rm.mu.Unlock()
}

func grantOf(h model.Hold) ledger.Grant {
	return ledger.Grant{ID: h.GrantID, EventID: h.EventID, Seats: h.ReservedTickets}
}

// createHoldLocked turns an admitted entry and its grant into an OPEN hold
// and arms its expiry timer.
func (rm *ReservationManager) createHoldLocked(e *model.QueueEntry, g ledger.Grant) model.Hold {
	now := rm.clock.Now()
	h := model.Hold{
		ID:              uuid.NewString(),
		EventID:         e.EventID,
		UserID:          e.UserID,
		ReservedTickets: g.Seats,
		GrantID:         g.ID,
		Status:          model.HoldOpen,
		CreatedAt:       now,
		ExpiresAt:       now.Add(rm.ttl),
	}
	r := &holdRecord{hold: h}
	id := h.ID
	r.timer = rm.clock.AfterFunc(rm.ttl, func() {
		if err := rm.ExpireIfDue(context.Background(), id); err != nil && !errors.Is(err, ErrHoldNotFound) {
			rm.logger.Error("hold expiry failed", "order_id", id, "error", err)
		}
	})
	rm.mu.Lock()
	rm.holds[id] = r
	rm.mu.Unlock()
	return h
}

// ExpireIfDue expires an OPEN hold whose TTL has elapsed.  Calling it again,
// or on a hold that already ended, does nothing.
func (rm *ReservationManager) ExpireIfDue(ctx context.Context, holdID string) error {
	r, ok := rm.record(holdID)
	if !ok {
		return ErrHoldNotFound
	}
	unlock := rm.locks.Lock(r.hold.EventID)
	notes, err := rm.expireLocked(ctx, r)
	unlock()
	dispatch(ctx, rm.notifier, rm.logger, notes)
	return err
}

func (rm *ReservationManager) expireLocked(ctx context.Context, r *holdRecord) ([]model.Notification, error) {
	h := r.hold
	now := rm.clock.Now()
	if h.Status != model.HoldOpen || !h.Due(now) {
		return nil, nil
	}
	if err := rm.ledger.Release(ctx, grantOf(h)); err != nil && !errors.Is(err, ledger.ErrGrantConsumed) {
		return nil, fmt.Errorf("release grant: %w", err)
	}
	rm.update(r, func(h *model.Hold) { h.Status = model.HoldExpired })
	r.timer.Stop()
	rm.queue.settleLocked(h.EventID, h.UserID, h.ID, model.QueueExpired)
	rm.logger.Info("hold expired", "event_id", h.EventID, "order_id", h.ID, "user_id", h.UserID, "tickets", h.ReservedTickets)

	notes := []model.Notification{{
		Kind:       model.NotifyHoldExpired,
		UserID:     h.UserID,
		EventID:    h.EventID,
		OrderID:    h.ID,
		OccurredAt: now,
	}}
	if l := rm.queue.line(h.EventID); l != nil {
		notes = append(notes, rm.queue.admitLocked(ctx, h.EventID, l)...)
	}
	return notes, nil
}

// cancelLocked ends an OPEN hold on behalf of its owner and returns the
// seats.  The queue entry is settled by the caller.
func (rm *ReservationManager) cancelLocked(ctx context.Context, holdID string) error {
	r, ok := rm.record(holdID)
	if !ok {
		return ErrHoldNotFound
	}
	h := r.hold
	if h.Status != model.HoldOpen {
		return ErrHoldNotOpen
	}
	if err := rm.ledger.Release(ctx, grantOf(h)); err != nil && !errors.Is(err, ledger.ErrGrantConsumed) {
		return fmt.Errorf("release grant: %w", err)
	}
	rm.update(r, func(h *model.Hold) { h.Status = model.HoldCancelled })
	r.timer.Stop()
	rm.logger.Info("hold cancelled", "event_id", h.EventID, "order_id", h.ID, "user_id", h.UserID)
	return nil
}

// Complete is the payment success path.  The first call for a key runs the
// completion and stores its response; later calls with the same key get
// that response back byte for byte, waiting if the first is still running.
// A hold past its TTL fails with ErrReservationExpired and commits nothing.
func (rm *ReservationManager) Complete(ctx context.Context, holdID, key string, proof model.PaymentProof) (Completion, error) {
	if holdID == "" || key == "" {
		return Completion{}, fmt.Errorf("%w: orderId and idempotencyKey are required", ErrInvalidRequest)
	}
	claim, snapshot, found, err := rm.idem.Begin(ctx, key)
	if err != nil {
		return Completion{}, fmt.Errorf("idempotency lookup: %w", err)
	}
	if found {
		var res model.CompletionResult
		if err := json.Unmarshal(snapshot, &res); err != nil {
			return Completion{}, fmt.Errorf("decode stored completion: %w", err)
		}
		if res.OrderID != holdID {
			return Completion{}, ErrIdempotencyKeyReuse
		}
		return Completion{Result: res, Snapshot: snapshot, Replayed: true}, nil
	}

	res, err := rm.complete(ctx, holdID, key, proof)
	if err != nil {
		if aerr := rm.idem.Abort(context.WithoutCancel(ctx), claim); aerr != nil {
			rm.logger.Warn("idempotency abort failed", "order_id", holdID, "error", aerr)
		}
		return Completion{}, err
	}
	snapshot, err = json.Marshal(res)
	if err != nil {
		_ = rm.idem.Abort(context.WithoutCancel(ctx), claim)
		return Completion{}, err
	}
	if err := rm.idem.Finish(context.WithoutCancel(ctx), claim, snapshot); err != nil {
		// The hold is closed under this key, so a retry recovers the same
		// tickets even though the snapshot was lost.
		rm.logger.Error("idempotency finish failed", "order_id", holdID, "error", err)
	}
	return Completion{Result: res, Snapshot: snapshot}, nil
}

func (rm *ReservationManager) complete(ctx context.Context, holdID, key string, proof model.PaymentProof) (model.CompletionResult, error) {
	r, ok := rm.record(holdID)
	if !ok {
		return model.CompletionResult{}, ErrHoldNotFound
	}
	unlock := rm.locks.Lock(r.hold.EventID)
	h := r.hold
	switch h.Status {
	case model.HoldOpen:
		if h.Due(rm.clock.Now()) {
			notes, err := rm.expireLocked(ctx, r)
			unlock()
			dispatch(ctx, rm.notifier, rm.logger, notes)
			if err != nil {
				return model.CompletionResult{}, err
			}
			return model.CompletionResult{}, ErrReservationExpired
		}
		if err := rm.ledger.Commit(ctx, grantOf(h)); err != nil && !errors.Is(err, ledger.ErrGrantConsumed) {
			unlock()
			return model.CompletionResult{}, fmt.Errorf("commit grant: %w", err)
		}
		rm.update(r, func(h *model.Hold) {
			h.Status = model.HoldClosed
			h.IdempotencyKey = key
		})
		r.timer.Stop()
		rm.queue.settleLocked(h.EventID, h.UserID, h.ID, model.QueueConsumed)
		h = r.hold
		rm.logger.Info("hold closed", "event_id", h.EventID, "order_id", h.ID, "user_id", h.UserID, "tickets", h.ReservedTickets)
	case model.HoldClosed:
		// A previous attempt with this key committed but did not finish.
		if h.IdempotencyKey != key {
			unlock()
			return model.CompletionResult{}, ErrHoldNotOpen
		}
	case model.HoldExpired:
		unlock()
		return model.CompletionResult{}, ErrReservationExpired
	default:
		unlock()
		return model.CompletionResult{}, ErrHoldNotOpen
	}
	unlock()

	refs, err := rm.issuer.Issue(ctx, h, proof)
	if err != nil {
		return model.CompletionResult{}, fmt.Errorf("issue tickets: %w", err)
	}
	unlock = rm.locks.Lock(h.EventID)
	rm.update(r, func(h *model.Hold) { h.TicketRefs = refs })
	unlock()

	dispatch(ctx, rm.notifier, rm.logger, []model.Notification{{
		Kind:       model.NotifyOrderCompleted,
		UserID:     h.UserID,
		EventID:    h.EventID,
		OrderID:    h.ID,
		Attributes: map[string]string{"tickets": strconv.Itoa(len(refs))},
		OccurredAt: rm.clock.Now(),
	}})
	return model.CompletionResult{
		OrderID:          h.ID,
		Message:          fmt.Sprintf("%d ticket(s) issued", len(refs)),
		IssuedTicketRefs: refs,
	}, nil
}

// SweepExpired expires every OPEN hold past its TTL.  It backs up the
// per-hold timers.
func (rm *ReservationManager) SweepExpired(ctx context.Context) int {
	now := rm.clock.Now()
	var due []string
	rm.mu.RLock()
	for id, r := range rm.holds {
		if r.hold.Status == model.HoldOpen && r.hold.Due(now) {
			due = append(due, id)
		}
	}
	rm.mu.RUnlock()

	expired := 0
	for _, id := range due {
		if err := rm.ExpireIfDue(ctx, id); err != nil {
			rm.logger.Error("sweep expiry failed", "order_id", id, "error", err)
			continue
		}
		if h, ok := rm.lookup(id); ok && h.Status == model.HoldExpired {
			expired++
		}
	}
	return expired
}

// OpenOrdersForUser lists the user's OPEN holds, oldest first.
func (rm *ReservationManager) OpenOrdersForUser(_ context.Context, userID string) []model.Hold {
	rm.mu.RLock()
	var out []model.Hold
	for _, r := range rm.holds {
		if r.hold.UserID == userID && r.hold.Status == model.HoldOpen {
			out = append(out, r.hold)
		}
	}
	rm.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Prune forgets holds that ended before the cutoff.
func (rm *ReservationManager) Prune(before time.Time) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	n := 0
	for id, r := range rm.holds {
		if r.hold.Status != model.HoldOpen && r.hold.ExpiresAt.Before(before) {
			delete(rm.holds, id)
			n++
		}
	}
	return n
}
