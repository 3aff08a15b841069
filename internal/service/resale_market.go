package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/fair-ticketing/internal/model"
	"github.com/iliyamo/fair-ticketing/internal/repository"
)

const DefaultResaleWindow = 15 * time.Minute

// DefaultFeeRate is the platform fee added to the seller price.
var DefaultFeeRate = decimal.RequireFromString("0.03")

// MarketOptions configure the resale lottery.  An offer resolves when its
// window elapses or, if Threshold is positive, once that many buyers have
// registered, whichever comes first.
type MarketOptions struct {
	FeeRate   decimal.Decimal
	Window    time.Duration
	Threshold int
	// Random is the source of the draw; crypto/rand when nil.
	Random io.Reader
}

// ResaleMarket lists issued tickets and gives each offer to one buyer
// drawn uniformly from the interests registered when it resolves.
type ResaleMarket struct {
	tickets  TicketStore
	events   EventStore
	notifier Notifier
	clock    clockwork.Clock
	logger   *slog.Logger
	opts     MarketOptions
	locks    keyedMutex[int64]

	mu       sync.RWMutex
	nextID   int64
	offers   map[int64]*offerBook
	byTicket map[int64]int64 // ticket id -> OPEN offer id
}

// offerBook is one offer and its interest pool.  interests is only touched
// under the offer lock; offer is also published under mu.
type offerBook struct {
	offer     model.ResaleOffer
	interests []model.ResaleInterest
	buyers    map[string]struct{}
	timer     clockwork.Timer
}

// NewResaleMarket returns an empty market.
func NewResaleMarket(tickets TicketStore, events EventStore, notifier Notifier, clock clockwork.Clock, logger *slog.Logger, opts MarketOptions) *ResaleMarket {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	if opts.Window <= 0 {
		opts.Window = DefaultResaleWindow
	}
	if opts.FeeRate.IsNegative() {
		opts.FeeRate = DefaultFeeRate
	}
	if opts.Random == nil {
		opts.Random = rand.Reader
	}
	return &ResaleMarket{
		tickets:  tickets,
		events:   events,
		notifier: notifier,
		clock:    clock,
		logger:   logger.With("component", "resale"),
		opts:     opts,
		offers:   make(map[int64]*offerBook),
		byTicket: make(map[int64]int64),
	}
}

// BuyerPrice applies the fee rate and rounds to cents.
func BuyerPrice(sellerPrice, feeRate decimal.Decimal) decimal.Decimal {
	return sellerPrice.Mul(decimal.NewFromInt(1).Add(feeRate)).Round(2)
}

func (m *ResaleMarket) book(offerID int64) (*offerBook, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.offers[offerID]
	return b, ok
}

func (m *ResaleMarket) publish(b *offerBook, fn func(o *model.ResaleOffer)) {
	m.mu.Lock()
	fn(&b.offer)
	if b.offer.Status != model.OfferOpen && m.byTicket[b.offer.TicketID] == b.offer.ID {
		delete(m.byTicket, b.offer.TicketID)
	}
	m.mu.Unlock()
}

// CreateOffer lists a ticket owned by the seller.  A nil price lists the
// ticket at its face price.
func (m *ResaleMarket) CreateOffer(ctx context.Context, ticketID int64, sellerID string, sellerPrice *decimal.Decimal) (model.ResaleOffer, error) {
	t, err := m.tickets.Get(ctx, ticketID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.ResaleOffer{}, ErrTicketNotFound
	}
	if err != nil {
		return model.ResaleOffer{}, err
	}
	if t.OwnerID != sellerID {
		return model.ResaleOffer{}, ErrNotTicketOwner
	}
	if t.Status != model.TicketAvailable {
		return model.ResaleOffer{}, ErrTicketNotAvailable
	}
	price := t.Price
	if sellerPrice != nil {
		price = *sellerPrice
	}
	if !price.IsPositive() {
		return model.ResaleOffer{}, fmt.Errorf("%w: sellerPrice must be positive", ErrInvalidRequest)
	}

	now := m.clock.Now()
	m.mu.Lock()
	if _, open := m.byTicket[ticketID]; open {
		m.mu.Unlock()
		return model.ResaleOffer{}, ErrTicketNotAvailable
	}
	m.nextID++
	id := m.nextID
	m.byTicket[ticketID] = id
	m.mu.Unlock()

	err = m.tickets.Transition(ctx, ticketID,
		model.TicketState{OwnerID: sellerID, Status: model.TicketAvailable},
		model.TicketState{OwnerID: sellerID, Status: model.TicketResale})
	if err != nil {
		m.mu.Lock()
		delete(m.byTicket, ticketID)
		m.mu.Unlock()
		if errors.Is(err, repository.ErrConflict) {
			return model.ResaleOffer{}, ErrTicketNotAvailable
		}
		return model.ResaleOffer{}, err
	}

	offer := model.ResaleOffer{
		ID:          id,
		TicketID:    ticketID,
		EventID:     t.EventID,
		SellerID:    sellerID,
		SellerPrice: price,
		BuyerPrice:  BuyerPrice(price, m.opts.FeeRate),
		Status:      model.OfferOpen,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.opts.Window),
	}
	if ev, err := m.events.Get(ctx, t.EventID); err == nil {
		offer.EventName, offer.VenueName, offer.City = ev.Name, ev.VenueName, ev.City
	}
	b := &offerBook{offer: offer, buyers: make(map[string]struct{})}
	unlock := m.locks.Lock(id)
	m.mu.Lock()
	m.offers[id] = b
	m.mu.Unlock()
	b.timer = m.clock.AfterFunc(m.opts.Window, func() {
		if _, err := m.Resolve(context.Background(), id); err != nil &&
			!errors.Is(err, ErrOfferNotOpen) && !errors.Is(err, ErrOfferAlreadyMatched) {
			m.logger.Error("timed resolution failed", "offer_id", id, "error", err)
		}
	})
	unlock()

	m.logger.Info("offer created", "offer_id", id, "ticket_id", ticketID, "seller_id", sellerID,
		"seller_price", price.String(), "buyer_price", offer.BuyerPrice.String())
	return offer, nil
}

// RegisterInterest adds a buyer to the offer's pool.  Reaching the
// configured threshold resolves the offer before returning.
func (m *ResaleMarket) RegisterInterest(ctx context.Context, offerID int64, buyerID string) error {
	if buyerID == "" {
		return ErrInvalidRequest
	}
	b, ok := m.book(offerID)
	if !ok {
		return ErrOfferNotFound
	}
	unlock := m.locks.Lock(offerID)
	if err := openErr(b.offer.Status); err != nil {
		unlock()
		return err
	}
	if buyerID == b.offer.SellerID {
		unlock()
		return ErrSelfMatch
	}
	if _, dup := b.buyers[buyerID]; dup {
		unlock()
		return ErrDuplicateInterest
	}
	b.buyers[buyerID] = struct{}{}
	b.interests = append(b.interests, model.ResaleInterest{OfferID: offerID, BuyerID: buyerID, RegisteredAt: m.clock.Now()})
	m.publish(b, func(o *model.ResaleOffer) { o.InterestCount = len(b.interests) })

	var notes []model.Notification
	if m.opts.Threshold > 0 && len(b.interests) >= m.opts.Threshold {
		_, n, err := m.resolveLocked(ctx, b)
		if err != nil {
			m.logger.Error("threshold resolution failed", "offer_id", offerID, "error", err)
		}
		notes = n
	}
	unlock()
	dispatch(ctx, m.notifier, m.logger, notes)
	return nil
}

// Resolve runs the lottery for an OPEN offer now.
func (m *ResaleMarket) Resolve(ctx context.Context, offerID int64) (model.ResaleOutcome, error) {
	b, ok := m.book(offerID)
	if !ok {
		return model.ResaleOutcome{}, ErrOfferNotFound
	}
	unlock := m.locks.Lock(offerID)
	if err := openErr(b.offer.Status); err != nil {
		unlock()
		return model.ResaleOutcome{}, err
	}
	out, notes, err := m.resolveLocked(ctx, b)
	unlock()
	dispatch(ctx, m.notifier, m.logger, notes)
	return out, err
}

// resolveLocked draws the winner from a copy of the interest pool taken
// before the draw.  With no interest the ticket goes back to the seller and
// the offer expires.
func (m *ResaleMarket) resolveLocked(ctx context.Context, b *offerBook) (model.ResaleOutcome, []model.Notification, error) {
	offer := b.offer
	pool := append([]model.ResaleInterest(nil), b.interests...)
	now := m.clock.Now()
	listed := model.TicketState{OwnerID: offer.SellerID, Status: model.TicketResale}

	if len(pool) == 0 {
		err := m.tickets.Transition(ctx, offer.TicketID, listed,
			model.TicketState{OwnerID: offer.SellerID, Status: model.TicketAvailable})
		if err != nil {
			return model.ResaleOutcome{}, nil, fmt.Errorf("revert ticket %d: %w", offer.TicketID, err)
		}
		m.finish(b, model.OfferExpired, "")
		m.logger.Info("offer expired without interest", "offer_id", offer.ID, "ticket_id", offer.TicketID)
		return model.ResaleOutcome{Offer: b.offer, Reason: ErrInsufficientInterest},
			[]model.Notification{{
				Kind: model.NotifyResaleExpired, UserID: offer.SellerID, EventID: offer.EventID,
				OfferID: offer.ID, TicketID: offer.TicketID, OccurredAt: now,
			}}, nil
	}

	idx, err := draw(m.opts.Random, len(pool))
	if err != nil {
		return model.ResaleOutcome{}, nil, fmt.Errorf("draw winner: %w", err)
	}
	winner := pool[idx].BuyerID
	err = m.tickets.Transition(ctx, offer.TicketID, listed,
		model.TicketState{OwnerID: winner, Status: model.TicketAvailable})
	if err != nil {
		return model.ResaleOutcome{}, nil, fmt.Errorf("transfer ticket %d: %w", offer.TicketID, err)
	}
	m.finish(b, model.OfferMatched, winner)

	out := model.ResaleOutcome{Offer: b.offer, Winner: winner}
	notes := []model.Notification{
		{Kind: model.NotifyResaleMatched, UserID: winner, EventID: offer.EventID, OfferID: offer.ID,
			TicketID: offer.TicketID, Attributes: map[string]string{"buyerPrice": offer.BuyerPrice.StringFixed(2)}, OccurredAt: now},
		{Kind: model.NotifyResaleSold, UserID: offer.SellerID, EventID: offer.EventID, OfferID: offer.ID,
			TicketID: offer.TicketID, OccurredAt: now},
	}
	for _, in := range pool {
		if in.BuyerID == winner {
			continue
		}
		out.Losers = append(out.Losers, in.BuyerID)
		notes = append(notes, model.Notification{Kind: model.NotifyResaleLost, UserID: in.BuyerID,
			EventID: offer.EventID, OfferID: offer.ID, OccurredAt: now})
	}
	m.logger.Info("offer matched", "offer_id", offer.ID, "ticket_id", offer.TicketID,
		"winner", winner, "pool", len(pool))
	return out, notes, nil
}

// finish moves the offer to a terminal state and drops its interests.
func (m *ResaleMarket) finish(b *offerBook, status model.OfferStatus, buyer string) {
	b.interests = nil
	b.buyers = map[string]struct{}{}
	if b.timer != nil {
		b.timer.Stop()
	}
	closed := m.clock.Now()
	m.publish(b, func(o *model.ResaleOffer) {
		o.Status = status
		o.BuyerID = buyer
		o.ClosedAt = &closed
	})
}

// draw returns a uniform index in [0, n).
func draw(r io.Reader, n int) (int, error) {
	v, err := rand.Int(r, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// ResolveDue resolves every OPEN offer whose window has elapsed.  It backs
// up the per-offer timers.
func (m *ResaleMarket) ResolveDue(ctx context.Context) int {
	now := m.clock.Now()
	var due []int64
	m.mu.RLock()
	for id, b := range m.offers {
		if b.offer.Status == model.OfferOpen && !now.Before(b.offer.ExpiresAt) {
			due = append(due, id)
		}
	}
	m.mu.RUnlock()
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })

	resolved := 0
	for _, id := range due {
		if _, err := m.Resolve(ctx, id); err != nil {
			if !errors.Is(err, ErrOfferNotOpen) && !errors.Is(err, ErrOfferAlreadyMatched) {
				m.logger.Error("due resolution failed", "offer_id", id, "error", err)
			}
			continue
		}
		resolved++
	}
	return resolved
}

// CancelOffer withdraws an OPEN offer.  Only the seller may cancel.
func (m *ResaleMarket) CancelOffer(ctx context.Context, offerID int64, sellerID string) error {
	b, ok := m.book(offerID)
	if !ok {
		return ErrOfferNotFound
	}
	unlock := m.locks.Lock(offerID)
	offer := b.offer
	if offer.SellerID != sellerID {
		unlock()
		return ErrNotTicketOwner
	}
	if err := openErr(offer.Status); err != nil {
		unlock()
		return err
	}
	err := m.tickets.Transition(ctx, offer.TicketID,
		model.TicketState{OwnerID: sellerID, Status: model.TicketResale},
		model.TicketState{OwnerID: sellerID, Status: model.TicketAvailable})
	if err != nil {
		unlock()
		return fmt.Errorf("revert ticket %d: %w", offer.TicketID, err)
	}
	pool := b.interests
	m.finish(b, model.OfferCancelled, "")
	unlock()

	now := m.clock.Now()
	notes := make([]model.Notification, 0, len(pool))
	for _, in := range pool {
		notes = append(notes, model.Notification{Kind: model.NotifyResaleLost, UserID: in.BuyerID,
			EventID: offer.EventID, OfferID: offer.ID, OccurredAt: now})
	}
	m.logger.Info("offer cancelled", "offer_id", offerID, "ticket_id", offer.TicketID)
	dispatch(ctx, m.notifier, m.logger, notes)
	return nil
}

// Transfer hands an AVAILABLE ticket to another user.  A ticket with an
// open offer cannot be transferred until the offer ends.
func (m *ResaleMarket) Transfer(ctx context.Context, ticketID int64, ownerID, recipientID string) (model.Ticket, error) {
	if recipientID == "" {
		return model.Ticket{}, fmt.Errorf("%w: recipientId is required", ErrInvalidRequest)
	}
	if recipientID == ownerID {
		return model.Ticket{}, ErrSelfTransfer
	}
	t, err := m.tickets.Get(ctx, ticketID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Ticket{}, ErrTicketNotFound
	}
	if err != nil {
		return model.Ticket{}, err
	}
	if t.OwnerID != ownerID {
		return model.Ticket{}, ErrNotTicketOwner
	}
	m.mu.RLock()
	_, listed := m.byTicket[ticketID]
	m.mu.RUnlock()
	if listed || t.Status != model.TicketAvailable {
		return model.Ticket{}, ErrTicketNotAvailable
	}

	err = m.tickets.Transition(ctx, ticketID,
		model.TicketState{OwnerID: ownerID, Status: model.TicketAvailable},
		model.TicketState{OwnerID: recipientID, Status: model.TicketAvailable})
	if errors.Is(err, repository.ErrConflict) {
		return model.Ticket{}, ErrTicketNotAvailable
	}
	if err != nil {
		return model.Ticket{}, err
	}
	t.OwnerID = recipientID

	m.logger.Info("ticket transferred", "ticket_id", ticketID, "from", ownerID, "to", recipientID)
	dispatch(ctx, m.notifier, m.logger, []model.Notification{{
		Kind: model.NotifyTransferred, UserID: recipientID, EventID: t.EventID, TicketID: ticketID,
		Attributes: map[string]string{"from": ownerID}, OccurredAt: m.clock.Now(),
	}})
	return t, nil
}

// Recover puts tickets left in RESALE by a previous process back on sale
// under their owner.  Offers are not persisted, so no such ticket has an
// offer after a restart.
func (m *ResaleMarket) Recover(ctx context.Context) (int, error) {
	stuck, err := m.tickets.ListByStatus(ctx, model.TicketResale)
	if err != nil {
		return 0, fmt.Errorf("list listed tickets: %w", err)
	}
	n := 0
	for _, t := range stuck {
		m.mu.RLock()
		_, open := m.byTicket[t.ID]
		m.mu.RUnlock()
		if open {
			continue
		}
		err := m.tickets.Transition(ctx, t.ID,
			model.TicketState{OwnerID: t.OwnerID, Status: model.TicketResale},
			model.TicketState{OwnerID: t.OwnerID, Status: model.TicketAvailable})
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		if err != nil {
			return n, fmt.Errorf("revert ticket %d: %w", t.ID, err)
		}
		n++
	}
	if n > 0 {
		m.logger.Info("reverted tickets listed by previous run", "tickets", n)
	}
	return n, nil
}

// Prune forgets offers that ended before the cutoff.
func (m *ResaleMarket) Prune(before time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, b := range m.offers {
		if b.offer.ClosedAt != nil && b.offer.ClosedAt.Before(before) {
			delete(m.offers, id)
			n++
		}
	}
	return n
}

// ListOpenOffers returns the OPEN offers, oldest first.
func (m *ResaleMarket) ListOpenOffers(_ context.Context) []model.ResaleOffer {
	m.mu.RLock()
	out := make([]model.ResaleOffer, 0, len(m.byTicket))
	for _, b := range m.offers {
		if b.offer.Status == model.OfferOpen {
			out = append(out, b.offer)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetOffer returns one offer in any state.
func (m *ResaleMarket) GetOffer(_ context.Context, offerID int64) (model.ResaleOffer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.offers[offerID]
	if !ok {
		return model.ResaleOffer{}, ErrOfferNotFound
	}
	return b.offer, nil
}

func openErr(s model.OfferStatus) error {
	switch s {
	case model.OfferOpen:
		return nil
	case model.OfferMatched:
		return ErrOfferAlreadyMatched
	default:
		return ErrOfferNotOpen
	}
}
