package service

import "errors"

// Errors returned by the admission, reservation and resale operations.
// Every one of them is recoverable by the caller; ledger invariant
// violations are never translated into one of these.
var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrCapacityExceeded    = errors.New("capacity exceeded")
	ErrAlreadyQueued       = errors.New("already queued for this event")
	ErrNotQueued           = errors.New("not queued for this event")
	ErrEventNotFound       = errors.New("event not found")
	ErrEventNotOpen        = errors.New("event is not open for sale")
	ErrHoldNotFound        = errors.New("order not found")
	ErrHoldNotOpen         = errors.New("order is no longer open")
	ErrReservationExpired  = errors.New("reservation expired")
	ErrIdempotencyKeyReuse = errors.New("idempotency key already used for another order")

	ErrTicketNotFound      = errors.New("ticket not found")
	ErrTicketNotAvailable  = errors.New("ticket is not available")
	ErrNotTicketOwner      = errors.New("ticket is owned by another user")
	ErrOfferNotFound       = errors.New("offer not found")
	ErrOfferNotOpen        = errors.New("offer is not open")
	ErrOfferAlreadyMatched = errors.New("offer already matched")
	ErrSelfMatch           = errors.New("seller cannot buy own offer")
	ErrDuplicateInterest   = errors.New("interest already registered")
	ErrSelfTransfer        = errors.New("cannot transfer a ticket to its owner")

	// ErrInsufficientInterest is the reason attached to a resale outcome
	// that ended without buyers.  It is never returned as an error.
	ErrInsufficientInterest = errors.New("no interest registered")
)
