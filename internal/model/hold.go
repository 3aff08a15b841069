package model

import "time"

// HoldStatus is the lifecycle state of a hold.
type HoldStatus string

const (
	HoldOpen      HoldStatus = "OPEN"
	HoldClosed    HoldStatus = "CLOSED"
	HoldExpired   HoldStatus = "EXPIRED"
	HoldCancelled HoldStatus = "CANCELLED"
)

// Hold is a time-boxed reservation of seats backing a pending order.  It
// is created only when a queue entry is admitted and its ID doubles as the
// public order id.
//
// Fields:
//  ID              – opaque identifier returned to the client as orderId.
//  EventID, UserID – owner of the originating queue entry.
//  ReservedTickets – seats covered by the ledger grant.
//  GrantID         – ledger grant consumed when the hold terminates.
//  ExpiresAt       – CreatedAt plus the configured hold TTL.
//  IdempotencyKey  – key of the completion that closed the hold.
//  TicketRefs      – serials issued once the hold is closed.
type Hold struct {
	ID              string     `json:"orderId"`
	EventID         int64      `json:"eventId"`
	UserID          string     `json:"userId"`
	ReservedTickets int        `json:"numberOfTickets"`
	GrantID         string     `json:"-"`
	Status          HoldStatus `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	IdempotencyKey  string     `json:"-"`
	TicketRefs      []string   `json:"-"`
}

// Due reports whether the hold is past its expiry at now.
func (h Hold) Due(now time.Time) bool { return !now.Before(h.ExpiresAt) }

// PaymentProof is the payment provider's confirmation forwarded with a
// completion request.  The engine does not interpret it.
type PaymentProof struct {
	Method          string `json:"method,omitempty"`
	PaymentMethodID string `json:"paymentMethodId,omitempty"`
}

// CompletionResult is the response of a successful order completion.  Its
// JSON encoding is stored verbatim as the idempotency snapshot.
type CompletionResult struct {
	OrderID          string   `json:"orderId"`
	Message          string   `json:"message"`
	IssuedTicketRefs []string `json:"issuedTicketRefs"`
}
