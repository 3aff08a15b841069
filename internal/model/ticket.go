package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketStatus is the state of an issued ticket.
type TicketStatus string

const (
	TicketAvailable TicketStatus = "AVAILABLE"
	TicketResale    TicketStatus = "RESALE"
	TicketUsed      TicketStatus = "USED"
	TicketExpired   TicketStatus = "EXPIRED"
)

// Ticket is an issued ticket.  Serial is the reference handed back to the
// buyer on order completion.
type Ticket struct {
	ID        int64           `json:"id"`
	Serial    string          `json:"serial"`
	EventID   int64           `json:"eventId"`
	OrderID   string          `json:"orderId"`
	OwnerID   string          `json:"ownerId"`
	Price     decimal.Decimal `json:"price"`
	Status    TicketStatus    `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
}

// TicketState is the pair of fields guarded by ticket compare-and-set
// transitions.
type TicketState struct {
	OwnerID string
	Status  TicketStatus
}
