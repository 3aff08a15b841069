package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventStatus is the publication state of an event.
type EventStatus string

const (
	EventDraft     EventStatus = "DRAFT"
	EventPublished EventStatus = "PUBLISHED"
	EventClosed    EventStatus = "CLOSED"
)

// Event is a ticketed event with a fixed seat capacity.  Only the status
// and a capacity increase may change once the event is published.
//
// Fields:
//  ID                  – primary key identifier.
//  Name, VenueName, City – display data echoed in queue and offer DTOs.
//  TicketPrice         – face price of one ticket.
//  TotalSeats          – seat capacity backing the event's ledger.
//  MaxTicketsPerPerson – upper bound for a single queue request.
//  Status              – DRAFT, PUBLISHED or CLOSED.
type Event struct {
	ID                  int64           `json:"id"`
	Name                string          `json:"name"`
	VenueName           string          `json:"venueName,omitempty"`
	City                string          `json:"city,omitempty"`
	TicketPrice         decimal.Decimal `json:"ticketPrice"`
	TotalSeats          int             `json:"totalSeats"`
	MaxTicketsPerPerson int             `json:"maxTicketsPerPerson"`
	Status              EventStatus     `json:"status"`
	CreatedAt           time.Time       `json:"createdAt"`
}

// Open reports whether the event accepts queue joins.
func (e Event) Open() bool { return e.Status == EventPublished }
