package model

import "time"

// QueueState is the lifecycle state of a queue entry.
type QueueState string

const (
	QueueNone      QueueState = "NONE"
	QueueWaiting   QueueState = "WAITING"
	QueueCanBuy    QueueState = "CAN_BUY"
	QueueExpired   QueueState = "EXPIRED"
	QueueCancelled QueueState = "CANCELLED"
	QueueConsumed  QueueState = "CONSUMED"
)

// Active reports whether the state still occupies a place in the queue.
func (s QueueState) Active() bool { return s == QueueWaiting || s == QueueCanBuy }

// QueueEntry is one user's request to buy tickets for an event.  Entries
// are ordered by Sequence only; EnqueuedAt is informational.
type QueueEntry struct {
	EventID          int64      `json:"eventId"`
	UserID           string     `json:"userId"`
	RequestedTickets int        `json:"requestedTickets"`
	Sequence         uint64     `json:"sequence"`
	EnqueuedAt       time.Time  `json:"enqueuedAt"`
	State            QueueState `json:"state"`
	HoldID           string     `json:"holdId,omitempty"`
}

// QueueStatus is the polled view of a user's place in an event queue.
// State is only ever NONE, WAITING or CAN_BUY.  Position is 1-based and
// only set while WAITING; LastOutcome tells how a settled entry ended.
type QueueStatus struct {
	EventID         int64      `json:"eventId"`
	EventName       string     `json:"eventName,omitempty"`
	VenueName       string     `json:"venueName,omitempty"`
	City            string     `json:"city,omitempty"`
	State           QueueState `json:"state"`
	Position        *int       `json:"position,omitempty"`
	PeopleAhead     *int       `json:"peopleAhead,omitempty"`
	OrderID         string     `json:"orderId,omitempty"`
	ReservedTickets *int       `json:"reservedTickets,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	LastOutcome     QueueState `json:"lastOutcome,omitempty"`
}
