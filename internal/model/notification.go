package model

import "time"

// NotificationKind names the engine events forwarded to the notification
// collaborator.
type NotificationKind string

const (
	NotifyPromoted       NotificationKind = "queue.promoted"
	NotifySoldOut        NotificationKind = "queue.sold_out"
	NotifyHoldExpired    NotificationKind = "hold.expired"
	NotifyOrderCompleted NotificationKind = "order.completed"
	NotifyResaleMatched  NotificationKind = "resale.matched"
	NotifyResaleLost     NotificationKind = "resale.no_match"
	NotifyResaleExpired  NotificationKind = "resale.expired"
	NotifyResaleSold     NotificationKind = "resale.sold"
	NotifyTransferred    NotificationKind = "ticket.transferred"
)

// Notification is a single message for one user.
type Notification struct {
	Kind       NotificationKind  `json:"kind"`
	UserID     string            `json:"userId"`
	EventID    int64             `json:"eventId,omitempty"`
	OrderID    string            `json:"orderId,omitempty"`
	OfferID    int64             `json:"offerId,omitempty"`
	TicketID   int64             `json:"ticketId,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}
