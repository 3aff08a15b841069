// Package queue defines message payloads exchanged over the message broker.
package queue

import (
    "sort"
    "time"

    "github.com/iliyamo/fair-ticketing/internal/model"
)

// NotificationsQueue is the durable queue carrying user notifications.
const NotificationsQueue = "ticketing.notifications"

// NotificationMessage is published for every engine notification.  It
// carries enough information for downstream consumers to deliver, log or
// analyse the notification without querying the engine.
type NotificationMessage struct {
    Kind       string            `json:"kind"`
    UserID     string            `json:"user_id"`
    EventID    int64             `json:"event_id,omitempty"`
    OrderID    string            `json:"order_id,omitempty"`
    OfferID    int64             `json:"offer_id,omitempty"`
    TicketID   int64             `json:"ticket_id,omitempty"`
    Attributes map[string]string `json:"attributes,omitempty"`
    OccurredAt string            `json:"occurred_at"`
}

// FromNotification converts a model notification into its wire payload.
func FromNotification(n model.Notification) NotificationMessage {
    at := n.OccurredAt
    if at.IsZero() {
        at = time.Now()
    }
    return NotificationMessage{
        Kind:       string(n.Kind),
        UserID:     n.UserID,
        EventID:    n.EventID,
        OrderID:    n.OrderID,
        OfferID:    n.OfferID,
        TicketID:   n.TicketID,
        Attributes: n.Attributes,
        OccurredAt: at.UTC().Format(time.RFC3339),
    }
}

// attributeKeys returns the attribute names in a stable order.
func (m NotificationMessage) attributeKeys() []string {
    keys := make([]string, 0, len(m.Attributes))
    for k := range m.Attributes {
        keys = append(keys, k)
    }
    sort.Strings(keys)
    return keys
}
