package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OfferStatus is the lifecycle state of a resale offer.
type OfferStatus string

const (
	OfferOpen      OfferStatus = "OPEN"
	OfferMatched   OfferStatus = "MATCHED"
	OfferCancelled OfferStatus = "CANCELLED"
	OfferExpired   OfferStatus = "EXPIRED"
)

// ResaleOffer lists an issued ticket for resale.  BuyerPrice already
// includes the platform fee.  The event display fields are copied when the
// offer is created.
type ResaleOffer struct {
	ID            int64           `json:"offerId"`
	TicketID      int64           `json:"ticketId"`
	EventID       int64           `json:"eventId"`
	EventName     string          `json:"eventName,omitempty"`
	VenueName     string          `json:"venueName,omitempty"`
	City          string          `json:"city,omitempty"`
	SellerID      string          `json:"sellerId"`
	SellerPrice   decimal.Decimal `json:"sellerPrice"`
	BuyerPrice    decimal.Decimal `json:"buyerPrice"`
	Status        OfferStatus     `json:"status"`
	BuyerID       string          `json:"buyerId,omitempty"`
	InterestCount int             `json:"interestCount"`
	CreatedAt     time.Time       `json:"createdAt"`
	ExpiresAt     time.Time       `json:"expiresAt"`
	ClosedAt      *time.Time      `json:"closedAt,omitempty"`
}

// ResaleInterest is a buyer's registration for an offer's lottery.
type ResaleInterest struct {
	OfferID      int64     `json:"offerId"`
	BuyerID      string    `json:"buyerId"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// ResaleOutcome reports how an offer resolution ended.  Reason is set when
// the offer expired without a match.
type ResaleOutcome struct {
	Offer  ResaleOffer `json:"offer"`
	Winner string      `json:"winner,omitempty"`
	Losers []string    `json:"-"`
	Reason error       `json:"-"`
}
