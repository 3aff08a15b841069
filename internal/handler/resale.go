package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/fair-ticketing/internal/middleware"
	"github.com/iliyamo/fair-ticketing/internal/model"
	"github.com/iliyamo/fair-ticketing/internal/service"
)

// ResaleHandler exposes the resale market.
type ResaleHandler struct {
	Market *service.ResaleMarket
	Logger *slog.Logger
}

func NewResaleHandler(m *service.ResaleMarket, logger *slog.Logger) *ResaleHandler {
	if m == nil {
		panic("nil market passed to NewResaleHandler")
	}
	return &ResaleHandler{Market: m, Logger: logger}
}

type offerRequest struct {
	TicketID    int64            `json:"ticketId" validate:"required,gt=0"`
	SellerPrice *decimal.Decimal `json:"sellerPrice"`
}

// CreateOffer handles POST /api/v1/tickets/resale/offer.
func (h *ResaleHandler) CreateOffer(c echo.Context) error {
	var req offerRequest
	if err := bindValid(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	offer, err := h.Market.CreateOffer(c.Request().Context(), req.TicketID, middleware.UserID(c), req.SellerPrice)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusCreated, offer)
}

// ListOffers handles GET /api/v1/tickets/resale/offers.
func (h *ResaleHandler) ListOffers(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Market.ListOpenOffers(c.Request().Context()))
}

// offerView adds the caller's lottery result to an offer.
type offerView struct {
	model.ResaleOffer
	Won bool `json:"won"`
}

// GetOffer handles GET /api/v1/tickets/resale/offers/:id.
func (h *ResaleHandler) GetOffer(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid offer id")
	}
	offer, err := h.Market.GetOffer(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	me := middleware.UserID(c)
	return c.JSON(http.StatusOK, offerView{
		ResaleOffer: offer,
		Won:         offer.Status == model.OfferMatched && offer.BuyerID == me,
	})
}

// CancelOffer handles DELETE /api/v1/tickets/resale/offers/:id.
func (h *ResaleHandler) CancelOffer(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid offer id")
	}
	if err := h.Market.CancelOffer(c.Request().Context(), id, middleware.UserID(c)); err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type transferRequest struct {
	TicketID    int64  `json:"ticketId" validate:"required,gt=0"`
	RecipientID string `json:"recipientId" validate:"required"`
}

// Transfer handles POST /api/v1/tickets/transfer.
func (h *ResaleHandler) Transfer(c echo.Context) error {
	var req transferRequest
	if err := bindValid(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	t, err := h.Market.Transfer(c.Request().Context(), req.TicketID, middleware.UserID(c), req.RecipientID)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, t)
}

type interestRequest struct {
	OfferID int64 `json:"offerId" validate:"required,gt=0"`
}

// RegisterInterest handles POST /api/v1/tickets/resale/interest.
func (h *ResaleHandler) RegisterInterest(c echo.Context) error {
	var req interestRequest
	if err := bindValid(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.Market.RegisterInterest(c.Request().Context(), req.OfferID, middleware.UserID(c)); err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type outcomeView struct {
	Offer  model.ResaleOffer `json:"offer"`
	Winner string            `json:"winner,omitempty"`
	Reason string            `json:"reason,omitempty"`
}

// Resolve handles POST /api/v1/admin/resale/offers/:id/resolve and runs
// the lottery before the window closes.
func (h *ResaleHandler) Resolve(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid offer id")
	}
	out, err := h.Market.Resolve(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	view := outcomeView{Offer: out.Offer, Winner: out.Winner}
	if out.Reason != nil {
		view.Reason = out.Reason.Error()
	}
	return c.JSON(http.StatusOK, view)
}
