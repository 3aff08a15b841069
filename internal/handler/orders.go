package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fair-ticketing/internal/middleware"
	"github.com/iliyamo/fair-ticketing/internal/model"
	"github.com/iliyamo/fair-ticketing/internal/service"
)

// HeaderIdempotencyKey may carry the completion key instead of the body.
const HeaderIdempotencyKey = "Idempotency-Key"

// OrderHandler completes holds and lists what a buyer owns.
type OrderHandler struct {
	Reservations *service.ReservationManager
	Tickets      service.TicketStore
	Logger       *slog.Logger
}

func NewOrderHandler(rm *service.ReservationManager, tickets service.TicketStore, logger *slog.Logger) *OrderHandler {
	if rm == nil || tickets == nil {
		panic("nil dependency passed to NewOrderHandler")
	}
	return &OrderHandler{Reservations: rm, Tickets: tickets, Logger: logger}
}

type completeRequest struct {
	OrderID         string `json:"orderId" validate:"required"`
	IdempotencyKey  string `json:"idempotencyKey" validate:"max=128"`
	PaymentMethodID string `json:"paymentMethodId"`
	Method          string `json:"method"`
}

// Complete handles POST /api/v1/tickets/order.  The body of the first
// successful call for an idempotency key is replayed verbatim on retries.
func (h *OrderHandler) Complete(c echo.Context) error {
	var req completeRequest
	if err := bindValid(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = strings.TrimSpace(c.Request().Header.Get(HeaderIdempotencyKey))
	}
	if key == "" {
		return badRequest(c, "idempotencyKey is required")
	}

	hold, err := h.Reservations.Get(req.OrderID)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	if hold.UserID != middleware.UserID(c) {
		return respondError(c, h.Logger, service.ErrHoldNotFound)
	}

	done, err := h.Reservations.Complete(c.Request().Context(), req.OrderID, key,
		model.PaymentProof{Method: req.Method, PaymentMethodID: req.PaymentMethodID})
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	if done.Replayed {
		c.Response().Header().Set("Idempotent-Replayed", "true")
	}
	return c.JSONBlob(http.StatusOK, done.Snapshot)
}

// OpenOrders handles GET /api/v1/orders/user/:userId.
func (h *OrderHandler) OpenOrders(c echo.Context) error {
	orders := h.Reservations.OpenOrdersForUser(c.Request().Context(), c.Param("userId"))
	if orders == nil {
		orders = []model.Hold{}
	}
	return c.JSON(http.StatusOK, orders)
}

// MyTickets handles GET /api/v1/tickets/mine.
func (h *OrderHandler) MyTickets(c echo.Context) error {
	tickets, err := h.Tickets.ListByOwner(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	if tickets == nil {
		tickets = []model.Ticket{}
	}
	return c.JSON(http.StatusOK, tickets)
}
