package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fair-ticketing/internal/ledger"
	"github.com/iliyamo/fair-ticketing/internal/service"
)

// errorStatus maps a domain error to its HTTP status and stable code.
var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{service.ErrInvalidRequest, http.StatusBadRequest, "INVALID_REQUEST"},
	{service.ErrCapacityExceeded, http.StatusConflict, "CAPACITY_EXCEEDED"},
	{service.ErrAlreadyQueued, http.StatusConflict, "ALREADY_QUEUED"},
	{service.ErrNotQueued, http.StatusNotFound, "NOT_QUEUED"},
	{service.ErrEventNotFound, http.StatusNotFound, "EVENT_NOT_FOUND"},
	{service.ErrEventNotOpen, http.StatusConflict, "EVENT_NOT_OPEN"},
	{service.ErrHoldNotFound, http.StatusNotFound, "ORDER_NOT_FOUND"},
	{service.ErrHoldNotOpen, http.StatusConflict, "ORDER_NOT_OPEN"},
	{service.ErrReservationExpired, http.StatusGone, "RESERVATION_EXPIRED"},
	{service.ErrIdempotencyKeyReuse, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSE"},
	{service.ErrTicketNotFound, http.StatusNotFound, "TICKET_NOT_FOUND"},
	{service.ErrTicketNotAvailable, http.StatusConflict, "TICKET_NOT_AVAILABLE"},
	{service.ErrNotTicketOwner, http.StatusForbidden, "NOT_OWNER"},
	{service.ErrOfferNotFound, http.StatusNotFound, "OFFER_NOT_FOUND"},
	{service.ErrOfferAlreadyMatched, http.StatusConflict, "OFFER_ALREADY_MATCHED"},
	{service.ErrOfferNotOpen, http.StatusConflict, "OFFER_NOT_OPEN"},
	{service.ErrSelfMatch, http.StatusUnprocessableEntity, "SELF_MATCH"},
	{service.ErrDuplicateInterest, http.StatusConflict, "DUPLICATE_INTEREST"},
	{service.ErrSelfTransfer, http.StatusUnprocessableEntity, "SELF_TRANSFER"},
	{ledger.ErrCapacityBelowUsage, http.StatusConflict, "CAPACITY_BELOW_USAGE"},
}

// respondError writes the JSON error body for err.  Anything unmapped,
// ledger invariant violations included, is logged and reported as a bare 500.
func respondError(c echo.Context, logger *slog.Logger, err error) error {
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			return c.JSON(m.status, echo.Map{"error": err.Error(), "code": m.code})
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error", "code": "INTERNAL"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": "INVALID_REQUEST"})
}
