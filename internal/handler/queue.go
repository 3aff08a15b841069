package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fair-ticketing/internal/middleware"
	"github.com/iliyamo/fair-ticketing/internal/model"
	"github.com/iliyamo/fair-ticketing/internal/service"
)

// QueueHandler exposes the admission queue to authenticated buyers.  The
// acting user is always the token subject.
type QueueHandler struct {
	Queue  *service.AdmissionQueue
	Logger *slog.Logger
}

func NewQueueHandler(q *service.AdmissionQueue, logger *slog.Logger) *QueueHandler {
	if q == nil {
		panic("nil queue passed to NewQueueHandler")
	}
	return &QueueHandler{Queue: q, Logger: logger}
}

type joinRequest struct {
	EventID          int64 `json:"eventId" validate:"required,gt=0"`
	RequestedTickets int   `json:"requestedTickets" validate:"required,gt=0"`
}

// Join handles POST /api/v1/tickets/queue/join.
func (h *QueueHandler) Join(c echo.Context) error {
	var req joinRequest
	if err := bindValid(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	entry, err := h.Queue.Join(c.Request().Context(), req.EventID, middleware.UserID(c), req.RequestedTickets)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusCreated, entry)
}

type leaveRequest struct {
	EventID int64 `json:"eventId" validate:"required,gt=0"`
}

// Leave handles POST /api/v1/tickets/queue/leave.
func (h *QueueHandler) Leave(c echo.Context) error {
	var req leaveRequest
	if err := bindValid(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.Queue.Leave(c.Request().Context(), req.EventID, middleware.UserID(c)); err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Status handles GET /api/v1/tickets/queue/status?eventId=.
func (h *QueueHandler) Status(c echo.Context) error {
	eventID, err := strconv.ParseInt(c.QueryParam("eventId"), 10, 64)
	if err != nil || eventID <= 0 {
		return badRequest(c, "eventId query parameter is required")
	}
	st, err := h.Queue.Status(c.Request().Context(), eventID, middleware.UserID(c))
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, st)
}

// UserStatuses handles GET /api/v1/tickets/queue/user/:userId.
func (h *QueueHandler) UserStatuses(c echo.Context) error {
	out := h.Queue.StatusesForUser(c.Request().Context(), c.Param("userId"))
	if out == nil {
		out = []model.QueueStatus{}
	}
	return c.JSON(http.StatusOK, out)
}
