package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/fair-ticketing/internal/model"
	"github.com/iliyamo/fair-ticketing/internal/repository"
	"github.com/iliyamo/fair-ticketing/internal/service"
)

// EventHandler serves the public catalog and the admin event operations.
type EventHandler struct {
	Box    *service.BoxOffice
	Logger *slog.Logger
}

func NewEventHandler(box *service.BoxOffice, logger *slog.Logger) *EventHandler {
	if box == nil {
		panic("nil box office passed to NewEventHandler")
	}
	return &EventHandler{Box: box, Logger: logger}
}

// eventView is an event with its live seat counters.
type eventView struct {
	model.Event
	SoldSeats      int `json:"soldSeats"`
	HeldSeats      int `json:"heldSeats"`
	AvailableSeats int `json:"availableSeats"`
}

// List handles GET /api/v1/events.  Optional filters: name, city, status
// (DRAFT|PUBLISHED|CLOSED), page and page_size.
func (h *EventHandler) List(c echo.Context) error {
	q := repository.EventSearchQuery{
		Name:   strings.TrimSpace(c.QueryParam("name")),
		City:   strings.TrimSpace(c.QueryParam("city")),
		Status: model.EventStatus(strings.ToUpper(strings.TrimSpace(c.QueryParam("status")))),
	}
	switch q.Status {
	case "", model.EventDraft, model.EventPublished, model.EventClosed:
	default:
		return badRequest(c, "status must be DRAFT, PUBLISHED or CLOSED")
	}
	q.Page, _ = strconv.Atoi(c.QueryParam("page"))
	q.PageSize, _ = strconv.Atoi(c.QueryParam("page_size"))
	q = q.Normalize()

	events, total, err := h.Box.SearchEvents(c.Request().Context(), q)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"data":      events,
		"total":     total,
		"page":      q.Page,
		"page_size": q.PageSize,
	})
}

// Get handles GET /api/v1/events/:id.
func (h *EventHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	ctx := c.Request().Context()
	ev, err := h.Box.GetEvent(ctx, id)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	counts, err := h.Box.Counts(ctx, id)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, eventView{
		Event:          ev,
		SoldSeats:      counts.Sold,
		HeldSeats:      counts.Held,
		AvailableSeats: counts.Available(),
	})
}

type createEventRequest struct {
	Name                string          `json:"name" validate:"required,max=200"`
	VenueName           string          `json:"venueName" validate:"max=200"`
	City                string          `json:"city" validate:"max=100"`
	TicketPrice         decimal.Decimal `json:"ticketPrice"`
	TotalSeats          int             `json:"totalSeats" validate:"gte=0"`
	MaxTicketsPerPerson int             `json:"maxTicketsPerPerson" validate:"gte=1"`
	Publish             bool            `json:"publish"`
}

// Create handles POST /api/v1/admin/events.  With publish=true the event
// opens for queue joins immediately.
func (h *EventHandler) Create(c echo.Context) error {
	var req createEventRequest
	if err := bindValid(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.TicketPrice.IsNegative() {
		return badRequest(c, "ticketPrice must not be negative")
	}
	ev := model.Event{
		Name:                req.Name,
		VenueName:           req.VenueName,
		City:                req.City,
		TicketPrice:         req.TicketPrice,
		TotalSeats:          req.TotalSeats,
		MaxTicketsPerPerson: req.MaxTicketsPerPerson,
	}
	ctx := c.Request().Context()
	if err := h.Box.CreateEvent(ctx, &ev); err != nil {
		return respondError(c, h.Logger, err)
	}
	if req.Publish {
		if err := h.Box.SetEventStatus(ctx, ev.ID, model.EventPublished); err != nil {
			return respondError(c, h.Logger, err)
		}
		ev.Status = model.EventPublished
	}
	return c.JSON(http.StatusCreated, ev)
}

type capacityRequest struct {
	TotalSeats *int `json:"totalSeats" validate:"required,gte=0"`
}

// UpdateCapacity handles PATCH /api/v1/admin/events/:id/capacity.
func (h *EventHandler) UpdateCapacity(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	var req capacityRequest
	if err := bindValid(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	ctx := c.Request().Context()
	if err := h.Box.ResizeEvent(ctx, id, *req.TotalSeats); err != nil {
		return respondError(c, h.Logger, err)
	}
	return h.Get(c)
}

type statusRequest struct {
	Status model.EventStatus `json:"status" validate:"required,oneof=DRAFT PUBLISHED CLOSED"`
}

// UpdateStatus handles PATCH /api/v1/admin/events/:id/status.
func (h *EventHandler) UpdateStatus(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	var req statusRequest
	if err := bindValid(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.Box.SetEventStatus(c.Request().Context(), id, req.Status); err != nil {
		return respondError(c, h.Logger, err)
	}
	return h.Get(c)
}
