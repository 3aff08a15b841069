package router // package router registers the HTTP routes of the ticketing API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fair-ticketing/internal/handler"
	"github.com/iliyamo/fair-ticketing/internal/middleware"
	"github.com/iliyamo/fair-ticketing/internal/utils"
)

// Handlers bundles everything the routes dispatch to.  RateLimit and
// OfferCache may be nil, in which case the routes run without them.
type Handlers struct {
	Health *handler.HealthHandler
	Events *handler.EventHandler
	Queue  *handler.QueueHandler
	Orders *handler.OrderHandler
	Resale *handler.ResaleHandler

	JWTSecret  string
	RateLimit  echo.MiddlewareFunc
	OfferCache echo.MiddlewareFunc
}

func optional(mw echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if mw == nil {
		return nil
	}
	return []echo.MiddlewareFunc{mw}
}

// Register wires all routes onto e.
func Register(e *echo.Echo, h Handlers) {
	// Liveness and the event catalog are public.
	e.GET("/healthz", h.Health.Health)
	e.GET("/api/v1/events", h.Events.List)
	e.GET("/api/v1/events/:id", h.Events.Get)

	api := e.Group("/api/v1", middleware.JWTAuth(h.JWTSecret))
	limited := optional(h.RateLimit)

	// Admission queue.  Status is polled, so only joins are rate limited.
	api.GET("/tickets/queue/status", h.Queue.Status)
	api.GET("/tickets/queue/user/:userId", h.Queue.UserStatuses, middleware.SameUser("userId"))
	api.POST("/tickets/queue/join", h.Queue.Join, limited...)
	api.POST("/tickets/queue/leave", h.Queue.Leave)

	// Orders and owned tickets.
	api.POST("/tickets/order", h.Orders.Complete, limited...)
	api.GET("/orders/user/:userId", h.Orders.OpenOrders, middleware.SameUser("userId"))
	api.GET("/tickets/mine", h.Orders.MyTickets)

	// Resale market.
	api.POST("/tickets/resale/offer", h.Resale.CreateOffer)
	api.GET("/tickets/resale/offers", h.Resale.ListOffers, optional(h.OfferCache)...)
	api.GET("/tickets/resale/offers/:id", h.Resale.GetOffer)
	api.DELETE("/tickets/resale/offers/:id", h.Resale.CancelOffer)
	api.POST("/tickets/resale/interest", h.Resale.RegisterInterest, limited...)
	api.POST("/tickets/transfer", h.Resale.Transfer, limited...)

	admin := api.Group("/admin", middleware.RequireRole(utils.RoleAdmin))
	admin.POST("/events", h.Events.Create)
	admin.PATCH("/events/:id/capacity", h.Events.UpdateCapacity)
	admin.PATCH("/events/:id/status", h.Events.UpdateStatus)
	admin.POST("/resale/offers/:id/resolve", h.Resale.Resolve)
}
