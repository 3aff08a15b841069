package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is satisfied by *sql.DB and by a small adapter over the Redis client.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports liveness and, when dependencies are registered,
// whether each of them answers a ping.
type HealthHandler struct {
	Checks map[string]Pinger
}

// Health returns 200 {"status":"ok"} when every check passes and 503 with
// the failing dependency names otherwise.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	failed := echo.Map{}
	for name, p := range h.Checks {
		if p == nil {
			continue
		}
		if err := p.PingContext(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded", "failed": failed})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
