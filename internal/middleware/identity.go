package middleware

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/fair-ticketing/internal/utils"
)

// UserID returns the authenticated subject stored by JWTAuth, or "" when the
// request is anonymous.
func UserID(c echo.Context) string {
    s, _ := c.Get(CtxUserID).(string)
    return s
}

// SameUser rejects requests whose path parameter or query value named param
// identifies someone other than the token subject.  Admins may look at any
// user.  An absent value is left for the handler to default.
func SameUser(param string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            want := c.Param(param)
            if want == "" {
                want = c.QueryParam(param)
            }
            if want == "" {
                return next(c)
            }
            if role, _ := c.Get(CtxRole).(string); role == utils.RoleAdmin {
                return next(c)
            }
            if want != UserID(c) {
                return c.JSON(http.StatusForbidden, echo.Map{"error": "user mismatch", "code": "FORBIDDEN"})
            }
            return next(c)
        }
    }
}

// currentUserID keys the rate limiter; unauthenticated callers share one bucket per key strategy.
func currentUserID(c echo.Context) string {
    if s := UserID(c); s != "" {
        return s
    }
    return "anon"
}
