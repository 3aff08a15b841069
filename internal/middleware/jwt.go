package middleware // reusable HTTP middleware for the ticketing API

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/fair-ticketing/internal/utils"
)

// Context keys populated by JWTAuth.  Handlers read the acting user through
// UserID rather than trusting any identifier in the request body.
const (
    CtxUserID = "user_id"
    CtxRole   = "role"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// stores its subject and role in the request context.  Requests without a
// valid token are rejected with 401 before reaching the handler.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get(echo.HeaderAuthorization)
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token", "code": "UNAUTHORIZED"})
            }
            claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token", "code": "UNAUTHORIZED"})
            }
            c.Set(CtxUserID, claims.Subject)
            c.Set(CtxRole, claims.Role)
            return next(c)
        }
    }
}
