package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// InternalAuthHeader carries the shared secret of internal callers.
const InternalAuthHeader = "X-CRM-Internal-Auth"

// InternalAuth rejects requests whose shared secret does not match. An empty
// secret rejects everything.
func InternalAuth(sharedSecret string) echo.MiddlewareFunc {
	secret := []byte(sharedSecret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(secret) == 0 {
				return echo.NewHTTPError(http.StatusForbidden, "internal endpoints disabled")
			}
			provided := []byte(c.Request().Header.Get(InternalAuthHeader))
			if len(provided) == 0 {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing internal auth header")
			}
			if subtle.ConstantTimeCompare(provided, secret) != 1 {
				return echo.NewHTTPError(http.StatusForbidden, "invalid internal auth")
			}
			return next(c)
		}
	}
}
