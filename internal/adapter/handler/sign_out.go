package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// SignOutHandler handles POST /sign-out.
type SignOutHandler struct {
	sessions SessionSource
	cookie   ClientCookie
}

// NewSignOutHandler creates a sign-out handler.
func NewSignOutHandler(sessions SessionSource, cookie ClientCookie) *SignOutHandler {
	return &SignOutHandler{sessions: sessions, cookie: cookie}
}

// Handle signs the client out. It always succeeds.
func (h *SignOutHandler) Handle(c echo.Context) error {
	clientID, ok := h.cookie.Existing(c)
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}

	ctx := c.Request().Context()
	h.sessions.Get(ctx, clientID).SignOut(ctx)
	return c.NoContent(http.StatusNoContent)
}
