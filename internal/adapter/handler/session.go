package handler

import (
	"log/slog"
	"net/http"
	"time"

	"crm-hub/internal/domain"

	"github.com/labstack/echo/v4"
)

// BackendTokenHeader carries the signed backend token of an active profile.
const BackendTokenHeader = "X-CRM-Backend-Token"

// SessionHandler handles GET /session.
type SessionHandler struct {
	sessions SessionSource
	issuer   domain.TokenIssuer
	cookie   ClientCookie
	settle   time.Duration
}

// NewSessionHandler creates a session handler. settle bounds how long a
// request waits for a loading controller to settle.
func NewSessionHandler(sessions SessionSource, issuer domain.TokenIssuer, cookie ClientCookie, settle time.Duration) *SessionHandler {
	return &SessionHandler{sessions: sessions, issuer: issuer, cookie: cookie, settle: settle}
}

// Handle returns the client's session state.
func (h *SessionHandler) Handle(c echo.Context) error {
	ctx := c.Request().Context()
	clientID := h.cookie.ClientID(c)

	state := awaitSettled(ctx, h.sessions.Get(ctx, clientID), h.settle)

	if state.Phase == domain.PhaseAuthenticated && state.Profile != nil && state.Profile.IsActive {
		token, err := h.issuer.IssueBackendToken(state.Identity, state.Profile)
		if err != nil {
			slog.WarnContext(ctx, "backend token not issued", "client_id", clientID, "error", err)
		} else {
			c.Response().Header().Set(BackendTokenHeader, token)
		}
	}

	return c.JSON(http.StatusOK, newSessionResponse(state))
}
