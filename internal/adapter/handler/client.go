package handler

import (
	"context"
	"net/http"
	"time"

	"crm-hub/internal/domain"
	"crm-hub/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ClientCookieName identifies the browser client a request comes from.
const ClientCookieName = "crm_client"

// SessionSource hands out the session controller of a client.
// usecase.SessionRegistry implements it.
type SessionSource interface {
	Get(ctx context.Context, clientID string) *usecase.SessionController
}

// ClientCookie issues and reads the client id cookie.
type ClientCookie struct {
	Secure bool
	MaxAge time.Duration
}

// ClientID returns the client id of the request, issuing a new one when the
// cookie is missing or malformed.
func (cc ClientCookie) ClientID(c echo.Context) string {
	if id, ok := cc.Existing(c); ok {
		return id
	}

	id := uuid.NewString()
	c.SetCookie(&http.Cookie{
		Name:     ClientCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(cc.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// Existing returns the client id carried by the request, if any.
func (cc ClientCookie) Existing(c echo.Context) (string, bool) {
	cookie, err := c.Cookie(ClientCookieName)
	if err != nil {
		return "", false
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return "", false
	}
	return cookie.Value, true
}

// awaitSettled waits up to timeout for the controller to leave the loading
// state and returns the latest snapshot.
func awaitSettled(ctx context.Context, ctrl *usecase.SessionController, timeout time.Duration) domain.SessionState {
	state := ctrl.State()
	if !state.Loading || timeout <= 0 {
		return state
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for s := range ctrl.Watch(ctx) {
		state = s
		if !s.Loading {
			return s
		}
	}
	return state
}
