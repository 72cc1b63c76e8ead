package handler

import (
	"net/http"
	"time"

	"crm-hub/internal/usecase"

	"github.com/labstack/echo/v4"
)

// DashboardHandler handles GET /dashboard.
type DashboardHandler struct {
	sessions SessionSource
	cookie   ClientCookie
	settle   time.Duration
}

// NewDashboardHandler creates a dashboard handler.
func NewDashboardHandler(sessions SessionSource, cookie ClientCookie, settle time.Duration) *DashboardHandler {
	return &DashboardHandler{sessions: sessions, cookie: cookie, settle: settle}
}

type dashboardResponse struct {
	Shell      string `json:"shell"`
	RedirectTo string `json:"redirectTo,omitempty"`
}

// Handle returns the dashboard shell the client should render.
func (h *DashboardHandler) Handle(c echo.Context) error {
	ctx := c.Request().Context()
	state := awaitSettled(ctx, h.sessions.Get(ctx, h.cookie.ClientID(c)), h.settle)

	return c.JSON(http.StatusOK, dashboardResponse{
		Shell:      string(usecase.RouteDashboard(state)),
		RedirectTo: state.RedirectTo,
	})
}
