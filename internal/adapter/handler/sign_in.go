package handler

import (
	"log/slog"
	"net/http"

	"crm-hub/utils/validator"

	"github.com/labstack/echo/v4"
)

// SignInHandler handles POST /sign-in.
type SignInHandler struct {
	sessions SessionSource
	cookie   ClientCookie
	validate *validator.Validator
}

// NewSignInHandler creates a sign-in handler.
func NewSignInHandler(sessions SessionSource, cookie ClientCookie, validate *validator.Validator) *SignInHandler {
	return &SignInHandler{sessions: sessions, cookie: cookie, validate: validate}
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Handle signs the client in with email and password.
func (h *SignInHandler) Handle(c echo.Context) error {
	ctx := c.Request().Context()

	var req signInRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Validate(&req); err != nil {
		return mapDomainError(err)
	}

	clientID := h.cookie.ClientID(c)
	ctrl := h.sessions.Get(ctx, clientID)

	if err := ctrl.SignIn(ctx, req.Email, req.Password); err != nil {
		slog.InfoContext(ctx, "sign-in rejected", "client_id", clientID, "error", err)
		return mapDomainError(err)
	}

	return c.JSON(http.StatusOK, newSessionResponse(ctrl.State()))
}
