package handler

import (
	"log/slog"
	"net/http"

	"crm-hub/utils/validator"

	"github.com/labstack/echo/v4"
)

// SignUpHandler handles POST /sign-up.
type SignUpHandler struct {
	sessions SessionSource
	cookie   ClientCookie
	validate *validator.Validator
}

// NewSignUpHandler creates a sign-up handler.
func NewSignUpHandler(sessions SessionSource, cookie ClientCookie, validate *validator.Validator) *SignUpHandler {
	return &SignUpHandler{sessions: sessions, cookie: cookie, validate: validate}
}

type signUpRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8,max=128"`
	Name       string `json:"name" validate:"required,max=100"`
	Position   string `json:"position" validate:"max=100"`
	Department string `json:"department" validate:"max=100"`
	Location   string `json:"location" validate:"max=100"`
	Phone      string `json:"phone" validate:"omitempty,phone"`
}

func (r signUpRequest) metadata() map[string]string {
	m := map[string]string{"name": r.Name}
	for key, value := range map[string]string{
		"position":   r.Position,
		"department": r.Department,
		"location":   r.Location,
		"phone":      r.Phone,
	} {
		if value != "" {
			m[key] = value
		}
	}
	return m
}

// Handle registers a new account. It does not sign the client in.
func (h *SignUpHandler) Handle(c echo.Context) error {
	ctx := c.Request().Context()

	var req signUpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Validate(&req); err != nil {
		return mapDomainError(err)
	}

	clientID := h.cookie.ClientID(c)
	identity, err := h.sessions.Get(ctx, clientID).SignUp(ctx, req.Email, req.Password, req.metadata())
	if err != nil {
		slog.InfoContext(ctx, "sign-up rejected", "client_id", clientID, "error", err)
		return mapDomainError(err)
	}

	slog.InfoContext(ctx, "account registered", "client_id", clientID, "identity_id", identity.ID)
	return c.JSON(http.StatusCreated, identityResponse{
		ID:       identity.ID,
		Email:    identity.Email,
		Metadata: identity.Metadata,
	})
}
