package handler

import (
	"log/slog"
	"net/http"
	"time"

	"crm-hub/internal/domain"
	"crm-hub/utils/validator"

	"github.com/labstack/echo/v4"
)

// InternalHandler handles service-to-service requests.
type InternalHandler struct {
	bus      domain.AuthEventBus
	validate *validator.Validator
}

// NewInternalHandler creates a new internal handler.
func NewInternalHandler(bus domain.AuthEventBus, validate *validator.Validator) *InternalHandler {
	return &InternalHandler{bus: bus, validate: validate}
}

type sessionPayload struct {
	ID       string            `json:"id" validate:"required"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata"`
}

// authEventRequest is an auth event raised outside this service, such as an
// admin revoking a session.
type authEventRequest struct {
	Kind       string          `json:"kind" validate:"required,auth_event_kind"`
	ClientID   string          `json:"clientId" validate:"required_without=IdentityID"`
	IdentityID string          `json:"identityId" validate:"required_without=ClientID"`
	Session    *sessionPayload `json:"session"`
}

// HandleAuthEvent publishes an auth event to the affected clients.
func (h *InternalHandler) HandleAuthEvent(c echo.Context) error {
	ctx := c.Request().Context()

	var req authEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Validate(&req); err != nil {
		return mapDomainError(err)
	}

	event := domain.AuthEvent{
		Kind:       domain.AuthEventKind(req.Kind),
		ClientID:   req.ClientID,
		IdentityID: req.IdentityID,
		OccurredAt: time.Now(),
	}
	if req.Session != nil {
		event.Session = &domain.Identity{ID: req.Session.ID, Email: req.Session.Email, Metadata: req.Session.Metadata}
		if event.IdentityID == "" {
			event.IdentityID = req.Session.ID
		}
	}

	if err := h.bus.Publish(ctx, event); err != nil {
		slog.ErrorContext(ctx, "failed to publish auth event", "kind", event.Kind, "error", err, "remote_addr", c.RealIP())
		return mapDomainError(err)
	}

	slog.InfoContext(ctx, "auth event published",
		"kind", event.Kind,
		"client_id", event.ClientID,
		"identity_id", event.IdentityID,
		"remote_addr", c.RealIP())
	return c.NoContent(http.StatusAccepted)
}
