package handler

import (
	"context"
	"errors"
	"net/http"

	"crm-hub/internal/domain"
	"crm-hub/internal/usecase"
	"crm-hub/utils/validator"

	"github.com/labstack/echo/v4"
)

// mapDomainError converts domain errors to HTTP errors.
func mapDomainError(err error) *echo.HTTPError {
	var verr *validator.ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Errors)
	case errors.Is(err, domain.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, domain.ErrNoSession):
		return echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
	case errors.Is(err, domain.ErrAccountDeactivated):
		return echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	case errors.Is(err, domain.ErrIdentityExists):
		return echo.NewHTTPError(http.StatusConflict, "an account with this email already exists")
	case errors.Is(err, domain.ErrRegistrationFailed),
		errors.Is(err, domain.ErrInvalidIdentity),
		errors.Is(err, domain.ErrInvalidRole):
		return echo.NewHTTPError(http.StatusBadRequest, "request rejected")
	case errors.Is(err, domain.ErrBackendUnavailable):
		return echo.NewHTTPError(http.StatusBadGateway, "authentication service unavailable")
	case errors.Is(err, domain.ErrResolutionTimeout),
		errors.Is(err, domain.ErrResolutionExhausted),
		errors.Is(err, usecase.ErrControllerClosed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "session temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "request timed out")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
