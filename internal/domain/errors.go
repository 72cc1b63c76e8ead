package domain

import "errors"

// Authentication errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account deactivated")
	ErrIdentityExists     = errors.New("identity already exists")
	ErrRegistrationFailed = errors.New("registration rejected")
	ErrNoSession          = errors.New("no active session")
	ErrInvalidIdentity    = errors.New("invalid identity id")
)

// Profile resolution errors.
var (
	ErrResolutionTimeout   = errors.New("profile resolution timed out")
	ErrResolutionExhausted = errors.New("profile resolution attempts exhausted")
	ErrInvalidRole         = errors.New("invalid profile role")
)

// External service errors.
var (
	ErrBackendUnavailable = errors.New("backend unavailable")
)
