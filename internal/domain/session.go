package domain

import (
	"fmt"
	"time"
)

// Role is the application role carried by a profile.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"
)

// ParseRole converts a stored role value into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleEmployee, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Identity represents an authenticated principal issued by the identity provider.
type Identity struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Profile is the application-level record keyed by identity id.
type Profile struct {
	IdentityID string `json:"identity_id"`
	Name       string `json:"name"`
	Role       Role   `json:"role"`
	Position   string `json:"position,omitempty"`
	Department string `json:"department,omitempty"`
	Location   string `json:"location,omitempty"`
	Phone      string `json:"phone,omitempty"`
	IsActive   bool   `json:"is_active"`
}

// CachedSession holds the identity/profile pair stored in the session cache.
// Both slots share StoredAt.
type CachedSession struct {
	Identity *Identity `json:"identity,omitempty"`
	Profile  *Profile  `json:"profile,omitempty"`
	StoredAt time.Time `json:"stored_at"`
}

// Phase is the lifecycle phase of a session controller.
type Phase string

const (
	PhaseUninitialized   Phase = "uninitialized"
	PhaseLoading         Phase = "loading"
	PhaseAuthenticated   Phase = "authenticated"
	PhaseUnauthenticated Phase = "unauthenticated"
)

// SessionState is a point-in-time snapshot of a session controller.
type SessionState struct {
	Phase      Phase
	Identity   *Identity
	Profile    *Profile
	Loading    bool
	RedirectTo string
}

// AuthEventKind identifies the kind of an auth event.
type AuthEventKind string

const (
	AuthEventInitialSession AuthEventKind = "INITIAL_SESSION"
	AuthEventSignedIn       AuthEventKind = "SIGNED_IN"
	AuthEventSignedOut      AuthEventKind = "SIGNED_OUT"
	AuthEventTokenRefreshed AuthEventKind = "TOKEN_REFRESHED"
	AuthEventUserUpdated    AuthEventKind = "USER_UPDATED"
)

// Valid reports whether k is a known event kind.
func (k AuthEventKind) Valid() bool {
	switch k {
	case AuthEventInitialSession, AuthEventSignedIn, AuthEventSignedOut,
		AuthEventTokenRefreshed, AuthEventUserUpdated:
		return true
	}
	return false
}

// AuthEvent is a change in authentication state delivered to subscribers.
// An empty ClientID addresses every client signed in as IdentityID.
type AuthEvent struct {
	Kind       AuthEventKind `json:"kind"`
	ClientID   string        `json:"client_id,omitempty"`
	IdentityID string        `json:"identity_id,omitempty"`
	Session    *Identity     `json:"session,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}
