package domain

//go:generate mockgen -destination=../mocks/mock_port.go -package=mocks crm-hub/internal/domain ProfileQuerier,ProfileStore

import (
	"context"
	"time"
)

// IdentityProvider authenticates credentials and reports the current identity of a client.
type IdentityProvider interface {
	CurrentIdentity(ctx context.Context) (*Identity, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Identity, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]string) (*Identity, error)
	SignOut(ctx context.Context) error
}

// ProfileQuerier looks up a profile by identity id. A missing row is (nil, nil).
type ProfileQuerier interface {
	ProfileByIdentityID(ctx context.Context, identityID string) (*Profile, error)
}

// ProfileStore reads and creates profile records.
type ProfileStore interface {
	ProfileQuerier
	CreateProfile(ctx context.Context, profile *Profile) error
}

// Subscription is a live auth event subscription.
type Subscription interface {
	Unsubscribe()
}

// AuthEventSource delivers auth events for a client.
type AuthEventSource interface {
	SubscribeAuthEvents(ctx context.Context, handler func(AuthEvent)) (Subscription, error)
}

// Backend is everything a session controller needs from the remote side.
type Backend interface {
	IdentityProvider
	ProfileStore
	AuthEventSource
}

// AuthEventBus fans auth events out to subscribers across service instances.
type AuthEventBus interface {
	Publish(ctx context.Context, event AuthEvent) error
	Subscribe(ctx context.Context, handler func(AuthEvent)) (Subscription, error)
}

// ClientStorage is the persisted key space of a single client.
type ClientStorage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// SessionCache is the time-boxed identity/profile store of a client.
type SessionCache interface {
	SetIdentity(ctx context.Context, identity *Identity)
	Identity(ctx context.Context) (*Identity, bool)
	SetProfile(ctx context.Context, profile *Profile)
	Profile(ctx context.Context) (*Profile, bool)
	IsValid(ctx context.Context) bool
	Clear(ctx context.Context)
}

// ProfileResolver obtains the profile of an identity. A nil profile with a nil
// error means no profile exists.
type ProfileResolver interface {
	Resolve(ctx context.Context, identityID string) (*Profile, error)
}

// TokenIssuer generates signed backend tokens for an authenticated session.
type TokenIssuer interface {
	IssueBackendToken(identity *Identity, profile *Profile) (string, error)
}
