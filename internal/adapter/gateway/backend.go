package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"crm-hub/internal/domain"
)

// sessionTokenKey is the client storage key holding the Kratos session token.
const sessionTokenKey = "auth-token"

// IdentityAPI is the identity provider surface used by ClientBackend.
// KratosGateway implements it.
type IdentityAPI interface {
	Login(ctx context.Context, email, password string) (*domain.Identity, string, error)
	Register(ctx context.Context, email, password string, metadata map[string]string) (*domain.Identity, error)
	Whoami(ctx context.Context, sessionToken string) (*domain.Identity, error)
	Logout(ctx context.Context, sessionToken string) error
}

// StorageProvider hands out per-client storage.
type StorageProvider interface {
	ForClient(clientID string) domain.ClientStorage
}

// BackendFactory builds the Backend of each client from shared collaborators.
type BackendFactory struct {
	identity IdentityAPI
	profiles domain.ProfileStore
	bus      domain.AuthEventBus
	storage  StorageProvider
	tokenTTL time.Duration
	logger   *slog.Logger
}

// NewBackendFactory creates a factory. tokenTTL bounds how long a session token
// is kept in client storage.
func NewBackendFactory(identity IdentityAPI, profiles domain.ProfileStore, bus domain.AuthEventBus,
	storage StorageProvider, tokenTTL time.Duration, logger *slog.Logger) *BackendFactory {
	return &BackendFactory{
		identity: identity,
		profiles: profiles,
		bus:      bus,
		storage:  storage,
		tokenTTL: tokenTTL,
		logger:   logger.With("component", "backend"),
	}
}

// ForClient returns the Backend bound to clientID.
func (f *BackendFactory) ForClient(clientID string) *ClientBackend {
	return &ClientBackend{
		clientID: clientID,
		identity: f.identity,
		profiles: f.profiles,
		bus:      f.bus,
		storage:  f.storage.ForClient(clientID),
		tokenTTL: f.tokenTTL,
		logger:   f.logger.With("client_id", clientID),
		now:      time.Now,
	}
}

// ClientBackend is the Backend of a single client. It keeps the client's
// session token in client storage and scopes auth events to the client.
// Implements domain.Backend.
type ClientBackend struct {
	clientID string
	identity IdentityAPI
	profiles domain.ProfileStore
	bus      domain.AuthEventBus
	storage  domain.ClientStorage
	tokenTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// Storage returns the client's storage.
func (b *ClientBackend) Storage() domain.ClientStorage {
	return b.storage
}

// CurrentIdentity returns the identity of the stored session token, or nil when
// the client has no live session.
func (b *ClientBackend) CurrentIdentity(ctx context.Context) (*domain.Identity, error) {
	token, found, err := b.storage.Get(ctx, sessionTokenKey)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	identity, err := b.identity.Whoami(ctx, string(token))
	if errors.Is(err, domain.ErrNoSession) {
		if delErr := b.storage.Delete(ctx, sessionTokenKey); delErr != nil {
			b.logger.WarnContext(ctx, "failed to drop stale session token", "error", delErr)
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// SignInWithPassword authenticates and stores the session token. A SIGNED_IN
// event is published for the client.
func (b *ClientBackend) SignInWithPassword(ctx context.Context, email, password string) (*domain.Identity, error) {
	identity, token, err := b.identity.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := b.storage.Set(ctx, sessionTokenKey, []byte(token), b.tokenTTL); err != nil {
		return nil, err
	}

	b.publish(ctx, domain.AuthEvent{
		Kind:       domain.AuthEventSignedIn,
		ClientID:   b.clientID,
		IdentityID: identity.ID,
		Session:    identity,
	})
	return identity, nil
}

// SignUp registers a new identity. No session is established.
func (b *ClientBackend) SignUp(ctx context.Context, email, password string, metadata map[string]string) (*domain.Identity, error) {
	return b.identity.Register(ctx, email, password, metadata)
}

// SignOut revokes the stored session token. The token is dropped locally even
// when revocation fails.
func (b *ClientBackend) SignOut(ctx context.Context) error {
	token, found, err := b.storage.Get(ctx, sessionTokenKey)
	if err != nil {
		return err
	}

	var logoutErr error
	if found {
		logoutErr = b.identity.Logout(ctx, string(token))
		if err := b.storage.Delete(ctx, sessionTokenKey); err != nil {
			b.logger.WarnContext(ctx, "failed to drop session token", "error", err)
		}
	}
	return logoutErr
}

// ProfileByIdentityID delegates to the profile store.
func (b *ClientBackend) ProfileByIdentityID(ctx context.Context, identityID string) (*domain.Profile, error) {
	return b.profiles.ProfileByIdentityID(ctx, identityID)
}

// CreateProfile delegates to the profile store.
func (b *ClientBackend) CreateProfile(ctx context.Context, profile *domain.Profile) error {
	return b.profiles.CreateProfile(ctx, profile)
}

// SubscribeAuthEvents delivers events addressed to this client and identity
// broadcasts. Subscribers match broadcasts against their own identity.
func (b *ClientBackend) SubscribeAuthEvents(ctx context.Context, handler func(domain.AuthEvent)) (domain.Subscription, error) {
	return b.bus.Subscribe(ctx, func(event domain.AuthEvent) {
		if b.addressedToClient(event) {
			handler(event)
		}
	})
}

func (b *ClientBackend) addressedToClient(event domain.AuthEvent) bool {
	if event.ClientID != "" {
		return event.ClientID == b.clientID
	}
	return event.IdentityID != ""
}

func (b *ClientBackend) publish(ctx context.Context, event domain.AuthEvent) {
	event.OccurredAt = b.now()
	if err := b.bus.Publish(ctx, event); err != nil {
		b.logger.WarnContext(ctx, "failed to publish auth event", "kind", event.Kind, "error", err)
	}
}
