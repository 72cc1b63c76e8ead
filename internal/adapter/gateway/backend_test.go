package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"crm-hub/internal/domain"
	"crm-hub/internal/events"
	"crm-hub/internal/infrastructure/cache"
	"crm-hub/internal/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// fakeIdentityAPI is an in-memory identity provider keyed by session token.
type fakeIdentityAPI struct {
	mu        sync.Mutex
	sessions  map[string]*domain.Identity
	logoutErr error
	loggedOut []string
}

func newFakeIdentityAPI() *fakeIdentityAPI {
	return &fakeIdentityAPI{sessions: make(map[string]*domain.Identity)}
}

func (f *fakeIdentityAPI) Login(_ context.Context, email, password string) (*domain.Identity, string, error) {
	if password != "secret" {
		return nil, "", domain.ErrInvalidCredentials
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	identity := &domain.Identity{ID: "id-" + email, Email: email}
	token := "token-" + email
	f.sessions[token] = identity
	return identity, token, nil
}

func (f *fakeIdentityAPI) Register(_ context.Context, email, _ string, metadata map[string]string) (*domain.Identity, error) {
	return &domain.Identity{ID: "id-" + email, Email: email, Metadata: metadata}, nil
}

func (f *fakeIdentityAPI) Whoami(_ context.Context, token string) (*domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	identity, ok := f.sessions[token]
	if !ok {
		return nil, domain.ErrNoSession
	}
	return identity, nil
}

func (f *fakeIdentityAPI) Logout(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, token)
	f.loggedOut = append(f.loggedOut, token)
	return f.logoutErr
}

type backendFixture struct {
	factory  *BackendFactory
	identity *fakeIdentityAPI
	profiles *mocks.MockProfileStore
	bus      *events.MemoryBus
}

func newBackendFixture(t *testing.T) *backendFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := cache.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	fx := &backendFixture{
		identity: newFakeIdentityAPI(),
		profiles: mocks.NewMockProfileStore(ctrl),
		bus:      events.NewMemoryBus(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fx.factory = NewBackendFactory(fx.identity, fx.profiles, fx.bus, store, time.Hour, logger)
	return fx
}

func (fx *backendFixture) record(t *testing.T) func() []domain.AuthEvent {
	var mu sync.Mutex
	var got []domain.AuthEvent
	sub, err := fx.bus.Subscribe(context.Background(), func(e domain.AuthEvent) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})
	require.NoError(t, err)
	t.Cleanup(sub.Unsubscribe)
	return func() []domain.AuthEvent {
		mu.Lock()
		defer mu.Unlock()
		return append([]domain.AuthEvent(nil), got...)
	}
}

func TestClientBackend_SignInPersistsSession(t *testing.T) {
	fx := newBackendFixture(t)
	published := fx.record(t)
	ctx := context.Background()

	backend := fx.factory.ForClient("tab-1")

	identity, err := backend.CurrentIdentity(ctx)
	require.NoError(t, err)
	assert.Nil(t, identity, "no session before sign-in")

	identity, err = backend.SignInWithPassword(ctx, "alice@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "id-alice@example.com", identity.ID)

	// A fresh backend for the same client finds the stored token.
	current, err := fx.factory.ForClient("tab-1").CurrentIdentity(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, identity.ID, current.ID)

	other, err := fx.factory.ForClient("tab-2").CurrentIdentity(ctx)
	require.NoError(t, err)
	assert.Nil(t, other, "sessions are scoped to a client")

	got := published()
	require.Len(t, got, 1)
	assert.Equal(t, domain.AuthEventSignedIn, got[0].Kind)
	assert.Equal(t, "tab-1", got[0].ClientID)
	assert.Equal(t, identity, got[0].Session)
	assert.False(t, got[0].OccurredAt.IsZero())
}

func TestClientBackend_SignInRejected(t *testing.T) {
	fx := newBackendFixture(t)
	published := fx.record(t)

	identity, err := fx.factory.ForClient("tab-1").SignInWithPassword(context.Background(), "alice@example.com", "wrong")

	assert.Nil(t, identity)
	assert.True(t, errors.Is(err, domain.ErrInvalidCredentials))
	assert.Empty(t, published())
}

func TestClientBackend_SignOut(t *testing.T) {
	fx := newBackendFixture(t)
	published := fx.record(t)
	ctx := context.Background()
	backend := fx.factory.ForClient("tab-1")

	_, err := backend.SignInWithPassword(ctx, "alice@example.com", "secret")
	require.NoError(t, err)

	require.NoError(t, backend.SignOut(ctx))
	assert.Equal(t, []string{"token-alice@example.com"}, fx.identity.loggedOut)

	identity, err := backend.CurrentIdentity(ctx)
	require.NoError(t, err)
	assert.Nil(t, identity)

	assert.Len(t, published(), 1, "only the sign-in is published")

	// Second sign-out has no token to revoke.
	require.NoError(t, backend.SignOut(ctx))
	assert.Len(t, fx.identity.loggedOut, 1)
}

func TestClientBackend_SignOutDropsTokenWhenRevocationFails(t *testing.T) {
	fx := newBackendFixture(t)
	ctx := context.Background()
	backend := fx.factory.ForClient("tab-1")

	_, err := backend.SignInWithPassword(ctx, "alice@example.com", "secret")
	require.NoError(t, err)

	fx.identity.logoutErr = domain.ErrBackendUnavailable
	err = backend.SignOut(ctx)
	assert.True(t, errors.Is(err, domain.ErrBackendUnavailable))

	_, found, err := backend.Storage().Get(ctx, sessionTokenKey)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClientBackend_StaleTokenIsDropped(t *testing.T) {
	fx := newBackendFixture(t)
	ctx := context.Background()
	backend := fx.factory.ForClient("tab-1")

	require.NoError(t, backend.Storage().Set(ctx, sessionTokenKey, []byte("revoked"), time.Hour))

	identity, err := backend.CurrentIdentity(ctx)
	require.NoError(t, err)
	assert.Nil(t, identity)

	_, found, err := backend.Storage().Get(ctx, sessionTokenKey)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClientBackend_SubscribeAuthEventsFiltersByAddress(t *testing.T) {
	fx := newBackendFixture(t)
	ctx := context.Background()
	backend := fx.factory.ForClient("tab-1")

	var mu sync.Mutex
	var got []domain.AuthEvent
	sub, err := backend.SubscribeAuthEvents(ctx, func(e domain.AuthEvent) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	publish := func(e domain.AuthEvent) {
		require.NoError(t, fx.bus.Publish(ctx, e))
	}

	publish(domain.AuthEvent{Kind: domain.AuthEventSignedOut, ClientID: "tab-2"})
	publish(domain.AuthEvent{Kind: domain.AuthEventUserUpdated})
	publish(domain.AuthEvent{Kind: domain.AuthEventSignedOut, ClientID: "tab-1"})
	publish(domain.AuthEvent{Kind: domain.AuthEventUserUpdated, IdentityID: "id-alice@example.com"})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, domain.AuthEventSignedOut, got[0].Kind)
	assert.Equal(t, "tab-1", got[0].ClientID)
	assert.Equal(t, domain.AuthEventUserUpdated, got[1].Kind)
	assert.Equal(t, "id-alice@example.com", got[1].IdentityID)
}

func TestClientBackend_DelegatesProfiles(t *testing.T) {
	fx := newBackendFixture(t)
	ctx := context.Background()
	backend := fx.factory.ForClient("tab-1")

	profile := &domain.Profile{IdentityID: "u1", Name: "A", Role: domain.RoleEmployee, IsActive: true}
	fx.profiles.EXPECT().ProfileByIdentityID(gomock.Any(), "u1").Return(profile, nil)
	fx.profiles.EXPECT().CreateProfile(gomock.Any(), profile).Return(nil)

	got, err := backend.ProfileByIdentityID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, profile, got)
	assert.NoError(t, backend.CreateProfile(ctx, profile))
}

func TestClientBackend_SignUpDoesNotStartSession(t *testing.T) {
	fx := newBackendFixture(t)
	published := fx.record(t)
	ctx := context.Background()
	backend := fx.factory.ForClient("tab-1")

	identity, err := backend.SignUp(ctx, "new@example.com", "pw", map[string]string{"name": "New"})
	require.NoError(t, err)
	assert.Equal(t, "New", identity.Metadata["name"])

	current, err := backend.CurrentIdentity(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)
	assert.Empty(t, published())
}
