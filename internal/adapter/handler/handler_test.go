package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"crm-hub/internal/domain"
	"crm-hub/internal/events"
	"crm-hub/internal/infrastructure/cache"
	"crm-hub/internal/infrastructure/token"
	"crm-hub/internal/retry"
	"crm-hub/internal/usecase"
	"crm-hub/utils/validator"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

const testClientID = "0b6f7a3e-2f4d-4c1a-9d55-7c1e9f3a8b21"

// stubBackend is an in-memory domain.Backend shared by every client of a test.
type stubBackend struct {
	mu        sync.Mutex
	current   *domain.Identity
	accounts  map[string]*domain.Identity
	profiles  map[string]*domain.Profile
	created   []*domain.Profile
	signInErr error
	signUpErr error
	signOuts  int
}

func newStubBackend() *stubBackend {
	return &stubBackend{
		accounts: make(map[string]*domain.Identity),
		profiles: make(map[string]*domain.Profile),
	}
}

func (b *stubBackend) addAccount(identity *domain.Identity, profile *domain.Profile) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[identity.Email] = identity
	if profile != nil {
		b.profiles[identity.ID] = profile
	}
}

func (b *stubBackend) signOutCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.signOuts
}

func (b *stubBackend) CurrentIdentity(context.Context) (*domain.Identity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current, nil
}

func (b *stubBackend) SignInWithPassword(_ context.Context, email, _ string) (*domain.Identity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.signInErr != nil {
		return nil, b.signInErr
	}
	identity, ok := b.accounts[email]
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}
	b.current = identity
	return identity, nil
}

func (b *stubBackend) SignUp(_ context.Context, email, _ string, metadata map[string]string) (*domain.Identity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.signUpErr != nil {
		return nil, b.signUpErr
	}
	if _, ok := b.accounts[email]; ok {
		return nil, domain.ErrIdentityExists
	}
	identity := &domain.Identity{ID: "new-" + email, Email: email, Metadata: metadata}
	b.accounts[email] = identity
	return identity, nil
}

func (b *stubBackend) SignOut(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signOuts++
	b.current = nil
	return nil
}

func (b *stubBackend) ProfileByIdentityID(_ context.Context, identityID string) (*domain.Profile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.profiles[identityID], nil
}

func (b *stubBackend) CreateProfile(_ context.Context, profile *domain.Profile) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.created = append(b.created, profile)
	b.profiles[profile.IdentityID] = profile
	return nil
}

func (b *stubBackend) SubscribeAuthEvents(context.Context, func(domain.AuthEvent)) (domain.Subscription, error) {
	return noopSubscription{}, nil
}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}

type testServer struct {
	echo     *echo.Echo
	backend  *stubBackend
	registry *usecase.SessionRegistry
	bus      *events.MemoryBus
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := cache.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	backend := newStubBackend()
	resolver := usecase.NewResolveProfile(backend, retry.Policy{
		MaxAttempts:    2,
		AttemptTimeout: 200 * time.Millisecond,
		Delay:          10 * time.Millisecond,
		Ceiling:        500 * time.Millisecond,
	}, logger)

	registry := usecase.NewSessionRegistry(16, time.Minute, func(clientID string) *usecase.SessionController {
		storage := store.ForClient(clientID)
		return usecase.NewSessionController(clientID, usecase.SessionDeps{
			Backend:  backend,
			Cache:    cache.NewSessionCache(storage, 10*time.Minute),
			Resolver: resolver,
			Storage:  storage,
		}, usecase.DefaultControllerConfig(), logger)
	}, logger)
	t.Cleanup(registry.Close)

	issuer := token.NewJWTIssuer(token.JWTConfig{
		Secret:   "test-secret-with-enough-entropy-0123456789",
		Issuer:   "crm-hub",
		Audience: "crm-backend",
		TTL:      5 * time.Minute,
	})
	bus := events.NewMemoryBus()
	validate := validator.New()
	cookie := ClientCookie{MaxAge: time.Hour}

	e := echo.New()
	e.GET("/session", NewSessionHandler(registry, issuer, cookie, 2*time.Second).Handle)
	e.GET("/dashboard", NewDashboardHandler(registry, cookie, 2*time.Second).Handle)
	e.POST("/sign-in", NewSignInHandler(registry, cookie, validate).Handle)
	e.POST("/sign-up", NewSignUpHandler(registry, cookie, validate).Handle)
	e.POST("/sign-out", NewSignOutHandler(registry, cookie).Handle)
	e.POST("/internal/auth-events", NewInternalHandler(bus, validate).HandleAuthEvent)

	return &testServer{echo: e, backend: backend, registry: registry, bus: bus}
}

// do serves a request, sending the test client cookie when withClient is set.
func (s *testServer) do(t *testing.T, method, path, body string, withClient bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if withClient {
		req.AddCookie(&http.Cookie{Name: ClientCookieName, Value: testClientID})
	}

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func findCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	require.Failf(t, "cookie not set", "missing %s cookie", name)
	return nil
}
