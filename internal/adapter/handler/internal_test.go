package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"crm-hub/internal/domain"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordBus(t *testing.T, srv *testServer) func() []domain.AuthEvent {
	t.Helper()
	var (
		mu       sync.Mutex
		received []domain.AuthEvent
	)
	sub, err := srv.bus.Subscribe(context.Background(), func(e domain.AuthEvent) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e)
	})
	require.NoError(t, err)
	t.Cleanup(sub.Unsubscribe)

	return func() []domain.AuthEvent {
		mu.Lock()
		defer mu.Unlock()
		return append([]domain.AuthEvent(nil), received...)
	}
}

func TestInternalHandler_PublishesAuthEvent(t *testing.T) {
	srv := newTestServer(t)
	published := recordBus(t, srv)

	rec := srv.do(t, http.MethodPost, "/internal/auth-events",
		`{"kind":"SIGNED_OUT","identityId":"u1"}`, false)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodPost, "/internal/auth-events",
		`{"kind":"USER_UPDATED","clientId":"c1","session":{"id":"u1","email":"new@example.com"}}`, false)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	got := published()
	require.Len(t, got, 2)

	assert.Equal(t, domain.AuthEventSignedOut, got[0].Kind)
	assert.Empty(t, got[0].ClientID)
	assert.Equal(t, "u1", got[0].IdentityID)
	assert.Nil(t, got[0].Session)
	assert.False(t, got[0].OccurredAt.IsZero())

	assert.Equal(t, domain.AuthEventUserUpdated, got[1].Kind)
	assert.Equal(t, "c1", got[1].ClientID)
	assert.Equal(t, "u1", got[1].IdentityID, "identity defaults to the session's")
	require.NotNil(t, got[1].Session)
	assert.Equal(t, "new@example.com", got[1].Session.Email)
}

func TestInternalHandler_RejectsInvalidEvents(t *testing.T) {
	tests := map[string]string{
		"unknown kind":     `{"kind":"PASSWORD_RECOVERY","identityId":"u1"}`,
		"no address":       `{"kind":"SIGNED_OUT"}`,
		"session id empty": `{"kind":"SIGNED_IN","clientId":"c1","session":{"email":"a@example.com"}}`,
		"not json":         `[`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			srv := newTestServer(t)
			published := recordBus(t, srv)

			rec := srv.do(t, http.MethodPost, "/internal/auth-events", body, false)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, published())
		})
	}
}

func TestHealthHandler(t *testing.T) {
	e := echo.New()

	h := NewHealthHandler(map[string]HealthCheck{
		"redis":    func(context.Context) error { return nil },
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	})

	rec := httptest.NewRecorder()
	require.NoError(t, h.Handle(e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	require.NoError(t, h.Ready(e.NewContext(httptest.NewRequest(http.MethodGet, "/ready", nil), rec)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"redis":"ok","postgres":"unavailable"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	require.NoError(t, NewHealthHandler(nil).Ready(e.NewContext(httptest.NewRequest(http.MethodGet, "/ready", nil), rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
}
