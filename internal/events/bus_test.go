package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-hub/internal/domain"
)

// recorder collects delivered events.
type recorder struct {
	mu     sync.Mutex
	events []domain.AuthEvent
}

func (r *recorder) handle(e domain.AuthEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) snapshot() []domain.AuthEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuthEvent(nil), r.events...)
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	var first, second recorder
	sub1, err := bus.Subscribe(ctx, first.handle)
	require.NoError(t, err)
	_, err = bus.Subscribe(ctx, second.handle)
	require.NoError(t, err)
	assert.Equal(t, 2, bus.Subscribers())

	event := domain.AuthEvent{Kind: domain.AuthEventSignedOut, ClientID: "c1"}
	require.NoError(t, bus.Publish(ctx, event))

	assert.Len(t, first.snapshot(), 1)
	assert.Len(t, second.snapshot(), 1)

	sub1.Unsubscribe()
	sub1.Unsubscribe()
	assert.Equal(t, 1, bus.Subscribers())

	require.NoError(t, bus.Publish(ctx, event))
	assert.Len(t, first.snapshot(), 1)
	assert.Len(t, second.snapshot(), 2)
}

func TestMemoryBus_StampsOccurredAt(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	var got recorder
	_, err := bus.Subscribe(ctx, got.handle)
	require.NoError(t, err)

	before := time.Now()
	require.NoError(t, bus.Publish(ctx, domain.AuthEvent{Kind: domain.AuthEventSignedOut, ClientID: "c1"}))
	fixed := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, bus.Publish(ctx, domain.AuthEvent{Kind: domain.AuthEventSignedOut, ClientID: "c1", OccurredAt: fixed}))

	events := got.snapshot()
	require.Len(t, events, 2)
	assert.False(t, events[0].OccurredAt.Before(before))
	assert.True(t, events[1].OccurredAt.Equal(fixed), "an explicit time is kept")
}

func TestMemoryBus_RejectsUnknownKind(t *testing.T) {
	bus := NewMemoryBus()
	err := bus.Publish(context.Background(), domain.AuthEvent{Kind: "PASSWORD_RECOVERY"})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func setupRedisBus(t *testing.T) (*RedisBus, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewRedisBus(client, "", nil), mr
}

func TestRedisBus_DeliversPublishedEvents(t *testing.T) {
	bus, _ := setupRedisBus(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- bus.Run(ctx) }()

	select {
	case <-bus.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not ready")
	}

	var rec recorder
	_, err := bus.Subscribe(ctx, rec.handle)
	require.NoError(t, err)

	event := domain.AuthEvent{
		Kind:       domain.AuthEventSignedIn,
		ClientID:   "client-1",
		IdentityID: "u1",
		Session:    &domain.Identity{ID: "u1", Email: "u1@example.com"},
		OccurredAt: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, bus.Publish(ctx, event))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	got := rec.snapshot()[0]
	assert.Equal(t, domain.AuthEventSignedIn, got.Kind)
	assert.Equal(t, "client-1", got.ClientID)
	require.NotNil(t, got.Session)
	assert.Equal(t, "u1@example.com", got.Session.Email)
	assert.True(t, event.OccurredAt.Equal(got.OccurredAt))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRedisBus_DropsMalformedPayloads(t *testing.T) {
	bus, mr := setupRedisBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go bus.Run(ctx)
	<-bus.Ready()

	var rec recorder
	_, err := bus.Subscribe(ctx, rec.handle)
	require.NoError(t, err)

	mr.Publish(DefaultChannel, "not json")
	mr.Publish(DefaultChannel, `{"kind":"UNKNOWN"}`)
	require.NoError(t, bus.Publish(ctx, domain.AuthEvent{Kind: domain.AuthEventSignedOut, ClientID: "c1"}))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.AuthEventSignedOut, rec.snapshot()[0].Kind)
}

func TestRedisBus_PublishFailsWhenRedisDown(t *testing.T) {
	bus, mr := setupRedisBus(t)
	mr.Close()

	err := bus.Publish(context.Background(), domain.AuthEvent{Kind: domain.AuthEventSignedOut})
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}
