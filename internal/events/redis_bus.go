package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"crm-hub/internal/domain"
)

// DefaultChannel is the Redis channel auth events are published on.
const DefaultChannel = "crm:auth-events"

// RedisBus publishes auth events over Redis pub/sub so every service instance
// sees them. One Redis subscription per process fans out to local subscribers.
type RedisBus struct {
	client  *redis.Client
	channel string
	local   *MemoryBus
	logger  *slog.Logger
	ready   chan struct{}
}

// NewRedisBus creates a bus on channel. An empty channel uses DefaultChannel.
func NewRedisBus(client *redis.Client, channel string, logger *slog.Logger) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{
		client:  client,
		channel: channel,
		local:   NewMemoryBus(),
		logger:  logger.With("component", "redis_event_bus"),
		ready:   make(chan struct{}),
	}
}

// Publish encodes event and publishes it to the channel. A zero OccurredAt is
// stamped with the current time.
func (b *RedisBus) Publish(ctx context.Context, event domain.AuthEvent) error {
	if !event.Kind.Valid() {
		return ErrInvalidEvent
	}
	payload, err := json.Marshal(stamp(event))
	if err != nil {
		return fmt.Errorf("encode auth event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	return nil
}

// Subscribe registers a local handler. Events arrive once Run is active.
func (b *RedisBus) Subscribe(ctx context.Context, handler func(domain.AuthEvent)) (domain.Subscription, error) {
	return b.local.Subscribe(ctx, handler)
}

// Ready is closed once the Redis subscription is confirmed.
func (b *RedisBus) Ready() <-chan struct{} {
	return b.ready
}

// Run subscribes to the channel and dispatches events until ctx is done.
func (b *RedisBus) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	close(b.ready)
	b.logger.InfoContext(ctx, "auth event subscription started", "channel", b.channel)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			b.logger.InfoContext(ctx, "auth event subscription stopped")
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var event domain.AuthEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil || !event.Kind.Valid() {
				b.logger.WarnContext(ctx, "dropping malformed auth event", "error", err)
				continue
			}
			b.local.dispatch(event)
		}
	}
}
