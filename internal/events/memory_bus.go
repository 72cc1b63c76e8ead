// Package events distributes auth events to session controllers.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"crm-hub/internal/domain"
)

// ErrInvalidEvent is returned when publishing an event of unknown kind.
var ErrInvalidEvent = errors.New("invalid auth event")

// MemoryBus delivers auth events to subscribers of the current process.
// Handlers are called synchronously on the publishing goroutine and must not block.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[uint64]func(domain.AuthEvent)
	nextID   uint64
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[uint64]func(domain.AuthEvent))}
}

// Publish delivers event to every current subscriber. A zero OccurredAt is
// stamped with the current time.
func (b *MemoryBus) Publish(_ context.Context, event domain.AuthEvent) error {
	if !event.Kind.Valid() {
		return ErrInvalidEvent
	}
	b.dispatch(stamp(event))
	return nil
}

// Subscribe registers handler until the returned subscription is cancelled.
func (b *MemoryBus) Subscribe(_ context.Context, handler func(domain.AuthEvent)) (domain.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[id] = handler
	return &memorySubscription{bus: b, id: id}, nil
}

// Subscribers returns the number of live subscriptions.
func (b *MemoryBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

func (b *MemoryBus) dispatch(event domain.AuthEvent) {
	b.mu.RLock()
	handlers := make([]func(domain.AuthEvent), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

func stamp(event domain.AuthEvent) domain.AuthEvent {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	return event
}

func (b *MemoryBus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

type memorySubscription struct {
	bus  *MemoryBus
	id   uint64
	once sync.Once
}

func (s *memorySubscription) Unsubscribe() {
	s.once.Do(func() { s.bus.remove(s.id) })
}
