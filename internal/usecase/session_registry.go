package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ControllerFactory builds an unstarted controller for a client.
type ControllerFactory func(clientID string) *SessionController

// SessionRegistry keeps at most one live controller per client. Controllers
// idle for longer than the TTL, or pushed out by capacity, are closed.
type SessionRegistry struct {
	mu      sync.Mutex
	lru     *expirable.LRU[string, *SessionController]
	factory ControllerFactory
	logger  *slog.Logger
}

// NewSessionRegistry creates a registry holding up to capacity controllers.
func NewSessionRegistry(capacity int, idleTTL time.Duration, factory ControllerFactory, logger *slog.Logger) *SessionRegistry {
	r := &SessionRegistry{
		factory: factory,
		logger:  logger.With("component", "session_registry"),
	}
	r.lru = expirable.NewLRU[string, *SessionController](capacity, r.onEvict, idleTTL)
	return r
}

// Get returns the controller of clientID, creating and starting it on first
// use. Every call renews the controller's idle deadline.
func (r *SessionRegistry) Get(ctx context.Context, clientID string) *SessionController {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.lru.Get(clientID); ok {
		r.lru.Add(clientID, c)
		return c
	}

	c := r.factory(clientID)
	c.Start(context.WithoutCancel(ctx))
	r.lru.Add(clientID, c)
	r.logger.DebugContext(ctx, "session controller created", "client_id", clientID)
	return c
}

// Lookup returns the controller of clientID without creating one.
func (r *SessionRegistry) Lookup(clientID string) (*SessionController, bool) {
	return r.lru.Peek(clientID)
}

// Len returns the number of live controllers.
func (r *SessionRegistry) Len() int {
	return r.lru.Len()
}

// Close closes every controller.
func (r *SessionRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	controllers := r.lru.Values()
	r.lru.Purge()
	for _, c := range controllers {
		c.Close()
	}
}

// onEvict runs under the LRU lock, so closing happens in the background.
func (r *SessionRegistry) onEvict(clientID string, c *SessionController) {
	r.logger.Debug("session controller evicted", "client_id", clientID)
	go c.Close()
}
