package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"crm-hub/internal/domain"
)

// sessionKey is the storage key of the cached identity/profile pair.
const sessionKey = "session"

// storageGrace keeps stored entries around slightly longer than their
// logical TTL so expiry is always decided by SessionCache's own clock.
const storageGrace = time.Minute

// SessionCache stores the identity and profile of one client with a shared
// timestamp. Implements domain.SessionCache.
type SessionCache struct {
	storage domain.ClientStorage
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a SessionCache.
type Option func(*SessionCache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *SessionCache) { c.now = now }
}

// WithLogger sets the logger used to report storage failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *SessionCache) { c.logger = logger }
}

// NewSessionCache creates a session cache over storage with the given TTL.
func NewSessionCache(storage domain.ClientStorage, ttl time.Duration, opts ...Option) *SessionCache {
	c := &SessionCache{
		storage: storage,
		ttl:     ttl,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetIdentity stores identity stamped with the current time. A cached profile
// is kept only when it belongs to the same identity.
func (c *SessionCache) SetIdentity(ctx context.Context, identity *domain.Identity) {
	if identity == nil {
		c.Clear(ctx)
		return
	}

	entry := &domain.CachedSession{Identity: identity, StoredAt: c.now()}
	if current, ok := c.load(ctx); ok && current.Profile != nil && current.Profile.IdentityID == identity.ID {
		entry.Profile = current.Profile
	}
	c.save(ctx, entry)
}

// Identity returns the cached identity if the entry is unexpired.
func (c *SessionCache) Identity(ctx context.Context) (*domain.Identity, bool) {
	entry, ok := c.load(ctx)
	if !ok || entry.Identity == nil {
		return nil, false
	}
	return entry.Identity, true
}

// SetProfile stores profile alongside the cached identity and refreshes the
// shared timestamp. A nil profile clears the profile slot.
func (c *SessionCache) SetProfile(ctx context.Context, profile *domain.Profile) {
	entry, ok := c.load(ctx)
	if !ok || entry.Identity == nil {
		c.logger.DebugContext(ctx, "profile not cached: no identity in session cache")
		return
	}
	if profile != nil && profile.IdentityID != entry.Identity.ID {
		c.logger.WarnContext(ctx, "profile not cached: identity mismatch",
			"identity_id", entry.Identity.ID,
			"profile_identity_id", profile.IdentityID)
		return
	}

	entry.Profile = profile
	entry.StoredAt = c.now()
	c.save(ctx, entry)
}

// Profile returns the cached profile if the entry is unexpired.
func (c *SessionCache) Profile(ctx context.Context) (*domain.Profile, bool) {
	entry, ok := c.load(ctx)
	if !ok || entry.Profile == nil {
		return nil, false
	}
	return entry.Profile, true
}

// IsValid reports whether both identity and profile are cached and unexpired.
func (c *SessionCache) IsValid(ctx context.Context) bool {
	entry, ok := c.load(ctx)
	return ok && entry.Identity != nil && entry.Profile != nil
}

// Clear evicts the cached entry.
func (c *SessionCache) Clear(ctx context.Context) {
	if err := c.storage.Delete(ctx, sessionKey); err != nil {
		c.logger.WarnContext(ctx, "failed to clear session cache", "error", err)
	}
}

// load returns the unexpired entry. Unreadable, corrupt and expired entries
// are evicted and reported as a miss.
func (c *SessionCache) load(ctx context.Context) (*domain.CachedSession, bool) {
	raw, found, err := c.storage.Get(ctx, sessionKey)
	if err != nil {
		c.logger.WarnContext(ctx, "session cache read failed", "error", err)
		c.Clear(ctx)
		return nil, false
	}
	if !found {
		return nil, false
	}

	var entry domain.CachedSession
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.WarnContext(ctx, "corrupt session cache entry evicted", "error", err)
		c.Clear(ctx)
		return nil, false
	}

	if c.now().Sub(entry.StoredAt) > c.ttl {
		c.Clear(ctx)
		return nil, false
	}
	return &entry, true
}

func (c *SessionCache) save(ctx context.Context, entry *domain.CachedSession) {
	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to encode session cache entry", "error", err)
		return
	}
	if err := c.storage.Set(ctx, sessionKey, raw, c.ttl+storageGrace); err != nil {
		c.logger.WarnContext(ctx, "failed to write session cache entry", "error", err)
	}
}
