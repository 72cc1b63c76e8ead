package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"crm-hub/internal/domain"
)

// memoryEntry is a stored value with an optional expiry.
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore provides thread-safe in-memory client storage with TTL.
// It is shared by all clients of one process; ForClient scopes it.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates a store and starts its cleanup loop.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		stop:    make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// ForClient returns the storage scoped to clientID.
func (s *MemoryStore) ForClient(clientID string) domain.ClientStorage {
	return &memoryClientStorage{store: s, prefix: clientKeyPrefix(clientID)}
}

// Close stops the cleanup loop.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

// Len returns the number of stored keys, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, found := s.entries[key]
	if !found || entry.expired(time.Now()) {
		return nil, false
	}
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, true
}

func (s *MemoryStore) set(key string, value []byte, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	entry := &memoryEntry{value: stored}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.entries[key] = entry
}

func (s *MemoryStore) delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

func (s *MemoryStore) deletePrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
}

// cleanup removes expired entries.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, key)
		}
	}
}

// cleanupLoop runs periodic cleanup of expired entries.
func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// memoryClientStorage implements domain.ClientStorage over a MemoryStore.
type memoryClientStorage struct {
	store  *MemoryStore
	prefix string
}

func (m *memoryClientStorage) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, found := m.store.get(m.prefix + key)
	return value, found, nil
}

func (m *memoryClientStorage) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.store.set(m.prefix+key, value, ttl)
	return nil
}

func (m *memoryClientStorage) Delete(_ context.Context, key string) error {
	m.store.delete(m.prefix + key)
	return nil
}

func (m *memoryClientStorage) Clear(_ context.Context) error {
	m.store.deletePrefix(m.prefix)
	return nil
}

// clientKeyPrefix namespaces every key of a client.
func clientKeyPrefix(clientID string) string {
	return "crm:client:" + clientID + ":"
}
