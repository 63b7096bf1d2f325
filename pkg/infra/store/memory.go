package store

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is a thread-safe in-memory Store with per-entry TTL.
// Expired entries are evicted lazily on access; Sweep removes them in bulk.
type MemoryStore struct {
	data map[string]*memoryEntry
	mu   sync.RWMutex
	now  func() time.Time
}

// MemoryStoreOpts allows injecting a time provider for tests.
type MemoryStoreOpts struct {
	TimeProvider func() time.Time
}

func NewMemoryStore(opts *MemoryStoreOpts) *MemoryStore {
	now := time.Now
	if opts != nil && opts.TimeProvider != nil {
		now = opts.TimeProvider
	}
	return &MemoryStore{
		data: make(map[string]*memoryEntry),
		now:  now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	entry, exists := m.data[key]
	if !exists {
		m.mu.RUnlock()
		return "", false, nil
	}
	isExpired := entry.expired(m.now())
	value := entry.value
	m.mu.RUnlock()

	if isExpired {
		m.mu.Lock()
		if current, ok := m.data[key]; ok && current.expired(m.now()) {
			delete(m.data, key)
		}
		m.mu.Unlock()
		return "", false, nil
	}

	return value, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := &memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.data[key] = entry
	return nil
}

func (m *MemoryStore) Update(_ context.Context, key string, ttl time.Duration, fn UpdateFunc) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current string
	exists := false
	if entry, ok := m.data[key]; ok && !entry.expired(m.now()) {
		current = entry.value
		exists = true
	}

	next, err := fn(current, exists)
	if err != nil {
		return "", err
	}

	entry := &memoryEntry{value: next}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.data[key] = entry
	return next, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	keys := make([]string, 0, len(m.data))
	for key, entry := range m.data {
		if entry.expired(now) {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Sweep removes all expired entries and returns how many were evicted.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	evicted := 0
	for key, entry := range m.data {
		if entry.expired(now) {
			delete(m.data, key)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of entries currently held, including expired ones
// that have not been swept yet.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
