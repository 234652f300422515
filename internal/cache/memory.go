package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	cachedAt  time.Time
	expiresAt time.Time
}

// Memory is an in-process cache bounded by entry count. When full, the
// oldest entry is evicted.
type Memory struct {
	config  Config
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory creates an in-memory cache.
func NewMemory(config Config) *Memory {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultTTL
	}
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultMaxSize
	}
	return &Memory{
		config:  config,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.config.DefaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.config.MaxSize {
		m.evictLocked(now)
	}
	m.entries[key] = memoryEntry{value: value, cachedAt: now, expiresAt: now.Add(ttl)}
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// evictLocked drops expired entries, or the oldest one if none expired.
func (m *Memory) evictLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	expired := false
	for key, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, key)
			expired = true
			continue
		}
		if oldestKey == "" || entry.cachedAt.Before(oldest) {
			oldestKey = key
			oldest = entry.cachedAt
		}
	}
	if !expired && oldestKey != "" {
		delete(m.entries, oldestKey)
	}
}
