// Package cache holds the in-process statistics cache used when Redis is
// not configured.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type entry struct {
	data    []byte
	expires time.Time
}

// Memory is a TTL cache storing JSON-encoded values, so callers get copies
// and never share state with other requests.
type Memory struct {
	mu          sync.RWMutex
	entries     map[string]entry
	ttl         time.Duration
	now         func() time.Time
	lastFlushed time.Time
}

// NewMemory creates an empty cache whose entries live for ttl
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get decodes the live value for key into dst. Expired entries are misses.
func (m *Memory) Get(_ context.Context, key string, dst any) (bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || !m.now().Before(e.expires) {
		return false, nil
	}
	if err := json.Unmarshal(e.data, dst); err != nil {
		return false, fmt.Errorf("failed to decode cached value: %w", err)
	}
	return true, nil
}

// Set stores v for the cache TTL
func (m *Memory) Set(_ context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = entry{data: data, expires: m.now().Add(m.ttl)}
	return nil
}

// Invalidate drops every entry
func (m *Memory) Invalidate(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]entry)
	m.lastFlushed = m.now()
	return nil
}

// Len returns the number of stored entries, expired ones included
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

// LastFlushed returns when Invalidate last ran
func (m *Memory) LastFlushed() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.lastFlushed
}
