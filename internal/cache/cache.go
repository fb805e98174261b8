// Package cache holds short lived provider lookups.
package cache

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Cache stores opaque values with a time to live.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process Cache. Expired entries are dropped lazily on
// read and by Prune.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false
	}
	return e.value, true
}

func (m *Memory) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: value, expiresAt: m.now().Add(ttl)}
}

// Prune removes every expired entry.
func (m *Memory) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Key joins key parts with ':'.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// UserKey scopes a key to a user so private lookups never leak between
// users.
func UserKey(userID string, parts ...string) string {
	return Key(append([]string{"user", userID}, parts...)...)
}

// GetJSON decodes a cached JSON value. A value that no longer decodes is
// treated as a miss.
func GetJSON[T any](c Cache, key string) (T, bool) {
	var v T
	raw, ok := c.Get(key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("dropping undecodable cache entry")
		return v, false
	}
	return v, true
}

// SetJSON encodes and stores v.
func SetJSON[T any](c Cache, key string, v T, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("not caching unencodable value")
		return
	}
	c.Set(key, raw, ttl)
}

// Fetch returns the cached value for key or calls load and caches its
// result.
func Fetch[T any](c Cache, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if v, ok := GetJSON[T](c, key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	SetJSON(c, key, v, ttl)
	return v, nil
}
