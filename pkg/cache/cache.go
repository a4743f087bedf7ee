// Package cache provides the in-memory response cache shared by every task.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"
)

// keySeparator joins the two prompt halves before hashing.
const keySeparator = "\x1f|||\x1f"

type entry struct {
	value      any
	insertedAt time.Time
}

// ResponseCache maps a (system, user) prompt pair to a previously validated
// model response. Entries expire lazily on read once their TTL has elapsed.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a ResponseCache.
type Option func(*ResponseCache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *ResponseCache) { c.now = now }
}

// New creates an empty cache with the given TTL.
func New(ttl time.Duration, opts ...Option) *ResponseCache {
	c := &ResponseCache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the hex SHA-256 digest identifying a prompt pair.
func Key(system, user string) string {
	sum := sha256.Sum256([]byte(system + keySeparator + user))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached value if it is younger than the TTL. Expired entries
// are evicted.
func (c *ResponseCache) Get(system, user string) (any, bool) {
	key := Key(system, user)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.insertedAt) < c.ttl {
		return e.value, true
	}
	delete(c.entries, key)
	return nil, false
}

// Set stores value, replacing any previous entry for the pair.
func (c *ResponseCache) Set(system, user string, value any) {
	key := Key(system, user)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, insertedAt: c.now()}
}

// Clear drops every entry.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Size reports the number of stored entries, expired or not.
func (c *ResponseCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge removes all expired entries and returns how many were dropped.
func (c *ResponseCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.insertedAt) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Run purges expired entries every interval until ctx is cancelled.
// A non-positive interval returns immediately.
func (c *ResponseCache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Purge(); n > 0 {
				slog.Debug("Response cache purged", "removed", n, "remaining", c.Size())
			}
		}
	}
}
