// Package cache provides the single-slot freshness cache each source adapter owns.
package cache

import (
	"sync"
	"time"
)

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time

// Freshness holds the last successful payload of one adapter until it expires.
// It is safe for concurrent use: readers always observe a complete entry.
type Freshness[T any] struct {
	mu        sync.RWMutex
	payload   T
	expiresAt time.Time
	filled    bool
	now       Clock
}

// New creates an empty cache using the wall clock.
func New[T any]() *Freshness[T] {
	return NewWithClock[T](time.Now)
}

// NewWithClock creates an empty cache driven by clock.
func NewWithClock[T any](clock Clock) *Freshness[T] {
	if clock == nil {
		clock = time.Now
	}
	return &Freshness[T]{now: clock}
}

// Get returns the cached payload while now < expiresAt. The boolean is false
// on a miss, including when nothing was ever stored.
func (c *Freshness[T]) Get() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.filled || !c.now().Before(c.expiresAt) {
		var zero T
		return zero, false
	}
	return c.payload, true
}

// Set replaces the payload and sets expiresAt = now + ttl in one step.
// An empty payload is a legitimate entry.
func (c *Freshness[T]) Set(payload T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.payload = payload
	c.expiresAt = c.now().Add(ttl)
	c.filled = true
}

// ExpiresAt reports when the current entry expires. The zero time means empty.
func (c *Freshness[T]) ExpiresAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiresAt
}
