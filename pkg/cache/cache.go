// Package cache provides a small thread-safe TTL cache. The gateway uses it
// to memoize subject-to-stream resolution so hot publish paths skip repeated
// JetStream lookups.
package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrEmptyKey is returned when a caller passes an empty cache key.
var ErrEmptyKey = errors.New("cache: key cannot be empty")

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e *entry[V]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Statistics carries lifetime cache counters. All fields are updated
// atomically; read them with the corresponding methods.
type Statistics struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64
}

// Hits returns the number of successful lookups.
func (s *Statistics) Hits() int64 { return s.hits.Load() }

// Misses returns the number of failed lookups.
func (s *Statistics) Misses() int64 { return s.misses.Load() }

// Sets returns the number of stores.
func (s *Statistics) Sets() int64 { return s.sets.Load() }

// Evictions returns the number of expired or displaced entries.
func (s *Statistics) Evictions() int64 { return s.evictions.Load() }

// TTL is a thread-safe cache whose entries expire after a fixed duration.
// A background janitor sweeps expired entries; Close stops it.
type TTL[V any] struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]*entry[V]
	stats Statistics

	shutdown chan struct{}
	done     chan struct{}
	closeOne sync.Once
}

// NewTTL creates a TTL cache. Entries expire ttl after each Set; the janitor
// sweeps every cleanupInterval (a zero interval defaults to the ttl). The
// janitor also stops when ctx is cancelled.
func NewTTL[V any](ctx context.Context, ttl, cleanupInterval time.Duration) *TTL[V] {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if cleanupInterval <= 0 {
		cleanupInterval = ttl
	}

	c := &TTL[V]{
		ttl:      ttl,
		items:    make(map[string]*entry[V]),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	go c.janitor(ctx, cleanupInterval)

	return c
}

// Get retrieves a value by key, treating expired entries as absent.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, exists := c.items[key]
	c.mu.RUnlock()

	now := time.Now()
	if !exists || e.expired(now) {
		if exists {
			// Lazy eviction on read
			c.mu.Lock()
			if cur, still := c.items[key]; still && cur.expired(now) {
				delete(c.items, key)
				c.stats.evictions.Add(1)
			}
			c.mu.Unlock()
		}
		c.stats.misses.Add(1)
		var zero V
		return zero, false
	}

	c.stats.hits.Add(1)
	return e.value, true
}

// Set stores a value under key with a fresh expiry.
func (c *TTL[V]) Set(key string, value V) error {
	if key == "" {
		return ErrEmptyKey
	}

	c.mu.Lock()
	c.items[key] = &entry[V]{value: value, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	c.stats.sets.Add(1)
	return nil
}

// Delete removes an entry; reports whether one existed.
func (c *TTL[V]) Delete(key string) bool {
	c.mu.Lock()
	_, exists := c.items[key]
	if exists {
		delete(c.items, key)
	}
	c.mu.Unlock()
	return exists
}

// Clear removes all entries.
func (c *TTL[V]) Clear() {
	c.mu.Lock()
	c.items = make(map[string]*entry[V])
	c.mu.Unlock()
}

// Size returns the number of entries, including not-yet-swept expired ones.
func (c *TTL[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats exposes lifetime counters.
func (c *TTL[V]) Stats() *Statistics {
	return &c.stats
}

// Close stops the janitor. Safe to call more than once.
func (c *TTL[V]) Close() {
	c.closeOne.Do(func() { close(c.shutdown) })
	<-c.done
}

func (c *TTL[V]) janitor(ctx context.Context, interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *TTL[V]) sweep() {
	now := time.Now()

	c.mu.Lock()
	for key, e := range c.items {
		if e.expired(now) {
			delete(c.items, key)
			c.stats.evictions.Add(1)
		}
	}
	c.mu.Unlock()
}
