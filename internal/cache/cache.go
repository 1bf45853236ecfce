// Package cache provides the in-memory result caches used by the book service.
//
// Entries expire after a fixed TTL. When an insert would exceed capacity the
// entry that has gone longest without access, weighted by how rarely it was
// read, is evicted.
package cache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/listenupapp/kyobo-metadata/internal/logger"
)

// Eviction score weights. The score grows with idle time and shrinks with
// access count; the entry with the highest score is evicted.
const (
	idleWeight   = 0.7
	accessWeight = 0.3
	accessUnitMS = 1000.0
)

// Options configures a Cache.
type Options struct {
	Name          string
	Capacity      int
	TTL           time.Duration
	SweepInterval time.Duration // 0 disables the background sweep
	Now           func() time.Time
	Logger        *slog.Logger
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Name        string `json:"name"`
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Evictions   uint64 `json:"evictions"`
	Expirations uint64 `json:"expirations"`
	Size        int    `json:"size"`
	Capacity    int    `json:"capacity"`
}

// HitRate returns hits over lookups, or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry[V any] struct {
	value       V
	storedAt    time.Time
	lastAccess  time.Time
	accessCount int
}

// Cache is a TTL'd, capacity-bounded map safe for concurrent use.
type Cache[V any] struct {
	mu     sync.Mutex
	items  map[string]*entry[V]
	opts   Options
	stats  Stats
	logger *slog.Logger

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a cache and starts its sweeper when SweepInterval is positive.
// Capacity below 1 is treated as 1.
func New[V any](opts Options) *Cache[V] {
	if opts.Capacity < 1 {
		opts.Capacity = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Name == "" {
		opts.Name = "cache"
	}

	c := &Cache[V]{
		items:  make(map[string]*entry[V], opts.Capacity),
		opts:   opts,
		logger: logger.Component(opts.Logger, "cache").With("cache", opts.Name),
		done:   make(chan struct{}),
	}

	if opts.SweepInterval > 0 {
		c.wg.Add(1)
		go c.sweepLoop(opts.SweepInterval)
	}
	return c
}

// Get returns the value for key. Expired entries are removed and reported as misses.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Now()
	e, ok := c.items[key]
	if ok && c.expired(e, now) {
		delete(c.items, key)
		c.stats.Expirations++
		ok = false
	}
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}

	e.lastAccess = now
	e.accessCount++
	c.stats.Hits++
	return e.value, true
}

// peek returns a live value without touching access data or counters.
func (c *Cache[V]) peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok || c.expired(e, c.opts.Now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Has reports whether a live entry exists for key without touching access data or counters.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return false
	}
	if c.expired(e, c.opts.Now()) {
		delete(c.items, key)
		c.stats.Expirations++
		return false
	}
	return true
}

// Set stores value under key. Replacing an existing key resets its TTL and
// counts as an access.
// Inserting a new key into a full cache evicts exactly one entry first.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Now()
	if e, ok := c.items[key]; ok {
		e.value = value
		e.storedAt = now
		e.lastAccess = now
		e.accessCount++
		return
	}

	if len(c.items) >= c.opts.Capacity {
		c.evictOne(now)
	}
	c.items[key] = &entry[V]{value: value, storedAt: now, lastAccess: now}
}

// Delete removes key and reports whether it was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.items[key]
	delete(c.items, key)
	return ok
}

// Clear drops every entry and resets the counters.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*entry[V], c.opts.Capacity)
	c.stats = Stats{}
}

// Len returns the number of stored entries, expired ones included until swept.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns a snapshot of the counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Name = c.opts.Name
	s.Size = len(c.items)
	s.Capacity = c.opts.Capacity
	return s
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Now()
	removed := 0
	for k, e := range c.items {
		if c.expired(e, now) {
			delete(c.items, k)
			removed++
		}
	}
	c.stats.Expirations += uint64(removed)
	return removed
}

// Stop halts the background sweeper. It is safe to call more than once.
func (c *Cache[V]) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
}

func (c *Cache[V]) sweepLoop(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("swept expired entries", "removed", n)
			}
		}
	}
}

func (c *Cache[V]) expired(e *entry[V], now time.Time) bool {
	return c.opts.TTL > 0 && now.Sub(e.storedAt) >= c.opts.TTL
}

// evictOne drops the entry with the highest eviction score. Ties go to the
// oldest insert, then the smallest key, so eviction is deterministic.
// Callers hold c.mu.
func (c *Cache[V]) evictOne(now time.Time) {
	var (
		victim    string
		victimE   *entry[V]
		bestScore float64
	)
	for k, e := range c.items {
		s := score(e, now)
		if victimE == nil || s > bestScore ||
			(s == bestScore && (e.storedAt.Before(victimE.storedAt) ||
				(e.storedAt.Equal(victimE.storedAt) && k < victim))) {
			victim, victimE, bestScore = k, e, s
		}
	}
	if victimE == nil {
		return
	}
	delete(c.items, victim)
	c.stats.Evictions++
	c.logger.Debug("evicted entry", "key", victim, "access_count", victimE.accessCount)
}

func score[V any](e *entry[V], now time.Time) float64 {
	idleMS := float64(now.Sub(e.lastAccess).Milliseconds())
	return idleWeight*idleMS - accessWeight*float64(e.accessCount)*accessUnitMS
}
