// Package prefetch caches sibling-variant lookups keyed by product group,
// warming entries ahead of demand from hover and focus signals so the
// detail view opens without a storage round trip.
package prefetch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atelier-cloud/shelfdex/internal/clock"
	"github.com/atelier-cloud/shelfdex/internal/domain"
	"github.com/atelier-cloud/shelfdex/internal/metrics"
)

// Defaults.
const (
	DefaultTTL        = 5 * time.Minute
	DefaultFocusDelay = 100 * time.Millisecond
)

type entry struct {
	records   []domain.Record
	fetchedAt time.Time
}

// inflightCall is a fetch shared by every caller that asked for the same
// key while it was running.
type inflightCall struct {
	done    chan struct{}
	records []domain.Record
	err     error
}

// Cache is a TTL cache over a Fetcher with single-flight fetching: all
// concurrent requests for one group key share a single storage call.
type Cache struct {
	fetch      Fetcher
	clk        clock.Clock
	log        *zap.Logger
	ttl        time.Duration
	focusDelay time.Duration

	mu       sync.Mutex
	closed   bool
	entries  map[string]entry
	inflight map[string]*inflightCall

	focusKey   string
	focusTimer clock.Timer

	hits   uint64
	misses uint64
}

// NewCache creates a cache. Non-positive ttl and focusDelay fall back to
// the defaults.
func NewCache(fetch Fetcher, clk clock.Clock, log *zap.Logger, ttl, focusDelay time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if focusDelay <= 0 {
		focusDelay = DefaultFocusDelay
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		fetch:      fetch,
		clk:        clk,
		log:        log,
		ttl:        ttl,
		focusDelay: focusDelay,
		entries:    make(map[string]entry),
		inflight:   make(map[string]*inflightCall),
	}
}

// Prefetch warms the cache for a group key. Returns immediately: the
// fetch runs in the background and errors are logged, never surfaced. A
// valid entry or an in-flight fetch makes this a no-op.
func (c *Cache) Prefetch(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || key == "" {
		return
	}
	if _, ok := c.validLocked(key); ok {
		return
	}
	c.startLocked(key)
}

// Focus schedules a prefetch after the focus settle delay. Rapid focus
// movement collapses onto the last focused key.
func (c *Cache) Focus(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || key == "" {
		return
	}
	c.focusKey = key
	if c.focusTimer != nil {
		c.focusTimer.Stop()
	}
	c.focusTimer = c.clk.AfterFunc(c.focusDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || c.focusKey != key {
			return
		}
		if _, ok := c.validLocked(key); ok {
			return
		}
		c.startLocked(key)
	})
}

// Get returns the cached siblings for a key without fetching.
func (c *Cache) Get(key string) ([]domain.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	records, ok := c.validLocked(key)
	if ok {
		c.hits++
		metrics.PrefetchCacheTotal.WithLabelValues("hit").Inc()
	} else {
		c.misses++
		metrics.PrefetchCacheTotal.WithLabelValues("miss").Inc()
	}
	return records, ok
}

// GetOrFetch returns the cached siblings for a key, fetching on a miss.
// Concurrent misses for the same key share one storage call.
func (c *Cache) GetOrFetch(ctx context.Context, key string) ([]domain.Record, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, domain.ErrStoreUnavailable
	}
	if records, ok := c.validLocked(key); ok {
		c.hits++
		c.mu.Unlock()
		metrics.PrefetchCacheTotal.WithLabelValues("hit").Inc()
		return records, nil
	}
	c.misses++
	call := c.startLocked(key)
	c.mu.Unlock()
	metrics.PrefetchCacheTotal.WithLabelValues("miss").Inc()

	select {
	case <-call.done:
		return call.records, call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops the cached entry for a key, forcing the next read to
// hit storage. Called after writes that change a product group.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Stats returns the hit and miss counts.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Close cancels pending focus work and rejects further reads.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.focusTimer != nil {
		c.focusTimer.Stop()
		c.focusTimer = nil
	}
}

// validLocked returns the entry for key if it has not outlived the TTL.
// Caller holds c.mu.
func (c *Cache) validLocked(key string) ([]domain.Record, bool) {
	e, ok := c.entries[key]
	if !ok || !c.clk.Now().Before(e.fetchedAt.Add(c.ttl)) {
		return nil, false
	}
	return e.records, true
}

// startLocked joins the in-flight fetch for key, starting one if none is
// running. Caller holds c.mu.
func (c *Cache) startLocked(key string) *inflightCall {
	if call, ok := c.inflight[key]; ok {
		return call
	}
	call := &inflightCall{done: make(chan struct{})}
	c.inflight[key] = call

	go func() {
		records, err := c.fetch.Siblings(context.Background(), key)

		c.mu.Lock()
		delete(c.inflight, key)
		if err == nil {
			c.entries[key] = entry{records: records, fetchedAt: c.clk.Now()}
		}
		c.mu.Unlock()

		call.records = records
		call.err = err
		close(call.done)

		if err != nil {
			c.log.Warn("sibling prefetch failed",
				zap.String("group", key),
				zap.Error(err))
		}
	}()
	return call
}
