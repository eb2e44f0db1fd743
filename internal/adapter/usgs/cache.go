package usgs

import (
	"context"
	"sync"
	"time"

	"github.com/couchcryptid/quakemap/internal/domain"
	"github.com/couchcryptid/quakemap/internal/observability"
	"github.com/jonboulle/clockwork"
)

// CachedSource wraps a FeedSource with an in-memory LRU cache whose entries
// expire after a fixed TTL. USGS regenerates the summary feeds every minute,
// so a short TTL keeps repeated renders from refetching the same document.
type CachedSource struct {
	inner   domain.FeedSource
	cache   *lruCache
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics
}

// NewCachedSource creates a cache decorator around a feed source. A zero ttl
// disables caching.
func NewCachedSource(inner domain.FeedSource, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedSource {
	return &CachedSource{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		ttl:     ttl,
		clock:   clock,
		metrics: metrics,
	}
}

func (c *CachedSource) FetchEarthquakes(ctx context.Context, window domain.TimeWindow) ([]byte, error) {
	return c.fetch(feedEarthquakes, "eq:"+string(window), func() ([]byte, error) {
		return c.inner.FetchEarthquakes(ctx, window)
	})
}

func (c *CachedSource) FetchPlates(ctx context.Context) ([]byte, error) {
	return c.fetch(feedPlates, "plates", func() ([]byte, error) {
		return c.inner.FetchPlates(ctx)
	})
}

func (c *CachedSource) fetch(feed, key string, load func() ([]byte, error)) ([]byte, error) {
	if c.ttl <= 0 {
		return load()
	}

	now := c.clock.Now()
	if body, ok := c.cache.get(key, now); ok {
		c.metrics.FeedCache.WithLabelValues(feed, "hit").Inc()
		return body, nil
	}
	c.metrics.FeedCache.WithLabelValues(feed, "miss").Inc()

	body, err := load()
	if err != nil {
		return nil, err
	}
	// Failures are never cached so the next render retries upstream.
	c.cache.put(key, body, now.Add(c.ttl))
	return body, nil
}

// lruCache is a simple thread-safe LRU cache of feed bodies with expiry.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
	prev      *entry
	next      *entry
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

// get returns a live entry; expired entries are dropped on access.
func (c *lruCache) get(key string, now time.Time) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !now.Before(e.expiresAt) {
		delete(c.entries, key)
		c.remove(e)
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value []byte, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value, expiresAt: expiresAt}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
