package usgs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/quakemap/internal/domain"
	"github.com/couchcryptid/quakemap/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock for cache tests ---

type countingSource struct {
	mu         sync.Mutex
	quakeCalls map[domain.TimeWindow]int
	plateCalls int
	body       []byte
	err        error
}

func newCountingSource(body string) *countingSource {
	return &countingSource{quakeCalls: map[domain.TimeWindow]int{}, body: []byte(body)}
}

func (m *countingSource) FetchEarthquakes(_ context.Context, w domain.TimeWindow) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quakeCalls[w]++
	return m.body, m.err
}

func (m *countingSource) FetchPlates(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plateCalls++
	return m.body, m.err
}

// --- CachedSource tests ---

func TestCachedSource_HitWithinTTL(t *testing.T) {
	inner := newCountingSource(testFeed)
	clock := clockwork.NewFakeClock()
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedSource(inner, 8, time.Minute, clock, metrics)

	b1, err := cached.FetchEarthquakes(context.Background(), domain.WindowWeek)
	require.NoError(t, err)
	clock.Advance(30 * time.Second)
	b2, err := cached.FetchEarthquakes(context.Background(), domain.WindowWeek)
	require.NoError(t, err)

	assert.Equal(t, b1, b2)
	assert.Equal(t, 1, inner.quakeCalls[domain.WindowWeek], "should only call inner once")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FeedCache.WithLabelValues(feedEarthquakes, "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FeedCache.WithLabelValues(feedEarthquakes, "miss")))
}

func TestCachedSource_ExpiresAfterTTL(t *testing.T) {
	inner := newCountingSource(testFeed)
	clock := clockwork.NewFakeClock()
	cached := NewCachedSource(inner, 8, time.Minute, clock, observability.NewMetricsForTesting())

	_, _ = cached.FetchPlates(context.Background())
	clock.Advance(time.Minute)
	_, _ = cached.FetchPlates(context.Background())

	assert.Equal(t, 2, inner.plateCalls)
}

func TestCachedSource_WindowsAreSeparateKeys(t *testing.T) {
	inner := newCountingSource(testFeed)
	cached := NewCachedSource(inner, 8, time.Minute, clockwork.NewFakeClock(), observability.NewMetricsForTesting())

	_, _ = cached.FetchEarthquakes(context.Background(), domain.WindowHour)
	_, _ = cached.FetchEarthquakes(context.Background(), domain.WindowDay)
	_, _ = cached.FetchPlates(context.Background())

	assert.Equal(t, 1, inner.quakeCalls[domain.WindowHour])
	assert.Equal(t, 1, inner.quakeCalls[domain.WindowDay])
	assert.Equal(t, 1, inner.plateCalls)
}

func TestCachedSource_ErrorsAreNotCached(t *testing.T) {
	inner := newCountingSource(testFeed)
	inner.err = errors.New("boom")
	cached := NewCachedSource(inner, 8, time.Minute, clockwork.NewFakeClock(), observability.NewMetricsForTesting())

	_, err := cached.FetchEarthquakes(context.Background(), domain.WindowDay)
	require.Error(t, err)

	inner.err = nil
	_, err = cached.FetchEarthquakes(context.Background(), domain.WindowDay)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.quakeCalls[domain.WindowDay])
}

func TestCachedSource_ZeroTTLDisablesCache(t *testing.T) {
	inner := newCountingSource(testFeed)
	cached := NewCachedSource(inner, 8, 0, clockwork.NewFakeClock(), observability.NewMetricsForTesting())

	_, _ = cached.FetchEarthquakes(context.Background(), domain.WindowDay)
	_, _ = cached.FetchEarthquakes(context.Background(), domain.WindowDay)

	assert.Equal(t, 2, inner.quakeCalls[domain.WindowDay])
	assert.Zero(t, cached.cache.len())
}

// --- LRU cache unit tests ---

var farFuture = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache(3)
	now := time.Now()

	c.put("a", []byte("A"), farFuture)
	c.put("b", []byte("B"), farFuture)

	v, ok := c.get("a", now)
	assert.True(t, ok)
	assert.Equal(t, []byte("A"), v)

	_, ok = c.get("missing", now)
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)
	now := time.Now()

	c.put("a", []byte("A"), farFuture)
	c.put("b", []byte("B"), farFuture)
	c.put("c", []byte("C"), farFuture) // evicts "a"

	_, ok := c.get("a", now)
	assert.False(t, ok, "a should have been evicted")

	_, ok = c.get("b", now)
	assert.True(t, ok)
	_, ok = c.get("c", now)
	assert.True(t, ok)
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache(2)
	now := time.Now()

	c.put("a", []byte("A"), farFuture)
	c.put("b", []byte("B"), farFuture)

	// Access "a" to promote it
	c.get("a", now)

	// Insert "c": should evict "b" (LRU), not "a"
	c.put("c", []byte("C"), farFuture)

	_, ok := c.get("a", now)
	assert.True(t, ok, "a was accessed recently, should not be evicted")

	_, ok = c.get("b", now)
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_ExpiredEntryDropped(t *testing.T) {
	c := newLRUCache(2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	c.put("a", []byte("A"), now.Add(time.Second))

	_, ok := c.get("a", now.Add(time.Second))
	assert.False(t, ok)
	assert.Zero(t, c.len())
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", []byte("A1"), farFuture)
	c.put("a", []byte("A2"), farFuture)

	v, ok := c.get("a", time.Now())
	assert.True(t, ok)
	assert.Equal(t, []byte("A2"), v)
	assert.Equal(t, 1, c.len())
}
