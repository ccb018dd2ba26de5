package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newTestCache(capacity int, ttl time.Duration) (*PriceCache, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := NewPriceCache(capacity, ttl)
	c.now = clock.now
	return c, clock
}

func TestPriceCacheRoundTrip(t *testing.T) {
	c, clock := newTestCache(8, 2*time.Second)

	c.Put("mintA", 0.000042)
	p, ok := c.Get("mintA")
	assert.True(t, ok)
	assert.Equal(t, 0.000042, p)

	clock.t = clock.t.Add(1999 * time.Millisecond)
	_, ok = c.Get("mintA")
	assert.True(t, ok)

	clock.t = clock.t.Add(time.Millisecond)
	_, ok = c.Get("mintA")
	assert.False(t, ok, "entry at exactly ttl age is stale")

	// stale entries are kept until overwritten
	assert.Equal(t, 1, c.Len())
	c.Put("mintA", 0.00005)
	p, ok = c.Get("mintA")
	assert.True(t, ok)
	assert.Equal(t, 0.00005, p)
}

func TestPriceCacheMiss(t *testing.T) {
	c, _ := newTestCache(2, time.Second)
	_, ok := c.Get("unknown")
	assert.False(t, ok)
	_, ok = c.Lookup("unknown")
	assert.False(t, ok)
}

func TestPriceCacheGetDoesNotPromote(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Put("a", 1)
	c.Put("b", 2)

	// a peek at "a" leaves it least recently used
	_, _ = c.Get("a")
	c.Put("c", 3)

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestPriceCacheLookupPromotes(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Put("a", 1)
	c.Put("b", 2)

	_, _ = c.Lookup("a")
	c.Put("c", 3)

	_, ok := c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestPriceCacheRemove(t *testing.T) {
	c, _ := newTestCache(4, time.Minute)
	c.Put("a", 1)
	c.Remove("a")
	c.Remove("missing")
	assert.Equal(t, 0, c.Len())
}
