package pricing

import (
	"container/list"
	"sync"
	"time"
)

type cacheEntry struct {
	mint  string
	price float64
	at    time.Time
}

// PriceCache is a bounded LRU of mint prices with a read-time TTL check.
// Stale entries are not purged; they simply stop producing hits.
type PriceCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	order    *list.List
	items    map[string]*list.Element
	now      func() time.Time
}

// NewPriceCache creates a cache holding at most capacity mints.
func NewPriceCache(capacity int, ttl time.Duration) *PriceCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &PriceCache{
		ttl:      ttl,
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
		now:      time.Now,
	}
}

// Get peeks at the cached price without touching recency order.
func (c *PriceCache) Get(mint string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[mint]
	if !ok {
		return 0, false
	}
	e := el.Value.(*cacheEntry)
	if c.now().Sub(e.at) >= c.ttl {
		return 0, false
	}
	return e.price, true
}

// Lookup is Get that also marks the entry as recently used.
func (c *PriceCache) Lookup(mint string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[mint]
	if !ok {
		return 0, false
	}
	c.order.MoveToFront(el)
	e := el.Value.(*cacheEntry)
	if c.now().Sub(e.at) >= c.ttl {
		return 0, false
	}
	return e.price, true
}

// Put stores price with a fresh timestamp, evicting the least recently used mint at capacity.
func (c *PriceCache) Put(mint string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[mint]; ok {
		e := el.Value.(*cacheEntry)
		e.price = price
		e.at = c.now()
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).mint)
		}
	}
	c.items[mint] = c.order.PushFront(&cacheEntry{mint: mint, price: price, at: c.now()})
}

func (c *PriceCache) Remove(mint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[mint]; ok {
		c.order.Remove(el)
		delete(c.items, mint)
	}
}

func (c *PriceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
