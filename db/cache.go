package db

import (
	"fmt"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/golang/groupcache/singleflight"
)

// Cache is a single-slot table cache keyed by dataset path. The slot is
// filled lazily on first access and then served without calling the fill
// function again. Concurrent first requests share one fill. Failed fills
// are not cached.
//
// Evicted tables are not released: a request may still hold one.
type Cache struct {
	mu    sync.Mutex
	slot  *lru.Cache
	gen   uint64
	group singleflight.Group
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{slot: lru.New(1)}
}

// Get returns the cached table for key, calling fill to populate the slot
// if it is empty or holds a different key. A fill that was already running
// when Invalidate was called returns its table to its own callers but does
// not populate the slot, and later callers do not join it.
func (c *Cache) Get(key string, fill func() (*Table, error)) (*Table, error) {
	c.mu.Lock()
	if v, ok := c.slot.Get(key); ok {
		c.mu.Unlock()
		cacheRequests.WithLabelValues("hit").Inc()
		return v.(*Table), nil
	}
	gen := c.gen
	c.mu.Unlock()

	v, err := c.group.Do(fmt.Sprintf("%s#%d", key, gen), func() (interface{}, error) {
		if t, ok := c.Peek(key); ok {
			return t, nil
		}
		cacheRequests.WithLabelValues("miss").Inc()
		t, err := fill()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen == gen {
			c.slot.Add(key, t)
		}
		c.mu.Unlock()
		return t, nil
	})
	if err != nil {
		cacheRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	return v.(*Table), nil
}

// Peek returns the cached table for key without filling the slot.
func (c *Cache) Peek(key string) (*Table, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.slot.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*Table), true
}

// Invalidate empties the slot; the next Get fills it again.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.slot.Clear()
}
