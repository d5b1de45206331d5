package commands

import (
	"sync"
	"time"
)

type cacheItem[T any] struct {
	value      T
	expiration time.Time
}

// ttlCache keeps values for a fixed duration after they were set.
type ttlCache[T any] struct {
	mu    sync.Mutex
	items map[string]cacheItem[T]
	ttl   time.Duration
	now   func() time.Time
}

func newTTLCache[T any](ttl time.Duration) *ttlCache[T] {
	return &ttlCache[T]{
		items: make(map[string]cacheItem[T]),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (c *ttlCache[T]) get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, found := c.items[key]; found && c.now().Before(item.expiration) {
		return item.value, true
	}
	var zero T
	return zero, false
}

func (c *ttlCache[T]) set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = cacheItem[T]{
		value:      value,
		expiration: c.now().Add(c.ttl),
	}
}
