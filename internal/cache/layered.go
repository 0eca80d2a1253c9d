package cache

import (
	"errors"
	"time"
)

// LayeredCache reads through a fast front cache to a durable back cache
type LayeredCache struct {
	front Cache
	back  Cache
}

// NewLayeredCache combines front (usually memory) and back (usually disk)
func NewLayeredCache(front, back Cache) *LayeredCache {
	return &LayeredCache{front: front, back: back}
}

// NewPersistentCache is a memory cache in front of a disk cache rooted at dir
func NewPersistentCache(ttl, cleanupInterval time.Duration, dir string) *LayeredCache {
	return NewLayeredCache(NewMemoryCache(ttl, cleanupInterval), NewDiskCache(dir, ttl))
}

// Get checks the front first and promotes back hits
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if val, found := c.front.Get(key); found {
		return val, true
	}

	val, found := c.back.Get(key)
	if !found {
		return nil, false
	}
	_ = c.front.Set(key, val, 0)
	return val, true
}

// Set writes through to both layers. The front is kept even when the back write fails.
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	if err := c.front.Set(key, value, ttl); err != nil {
		return err
	}
	return c.back.Set(key, value, ttl)
}

// Delete removes the key from both layers
func (c *LayeredCache) Delete(key string) error {
	return errors.Join(c.front.Delete(key), c.back.Delete(key))
}

// Clear empties both layers
func (c *LayeredCache) Clear() error {
	return errors.Join(c.front.Clear(), c.back.Clear())
}
