package cache

import (
	"sync"
	"time"
)

// Entry represents a cached item with expiration
type Entry struct {
	Value      interface{}
	Expiration time.Time
}

// IsExpired checks if the cache entry has expired
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expiration)
}

// MemoryCache implements a simple in-memory TTL cache
type MemoryCache struct {
	items map[string]*Entry
	mutex sync.RWMutex
	ttl   time.Duration
	done  chan struct{}
	once  sync.Once
}

// NewMemoryCache creates a new memory cache with a background cleanup
// goroutine. Call Close when the cache is no longer needed.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	cache := &MemoryCache{
		items: make(map[string]*Entry),
		ttl:   ttl,
		done:  make(chan struct{}),
	}

	go cache.cleanupExpired()

	return cache
}

// Set stores a value in the cache
func (c *MemoryCache) Set(key string, value interface{}) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key] = &Entry{
		Value:      value,
		Expiration: time.Now().Add(c.ttl),
	}
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(key string) (interface{}, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.items[key]
	if !exists || entry.IsExpired() {
		return nil, false
	}

	return entry.Value, true
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.items, key)
}

// Clear removes all items from the cache
func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]*Entry)
}

// Size returns the number of items in the cache
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.items)
}

// Close stops the cleanup goroutine. Idempotent.
func (c *MemoryCache) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// cleanupExpired removes expired entries periodically
func (c *MemoryCache) cleanupExpired() {
	ticker := time.NewTicker(time.Minute * 5)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mutex.Lock()
			for key, entry := range c.items {
				if entry.IsExpired() {
					delete(c.items, key)
				}
			}
			c.mutex.Unlock()
		}
	}
}
