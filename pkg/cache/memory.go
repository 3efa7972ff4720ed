package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryPageCache is a thread-safe in-process cache. It serves development
// and tests; production deployments use the Redis store.
type MemoryPageCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	now     func() time.Time
	done    chan struct{}
}

// NewMemoryPageCache creates an in-memory cache with a background janitor.
func NewMemoryPageCache() *MemoryPageCache {
	c := &MemoryPageCache{
		entries: make(map[string]*Entry),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.janitor()
	return c
}

func (c *MemoryPageCache) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := c.now()
			c.mu.Lock()
			for k, e := range c.entries {
				if !e.Fresh(now) {
					delete(c.entries, k)
				}
			}
			c.mu.Unlock()
		}
	}
}

func (c *MemoryPageCache) Get(_ context.Context, key Key) (*Entry, error) {
	c.mu.RLock()
	e, ok := c.entries[key.String()]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !e.Fresh(c.now()) {
		c.mu.Lock()
		delete(c.entries, key.String())
		c.mu.Unlock()
		return nil, nil
	}
	return e, nil
}

func (c *MemoryPageCache) Set(_ context.Context, key Key, entry *Entry) error {
	c.mu.Lock()
	c.entries[key.String()] = entry
	c.mu.Unlock()
	return nil
}

func (c *MemoryPageCache) Delete(_ context.Context, key Key) error {
	c.mu.Lock()
	delete(c.entries, key.String())
	c.mu.Unlock()
	return nil
}

// Close stops the janitor.
func (c *MemoryPageCache) Close() {
	close(c.done)
}
