package table

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
)

type cacheItem struct {
	value      *Response
	expiration time.Time
}

// Cache is a minimal in-memory TTL cache of store responses safe for concurrent access.
type Cache struct {
	mu    sync.RWMutex
	items map[string]cacheItem
	gens  map[string]uint64
}

// NewCache constructs an empty Cache instance.
func NewCache() *Cache {
	return &Cache{items: make(map[string]cacheItem), gens: make(map[string]uint64)}
}

// Set stores a value with a time-to-live for the given key.
func (c *Cache) Set(key string, value *Response, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheItem{value: value, expiration: time.Now().Add(ttl)}
}

// Get retrieves a non-expired value for the key, returning false if missing or expired.
func (c *Cache) Get(key string) (*Response, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(it.expiration) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return nil, false
	}
	return it.value, true
}

// Generation returns the current write generation of prefix.
func (c *Cache) Generation(prefix string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[prefix]
}

// Invalidate drops every entry under prefix and advances its generation, so
// reads that started earlier can no longer be stored.
func (c *Cache) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[prefix]++
	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
		}
	}
}

// SetIfGeneration stores value only while prefix is still at generation gen.
func (c *Cache) SetIfGeneration(prefix string, gen uint64, key string, value *Response, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[prefix] != gen {
		return false
	}
	c.items[key] = cacheItem{value: value, expiration: time.Now().Add(ttl)}
	return true
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// CachedClient serves repeated GETs from a Cache. Any other verb against a
// table evicts that table's cached reads before the write is forwarded.
type CachedClient struct {
	next  Invoker
	cache *Cache
	ttl   time.Duration
}

// NewCachedClient wraps next. A non-positive ttl returns next unchanged.
func NewCachedClient(next Invoker, ttl time.Duration) Invoker {
	if ttl <= 0 {
		return next
	}
	return &CachedClient{next: next, cache: NewCache(), ttl: ttl}
}

// Invoke implements Invoker. A write advances the table's generation before
// and after it is forwarded; a read is cached only if no write started or
// finished while it was in flight.
func (c *CachedClient) Invoke(ctx context.Context, method, path string, body any, query string) (*Response, error) {
	prefix := tableOf(path) + "|"
	if method != http.MethodGet {
		c.cache.Invalidate(prefix)
		defer c.cache.Invalidate(prefix)
		return c.next.Invoke(ctx, method, path, body, query)
	}

	key := prefix + path + "?" + query
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	gen := c.cache.Generation(prefix)
	resp, err := c.next.Invoke(ctx, method, path, body, query)
	if err != nil {
		return nil, err
	}
	if resp.OK() {
		c.cache.SetIfGeneration(prefix, gen, key, resp, c.ttl)
	}
	return resp, nil
}

func tableOf(path string) string {
	path = strings.TrimLeft(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}
