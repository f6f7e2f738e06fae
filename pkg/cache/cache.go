// Package cache provides an expiring implementation of the model.Cache
// contract backed by patrickmn/go-cache. Registries hold compiled programs,
// paths, and format templates in these caches so long-lived processes shed
// artifacts for types that stop being used.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	DefaultTTL             = 10 * time.Minute
	DefaultCleanupInterval = 30 * time.Minute
)

// TTL is an expiring key/value cache. Entries written through Set live for
// the configured duration and are swept in the background. Construct through
// New or NewTTL; the zero value has no backing store.
type TTL struct {
	cache *gocache.Cache
	ttl   time.Duration
}

// New builds a TTL cache with the package defaults.
func New() *TTL {
	return NewTTL(DefaultTTL, DefaultCleanupInterval)
}

// NewTTL builds a cache whose entries expire after ttl. The cleanup interval
// bounds how long expired entries keep occupying memory.
func NewTTL(ttl, cleanupInterval time.Duration) *TTL {
	return &TTL{cache: gocache.New(ttl, cleanupInterval), ttl: ttl}
}

// Get returns the live entry for key, if any.
func (c *TTL) Get(key string) (any, bool) {
	return c.cache.Get(key)
}

// Set stores value under key, refreshing the expiry of any previous entry.
func (c *TTL) Set(key string, value any) {
	c.cache.Set(key, value, c.ttl)
}

// Delete drops the entry for key if present.
func (c *TTL) Delete(key string) {
	c.cache.Delete(key)
}

// Flush drops every entry.
func (c *TTL) Flush() {
	c.cache.Flush()
}

// Len reports the number of entries, expired ones included until the next
// sweep.
func (c *TTL) Len() int {
	return c.cache.ItemCount()
}
