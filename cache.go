package model

// Cache stores compiled artifacts keyed by strings. The registry consults one
// cache per concern: evaluator programs, compiled paths, and format template
// tokenizations. When no cache is configured the owning descriptor keeps a
// plain map, which is safe under the single-writer rule.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// WithProgramCache registers a cache for compiled evaluator programs.
func WithProgramCache(cache Cache) Option {
	return func(cfg *registryConfig) {
		cfg.programCache = cache
	}
}

// WithPathCache registers a cache for compiled paths shared across types.
// Entries key by "TypeName\x00path".
func WithPathCache(cache Cache) Option {
	return func(cfg *registryConfig) {
		cfg.pathCache = cache
	}
}

// WithFormatCache registers a cache for tokenized format templates shared
// across types. Entries key by "TypeName\x00template".
func WithFormatCache(cache Cache) Option {
	return func(cfg *registryConfig) {
		cfg.formatCache = cache
	}
}

type mapCache struct {
	entries map[string]any
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]any{}}
}

func (c *mapCache) Get(key string) (any, bool) {
	value, ok := c.entries[key]
	return value, ok
}

func (c *mapCache) Set(key string, value any) {
	c.entries[key] = value
}
