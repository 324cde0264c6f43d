package whois

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache stores raw WHOIS response text keyed by domain, to avoid re-querying
// rate-limited registrar servers for the same domain within a validity
// window (spec §4.10).
type Cache interface {
	Get(domain string) (string, bool)
	Set(domain, text string, ttl time.Duration)
}

// MapCache is an in-process Cache backed by a mutex-guarded map. It is the
// default used when no external cache is configured.
type MapCache struct {
	mu      sync.Mutex
	entries map[string]mapEntry
}

type mapEntry struct {
	text    string
	expires time.Time
}

// NewMapCache constructs an empty MapCache.
func NewMapCache() *MapCache {
	return &MapCache{entries: make(map[string]mapEntry)}
}

func (c *MapCache) Get(domain string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[domain]
	if !ok || time.Now().After(e.expires) {
		return "", false
	}
	return e.text, true
}

func (c *MapCache) Set(domain, text string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[domain] = mapEntry{text: text, expires: time.Now().Add(ttl)}
}

// RedisCache is a Cache backed by github.com/go-redis/redis/v8, for
// deployments that run multiple DCV engine instances sharing a WHOIS cache.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache constructs a RedisCache using rdb, namespacing keys with
// prefix.
func NewRedisCache(rdb *redis.Client, prefix string) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: prefix}
}

func (c *RedisCache) Get(domain string) (string, bool) {
	val, err := c.rdb.Get(context.Background(), c.prefix+domain).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (c *RedisCache) Set(domain, text string, ttl time.Duration) {
	c.rdb.Set(context.Background(), c.prefix+domain, text, ttl)
}

var _ Cache = (*MapCache)(nil)
var _ Cache = (*RedisCache)(nil)
