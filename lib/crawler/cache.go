package crawler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const DefaultSessionLifetime = 15 * time.Minute

// SessionCache keeps logged in crawlers around so that repeated fetches for
// the same platform and credential do not log in every time.
type SessionCache struct {
	registry *Registry
	cache    *expirable.LRU[string, Crawler]
	logins   singleflight.Group
}

// NewSessionCache creates a cache holding at most `size` crawlers for `lifetime` each.
func NewSessionCache(registry *Registry, size int, lifetime time.Duration) *SessionCache {
	if lifetime <= 0 {
		lifetime = DefaultSessionLifetime
	}
	return &SessionCache{
		registry: registry,
		cache:    expirable.NewLRU[string, Crawler](size, nil, lifetime),
	}
}

// cacheKey hashes the platform and every field, a changed password is a new key.
func cacheKey(platform string, fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	h.Write([]byte(platform))
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(fields[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a logged in crawler, logging in if there is none cached.
// Concurrent calls for the same key share one login.
func (c *SessionCache) Get(ctx context.Context, platform string, fields map[string]string) (Crawler, error) {
	key := cacheKey(platform, fields)
	if crawler, ok := c.cache.Get(key); ok {
		return crawler, nil
	}

	result, err, _ := c.logins.Do(key, func() (any, error) {
		if crawler, ok := c.cache.Get(key); ok {
			return crawler, nil
		}
		crawler, err := c.registry.New(platform)
		if err != nil {
			return nil, err
		}
		err = crawler.Login(ctx, fields)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, crawler)
		slog.DebugContext(ctx, "cached crawler session", "platform", platform)
		return crawler, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(Crawler), nil
}

// Evict drops the cached crawler, the next Get logs in again.
func (c *SessionCache) Evict(platform string, fields map[string]string) {
	c.cache.Remove(cacheKey(platform, fields))
}

func (c *SessionCache) Len() int {
	return c.cache.Len()
}
