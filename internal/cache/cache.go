// Package cache is a Redis-backed JSON response cache for dashboard
// queries. Entries nearing expiry are refreshed in the background so
// readers keep getting warm responses.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/db"
	"github.com/JR-coderli/EFsafari/internal/observability"
	"github.com/JR-coderli/EFsafari/internal/pkg/distlock"
)

// Prefixes of cached response families. Clearing them after an ETL run
// drops every response built from the replaced data.
var DataPrefixes = append([]string{"data", "aggregate", "hierarchy", "daily", "platforms"}, HourlyPrefixes...)

// Prefixes of the hourly report responses, cleared after each hourly refresh.
var HourlyPrefixes = []string{"hourly_hierarchy", "hourly_data"}

// Key identifies a cached response. Params is encoded as canonical JSON and
// hashed, so field values never collide through delimiters.
type Key struct {
	Prefix string
	UserID string
	Params any
}

// String renders the Redis key.
func (k Key) String() (string, error) {
	raw, err := json.Marshal(k.Params)
	if err != nil {
		return "", fmt.Errorf("encode cache params: %w", err)
	}
	sum := sha256.Sum256(raw)
	return k.Prefix + ":" + k.UserID + ":" + hex.EncodeToString(sum[:16]), nil
}

// Cache stores JSON responses in Redis. A nil *Cache or a disabled one
// passes every call straight to the loader.
type Cache struct {
	store         *db.RedisStore
	ttl           time.Duration
	refreshBefore time.Duration
	enabled       bool
	logger        *zap.Logger
	metrics       observability.MetricsRegistry

	// refreshTimeout bounds a background refresh.
	refreshTimeout time.Duration
}

// New returns a Cache over store. A nil store disables caching.
func New(store *db.RedisStore, ttl, refreshBefore time.Duration, enabled bool, logger *zap.Logger, metrics observability.MetricsRegistry) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Cache{
		store:          store,
		ttl:            ttl,
		refreshBefore:  refreshBefore,
		enabled:        enabled && store != nil,
		logger:         logger,
		metrics:        metrics,
		refreshTimeout: 2 * time.Minute,
	}
}

// Enabled reports whether responses are being cached.
func (c *Cache) Enabled() bool {
	return c != nil && c.enabled
}

// Fetch returns the cached value for key or calls load and caches its
// result. A hit whose remaining TTL is within the refresh window is served
// immediately while load runs in the background under a short lease.
// Redis failures degrade to calling load.
func Fetch[T any](ctx context.Context, c *Cache, key Key, load func(context.Context) (T, error)) (T, error) {
	if !c.Enabled() {
		return load(ctx)
	}
	rkey, err := key.String()
	if err != nil {
		return load(ctx)
	}

	raw, err := c.store.Client.Get(ctx, rkey).Bytes()
	switch {
	case err == nil:
		var v T
		if uerr := json.Unmarshal(raw, &v); uerr == nil {
			c.metrics.IncrementCacheLookups(key.Prefix, "hit")
			c.maybeRefresh(ctx, key.Prefix, rkey, func(ctx context.Context) (any, error) { return load(ctx) })
			return v, nil
		}
		c.logger.Warn("discarding undecodable cache entry", zap.String("key", rkey))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("cache read failed", zap.String("key", rkey), zap.Error(err))
	}

	c.metrics.IncrementCacheLookups(key.Prefix, "miss")
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	c.set(ctx, rkey, v)
	return v, nil
}

func (c *Cache) set(ctx context.Context, rkey string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache encode failed", zap.String("key", rkey), zap.Error(err))
		return
	}
	if err := c.store.Client.Set(ctx, rkey, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", rkey), zap.Error(err))
	}
}

func (c *Cache) maybeRefresh(ctx context.Context, prefix, rkey string, load func(context.Context) (any, error)) {
	if c.refreshBefore <= 0 {
		return
	}
	ttl, err := c.store.Client.TTL(ctx, rkey).Result()
	if err != nil || ttl <= 0 || ttl > c.refreshBefore {
		return
	}
	lease := distlock.NewRedisLock(c.store.Client, "refresh:"+rkey, c.refreshTimeout)
	ok, err := lease.Acquire(ctx)
	if err != nil || !ok {
		return
	}
	c.metrics.IncrementCacheLookups(prefix, "refresh")

	// detached from the request: the caller has already been served
	bg := context.WithoutCancel(ctx)
	go func() {
		rctx, cancel := context.WithTimeout(bg, c.refreshTimeout)
		defer cancel()
		defer func() { _ = lease.Release(rctx) }()
		v, err := load(rctx)
		if err != nil {
			c.logger.Warn("background cache refresh failed", zap.String("key", rkey), zap.Error(err))
			return
		}
		c.set(rctx, rkey, v)
	}()
}

// Invalidate deletes every entry under the given prefixes.
func (c *Cache) Invalidate(ctx context.Context, prefixes ...string) (int, error) {
	if !c.Enabled() {
		return 0, nil
	}
	total := 0
	for _, p := range prefixes {
		n, err := c.store.DeletePattern(ctx, p+":*")
		total += n
		if err != nil {
			return total, fmt.Errorf("invalidate %s: %w", p, err)
		}
	}
	return total, nil
}
