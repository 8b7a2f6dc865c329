package tenancy

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/tenantgate/pkg/observability"
)

// CacheConfig configures the feature flag cache
type CacheConfig struct {
	Size          int           // L1 entries
	TTL           time.Duration // Applies to both layers
	KeyPrefix     string        // Redis key prefix
	LookupTimeout time.Duration // Bounds a shared load
}

// DefaultCacheConfig returns the default cache configuration
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Size:          10000,
		TTL:           30 * time.Second,
		KeyPrefix:     "tenantgate:feature:",
		LookupTimeout: 5 * time.Second,
	}
}

// CachedStore fronts a FlagStore with an in-process LRU and an optional
// Redis layer. Concurrent misses for the same key share one store lookup.
// Redis failures fall through to the store.
type CachedStore struct {
	store   FlagStore
	l1      *lru.LRU[string, bool]
	redis   *redis.Client
	config  CacheConfig
	group   singleflight.Group
	writes  atomic.Uint64 // bumped by every SetEnabled
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewCachedStore wraps store. redisClient and metrics may be nil.
func NewCachedStore(store FlagStore, redisClient *redis.Client, cfg CacheConfig, metrics *observability.Metrics, logger *observability.Logger) *CachedStore {
	defaults := DefaultCacheConfig()
	if cfg.Size <= 0 {
		cfg.Size = defaults.Size
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaults.KeyPrefix
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = defaults.LookupTimeout
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	return &CachedStore{
		store:   store,
		l1:      lru.NewLRU[string, bool](cfg.Size, nil, cfg.TTL),
		redis:   redisClient,
		config:  cfg,
		metrics: metrics,
		logger:  logger,
	}
}

func (c *CachedStore) key(tenantID, module string) string {
	return fmt.Sprintf("%s:%s", tenantID, module)
}

func (c *CachedStore) redisKey(tenantID, module string) string {
	return c.config.KeyPrefix + c.key(tenantID, module)
}

// IsEnabled returns the cached flag, loading it on a miss. The shared load
// runs detached from any one caller; each caller waits on its own ctx.
func (c *CachedStore) IsEnabled(ctx context.Context, tenantID, module string) (bool, error) {
	key := c.key(tenantID, module)

	if enabled, ok := c.l1.Get(key); ok {
		c.metrics.RecordFeatureLookup("l1", "hit")
		return enabled, nil
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.LookupTimeout)
		defer cancel()
		return c.load(loadCtx, tenantID, module)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (c *CachedStore) load(ctx context.Context, tenantID, module string) (bool, error) {
	key := c.key(tenantID, module)
	gen := c.writes.Load()

	if enabled, ok := c.getRedis(ctx, tenantID, module); ok {
		c.metrics.RecordFeatureLookup("l2", "hit")
		c.l1.Add(key, enabled)
		c.dropIfWritten(ctx, gen, tenantID, module)
		return enabled, nil
	}

	enabled, err := c.store.IsEnabled(ctx, tenantID, module)
	if err != nil {
		c.metrics.RecordFeatureLookup("store", "error")
		return false, err
	}
	c.metrics.RecordFeatureLookup("store", "miss")

	c.l1.Add(key, enabled)
	c.setRedis(ctx, tenantID, module, enabled)
	c.dropIfWritten(ctx, gen, tenantID, module)
	return enabled, nil
}

// dropIfWritten undoes a cache fill when a SetEnabled landed while the
// value was loading. A write after this check invalidates on its own.
func (c *CachedStore) dropIfWritten(ctx context.Context, gen uint64, tenantID, module string) {
	if c.writes.Load() != gen {
		c.Invalidate(ctx, tenantID, module)
	}
}

// SetEnabled writes through to the store and invalidates both layers
func (c *CachedStore) SetEnabled(ctx context.Context, tenantID, module string, enabled bool) error {
	if err := c.store.SetEnabled(ctx, tenantID, module, enabled); err != nil {
		return err
	}
	c.writes.Add(1)
	c.group.Forget(c.key(tenantID, module))
	c.Invalidate(ctx, tenantID, module)
	return nil
}

// Invalidate drops (tenantID, module) from both layers
func (c *CachedStore) Invalidate(ctx context.Context, tenantID, module string) {
	c.l1.Remove(c.key(tenantID, module))

	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, c.redisKey(tenantID, module)).Err(); err != nil {
		c.logger.WithError(err).WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"module":    module,
		}).Warn("Failed to invalidate feature flag in redis")
	}
}

func (c *CachedStore) getRedis(ctx context.Context, tenantID, module string) (bool, bool) {
	if c.redis == nil {
		return false, false
	}

	val, err := c.redis.Get(ctx, c.redisKey(tenantID, module)).Result()
	if err == redis.Nil {
		return false, false
	}
	if err != nil {
		c.logger.WithError(err).Warn("Feature flag redis read failed, using store")
		return false, false
	}

	return val == "1", true
}

func (c *CachedStore) setRedis(ctx context.Context, tenantID, module string, enabled bool) {
	if c.redis == nil {
		return
	}

	val := "0"
	if enabled {
		val = "1"
	}
	if err := c.redis.Set(ctx, c.redisKey(tenantID, module), val, c.config.TTL).Err(); err != nil {
		c.logger.WithError(err).Warn("Feature flag redis write failed")
	}
}
