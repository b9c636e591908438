package certcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/albedosehen/certvault/internal/certstore"
	"github.com/albedosehen/certvault/internal/config"
	vaulterrors "github.com/albedosehen/certvault/internal/errors"
	"github.com/albedosehen/certvault/internal/health"
	"github.com/albedosehen/certvault/internal/observability"
)

// breakerTarget keys the Redis circuit in the shared circuit breaker.
const breakerTarget = "redis"

// invalidateScanCount is the SCAN batch size during store invalidation.
const invalidateScanCount = 100

// redisCache implements Cache on a go-redis client.
type redisCache struct {
	client  *redis.Client
	cfg     config.RedisConfig
	breaker health.CircuitBreaker
	logger  observability.Logger
	metrics observability.MetricsCollector
}

// NewRedisClient builds a go-redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
}

// NewRedisCache wraps a Redis client in the Cache contract.
func NewRedisCache(
	client *redis.Client,
	cfg config.RedisConfig,
	breaker health.CircuitBreaker,
	logger observability.Logger,
	metrics observability.MetricsCollector,
) Cache {
	return &redisCache{
		client:  client,
		cfg:     cfg,
		breaker: breaker,
		logger:  logger.WithFields(observability.Component("certcache")),
		metrics: metrics,
	}
}

func (c *redisCache) GetList(ctx context.Context, store certstore.Store, offset, limit int) (*certstore.Page, bool) {
	var page certstore.Page
	if !c.get(ctx, "list", ListKey(store, offset, limit), &page) {
		return nil, false
	}
	return &page, true
}

func (c *redisCache) SetList(ctx context.Context, store certstore.Store, offset, limit int, page *certstore.Page) {
	c.set(ctx, "list", ListKey(store, offset, limit), page, c.cfg.ListTTL)
}

func (c *redisCache) GetDetail(ctx context.Context, store certstore.Store, domain string) (*certstore.Certificate, bool) {
	var cert certstore.Certificate
	if !c.get(ctx, "detail", DetailKey(store, domain), &cert) {
		return nil, false
	}
	return &cert, true
}

func (c *redisCache) SetDetail(ctx context.Context, store certstore.Store, domain string, cert *certstore.Certificate) {
	c.set(ctx, "detail", DetailKey(store, domain), cert, c.cfg.DetailTTL)
}

// get reads and decodes one key. Any failure, including an open circuit,
// reports a miss so the caller falls through to MySQL.
func (c *redisCache) get(ctx context.Context, projection, key string, out interface{}) bool {
	if !c.breaker.Allow(ctx, breakerTarget) {
		c.metrics.RecordCacheOp(projection, "bypass")
		return false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.breaker.RecordSuccess(ctx, breakerTarget)
		c.metrics.RecordCacheOp(projection, "miss")
		return false
	}
	if err != nil {
		c.breaker.RecordFailure(ctx, breakerTarget, err)
		c.metrics.RecordCacheOp(projection, "error")
		c.logger.Warn(ctx, "cache read failed, falling through to database",
			observability.String("key", key),
			observability.Error(err))
		return false
	}
	c.breaker.RecordSuccess(ctx, breakerTarget)

	if err := json.Unmarshal(data, out); err != nil {
		// A corrupt entry is treated as a miss; the next set overwrites it.
		c.metrics.RecordCacheOp(projection, "error")
		c.logger.Warn(ctx, "cache entry is corrupt, ignoring",
			observability.String("key", key),
			observability.Error(err))
		return false
	}

	c.metrics.RecordCacheOp(projection, "hit")
	return true
}

// set stores one encoded entry. Failures only log; a cold cache is not an
// error condition.
func (c *redisCache) set(ctx context.Context, projection, key string, value interface{}, ttl time.Duration) {
	if !c.breaker.Allow(ctx, breakerTarget) {
		c.metrics.RecordCacheOp(projection, "bypass")
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error(ctx, err, "failed to encode cache entry",
			observability.String("key", key))
		return
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.breaker.RecordFailure(ctx, breakerTarget, err)
		c.metrics.RecordCacheOp(projection, "error")
		c.logger.Warn(ctx, "cache write failed",
			observability.String("key", key),
			observability.Error(err))
		return
	}
	c.breaker.RecordSuccess(ctx, breakerTarget)
}

func (c *redisCache) InvalidateStore(ctx context.Context, store certstore.Store) error {
	// Invalidation runs regardless of circuit state: a stale projection is
	// worse than one slow SCAN against a recovering Redis.
	var (
		cursor  uint64
		deleted int64
	)

	for {
		keys, next, err := c.client.Scan(ctx, cursor, storePattern(store), invalidateScanCount).Result()
		if err != nil {
			c.breaker.RecordFailure(ctx, breakerTarget, err)
			return vaulterrors.WrapError(
				vaulterrors.ErrCodeCacheUnavailable,
				"cache invalidation scan failed",
				err,
			).WithContext("store", store.String())
		}

		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				c.breaker.RecordFailure(ctx, breakerTarget, err)
				return vaulterrors.WrapError(
					vaulterrors.ErrCodeCacheUnavailable,
					"cache invalidation delete failed",
					err,
				).WithContext("store", store.String())
			}
			deleted += n
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	c.breaker.RecordSuccess(ctx, breakerTarget)
	c.metrics.RecordCacheOp("invalidate", "ok")
	c.logger.Info(ctx, "cache invalidated",
		observability.Store(store.String()),
		observability.Int64("deleted_keys", deleted))
	return nil
}

func (c *redisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return vaulterrors.WrapError(vaulterrors.ErrCodeCacheUnavailable, "redis ping failed", err)
	}
	return nil
}

func (c *redisCache) Close() error {
	return c.client.Close()
}
