package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stagedesk/booking-service/internal/config"
	"github.com/stagedesk/booking-service/internal/model"
	registrycache "github.com/stagedesk/booking-service/internal/registry/cache"
	"github.com/stagedesk/booking-service/internal/security"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = 10 * time.Minute

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.EntityCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: BOOKING_SERVICE_REDIS_URL is required")
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return LoadFromURL(ctx, cfg.RedisURL, ttl)
}

// LoadFromURL creates an EntityCache from a Redis-compatible URL. Exported so
// tests can point it at a container.
func LoadFromURL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.EntityCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisEntityCache{client: client, ttl: ttl}, nil
}

type redisEntityCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func entityKey(typ, tenantID, id string) string {
	return fmt.Sprintf("entity:%s:%s:%s", typ, tenantID, id)
}

func (c *redisEntityCache) Available() bool {
	return true
}

func (c *redisEntityCache) Get(ctx context.Context, typ, id, tenantID string) (*model.Entity, error) {
	data, err := c.client.Get(ctx, entityKey(typ, tenantID, id)).Bytes()
	if err == goredis.Nil {
		security.ObserveCacheMiss()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e model.Entity
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	security.ObserveCacheHit()
	return &e, nil
}

func (c *redisEntityCache) Set(ctx context.Context, e *model.Entity) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, entityKey(e.Type, e.TenantID, e.ID), data, c.ttl).Err()
}

func (c *redisEntityCache) Remove(ctx context.Context, typ, id, tenantID string) error {
	return c.client.Del(ctx, entityKey(typ, tenantID, id)).Err()
}

var _ registrycache.EntityCache = (*redisEntityCache)(nil)
