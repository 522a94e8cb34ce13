// Package ristretto provides an in-process entity cache. Suited to single
// replica deployments; multi-replica setups should use the redis cache so
// invalidations are shared.
package ristretto

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/stagedesk/booking-service/internal/config"
	"github.com/stagedesk/booking-service/internal/model"
	registrycache "github.com/stagedesk/booking-service/internal/registry/cache"
	"github.com/stagedesk/booking-service/internal/security"
)

const defaultTTL = 10 * time.Minute

func init() {
	registrycache.Register(registrycache.Plugin{
		Name: "ristretto",
		Loader: func(ctx context.Context) (registrycache.EntityCache, error) {
			cfg := config.FromContext(ctx)
			maxEntries := int64(10_000)
			ttl := defaultTTL
			if cfg != nil {
				if cfg.CacheMaxEntries > 0 {
					maxEntries = int64(cfg.CacheMaxEntries)
				}
				if cfg.CacheTTL > 0 {
					ttl = cfg.CacheTTL
				}
			}
			return New(maxEntries, ttl)
		},
	})
}

// New builds a cache bounded to maxEntries items.
func New(maxEntries int64, ttl time.Duration) (registrycache.EntityCache, error) {
	inner, err := ristretto.NewCache(&ristretto.Config[string, *model.Entity]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto cache: %w", err)
	}
	return &entityCache{inner: inner, ttl: ttl}, nil
}

type entityCache struct {
	inner *ristretto.Cache[string, *model.Entity]
	ttl   time.Duration
}

func entityKey(typ, tenantID, id string) string {
	return typ + ":" + tenantID + ":" + id
}

func (c *entityCache) Available() bool {
	return true
}

func (c *entityCache) Get(ctx context.Context, typ, id, tenantID string) (*model.Entity, error) {
	e, ok := c.inner.Get(entityKey(typ, tenantID, id))
	if !ok {
		security.ObserveCacheMiss()
		return nil, nil
	}
	security.ObserveCacheHit()
	// Copy out so callers can't mutate the cached value.
	return e.Clone(), nil
}

func (c *entityCache) Set(ctx context.Context, e *model.Entity) error {
	c.inner.SetWithTTL(entityKey(e.Type, e.TenantID, e.ID), e.Clone(), 1, c.ttl)
	return nil
}

func (c *entityCache) Remove(ctx context.Context, typ, id, tenantID string) error {
	c.inner.Del(entityKey(typ, tenantID, id))
	return nil
}

var _ registrycache.EntityCache = (*entityCache)(nil)
