package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stagedesk/booking-service/internal/model"
	"github.com/stagedesk/booking-service/internal/plugin/cache/redis"
	"github.com/stagedesk/booking-service/internal/testutil/testredis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache, err := redis.LoadFromURL(ctx, testredis.StartRedis(t), time.Minute)
	require.NoError(t, err)
	require.True(t, cache.Available())

	e := &model.Entity{
		ID:       "v1",
		Type:     "Venue",
		TenantID: "tenant-a",
		Fields:   map[string]any{"name": "Melkweg"},
		Version:  3,
	}
	require.NoError(t, cache.Set(ctx, e))

	got, err := cache.Get(ctx, "Venue", "v1", "tenant-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Melkweg", got.Fields["name"])
	assert.Equal(t, int64(3), got.Version)

	// Entries are tenant-scoped: another tenant's lookup is a miss.
	got, err = cache.Get(ctx, "Venue", "v1", "tenant-b")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCacheMissIsNotAnError(t *testing.T) {
	ctx := context.Background()
	cache, err := redis.LoadFromURL(ctx, testredis.StartRedis(t), time.Minute)
	require.NoError(t, err)

	got, err := cache.Get(ctx, "Venue", "absent", "tenant-a")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCacheRemove(t *testing.T) {
	ctx := context.Background()
	cache, err := redis.LoadFromURL(ctx, testredis.StartRedis(t), time.Minute)
	require.NoError(t, err)

	e := &model.Entity{ID: "v1", Type: "Venue", TenantID: "tenant-a"}
	require.NoError(t, cache.Set(ctx, e))
	require.NoError(t, cache.Remove(ctx, "Venue", "v1", "tenant-a"))

	got, err := cache.Get(ctx, "Venue", "v1", "tenant-a")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCacheRejectsBadURL(t *testing.T) {
	_, err := redis.LoadFromURL(context.Background(), "not-a-url", time.Minute)
	require.Error(t, err)
}
