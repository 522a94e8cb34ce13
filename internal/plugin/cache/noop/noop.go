package noop

import (
	"context"

	"github.com/stagedesk/booking-service/internal/model"
	"github.com/stagedesk/booking-service/internal/registry/cache"
)

func init() {
	cache.Register(cache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (cache.EntityCache, error) {
			return &noopEntityCache{}, nil
		},
	})
}

type noopEntityCache struct{}

func (n *noopEntityCache) Available() bool { return false }
func (n *noopEntityCache) Get(_ context.Context, _, _, _ string) (*model.Entity, error) {
	return nil, nil
}
func (n *noopEntityCache) Set(_ context.Context, _ *model.Entity) error { return nil }
func (n *noopEntityCache) Remove(_ context.Context, _, _, _ string) error {
	return nil
}

var _ cache.EntityCache = (*noopEntityCache)(nil)
