package cache

import (
	"context"
	"fmt"

	"github.com/stagedesk/booking-service/internal/model"
)

// EntityCache is a read-through cache over single-entity Get calls. Keys are
// (type, id, tenant) so entries can never leak across tenants. Writes and
// relation mutations must Remove the affected keys; list/search results are
// never cached.
type EntityCache interface {
	Available() bool
	Get(ctx context.Context, typ, id, tenantID string) (*model.Entity, error)
	Set(ctx context.Context, e *model.Entity) error
	Remove(ctx context.Context, typ, id, tenantID string) error
}

// Loader creates a cache from config.
type Loader func(ctx context.Context) (EntityCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}
