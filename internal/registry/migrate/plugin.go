package migrate

import (
	"context"
	"fmt"
	"sort"
)

// Migrator prepares a storage backend (collections, indexes, tables).
type Migrator interface {
	Name() string
	Migrate(ctx context.Context) error
}

// Plugin represents a migration plugin. Lower Order runs first.
type Plugin struct {
	Order    int
	Migrator Migrator
}

var plugins []Plugin

// Register adds a migration plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// RunAll executes every registered migrator in order.
func RunAll(ctx context.Context) error {
	sorted := append([]Plugin(nil), plugins...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	for _, p := range sorted {
		if err := p.Migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("migration %s failed: %w", p.Migrator.Name(), err)
		}
	}
	return nil
}
