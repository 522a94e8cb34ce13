package store

import (
	"context"
	"fmt"

	"github.com/stagedesk/booking-service/internal/model"
)

// RelatedFilter selects entities whose relation Field contains ID.
type RelatedFilter struct {
	Field string
	ID    string
}

// Query selects entities of one type. Filter is an equality match on
// top-level field values; RelatedTo matches membership in a relation id set.
// AfterCursor is the id of the last entity of the previous page; paging is in
// ascending id order, so a query is restartable from any cursor.
type Query struct {
	Filter      map[string]any
	RelatedTo   *RelatedFilter
	AfterCursor *string
	Limit       int
}

// DocumentStore is the only storage contract the core requires. Every scoped
// call carries a tenant id: List appends an equality filter on it, Get and
// the write paths verify it. A document owned by another tenant behaves
// exactly like a missing one.
//
// ScanAll and TagTenant bypass tenant scoping. They exist solely for the
// operator-invoked backfill/repair batch runners and must not be reached from
// the request path.
type DocumentStore interface {
	Get(ctx context.Context, typ, id, tenantID string) (*model.Entity, error)
	List(ctx context.Context, typ string, q Query, tenantID string) ([]model.Entity, *string, error)
	BatchWrite(ctx context.Context, ops []model.WriteOp, tenantID string) error

	// AddToRelation and RemoveFromRelation mutate a relation id set with
	// set-union / set-difference semantics. Implementations use the store's
	// native atomic set primitive where one exists, and an optimistic
	// version-checked retry loop otherwise.
	AddToRelation(ctx context.Context, typ, id, tenantID, field string, ids []string) error
	RemoveFromRelation(ctx context.Context, typ, id, tenantID, field string, ids []string) error

	// ScanAll pages through every document of a collection regardless of
	// tenant, in ascending id order. Privileged; batch runners only.
	ScanAll(ctx context.Context, typ string, afterCursor *string, limit int) ([]model.Entity, *string, error)

	// TagTenant sets the tenant id on a document that has none. It never
	// overwrites an existing non-empty value; the bool reports whether the
	// document was changed. Privileged; batch runners only.
	TagTenant(ctx context.Context, typ, id, tenantID string) (bool, error)

	Close(ctx context.Context) error
}

// Loader creates a DocumentStore from config.
type Loader func(ctx context.Context) (DocumentStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
