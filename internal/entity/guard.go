package entity

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/stagedesk/booking-service/internal/model"
	registrystore "github.com/stagedesk/booking-service/internal/registry/store"
	"github.com/stagedesk/booking-service/internal/schema"
)

// Guard intercepts delete requests. It blocks while other entities still
// reference the target, or detaches them when cascading is permitted, and
// only then lets the store delete the document.
type Guard struct {
	store    registrystore.DocumentStore
	registry *schema.Registry
	sync     *Synchronizer
	pageSize int
}

// NewGuard builds a delete guard.
func NewGuard(store registrystore.DocumentStore, registry *schema.Registry, sync *Synchronizer) *Guard {
	return &Guard{store: store, registry: registry, sync: sync, pageSize: defaultPageSize}
}

type visitKey struct {
	typ string
	id  string
}

// GuardedDelete deletes the entity after clearing every inbound reference.
// Without cascade, or for relations that forbid cascading, a referenced
// entity cannot be deleted: the call fails with RelatedEntitiesExistError
// carrying the referencing type, a capped sample, and the total count.
func (g *Guard) GuardedDelete(ctx context.Context, typ, id, tenantID string, cascade bool) error {
	return g.deleteOne(ctx, typ, id, tenantID, cascade, map[visitKey]bool{})
}

func (g *Guard) deleteOne(ctx context.Context, typ, id, tenantID string, cascade bool, visited map[visitKey]bool) error {
	key := visitKey{typ: typ, id: id}
	if visited[key] {
		return nil // already handled in this cascade
	}
	visited[key] = true

	sch, err := g.registry.Lookup(typ)
	if err != nil {
		return err
	}
	current, err := g.store.Get(ctx, typ, id, tenantID)
	if err != nil {
		return err
	}

	for _, rel := range g.registry.RelationsTo(typ) {
		allowed := cascade && rel.CascadeOnDelete
		if err := g.clearInbound(ctx, rel, typ, id, tenantID, allowed); err != nil {
			return err
		}
	}

	// Outbound mirrors: remove this id from every target's inverse field so
	// nothing keeps pointing at a document that is about to disappear.
	for i := range sch.Relations {
		rel := &sch.Relations[i]
		targets := current.RelationIDs(rel.FromField)
		if len(targets) == 0 {
			continue
		}
		warn, err := g.sync.Sync(ctx, rel, id, tenantID, nil, targets)
		if err != nil {
			return err
		}
		if warn != nil {
			log.Warn("Partial inverse cleanup during delete",
				"type", typ, "id", id, "relation", rel.Name, "failed", len(warn.Failed))
		}
	}

	return g.store.BatchWrite(ctx, []model.WriteOp{model.DeleteOp(typ, id)}, tenantID)
}

// clearInbound walks every entity of rel.FromType whose relation field
// contains id. When detaching is not allowed the walk turns into a count plus
// a capped sample for the error report.
func (g *Guard) clearInbound(ctx context.Context, rel model.RelationDefinition, typ, id, tenantID string, allowed bool) error {
	q := registrystore.Query{
		RelatedTo: &registrystore.RelatedFilter{Field: rel.FromField, ID: id},
		Limit:     g.pageSize,
	}

	if !allowed {
		var sample []string
		total := 0
		for {
			refs, next, err := g.store.List(ctx, rel.FromType, q, tenantID)
			if err != nil {
				return err
			}
			total += len(refs)
			for i := range refs {
				if len(sample) < registrystore.SampleLimit {
					sample = append(sample, displayName(&refs[i]))
				}
			}
			if next == nil {
				break
			}
			q.AfterCursor = next
		}
		if total == 0 {
			return nil
		}
		return &registrystore.RelatedEntitiesExistError{
			Type:    typ,
			ID:      id,
			RefType: rel.FromType,
			Sample:  sample,
			Total:   total,
		}
	}

	for {
		refs, next, err := g.store.List(ctx, rel.FromType, q, tenantID)
		if err != nil {
			return err
		}
		for i := range refs {
			err := g.store.RemoveFromRelation(ctx, rel.FromType, refs[i].ID, tenantID, rel.FromField, []string{id})
			var notFound *registrystore.NotFoundError
			if err != nil && !errors.As(err, &notFound) {
				return err
			}
			g.sync.invalidate(ctx, rel.FromType, refs[i].ID, tenantID)
		}
		if next == nil {
			return nil
		}
		// Detaching shrinks the result set, so restart from the beginning
		// rather than paging past documents that already moved.
		q.AfterCursor = nil
	}
}

func displayName(e *model.Entity) string {
	if name, ok := e.Fields["name"].(string); ok && name != "" {
		return name + " (" + e.ID + ")"
	}
	return e.ID
}
