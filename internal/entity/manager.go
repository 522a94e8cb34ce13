package entity

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/charmbracelet/log"
	"github.com/stagedesk/booking-service/internal/model"
	registrycache "github.com/stagedesk/booking-service/internal/registry/cache"
	registrystore "github.com/stagedesk/booking-service/internal/registry/store"
	"github.com/stagedesk/booking-service/internal/schema"
)

const defaultPageSize = 500

// Manager is the only path for create/read/update/search of any entity type.
// It interprets the schema registry to validate input, detect relation-field
// changes, and drive the relation synchronizer. Deletes go through the Guard.
type Manager struct {
	store           registrystore.DocumentStore
	registry        *schema.Registry
	cache           registrycache.EntityCache
	sync            *Synchronizer
	guard           *Guard
	pageSize        int
	conflictRetries int
}

// NewManager builds a manager over the given store and schema registry.
func NewManager(store registrystore.DocumentStore, registry *schema.Registry) *Manager {
	m := &Manager{
		store:           store,
		registry:        registry,
		pageSize:        defaultPageSize,
		conflictRetries: 5,
	}
	m.sync = NewSynchronizer(store)
	m.guard = NewGuard(store, registry, m.sync)
	return m
}

// SetCache attaches a read-through entity cache. Call before serving traffic.
// The synchronizer shares it so inverse-reference writes evict their targets.
func (m *Manager) SetCache(c registrycache.EntityCache) {
	m.cache = c
	m.sync.SetCache(c)
}

// SetPageSize bounds the page size used by SearchAll and the delete guard.
func (m *Manager) SetPageSize(n int) {
	if n > 0 {
		m.pageSize = n
		m.guard.pageSize = n
	}
}

// SetConflictRetries bounds the optimistic update retry loop.
func (m *Manager) SetConflictRetries(n int) {
	if n > 0 {
		m.conflictRetries = n
	}
}

// Synchronizer exposes the relation synchronizer for the repair job.
func (m *Manager) Synchronizer() *Synchronizer {
	return m.sync
}

// Create validates data against the schema, assigns an id, persists the
// entity, and propagates any relation fields present in data onto the
// referenced entities. Partial sync failures are returned as warnings next to
// the successfully created entity; they are repaired offline, never retried
// inline.
func (m *Manager) Create(ctx context.Context, typ, tenantID string, data map[string]any) (*model.Entity, []*registrystore.PartialSyncError, error) {
	sch, err := m.registry.Lookup(typ)
	if err != nil {
		return nil, nil, err
	}
	if err := checkTenantField(typ, "", tenantID, data); err != nil {
		return nil, nil, err
	}

	fields, relations, violations := m.splitAndValidate(sch, data, true)
	if len(violations) > 0 {
		return nil, nil, &registrystore.ValidationError{Type: typ, Violations: violations}
	}

	e := &model.Entity{
		ID:        model.NewID(),
		Type:      typ,
		TenantID:  tenantID,
		Fields:    fields,
		Relations: relations,
	}
	if err := m.store.BatchWrite(ctx, []model.WriteOp{model.PutOp(e)}, tenantID); err != nil {
		return nil, nil, err
	}
	e.Version++ // a successful put bumps the stored version

	var warnings []*registrystore.PartialSyncError
	for field, ids := range relations {
		rel := sch.RelationForField(field)
		warn, err := m.sync.Sync(ctx, rel, e.ID, tenantID, ids, nil)
		if err != nil {
			return e, warnings, err
		}
		if warn != nil {
			warnings = append(warnings, warn)
		}
	}
	return e, warnings, nil
}

// Update loads the current entity, computes the field-level diff, persists
// the merged entity under an optimistic version check, and invokes the
// synchronizer once per changed relation field with its added/removed pair.
func (m *Manager) Update(ctx context.Context, typ, id, tenantID string, patch map[string]any) (*model.Entity, []*registrystore.PartialSyncError, error) {
	sch, err := m.registry.Lookup(typ)
	if err != nil {
		return nil, nil, err
	}
	if err := checkTenantField(typ, id, tenantID, patch); err != nil {
		return nil, nil, err
	}

	fields, relations, violations := m.splitAndValidate(sch, patch, false)
	if len(violations) > 0 {
		return nil, nil, &registrystore.ValidationError{Type: typ, Violations: violations}
	}

	var merged *model.Entity
	var changed map[string]relationDiff
	for attempt := 0; ; attempt++ {
		current, err := m.store.Get(ctx, typ, id, tenantID)
		if err != nil {
			return nil, nil, err
		}

		merged = current.Clone()
		if merged.Fields == nil {
			merged.Fields = map[string]any{}
		}
		for k, v := range fields {
			merged.Fields[k] = v
		}
		changed = make(map[string]relationDiff, len(relations))
		for field, desired := range relations {
			currentIDs := current.RelationIDs(field)
			added, removed := diffIDs(currentIDs, desired)
			if len(added) == 0 && len(removed) == 0 {
				continue
			}
			if merged.Relations == nil {
				merged.Relations = map[string][]string{}
			}
			merged.Relations[field] = desired
			changed[field] = relationDiff{added: added, removed: removed}
		}

		err = m.store.BatchWrite(ctx, []model.WriteOp{model.PutOp(merged)}, tenantID)
		if err == nil {
			merged.Version++
			break
		}
		var conflict *registrystore.ConflictError
		if errors.As(err, &conflict) && attempt < m.conflictRetries {
			continue
		}
		return nil, nil, err
	}
	m.invalidate(ctx, typ, id, tenantID)

	var warnings []*registrystore.PartialSyncError
	for field, diff := range changed {
		rel := sch.RelationForField(field)
		warn, err := m.sync.Sync(ctx, rel, id, tenantID, diff.added, diff.removed)
		if err != nil {
			return merged, warnings, err
		}
		if warn != nil {
			warnings = append(warnings, warn)
		}
	}
	return merged, warnings, nil
}

// Get is a tenant-scoped read, served from the cache when one is attached.
func (m *Manager) Get(ctx context.Context, typ, id, tenantID string) (*model.Entity, error) {
	if _, err := m.registry.Lookup(typ); err != nil {
		return nil, err
	}
	if m.cache != nil && m.cache.Available() {
		if e, err := m.cache.Get(ctx, typ, id, tenantID); err == nil && e != nil {
			return e, nil
		}
	}
	e, err := m.store.Get(ctx, typ, id, tenantID)
	if err != nil {
		return nil, err
	}
	if m.cache != nil && m.cache.Available() {
		_ = m.cache.Set(ctx, e)
	}
	return e, nil
}

// Search returns one page of matching entities plus the cursor of the next
// page. Results are never cached.
func (m *Manager) Search(ctx context.Context, typ string, q registrystore.Query, tenantID string) ([]model.Entity, *string, error) {
	if _, err := m.registry.Lookup(typ); err != nil {
		return nil, nil, err
	}
	return m.store.List(ctx, typ, q, tenantID)
}

// SearchAll returns a lazy sequence over every match, paging through the
// store underneath. The sequence is finite and restartable: iterating it
// again issues fresh queries from the original cursor.
func (m *Manager) SearchAll(ctx context.Context, typ string, q registrystore.Query, tenantID string) iter.Seq2[model.Entity, error] {
	return func(yield func(model.Entity, error) bool) {
		if _, err := m.registry.Lookup(typ); err != nil {
			yield(model.Entity{}, err)
			return
		}
		cursor := q.AfterCursor
		for {
			page := q
			page.AfterCursor = cursor
			page.Limit = m.pageSize
			ents, next, err := m.store.List(ctx, typ, page, tenantID)
			if err != nil {
				yield(model.Entity{}, err)
				return
			}
			for i := range ents {
				if !yield(ents[i], nil) {
					return
				}
			}
			if next == nil {
				return
			}
			cursor = next
		}
	}
}

// ResolveRelated batch-fetches the entities referenced by the named relation
// field. Dangling references are expected in historical data until repaired:
// missing targets are logged and omitted, never an error.
func (m *Manager) ResolveRelated(ctx context.Context, e *model.Entity, relationName string) ([]model.Entity, error) {
	sch, err := m.registry.Lookup(e.Type)
	if err != nil {
		return nil, err
	}
	var rel *model.RelationDefinition
	for i := range sch.Relations {
		if sch.Relations[i].Name == relationName {
			rel = &sch.Relations[i]
			break
		}
	}
	if rel == nil {
		return nil, fmt.Errorf("entity type %s has no relation %q", e.Type, relationName)
	}

	ids := e.RelationIDs(rel.FromField)
	out := make([]model.Entity, 0, len(ids))
	for _, id := range ids {
		target, err := m.store.Get(ctx, rel.ToType, id, e.TenantID)
		if err != nil {
			var notFound *registrystore.NotFoundError
			if errors.As(err, &notFound) {
				log.Warn("Dangling relation reference",
					"relation", rel.Name, "from", e.ID, "target", id)
				continue
			}
			return nil, err
		}
		out = append(out, *target)
	}
	return out, nil
}

// Delete runs the guarded delete path.
func (m *Manager) Delete(ctx context.Context, typ, id, tenantID string, cascade bool) error {
	if err := m.guard.GuardedDelete(ctx, typ, id, tenantID, cascade); err != nil {
		return err
	}
	m.invalidate(ctx, typ, id, tenantID)
	return nil
}

func (m *Manager) invalidate(ctx context.Context, typ, id, tenantID string) {
	if m.cache != nil && m.cache.Available() {
		_ = m.cache.Remove(ctx, typ, id, tenantID)
	}
}

type relationDiff struct {
	added   []string
	removed []string
}

// splitAndValidate partitions input into plain fields and relation id sets,
// collecting every violation instead of failing on the first.
func (m *Manager) splitAndValidate(sch *schema.Schema, data map[string]any, requireAll bool) (map[string]any, map[string][]string, []registrystore.FieldViolation) {
	fields := make(map[string]any)
	relations := make(map[string][]string)
	var violations []registrystore.FieldViolation

	for k, v := range data {
		if k == "tenantId" {
			continue // verified by checkTenantField, never stored as a plain field
		}
		if sch.RelationForField(k) != nil {
			ids, ok := toIDList(v)
			if !ok {
				violations = append(violations, registrystore.FieldViolation{
					Field: k, Message: "expected a list of entity ids",
				})
				continue
			}
			relations[k] = dedupIDs(ids)
			continue
		}
		if validate, ok := sch.Validators[k]; ok {
			if err := validate(v); err != nil {
				violations = append(violations, registrystore.FieldViolation{Field: k, Message: err.Error()})
				continue
			}
		}
		fields[k] = v
	}

	if requireAll {
		for _, required := range sch.RequiredFields {
			if _, ok := data[required]; !ok {
				violations = append(violations, registrystore.FieldViolation{Field: required, Message: "required"})
			}
		}
	}
	return fields, relations, violations
}

// checkTenantField refuses input carrying a tenantId that contradicts the
// call's tenant argument.
func checkTenantField(typ, id, tenantID string, data map[string]any) error {
	raw, ok := data["tenantId"]
	if !ok {
		return nil
	}
	got, _ := raw.(string)
	if got != tenantID {
		return &registrystore.TenantMismatchError{Type: typ, ID: id, Want: tenantID, Got: got}
	}
	return nil
}

func toIDList(v any) ([]string, bool) {
	switch ids := v.(type) {
	case nil:
		return []string{}, true
	case []string:
		return ids, true
	case []any:
		out := make([]string, 0, len(ids))
		for _, raw := range ids {
			s, ok := raw.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func dedupIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// diffIDs computes the set difference in both directions, preserving the
// order of first appearance.
func diffIDs(current, desired []string) (added, removed []string) {
	curSet := make(map[string]bool, len(current))
	for _, id := range current {
		curSet[id] = true
	}
	desiredSet := make(map[string]bool, len(desired))
	for _, id := range desired {
		desiredSet[id] = true
		if !curSet[id] {
			added = append(added, id)
		}
	}
	for _, id := range current {
		if !desiredSet[id] {
			removed = append(removed, id)
		}
	}
	return added, removed
}
