// Package memory provides an in-process DocumentStore used by unit tests and
// local development (--db-kind memory). Documents live in per-type maps and
// every read hands out a deep copy so callers never alias store state.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stagedesk/booking-service/internal/model"
	registrystore "github.com/stagedesk/booking-service/internal/registry/store"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "memory",
		Loader: func(ctx context.Context) (registrystore.DocumentStore, error) {
			return New(), nil
		},
	})
}

// Store is an in-memory DocumentStore. All operations are serialized by one
// mutex, which makes the relation set mutations atomic without a retry loop.
type Store struct {
	mu    sync.RWMutex
	docs  map[string]map[string]*model.Entity // type -> id -> entity
	nowFn func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		docs:  make(map[string]map[string]*model.Entity),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) collection(typ string) map[string]*model.Entity {
	col, ok := s.docs[typ]
	if !ok {
		col = make(map[string]*model.Entity)
		s.docs[typ] = col
	}
	return col
}

// Get returns the document when it exists under the given tenant. A document
// owned by another tenant is reported as missing.
func (s *Store) Get(ctx context.Context, typ, id, tenantID string) (*model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[typ][id]
	if !ok || e.TenantID != tenantID {
		return nil, &registrystore.NotFoundError{Type: typ, ID: id}
	}
	return e.Clone(), nil
}

// List returns matching documents of the tenant in ascending id order, paged
// by Query.AfterCursor/Limit.
func (s *Store) List(ctx context.Context, typ string, q registrystore.Query, tenantID string) ([]model.Entity, *string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*model.Entity
	for _, e := range s.docs[typ] {
		if e.TenantID != tenantID {
			continue
		}
		if !matches(e, q) {
			continue
		}
		matched = append(matched, e)
	}
	return page(matched, q.AfterCursor, q.Limit)
}

func matches(e *model.Entity, q registrystore.Query) bool {
	for k, want := range q.Filter {
		if e.Fields[k] != want {
			return false
		}
	}
	if q.RelatedTo != nil {
		found := false
		for _, id := range e.Relations[q.RelatedTo.Field] {
			if id == q.RelatedTo.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func page(matched []*model.Entity, after *string, limit int) ([]model.Entity, *string, error) {
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	start := 0
	if after != nil {
		for i, e := range matched {
			if e.ID > *after {
				start = i
				break
			}
			start = i + 1
		}
	}
	end := len(matched)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	out := make([]model.Entity, 0, end-start)
	for _, e := range matched[start:end] {
		out = append(out, *e.Clone())
	}
	var next *string
	if end < len(matched) && len(out) > 0 {
		cursor := out[len(out)-1].ID
		next = &cursor
	}
	return out, next, nil
}

// BatchWrite applies puts and deletes. A put with Version 0 inserts; a put
// with a non-zero Version is conditional on the stored version and fails with
// ConflictError when another writer got there first.
func (s *Store) BatchWrite(ctx context.Context, ops []model.WriteOp, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFn()
	for _, op := range ops {
		switch op.Kind {
		case model.OpPut:
			e := op.Entity.Clone()
			col := s.collection(e.Type)
			existing, ok := col[e.ID]
			if ok {
				if existing.TenantID != tenantID {
					return &registrystore.NotFoundError{Type: e.Type, ID: e.ID}
				}
				if e.Version != existing.Version {
					return &registrystore.ConflictError{Type: e.Type, ID: e.ID, Attempts: 1}
				}
				e.CreatedAt = existing.CreatedAt
			} else {
				e.CreatedAt = now
			}
			e.TenantID = tenantID
			e.Version++
			e.UpdatedAt = now
			col[e.ID] = e
		case model.OpDelete:
			col := s.collection(op.Type)
			existing, ok := col[op.ID]
			if !ok || existing.TenantID != tenantID {
				return &registrystore.NotFoundError{Type: op.Type, ID: op.ID}
			}
			delete(col, op.ID)
		}
	}
	return nil
}

// AddToRelation unions ids into the relation field. The mutex makes this
// atomic; repeated application is a no-op.
func (s *Store) AddToRelation(ctx context.Context, typ, id, tenantID, field string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs[typ][id]
	if !ok || e.TenantID != tenantID {
		return &registrystore.NotFoundError{Type: typ, ID: id}
	}
	if e.Relations == nil {
		e.Relations = make(map[string][]string)
	}
	current := e.Relations[field]
	have := make(map[string]bool, len(current))
	for _, v := range current {
		have[v] = true
	}
	changed := false
	for _, v := range ids {
		if !have[v] {
			current = append(current, v)
			have[v] = true
			changed = true
		}
	}
	if changed {
		e.Relations[field] = current
		e.Version++
		e.UpdatedAt = s.nowFn()
	}
	return nil
}

// RemoveFromRelation subtracts ids from the relation field.
func (s *Store) RemoveFromRelation(ctx context.Context, typ, id, tenantID, field string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs[typ][id]
	if !ok || e.TenantID != tenantID {
		return &registrystore.NotFoundError{Type: typ, ID: id}
	}
	drop := make(map[string]bool, len(ids))
	for _, v := range ids {
		drop[v] = true
	}
	current := e.Relations[field]
	kept := current[:0:0]
	for _, v := range current {
		if !drop[v] {
			kept = append(kept, v)
		}
	}
	if len(kept) != len(current) {
		e.Relations[field] = kept
		e.Version++
		e.UpdatedAt = s.nowFn()
	}
	return nil
}

// ScanAll pages through every document of the type regardless of tenant.
// Privileged; batch runners only.
func (s *Store) ScanAll(ctx context.Context, typ string, afterCursor *string, limit int) ([]model.Entity, *string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*model.Entity
	for _, e := range s.docs[typ] {
		all = append(all, e)
	}
	return page(all, afterCursor, limit)
}

// TagTenant sets the tenant on an untagged document. Existing non-empty
// values are never overwritten.
func (s *Store) TagTenant(ctx context.Context, typ, id, tenantID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs[typ][id]
	if !ok {
		return false, &registrystore.NotFoundError{Type: typ, ID: id}
	}
	if e.TenantID != "" {
		return false, nil
	}
	e.TenantID = tenantID
	e.Version++
	e.UpdatedAt = s.nowFn()
	return true, nil
}

// Close is a no-op.
func (s *Store) Close(ctx context.Context) error {
	return nil
}

// Seed inserts a document verbatim, bypassing tenant scoping and version
// checks. Test and fixture helper: lets suites create the historical drift
// (missing tenants, one-sided relations) the batch jobs exist to repair.
func (s *Store) Seed(e *model.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := e.Clone()
	if cp.Version == 0 {
		cp.Version = 1
	}
	now := s.nowFn()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.collection(cp.Type)[cp.ID] = cp
}
