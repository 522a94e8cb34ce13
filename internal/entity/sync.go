package entity

import (
	"context"
	"errors"

	"github.com/stagedesk/booking-service/internal/model"
	registrycache "github.com/stagedesk/booking-service/internal/registry/cache"
	registrystore "github.com/stagedesk/booking-service/internal/registry/store"
	"github.com/stagedesk/booking-service/internal/security"
)

// Synchronizer propagates inverse references onto related entities. The
// primary entity's own relation field is already persisted before Sync runs;
// the inverse update here is a second, independent document write. The window
// of asymmetric state between the two sides is bounded and closed by the
// repair job, not by blocking the request path.
type Synchronizer struct {
	store registrystore.DocumentStore
	cache registrycache.EntityCache
}

// NewSynchronizer builds a synchronizer over the given store.
func NewSynchronizer(store registrystore.DocumentStore) *Synchronizer {
	return &Synchronizer{store: store}
}

// SetCache attaches the entity cache so every inverse-reference write also
// evicts the mutated target's cache entry.
func (s *Synchronizer) SetCache(c registrycache.EntityCache) {
	s.cache = c
}

func (s *Synchronizer) invalidate(ctx context.Context, typ, id, tenantID string) {
	if s.cache != nil && s.cache.Available() {
		_ = s.cache.Remove(ctx, typ, id, tenantID)
	}
}

// Sync adds fromID to the ToField of every added target and removes it from
// every removed target, with set semantics on both, so repeated application
// is a no-op. A missing or conflicted target never aborts the batch: it is
// recorded in the returned PartialSyncError and the batch continues.
// Infrastructure failures abort immediately via the error return.
func (s *Synchronizer) Sync(ctx context.Context, rel *model.RelationDefinition, fromID, tenantID string, added, removed []string) (*registrystore.PartialSyncError, error) {
	var failed []registrystore.SyncFailure

	for _, targetID := range dedupIDs(added) {
		if rel.Cardinality == model.OneToMany {
			if fail, err := s.displace(ctx, rel, fromID, tenantID, targetID); err != nil {
				return nil, err
			} else if fail != nil {
				failed = append(failed, *fail)
				continue
			}
		}
		err := s.store.AddToRelation(ctx, rel.ToType, targetID, tenantID, rel.ToField, []string{fromID})
		if fail, fatal := classify(rel, targetID, err); fatal != nil {
			return nil, fatal
		} else if fail != nil {
			failed = append(failed, *fail)
			continue
		}
		s.invalidate(ctx, rel.ToType, targetID, tenantID)
		observeSync(rel.Name, "add")
	}

	for _, targetID := range dedupIDs(removed) {
		err := s.store.RemoveFromRelation(ctx, rel.ToType, targetID, tenantID, rel.ToField, []string{fromID})
		if fail, fatal := classify(rel, targetID, err); fatal != nil {
			return nil, fatal
		} else if fail != nil {
			failed = append(failed, *fail)
			continue
		}
		s.invalidate(ctx, rel.ToType, targetID, tenantID)
		observeSync(rel.Name, "remove")
	}

	if len(failed) == 0 {
		return nil, nil
	}
	if security.SyncPartialFailuresTotal != nil {
		security.SyncPartialFailuresTotal.Add(float64(len(failed)))
	}
	return &registrystore.PartialSyncError{Relation: rel.Name, FromID: fromID, Failed: failed}, nil
}

// displace keeps one-to-many targets single-parented: before fromID is added
// to the target's ToField, any other parent loses the target from its own
// FromField and the target's ToField is cleared of it.
func (s *Synchronizer) displace(ctx context.Context, rel *model.RelationDefinition, fromID, tenantID, targetID string) (*registrystore.SyncFailure, error) {
	target, err := s.store.Get(ctx, rel.ToType, targetID, tenantID)
	if err != nil {
		fail, fatal := classify(rel, targetID, err)
		return fail, fatal
	}
	var others []string
	for _, parent := range target.RelationIDs(rel.ToField) {
		if parent != fromID {
			others = append(others, parent)
		}
	}
	for _, parent := range others {
		err := s.store.RemoveFromRelation(ctx, rel.FromType, parent, tenantID, rel.FromField, []string{targetID})
		var notFound *registrystore.NotFoundError
		if err != nil && !errors.As(err, &notFound) {
			fail, fatal := classify(rel, parent, err)
			return fail, fatal
		}
		s.invalidate(ctx, rel.FromType, parent, tenantID)
	}
	if len(others) > 0 {
		if err := s.store.RemoveFromRelation(ctx, rel.ToType, targetID, tenantID, rel.ToField, others); err != nil {
			fail, fatal := classify(rel, targetID, err)
			return fail, fatal
		}
		s.invalidate(ctx, rel.ToType, targetID, tenantID)
	}
	return nil, nil
}

// classify sorts a store error into a per-target failure (tolerated) or a
// fatal error (propagated). StoreUnavailable is always fatal.
func classify(rel *model.RelationDefinition, targetID string, err error) (*registrystore.SyncFailure, error) {
	if err == nil {
		return nil, nil
	}
	var unavailable *registrystore.StoreUnavailableError
	if errors.As(err, &unavailable) {
		return nil, err
	}
	var notFound *registrystore.NotFoundError
	var conflict *registrystore.ConflictError
	if errors.As(err, &notFound) || errors.As(err, &conflict) {
		return &registrystore.SyncFailure{
			TargetType: rel.ToType,
			TargetID:   targetID,
			Reason:     err.Error(),
		}, nil
	}
	return nil, err
}

func observeSync(relation, op string) {
	if security.SyncOperationsTotal != nil {
		security.SyncOperationsTotal.WithLabelValues(relation, op).Inc()
	}
}
