package metrics

import (
	"context"
	"time"

	"github.com/stagedesk/booking-service/internal/model"
	"github.com/stagedesk/booking-service/internal/registry/store"
	"github.com/stagedesk/booking-service/internal/security"
)

// Wrap returns a DocumentStore that records StoreLatency for every operation.
func Wrap(inner store.DocumentStore) store.DocumentStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.DocumentStore
}

func observe(op string, start time.Time) {
	if security.StoreLatency != nil {
		security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (m *metricsStore) Get(ctx context.Context, typ, id, tenantID string) (*model.Entity, error) {
	defer observe("get", time.Now())
	return m.inner.Get(ctx, typ, id, tenantID)
}

func (m *metricsStore) List(ctx context.Context, typ string, q store.Query, tenantID string) ([]model.Entity, *string, error) {
	defer observe("list", time.Now())
	return m.inner.List(ctx, typ, q, tenantID)
}

func (m *metricsStore) BatchWrite(ctx context.Context, ops []model.WriteOp, tenantID string) error {
	defer observe("batch_write", time.Now())
	return m.inner.BatchWrite(ctx, ops, tenantID)
}

func (m *metricsStore) AddToRelation(ctx context.Context, typ, id, tenantID, field string, ids []string) error {
	defer observe("add_to_relation", time.Now())
	return m.inner.AddToRelation(ctx, typ, id, tenantID, field, ids)
}

func (m *metricsStore) RemoveFromRelation(ctx context.Context, typ, id, tenantID, field string, ids []string) error {
	defer observe("remove_from_relation", time.Now())
	return m.inner.RemoveFromRelation(ctx, typ, id, tenantID, field, ids)
}

func (m *metricsStore) ScanAll(ctx context.Context, typ string, afterCursor *string, limit int) ([]model.Entity, *string, error) {
	defer observe("scan_all", time.Now())
	return m.inner.ScanAll(ctx, typ, afterCursor, limit)
}

func (m *metricsStore) TagTenant(ctx context.Context, typ, id, tenantID string) (bool, error) {
	defer observe("tag_tenant", time.Now())
	return m.inner.TagTenant(ctx, typ, id, tenantID)
}

func (m *metricsStore) Close(ctx context.Context) error {
	defer observe("close", time.Now())
	return m.inner.Close(ctx)
}
