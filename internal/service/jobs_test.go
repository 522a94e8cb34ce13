package service_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stagedesk/booking-service/internal/entity"
	"github.com/stagedesk/booking-service/internal/model"
	"github.com/stagedesk/booking-service/internal/plugin/store/memory"
	"github.com/stagedesk/booking-service/internal/schema"
	"github.com/stagedesk/booking-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenant = "tenant-a"

func seed(store *memory.Store, typ, id, tenantID string, relations map[string][]string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{"name": id}
	}
	store.Seed(&model.Entity{
		ID:        id,
		Type:      typ,
		TenantID:  tenantID,
		Fields:    fields,
		Relations: relations,
	})
}

func TestBackfillTagsUntaggedDocuments(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	// Two documents already tagged, three historical ones without a tenant.
	seed(store, schema.TypeContact, "c1", tenant, nil, nil)
	seed(store, schema.TypeContact, "c2", tenant, nil, nil)
	seed(store, schema.TypeContact, "c3", "", nil, nil)
	seed(store, schema.TypeContact, "c4", "", nil, nil)
	seed(store, schema.TypeContact, "c5", "", nil, nil)

	job := service.NewBackfillJob(store, 2, false)
	report, err := job.Run(ctx, schema.TypeContact, tenant, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Scanned)
	assert.Equal(t, 3, report.Repaired)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 0, report.Partial)

	// Second run is a no-op: everything is tagged now.
	report, err = job.Run(ctx, schema.TypeContact, tenant, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Scanned)
	assert.Equal(t, 0, report.Repaired)
	assert.Equal(t, 5, report.Skipped)

	for _, id := range []string{"c3", "c4", "c5"} {
		got, err := store.Get(ctx, schema.TypeContact, id, tenant)
		require.NoError(t, err)
		assert.Equal(t, tenant, got.TenantID)
	}
}

func TestBackfillNeverOverwritesExistingTenant(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	seed(store, schema.TypeContact, "c1", "other-tenant", nil, nil)

	job := service.NewBackfillJob(store, 10, false)
	report, err := job.Run(ctx, schema.TypeContact, tenant, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)

	got, err := store.Get(ctx, schema.TypeContact, "c1", "other-tenant")
	require.NoError(t, err)
	assert.Equal(t, "other-tenant", got.TenantID)
}

func TestBackfillHonorsLegacyAccountField(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	seed(store, schema.TypeContact, "c1", "", nil, map[string]any{"name": "c1", "accountId": "acme"})

	job := service.NewBackfillJob(store, 10, false)
	report, err := job.Run(ctx, schema.TypeContact, tenant, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Repaired)

	got, err := store.Get(ctx, schema.TypeContact, "c1", "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", got.TenantID, "legacy ownership wins over the flag tenant")
}

func TestBackfillDryRunWritesNothing(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	seed(store, schema.TypeContact, "c1", "", nil, nil)

	job := service.NewBackfillJob(store, 10, true)
	report, err := job.Run(ctx, schema.TypeContact, tenant, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Repaired)

	// Document is still untagged.
	got, err := store.Get(ctx, schema.TypeContact, "c1", "")
	require.NoError(t, err)
	assert.Empty(t, got.TenantID)
}

func TestBackfillStopsOnCancelledContext(t *testing.T) {
	store := memory.New()
	for i := 0; i < 10; i++ {
		seed(store, schema.TypeContact, fmt.Sprintf("c%02d", i), "", nil, nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := service.NewBackfillJob(store, 3, false)
	report, err := job.Run(ctx, schema.TypeContact, tenant, nil)
	require.Error(t, err)
	assert.Equal(t, 0, report.Scanned)
}

func setupRepair(t *testing.T, store *memory.Store, pageSize int, dryRun bool) *service.RepairJob {
	t.Helper()
	registry, err := schema.NewBookingRegistry()
	require.NoError(t, err)
	return service.NewRepairJob(store, registry, entity.NewSynchronizer(store), pageSize, dryRun)
}

func TestRepairAddsMissingMirrors(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	// The venue lists the contact but the inverse mirror is missing.
	seed(store, schema.TypeVenue, "v1", tenant, map[string][]string{"contactsIds": {"c1"}}, nil)
	seed(store, schema.TypeContact, "c1", tenant, nil, nil)

	job := setupRepair(t, store, 10, false)
	report, err := job.Run(ctx, schema.RelVenueContacts, nil)
	require.NoError(t, err)
	// Both sweeps count into Scanned: one venue forward, one contact inverse.
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Repaired)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Partial)

	got, err := store.Get(ctx, schema.TypeContact, "c1", tenant)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, got.RelationIDs("venuesIds"))

	// Idempotent: nothing left to fix.
	report, err = job.Run(ctx, schema.RelVenueContacts, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Repaired)
}

func TestRepairRemovesStaleMirrors(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	// The contact claims a venue that no longer lists it.
	seed(store, schema.TypeVenue, "v1", tenant, nil, nil)
	seed(store, schema.TypeContact, "c1", tenant, map[string][]string{"venuesIds": {"v1", "gone-venue"}}, nil)

	job := setupRepair(t, store, 10, false)
	report, err := job.Run(ctx, schema.RelVenueContacts, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Repaired)

	got, err := store.Get(ctx, schema.TypeContact, "c1", tenant)
	require.NoError(t, err)
	assert.Empty(t, got.RelationIDs("venuesIds"))
}

func TestRepairReportsUnresolvableTargets(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	// Dangling forward reference: the target exists under another tenant, so
	// the scoped read cannot resolve it. Reported, never silently fixed.
	seed(store, schema.TypeVenue, "v1", tenant, map[string][]string{"contactsIds": {"c1"}}, nil)
	seed(store, schema.TypeContact, "c1", "other-tenant", nil, nil)

	job := setupRepair(t, store, 10, false)
	report, err := job.Run(ctx, schema.RelVenueContacts, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Partial)
	assert.Equal(t, 0, report.Repaired)

	got, err := store.Get(ctx, schema.TypeContact, "c1", "other-tenant")
	require.NoError(t, err)
	assert.Empty(t, got.RelationIDs("venuesIds"), "no cross-tenant mirror may be created")
}

func TestRepairSkipsUntaggedDocuments(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	seed(store, schema.TypeVenue, "v1", "", map[string][]string{"contactsIds": {"c1"}}, nil)
	seed(store, schema.TypeContact, "c1", tenant, nil, nil)

	job := setupRepair(t, store, 10, false)
	report, err := job.Run(ctx, schema.RelVenueContacts, nil)
	require.NoError(t, err)
	// The untagged venue and the clean contact are both skipped.
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 0, report.Repaired)
}

func TestRepairDryRunWritesNothing(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	seed(store, schema.TypeVenue, "v1", tenant, map[string][]string{"contactsIds": {"c1"}}, nil)
	seed(store, schema.TypeContact, "c1", tenant, nil, nil)

	job := setupRepair(t, store, 10, true)
	report, err := job.Run(ctx, schema.RelVenueContacts, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Repaired)

	got, err := store.Get(ctx, schema.TypeContact, "c1", tenant)
	require.NoError(t, err)
	assert.Empty(t, got.RelationIDs("venuesIds"))
}

func TestRepairUnknownRelation(t *testing.T) {
	store := memory.New()
	job := setupRepair(t, store, 10, false)

	_, err := job.Run(context.Background(), "no-such-relation", nil)
	require.Error(t, err)
}

func TestRepairPagesAcrossLargeSets(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		cid := fmt.Sprintf("c%02d", i)
		vid := fmt.Sprintf("v%02d", i)
		seed(store, schema.TypeContact, cid, tenant, nil, nil)
		seed(store, schema.TypeVenue, vid, tenant, map[string][]string{"contactsIds": {cid}}, nil)
	}

	job := setupRepair(t, store, 2, false)
	report, err := job.Run(ctx, schema.RelVenueContacts, nil)
	require.NoError(t, err)
	// Seven venues forward plus seven contacts inverse.
	assert.Equal(t, 14, report.Scanned)
	assert.Equal(t, 7, report.Repaired)
}
