package mongo_test

import (
	"context"
	"testing"

	"github.com/stagedesk/booking-service/internal/config"
	"github.com/stagedesk/booking-service/internal/model"
	_ "github.com/stagedesk/booking-service/internal/plugin/store/mongo"
	registrymigrate "github.com/stagedesk/booking-service/internal/registry/migrate"
	registrystore "github.com/stagedesk/booking-service/internal/registry/store"
	"github.com/stagedesk/booking-service/internal/schema"
	"github.com/stagedesk/booking-service/internal/testutil/testmongo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tenantA = "tenant-a"
	tenantB = "tenant-b"
)

func setupTestStore(t *testing.T) (registrystore.DocumentStore, context.Context) {
	t.Helper()

	dbURL := testmongo.StartMongo(t)

	cfg := config.DefaultConfig()
	cfg.DBURL = dbURL
	ctx := config.WithContext(context.Background(), &cfg)

	err := registrymigrate.RunAll(ctx)
	require.NoError(t, err)

	loader, err := registrystore.Select("mongo")
	require.NoError(t, err)

	store, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})

	return store, ctx
}

func putVenue(t *testing.T, store registrystore.DocumentStore, ctx context.Context, id, tenantID string, fields map[string]any) {
	t.Helper()
	e := &model.Entity{ID: id, Type: schema.TypeVenue, Fields: fields}
	err := store.BatchWrite(ctx, []model.WriteOp{model.PutOp(e)}, tenantID)
	require.NoError(t, err)
}

func TestPutAndGet(t *testing.T) {
	store, ctx := setupTestStore(t)

	putVenue(t, store, ctx, "v1", tenantA, map[string]any{"name": "Melkweg", "city": "Amsterdam"})

	got, err := store.Get(ctx, schema.TypeVenue, "v1", tenantA)
	require.NoError(t, err)
	assert.Equal(t, "Melkweg", got.Fields["name"])
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, tenantA, got.TenantID)
}

func TestTenantIsolation(t *testing.T) {
	store, ctx := setupTestStore(t)

	putVenue(t, store, ctx, "v1", tenantA, map[string]any{"name": "Melkweg"})

	_, err := store.Get(ctx, schema.TypeVenue, "v1", tenantB)
	var notFound *registrystore.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestConditionalUpdateConflicts(t *testing.T) {
	store, ctx := setupTestStore(t)

	putVenue(t, store, ctx, "v1", tenantA, map[string]any{"name": "Melkweg"})

	stale := &model.Entity{ID: "v1", Type: schema.TypeVenue, Version: 42}
	err := store.BatchWrite(ctx, []model.WriteOp{model.PutOp(stale)}, tenantA)
	var conflict *registrystore.ConflictError
	require.ErrorAs(t, err, &conflict)

	current, err := store.Get(ctx, schema.TypeVenue, "v1", tenantA)
	require.NoError(t, err)
	current.Fields["name"] = "Paradiso"
	err = store.BatchWrite(ctx, []model.WriteOp{model.PutOp(current)}, tenantA)
	require.NoError(t, err)

	got, err := store.Get(ctx, schema.TypeVenue, "v1", tenantA)
	require.NoError(t, err)
	assert.Equal(t, "Paradiso", got.Fields["name"])
	assert.Equal(t, int64(2), got.Version)
}

func TestAddToRelationIsIdempotent(t *testing.T) {
	store, ctx := setupTestStore(t)

	putVenue(t, store, ctx, "v1", tenantA, map[string]any{"name": "Melkweg"})

	err := store.AddToRelation(ctx, schema.TypeVenue, "v1", tenantA, "contactsIds", []string{"c1", "c2"})
	require.NoError(t, err)
	err = store.AddToRelation(ctx, schema.TypeVenue, "v1", tenantA, "contactsIds", []string{"c2", "c1"})
	require.NoError(t, err)

	got, err := store.Get(ctx, schema.TypeVenue, "v1", tenantA)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2"}, got.RelationIDs("contactsIds"))
}

func TestRemoveFromRelation(t *testing.T) {
	store, ctx := setupTestStore(t)

	putVenue(t, store, ctx, "v1", tenantA, map[string]any{"name": "Melkweg"})
	require.NoError(t, store.AddToRelation(ctx, schema.TypeVenue, "v1", tenantA, "contactsIds", []string{"c1", "c2", "c3"}))

	require.NoError(t, store.RemoveFromRelation(ctx, schema.TypeVenue, "v1", tenantA, "contactsIds", []string{"c2", "absent"}))

	got, err := store.Get(ctx, schema.TypeVenue, "v1", tenantA)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c3"}, got.RelationIDs("contactsIds"))
}

func TestListFiltersAndPages(t *testing.T) {
	store, ctx := setupTestStore(t)

	putVenue(t, store, ctx, "v1", tenantA, map[string]any{"city": "Amsterdam"})
	putVenue(t, store, ctx, "v2", tenantA, map[string]any{"city": "Amsterdam"})
	putVenue(t, store, ctx, "v3", tenantA, map[string]any{"city": "Berlin"})
	putVenue(t, store, ctx, "v4", tenantB, map[string]any{"city": "Amsterdam"})

	q := registrystore.Query{Filter: map[string]any{"city": "Amsterdam"}, Limit: 1}
	page1, next, err := store.List(ctx, schema.TypeVenue, q, tenantA)
	require.NoError(t, err)
	require.Len(t, page1, 1)
	require.NotNil(t, next)
	assert.Equal(t, "v1", page1[0].ID)

	q.AfterCursor = next
	page2, _, err := store.List(ctx, schema.TypeVenue, q, tenantA)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "v2", page2[0].ID)
}

func TestListRelatedTo(t *testing.T) {
	store, ctx := setupTestStore(t)

	putVenue(t, store, ctx, "v1", tenantA, map[string]any{"city": "Amsterdam"})
	putVenue(t, store, ctx, "v2", tenantA, map[string]any{"city": "Amsterdam"})
	require.NoError(t, store.AddToRelation(ctx, schema.TypeVenue, "v1", tenantA, "contactsIds", []string{"c1"}))

	q := registrystore.Query{RelatedTo: &registrystore.RelatedFilter{Field: "contactsIds", ID: "c1"}}
	got, _, err := store.List(ctx, schema.TypeVenue, q, tenantA)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v1", got[0].ID)
}

func TestTagTenant(t *testing.T) {
	store, ctx := setupTestStore(t)

	// Untagged historical document, written under the empty tenant.
	putVenue(t, store, ctx, "v1", "", map[string]any{"name": "Old Hall"})

	tagged, err := store.TagTenant(ctx, schema.TypeVenue, "v1", tenantA)
	require.NoError(t, err)
	assert.True(t, tagged)

	// Re-tagging is a no-op, even with another tenant.
	tagged, err = store.TagTenant(ctx, schema.TypeVenue, "v1", tenantB)
	require.NoError(t, err)
	assert.False(t, tagged)

	got, err := store.Get(ctx, schema.TypeVenue, "v1", tenantA)
	require.NoError(t, err)
	assert.Equal(t, tenantA, got.TenantID)
}

func TestScanAllCrossesTenants(t *testing.T) {
	store, ctx := setupTestStore(t)

	putVenue(t, store, ctx, "v1", tenantA, nil)
	putVenue(t, store, ctx, "v2", tenantB, nil)

	var seen []string
	var cursor *string
	for {
		docs, next, err := store.ScanAll(ctx, schema.TypeVenue, cursor, 1)
		require.NoError(t, err)
		for _, d := range docs {
			seen = append(seen, d.ID)
		}
		if next == nil {
			break
		}
		cursor = next
	}
	assert.Equal(t, []string{"v1", "v2"}, seen)
}

func TestDelete(t *testing.T) {
	store, ctx := setupTestStore(t)

	putVenue(t, store, ctx, "v1", tenantA, nil)

	err := store.BatchWrite(ctx, []model.WriteOp{{Kind: model.OpDelete, Type: schema.TypeVenue, ID: "v1"}}, tenantA)
	require.NoError(t, err)

	_, err = store.Get(ctx, schema.TypeVenue, "v1", tenantA)
	var notFound *registrystore.NotFoundError
	require.ErrorAs(t, err, &notFound)
}
