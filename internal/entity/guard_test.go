package entity_test

import (
	"context"
	"fmt"
	"testing"

	registrystore "github.com/stagedesk/booking-service/internal/registry/store"
	"github.com/stagedesk/booking-service/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteBlockedByReferences(t *testing.T) {
	mgr, _ := setupManager(t)
	ctx := context.Background()

	c := createEntity(t, mgr, schema.TypeContact, tenantA, map[string]any{"name": "Ada"})
	v := createEntity(t, mgr, schema.TypeVenue, tenantA, map[string]any{
		"name": "Melkweg", "city": "Amsterdam", "contactsIds": []any{c.ID},
	})

	err := mgr.Delete(ctx, schema.TypeContact, c.ID, tenantA, false)
	var related *registrystore.RelatedEntitiesExistError
	require.ErrorAs(t, err, &related)
	assert.Equal(t, schema.TypeVenue, related.RefType)
	assert.Equal(t, 1, related.Total)
	require.Len(t, related.Sample, 1)
	assert.Contains(t, related.Sample[0], "Melkweg")

	// Still present afterwards.
	_, err = mgr.Get(ctx, schema.TypeContact, c.ID, tenantA)
	require.NoError(t, err)
	_ = v
}

func TestDeleteCascadeRespectsRelationPolicy(t *testing.T) {
	mgr, _ := setupManager(t)
	ctx := context.Background()

	c := createEntity(t, mgr, schema.TypeContact, tenantA, map[string]any{"name": "Ada"})
	createEntity(t, mgr, schema.TypeVenue, tenantA, map[string]any{
		"name": "Melkweg", "city": "Amsterdam", "contactsIds": []any{c.ID},
	})

	// venue-contacts does not permit cascading, so even an explicit cascade
	// delete of the contact is refused.
	err := mgr.Delete(ctx, schema.TypeContact, c.ID, tenantA, true)
	var related *registrystore.RelatedEntitiesExistError
	require.ErrorAs(t, err, &related)
}

func TestDeleteCascadeDetachesReferences(t *testing.T) {
	mgr, _ := setupManager(t)
	ctx := context.Background()

	b := createEntity(t, mgr, schema.TypeBooking, tenantA, map[string]any{"date": "2026-09-01"})
	v := createEntity(t, mgr, schema.TypeVenue, tenantA, map[string]any{
		"name": "Melkweg", "city": "Amsterdam", "bookingsIds": []any{b.ID},
	})

	// Without cascade the venue reference blocks the delete.
	err := mgr.Delete(ctx, schema.TypeBooking, b.ID, tenantA, false)
	var related *registrystore.RelatedEntitiesExistError
	require.ErrorAs(t, err, &related)

	// With cascade the venue-bookings relation permits detaching.
	err = mgr.Delete(ctx, schema.TypeBooking, b.ID, tenantA, true)
	require.NoError(t, err)

	var notFound *registrystore.NotFoundError
	_, err = mgr.Get(ctx, schema.TypeBooking, b.ID, tenantA)
	require.ErrorAs(t, err, &notFound)

	gotV, err := mgr.Get(ctx, schema.TypeVenue, v.ID, tenantA)
	require.NoError(t, err)
	assert.Empty(t, gotV.RelationIDs("bookingsIds"), "no dangling reference may remain")
}

func TestDeleteClearsOutboundMirrors(t *testing.T) {
	mgr, _ := setupManager(t)
	ctx := context.Background()

	c := createEntity(t, mgr, schema.TypeContact, tenantA, map[string]any{"name": "Ada"})
	v := createEntity(t, mgr, schema.TypeVenue, tenantA, map[string]any{
		"name": "Melkweg", "city": "Amsterdam", "contactsIds": []any{c.ID},
	})

	// Nothing references the venue, so it deletes without cascade; its mirror
	// on the contact must be cleaned up on the way out.
	err := mgr.Delete(ctx, schema.TypeVenue, v.ID, tenantA, false)
	require.NoError(t, err)

	got, err := mgr.Get(ctx, schema.TypeContact, c.ID, tenantA)
	require.NoError(t, err)
	assert.Empty(t, got.RelationIDs("venuesIds"))
}

func TestDeleteErrorSampleIsCapped(t *testing.T) {
	mgr, _ := setupManager(t)
	ctx := context.Background()

	c := createEntity(t, mgr, schema.TypeContact, tenantA, map[string]any{"name": "Ada"})
	for i := 0; i < registrystore.SampleLimit+2; i++ {
		createEntity(t, mgr, schema.TypeVenue, tenantA, map[string]any{
			"name": fmt.Sprintf("venue-%d", i), "city": "X", "contactsIds": []any{c.ID},
		})
	}

	err := mgr.Delete(ctx, schema.TypeContact, c.ID, tenantA, false)
	var related *registrystore.RelatedEntitiesExistError
	require.ErrorAs(t, err, &related)
	assert.Equal(t, registrystore.SampleLimit+2, related.Total)
	assert.Len(t, related.Sample, registrystore.SampleLimit)
}

func TestDeleteMissingEntity(t *testing.T) {
	mgr, _ := setupManager(t)

	err := mgr.Delete(context.Background(), schema.TypeContact, "nope", tenantA, false)
	var notFound *registrystore.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestDeleteForeignTenantLooksMissing(t *testing.T) {
	mgr, _ := setupManager(t)
	ctx := context.Background()

	c := createEntity(t, mgr, schema.TypeContact, tenantA, map[string]any{"name": "Ada"})

	err := mgr.Delete(ctx, schema.TypeContact, c.ID, tenantB, false)
	var notFound *registrystore.NotFoundError
	require.ErrorAs(t, err, &notFound)

	_, err = mgr.Get(ctx, schema.TypeContact, c.ID, tenantA)
	require.NoError(t, err, "the entity survives a foreign-tenant delete attempt")
}
