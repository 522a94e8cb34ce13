package schema_test

import (
	"testing"

	"github.com/stagedesk/booking-service/internal/model"
	registrystore "github.com/stagedesk/booking-service/internal/registry/store"
	"github.com/stagedesk/booking-service/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRejectsDuplicateType(t *testing.T) {
	r := schema.NewRegistry()
	require.NoError(t, r.Register(schema.Schema{Type: "Widget"}))
	require.ErrorContains(t, r.Register(schema.Schema{Type: "Widget"}), "already registered")
}

func TestRegisterRejectsDuplicateRelationName(t *testing.T) {
	r := schema.NewRegistry()
	rel := model.RelationDefinition{
		Name: "widget-parts", FromType: "Widget", ToType: "Part",
		FromField: "partsIds", ToField: "widgetsIds", Cardinality: model.ManyToMany,
	}
	require.NoError(t, r.Register(schema.Schema{Type: "Widget", Relations: []model.RelationDefinition{rel}}))

	rel.FromType = "Gadget"
	err := r.Register(schema.Schema{Type: "Gadget", Relations: []model.RelationDefinition{rel}})
	require.ErrorContains(t, err, "already registered")
}

func TestRegisterRejectsForeignRelationRoot(t *testing.T) {
	r := schema.NewRegistry()
	err := r.Register(schema.Schema{
		Type: "Widget",
		Relations: []model.RelationDefinition{{
			Name: "gadget-parts", FromType: "Gadget", ToType: "Part",
			FromField: "partsIds", ToField: "gadgetsIds", Cardinality: model.ManyToMany,
		}},
	})
	require.ErrorContains(t, err, "does not match schema type")
}

func TestRegisterRejectsInvalidCardinality(t *testing.T) {
	r := schema.NewRegistry()
	err := r.Register(schema.Schema{
		Type: "Widget",
		Relations: []model.RelationDefinition{{
			Name: "widget-parts", FromType: "Widget", ToType: "Part",
			FromField: "partsIds", ToField: "widgetsIds", Cardinality: "one-to-one",
		}},
	})
	require.ErrorContains(t, err, "invalid cardinality")
}

func TestLookupUnknownType(t *testing.T) {
	r := schema.NewRegistry()
	_, err := r.Lookup("Ghost")
	var unknown *registrystore.UnknownTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "Ghost", unknown.Type)
}

func TestBookingRegistryCatalog(t *testing.T) {
	r, err := schema.NewBookingRegistry()
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		schema.TypeVenue, schema.TypeContact, schema.TypeArtist,
		schema.TypeBooking, schema.TypeOrganization,
	}, r.Types())

	rel, err := r.RelationByName(schema.RelVenueBookings)
	require.NoError(t, err)
	assert.Equal(t, model.OneToMany, rel.Cardinality)
	assert.True(t, rel.CascadeOnDelete)

	_, err = r.RelationByName("nope")
	require.ErrorContains(t, err, "unknown relation")

	// Contacts are targeted by both venues and organizations.
	inbound := r.RelationsTo(schema.TypeContact)
	names := make([]string, 0, len(inbound))
	for _, in := range inbound {
		names = append(names, in.Name)
	}
	assert.ElementsMatch(t, []string{schema.RelVenueContacts, schema.RelOrganizationContacts}, names)
}

func TestRelationForField(t *testing.T) {
	r, err := schema.NewBookingRegistry()
	require.NoError(t, err)

	venue, err := r.Lookup(schema.TypeVenue)
	require.NoError(t, err)

	rel := venue.RelationForField("contactsIds")
	require.NotNil(t, rel)
	assert.Equal(t, schema.RelVenueContacts, rel.Name)
	assert.Nil(t, venue.RelationForField("name"))
}

func TestNonEmptyString(t *testing.T) {
	assert.NoError(t, schema.NonEmptyString("Melkweg"))
	assert.Error(t, schema.NonEmptyString(""))
	assert.Error(t, schema.NonEmptyString("   "))
	assert.Error(t, schema.NonEmptyString(42))
}

func TestEmail(t *testing.T) {
	assert.NoError(t, schema.Email("ada@example.org"))
	assert.Error(t, schema.Email("ada"))
	assert.Error(t, schema.Email("@example.org"))
	assert.Error(t, schema.Email("ada@"))
	assert.Error(t, schema.Email("ada@localhost"))
	assert.Error(t, schema.Email(7))
}

func TestPositiveInt(t *testing.T) {
	assert.NoError(t, schema.PositiveInt(5))
	assert.NoError(t, schema.PositiveInt(int64(5)))
	// JSON numbers arrive as float64.
	assert.NoError(t, schema.PositiveInt(float64(250)))
	assert.Error(t, schema.PositiveInt(0))
	assert.Error(t, schema.PositiveInt(-3))
	assert.Error(t, schema.PositiveInt(2.5))
	assert.Error(t, schema.PositiveInt("5"))
}

func TestISODate(t *testing.T) {
	assert.NoError(t, schema.ISODate("2026-09-01"))
	assert.NoError(t, schema.ISODate("2026-09-01T20:00:00Z"))
	assert.Error(t, schema.ISODate("01/09/2026"))
	assert.Error(t, schema.ISODate("not a date"))
	assert.Error(t, schema.ISODate(20260901))
}
