package schema

import "github.com/stagedesk/booking-service/internal/model"

// Entity type names of the booking catalog.
const (
	TypeVenue        = "Venue"
	TypeContact      = "Contact"
	TypeArtist       = "Artist"
	TypeBooking      = "Booking"
	TypeOrganization = "Organization"
)

// Relation names of the booking catalog, addressable via --relation.
const (
	RelVenueContacts        = "venue-contacts"
	RelVenueBookings        = "venue-bookings"
	RelArtistBookings       = "artist-bookings"
	RelOrganizationContacts = "organization-contacts"
)

// NewBookingRegistry builds the registry for the booking/CRM catalog. Each
// relation is declared once, on its owning side; the inverse field lives on
// the target type and is maintained by the relation synchronizer.
func NewBookingRegistry() (*Registry, error) {
	r := NewRegistry()

	schemas := []Schema{
		{
			Type:           TypeVenue,
			RequiredFields: []string{"name", "city"},
			Validators: map[string]Validator{
				"name":     NonEmptyString,
				"city":     NonEmptyString,
				"capacity": PositiveInt,
			},
			Relations: []model.RelationDefinition{
				{
					Name:        RelVenueContacts,
					FromType:    TypeVenue,
					ToType:      TypeContact,
					FromField:   "contactsIds",
					ToField:     "venuesIds",
					Cardinality: model.ManyToMany,
				},
				{
					Name:            RelVenueBookings,
					FromType:        TypeVenue,
					ToType:          TypeBooking,
					FromField:       "bookingsIds",
					ToField:         "venueIds",
					Cardinality:     model.OneToMany,
					CascadeOnDelete: true,
				},
			},
		},
		{
			Type:           TypeContact,
			RequiredFields: []string{"name"},
			Validators: map[string]Validator{
				"name":  NonEmptyString,
				"email": Email,
			},
		},
		{
			Type:           TypeArtist,
			RequiredFields: []string{"name"},
			Validators: map[string]Validator{
				"name": NonEmptyString,
			},
			Relations: []model.RelationDefinition{
				{
					Name:        RelArtistBookings,
					FromType:    TypeArtist,
					ToType:      TypeBooking,
					FromField:   "bookingsIds",
					ToField:     "artistIds",
					Cardinality: model.ManyToMany,
				},
			},
		},
		{
			Type:           TypeBooking,
			RequiredFields: []string{"date"},
			Validators: map[string]Validator{
				"date":   ISODate,
				"status": NonEmptyString,
			},
		},
		{
			Type:           TypeOrganization,
			RequiredFields: []string{"name"},
			Validators: map[string]Validator{
				"name": NonEmptyString,
			},
			Relations: []model.RelationDefinition{
				{
					Name:        RelOrganizationContacts,
					FromType:    TypeOrganization,
					ToType:      TypeContact,
					FromField:   "contactsIds",
					ToField:     "organizationsIds",
					Cardinality: model.ManyToMany,
				},
			},
		},
	}

	for _, s := range schemas {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}
