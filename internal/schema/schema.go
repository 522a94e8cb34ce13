package schema

import (
	"fmt"

	"github.com/stagedesk/booking-service/internal/model"
	registrystore "github.com/stagedesk/booking-service/internal/registry/store"
)

// Validator checks a single field value. A nil return means the value is
// valid; the error message is surfaced to the caller inside a
// ValidationError. Validators must be pure functions.
type Validator func(value any) error

// Schema describes one entity type: which fields are required, how fields are
// validated, and how the type relates to other types.
type Schema struct {
	Type           string
	RequiredFields []string
	Validators     map[string]Validator
	Relations      []model.RelationDefinition
}

// RelationForField returns the relation definition rooted at the given field
// of this type, or nil.
func (s *Schema) RelationForField(field string) *model.RelationDefinition {
	for i := range s.Relations {
		if s.Relations[i].FromField == field {
			return &s.Relations[i]
		}
	}
	return nil
}

// Registry is the process-wide catalog of entity schemas. Register every
// schema during startup; the registry has no mutable state after that and is
// safe for concurrent lookups.
type Registry struct {
	schemas   map[string]*Schema
	relations map[string]*model.RelationDefinition
}

// NewRegistry returns an empty schema registry.
func NewRegistry() *Registry {
	return &Registry{
		schemas:   make(map[string]*Schema),
		relations: make(map[string]*model.RelationDefinition),
	}
}

// Register adds a schema. Duplicate types, duplicate relation names, and
// relations not rooted at the registered type are configuration errors.
func (r *Registry) Register(s Schema) error {
	if s.Type == "" {
		return fmt.Errorf("schema has no type")
	}
	if _, ok := r.schemas[s.Type]; ok {
		return fmt.Errorf("schema for %q already registered", s.Type)
	}
	for i := range s.Relations {
		rel := &s.Relations[i]
		if rel.FromType != s.Type {
			return fmt.Errorf("relation %q: fromType %q does not match schema type %q", rel.Name, rel.FromType, s.Type)
		}
		if rel.Cardinality != model.OneToMany && rel.Cardinality != model.ManyToMany {
			return fmt.Errorf("relation %q: invalid cardinality %q", rel.Name, rel.Cardinality)
		}
		if _, ok := r.relations[rel.Name]; ok {
			return fmt.Errorf("relation %q already registered", rel.Name)
		}
	}
	cp := s
	r.schemas[s.Type] = &cp
	for i := range cp.Relations {
		r.relations[cp.Relations[i].Name] = &cp.Relations[i]
	}
	return nil
}

// Lookup returns the schema for the given type.
func (r *Registry) Lookup(typ string) (*Schema, error) {
	s, ok := r.schemas[typ]
	if !ok {
		return nil, &registrystore.UnknownTypeError{Type: typ}
	}
	return s, nil
}

// RelationByName returns the relation definition registered under the given
// name. Used by the repair job's --relation flag.
func (r *Registry) RelationByName(name string) (*model.RelationDefinition, error) {
	rel, ok := r.relations[name]
	if !ok {
		return nil, fmt.Errorf("unknown relation %q", name)
	}
	return rel, nil
}

// RelationsTo returns every relation definition whose target side is the
// given type. The delete guard walks these to find inbound references.
func (r *Registry) RelationsTo(typ string) []model.RelationDefinition {
	var out []model.RelationDefinition
	for _, s := range r.schemas {
		for _, rel := range s.Relations {
			if rel.ToType == typ {
				out = append(out, rel)
			}
		}
	}
	return out
}

// Types returns all registered entity type names.
func (r *Registry) Types() []string {
	names := make([]string, 0, len(r.schemas))
	for t := range r.schemas {
		names = append(names, t)
	}
	return names
}
