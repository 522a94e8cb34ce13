package model

import (
	"time"

	"github.com/google/uuid"
)

// Cardinality describes how many entities may sit on the target side of a
// relation field.
type Cardinality string

const (
	// OneToMany: each target entity mirrors at most one source id.
	OneToMany Cardinality = "one-to-many"
	// ManyToMany: both sides hold unbounded id sets.
	ManyToMany Cardinality = "many-to-many"
)

// RelationDefinition declares that FromType.FromField and ToType.ToField are
// mutually consistent id sets: an id appears in FromField on A if and only if
// A's id appears in ToField on the referenced entity. Definitions are
// registered once at startup and never hold instance data.
type RelationDefinition struct {
	Name            string      `json:"name"`
	FromType        string      `json:"fromType"`
	ToType          string      `json:"toType"`
	FromField       string      `json:"fromField"`
	ToField         string      `json:"toField"`
	Cardinality     Cardinality `json:"cardinality"`
	CascadeOnDelete bool        `json:"cascadeOnDelete"`
}

// Entity is a typed, tenant-scoped document. TenantID is empty only
// transiently on historical documents that predate tenant tagging; the
// backfill job closes that gap.
type Entity struct {
	ID        string              `json:"id"        bson:"_id"`
	Type      string              `json:"type"      bson:"type"`
	TenantID  string              `json:"tenantId"  bson:"tenant_id"`
	Fields    map[string]any      `json:"fields"    bson:"fields"`
	Relations map[string][]string `json:"relations" bson:"relations"`
	Version   int64               `json:"version"   bson:"version"`
	CreatedAt time.Time           `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time           `json:"updatedAt" bson:"updated_at"`
}

// NewID returns a fresh entity id.
func NewID() string {
	return uuid.NewString()
}

// Clone returns a deep copy so store implementations can hand out entities
// without aliasing their internal state.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Fields != nil {
		cp.Fields = make(map[string]any, len(e.Fields))
		for k, v := range e.Fields {
			cp.Fields[k] = v
		}
	}
	if e.Relations != nil {
		cp.Relations = make(map[string][]string, len(e.Relations))
		for k, v := range e.Relations {
			cp.Relations[k] = append([]string(nil), v...)
		}
	}
	return &cp
}

// RelationIDs returns a copy of the id set stored under the given relation
// field. Missing fields yield an empty, non-nil slice.
func (e *Entity) RelationIDs(field string) []string {
	if e == nil || e.Relations == nil {
		return []string{}
	}
	return append([]string{}, e.Relations[field]...)
}

// WriteOpKind discriminates batch write operations.
type WriteOpKind int

const (
	OpPut WriteOpKind = iota
	OpDelete
)

// WriteOp is a single operation in a DocumentStore.BatchWrite call. Put is
// conditional on Entity.Version when the version is non-zero; a version of
// zero inserts a new document.
type WriteOp struct {
	Kind   WriteOpKind
	Entity *Entity // put only
	Type   string  // delete only
	ID     string  // delete only
}

// PutOp builds a conditional upsert operation.
func PutOp(e *Entity) WriteOp {
	return WriteOp{Kind: OpPut, Entity: e}
}

// DeleteOp builds a delete operation.
func DeleteOp(typ, id string) WriteOp {
	return WriteOp{Kind: OpDelete, Type: typ, ID: id}
}
