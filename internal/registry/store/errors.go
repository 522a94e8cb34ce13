package store

import (
	"fmt"
	"strings"
)

// NotFoundError indicates the document is absent or belongs to a different
// tenant. The two cases are deliberately indistinguishable so callers cannot
// probe for cross-tenant existence.
type NotFoundError struct {
	Type string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Type, e.ID)
}

// FieldViolation is a single failed field check.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every schema violation found on the input, not just
// the first one.
type ValidationError struct {
	Type       string           `json:"type"`
	Violations []FieldViolation `json:"violations"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s: %s", v.Field, v.Message)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Type, strings.Join(parts, "; "))
}

// TenantMismatchError indicates an attempt to relate or tag entities across
// tenant boundaries.
type TenantMismatchError struct {
	Type string
	ID   string
	Want string
	Got  string
}

func (e *TenantMismatchError) Error() string {
	return fmt.Sprintf("tenant mismatch on %s %s: have %q, got %q", e.Type, e.ID, e.Want, e.Got)
}

// RelatedEntitiesExistError blocks a delete while other entities still
// reference the target. Sample holds at most SampleLimit referencing ids.
type RelatedEntitiesExistError struct {
	Type    string   `json:"type"`
	ID      string   `json:"id"`
	RefType string   `json:"refType"`
	Sample  []string `json:"sample"`
	Total   int      `json:"total"`
}

// SampleLimit caps the referencing ids carried by RelatedEntitiesExistError.
const SampleLimit = 5

func (e *RelatedEntitiesExistError) Error() string {
	return fmt.Sprintf("cannot delete %s %s: %d %s entities still reference it (e.g. %s)",
		e.Type, e.ID, e.Total, e.RefType, strings.Join(e.Sample, ", "))
}

// ConflictError indicates an optimistic write collision that persisted
// through the bounded retry loop.
type ConflictError struct {
	Type     string
	ID       string
	Attempts int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("write conflict on %s %s after %d attempts", e.Type, e.ID, e.Attempts)
}

// UnknownTypeError indicates no schema is registered for the entity type.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown entity type %q", e.Type)
}

// StoreUnavailableError wraps a transport or infrastructure failure. It is
// always fatal to the current operation and propagated unmodified.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

// SyncFailure records one relation target that could not be updated.
type SyncFailure struct {
	TargetType string `json:"targetType"`
	TargetID   string `json:"targetId"`
	Reason     string `json:"reason"`
}

// PartialSyncError reports relation targets that were unreachable while the
// primary write already succeeded. It is a non-fatal warning: the repair job
// closes the gap, the request path never retries it inline.
type PartialSyncError struct {
	Relation string        `json:"relation"`
	FromID   string        `json:"fromId"`
	Failed   []SyncFailure `json:"failed"`
}

func (e *PartialSyncError) Error() string {
	return fmt.Sprintf("relation %s partially synced from %s: %d targets failed", e.Relation, e.FromID, len(e.Failed))
}
