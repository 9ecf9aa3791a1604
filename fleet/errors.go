/*
errors.go - Centralized error taxonomy for the fleet engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The taxonomy maps directly to how callers must react:

  ValidationError      bad range, missing/unknown field value
  ConflictError        overlapping booking detected
  PermissionError      role lacks rights for a transition or delete
  ImmutableFieldError  attempted edit of a protected field
  TransitionError      target status not reachable from current status
  NotFoundError        referenced vehicle/contract/entry missing
  ConsistencyWarning   association found >1 active contract (non-fatal)

RETRY POLICY:
  Only transient store failures on idempotent operations may be retried
  (status transitions, recompute, reads). Conflict checks and entry
  creation are never silently retried.

SEE ALSO:
  - retry.go: bounded backoff using IsRetryable
  - booking.go, ledger.go, associate.go: producers of these errors
*/
package fleet

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of every input validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when a proposed booking overlaps an Ativo
	// contract on the same vehicle.
	ErrConflict = errors.New("booking conflict")

	// ErrPermission is returned when the acting role lacks rights for the
	// requested mutation.
	ErrPermission = errors.New("permission denied")

	// ErrImmutable is returned on attempts to edit a protected field.
	ErrImmutable = errors.New("immutable field")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEntryReferenced is reported by the store when a hard delete would
	// break reference integrity. The ledger degrades to deactivation.
	ErrEntryReferenced = errors.New("entry referenced by other records")

	// ErrTransientStore marks a store failure that may succeed on retry
	// (e.g. SQLITE_BUSY). Only idempotent operations act on it.
	ErrTransientStore = errors.New("transient store failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError reports which Ativo contracts collide with a proposed range.
type ConflictError struct {
	Range     DateRange
	Conflicts []Contract
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("booking conflict: %d active contract(s) overlap %s", len(e.Conflicts), e.Range)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

type PermissionError struct {
	Role   Role
	Action string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("role %q may not %s", e.Role, e.Action)
}

func (e *PermissionError) Unwrap() error { return ErrPermission }

type ImmutableFieldError struct {
	EntryID EntryID
	Field   string
	Reason  string
}

func (e *ImmutableFieldError) Error() string {
	return fmt.Sprintf("entry %s: field %q is immutable: %s", e.EntryID, e.Field, e.Reason)
}

func (e *ImmutableFieldError) Unwrap() error { return ErrImmutable }

// TransitionError reports an unreachable status transition.
type TransitionError struct {
	From EntryStatus
	To   EntryStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrValidation }

type NotFoundError struct {
	Kind string // "vehicle", "contract", "entry", "fine"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConsistencyWarning signals that association found more than one Ativo
// contract covering a vehicle/date - the non-overlap invariant was violated
// elsewhere. It is reported alongside the first-match result, never instead
// of it, so the condition stays visible to operators and tests.
type ConsistencyWarning struct {
	VehicleID VehicleID
	Date      Date
	Contracts []ContractID
}

func (w *ConsistencyWarning) Error() string {
	return fmt.Sprintf("vehicle %s has %d active contracts covering %s", w.VehicleID, len(w.Contracts), w.Date)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
// Only idempotent callers should consult this.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStore)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrPermission) ||
		errors.Is(err, ErrImmutable)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
