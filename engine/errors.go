/*
errors.go - Centralized error taxonomy for the overtime engine

Every failure surfaced by the engine maps to one of six categories:

  ErrInvalidInput       - malformed date, out-of-range hours
  ErrPreconditionFailed - entry before hire, duplicate approved absence,
                          illegal state transition
  ErrNotFound           - unknown id
  ErrConflict           - decision raced with another admin
  ErrInconsistent       - live recompute disagrees with the monthly cache
  ErrTransient          - store busy; retried inside the orchestrator

Domain code wraps these with structured types carrying context; the API shim
translates categories to HTTP status codes. Validation errors surface
immediately; store errors abort the enclosing transaction and surface;
event-bus errors are logged and never surfaced.
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInconsistent       = errors.New("cache inconsistent with recompute")
	ErrTransient          = errors.New("store busy")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidInputError reports a malformed or out-of-range field.
type InvalidInputError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// PreconditionError reports a business-rule violation on otherwise
// well-formed input.
type PreconditionError struct {
	Rule   string
	Detail string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Detail)
}

func (e *PreconditionError) Unwrap() error { return ErrPreconditionFailed }

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// TransitionError reports an illegal absence state transition. A transition
// attempted against an already-decided request is a Conflict (retryable on
// current state); anything else is a precondition failure.
type TransitionError struct {
	From     AbsenceStatus
	To       AbsenceStatus
	Decided  bool
	Detail   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition absence from %s to %s: %s", e.From, e.To, e.Detail)
}

func (e *TransitionError) Unwrap() error {
	if e.Decided {
		return ErrConflict
	}
	return ErrPreconditionFailed
}

// InconsistencyError reports disagreement between the live recompute and the
// monthly cache beyond the rounding tolerance. Breakdown holds the per-day
// values logged for diagnosis.
type InconsistencyError struct {
	UserID    string
	Month     YearMonth
	Cached    decimal.Decimal
	Live      decimal.Decimal
	Breakdown []DayResult
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("monthly balance for user %s %s: cache %s disagrees with recompute %s",
		e.UserID, e.Month, e.Cached.StringFixed(2), e.Live.StringFixed(2))
}

func (e *InconsistencyError) Unwrap() error { return ErrInconsistent }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable reports whether the operation might succeed if retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrConflict)
}

// IsClientError reports whether the failure is the caller's fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrPreconditionFailed) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict)
}
