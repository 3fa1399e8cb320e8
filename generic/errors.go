/*
errors.go - Centralized error types for the benefit engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The wallet package and the HTTP layers wrap these with more context.

ERROR CATEGORIES:
  1. Validation errors - Rejected before any network call
  2. Network errors    - Collaborator unreachable, non-2xx, or timed out
  3. State conflicts   - Policy-guarded transitions (ignore with usage)
  4. Not found         - Card or benefit absent from the catalog/wallet

PROPAGATION:
  Validation errors surface immediately. Network and state errors surface
  after the collaborator call resolves and leave local state unchanged.
  Nothing here is fatal: every failure is recoverable by retry or by the
  user correcting input.

USAGE:
  if errors.Is(err, generic.ErrStateConflict) {
      // tell the user to reset usage first
  }

SEE ALSO:
  - wallet/ledger.go: Produces these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")

	// ErrNetwork is returned when the collaborator could not be reached or
	// rejected the request.
	ErrNetwork = errors.New("collaborator request failed")

	// ErrStateConflict is returned when a transition is forbidden by the
	// current state, e.g. ignoring a benefit that already has usage.
	ErrStateConflict = errors.New("state conflict")

	// ErrNotFound is returned when a card, holding or benefit does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInFlight is returned when the same logical operation is already
	// waiting on the collaborator.
	ErrInFlight = errors.New("operation already in flight")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes rejected input.
type ValidationError struct {
	Field   string
	Message string
	Value   string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NetworkError describes a failed collaborator call.
type NetworkError struct {
	Op         string // e.g. "update-benefit"
	StatusCode int    // 0 when no response was received
	Message    string // error text reported by the collaborator, if any
	Retryable  bool
	Err        error
}

func (e *NetworkError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *NetworkError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrNetwork, e.Err}
	}
	return []error{ErrNetwork}
}

// StateConflictError describes a guarded transition that was refused.
type StateConflictError struct {
	Key    UsageKey
	Reason string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("state conflict on %s: %s", e.Key, e.Reason)
}

func (e *StateConflictError) Unwrap() error { return ErrStateConflict }

// NotFoundError names the missing resource.
type NotFoundError struct {
	Kind string // "card", "holding", "benefit", "period"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// BatchError summarizes a fan-out where some sub-operations failed.
// Successful sub-operations are final and are not rolled back.
type BatchError struct {
	Op     string
	Failed int
	Total  int
	Errs   []error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s: %d of %d operations failed", e.Op, e.Failed, e.Total)
}

func (e *BatchError) Unwrap() []error { return e.Errs }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.Retryable
	}
	return errors.Is(err, ErrInFlight)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrStateConflict)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
