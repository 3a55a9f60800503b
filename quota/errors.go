/*
errors.go - Centralized error types for the reconciliation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers dispatch with errors.Is / errors.As; user-facing layers must
  name the offending fields or farmer IDs, never a bare failure code.

ERROR CATEGORIES:
  1. Input errors      - malformed or incomplete source data (SchemaError)
  2. Batch errors      - a submission that cannot derive a valid scope
  3. Store errors      - the ledger is unreachable or a commit failed
  4. Recording errors  - approval recording preconditions not met

Unknown farmers and exceeded quotas are NOT errors: they are collected
on the reconciliation result, block approval, and still persist.
*/
package quota

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEmptyBatch is returned when a submission contains no rows
	// after normalization.
	ErrEmptyBatch = errors.New("batch contains no delivery rows")

	// ErrStoreUnavailable is returned (wrapped) when the ledger cannot
	// be reached or a commit failed. Nothing was persisted; retrying
	// the whole submission is safe.
	ErrStoreUnavailable = errors.New("ledger store unavailable")

	// ErrNotApproved is returned when approval recording is requested
	// for a result that did not pass validation.
	ErrNotApproved = errors.New("batch is not approved")

	// ErrInvalidValue is returned (wrapped) when a numeric field cannot
	// be parsed or is negative.
	ErrInvalidValue = errors.New("invalid field value")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// SchemaError reports required columns that could not be resolved in a
// tabular source. The batch is rejected before anything is persisted.
type SchemaError struct {
	Source  string   // "deliveries" or "farmers"
	Missing []string // canonical field names with no matching alias
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s source is missing required columns: %s",
		e.Source, strings.Join(e.Missing, ", "))
}

// MultipleExportersError reports a batch that mixes exporters. One
// submission owns exactly one (lots, exporter) scope.
type MultipleExportersError struct {
	Exporters []string
}

func (e *MultipleExportersError) Error() string {
	return fmt.Sprintf("batch must contain a single exporter, found %d: %s",
		len(e.Exporters), strings.Join(e.Exporters, ", "))
}

// StoreError wraps a failure of the underlying ledger. It matches
// ErrStoreUnavailable under errors.Is while preserving the cause.
type StoreError struct {
	Op  string // operation that failed, e.g. "replace scope"
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("ledger store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

// ValueError reports a field that failed numeric validation, with
// enough position information for a human to fix the source data.
type ValueError struct {
	Source string // "deliveries" or "farmers"
	Row    int    // 1-based data row (headers excluded)
	Field  string
	Value  string
	Reason string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("%s row %d: field %q has invalid value %q: %s",
		e.Source, e.Row, e.Field, e.Value, e.Reason)
}

func (e *ValueError) Unwrap() error { return ErrInvalidValue }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid input data
// that a human must correct before resubmitting.
func IsClientError(err error) bool {
	var schemaErr *SchemaError
	var exporterErr *MultipleExportersError
	return errors.As(err, &schemaErr) ||
		errors.As(err, &exporterErr) ||
		errors.Is(err, ErrEmptyBatch) ||
		errors.Is(err, ErrInvalidValue)
}

// IsRetryable returns true if retrying the identical submission might
// succeed. Scope replacement makes store retries idempotent.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
