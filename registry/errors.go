/*
errors.go - Centralized error types for the registry engine

PURPOSE:
  All engine error types in one place for consistency and discoverability.

ERROR CATEGORIES:
  1. Distribution errors - validation failures blocking "apply"
  2. Planning errors     - preconditions of save-plan construction

TAXONOMY NOTES:
  Parse failures (unparseable hour strings) are NOT errors: they recover
  to zero locally in ParseHour and never reach a caller. Distribution
  errors are user-visible and reactive; they block the apply action but
  never corrupt state. ErrMissingParameterID is fail-closed: the whole
  batch aborts before any network call.
*/
package registry

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingParameterID is returned when an assignment reaches save-plan
	// construction with an empty worker id. The batch aborts before any
	// network call; no partial plan is emitted.
	ErrMissingParameterID = errors.New("assignment is missing its worker parameter id")

	// ErrNoRowsSelected blocks distribution when nothing is selected.
	ErrNoRowsSelected = errors.New("no rows selected for distribution")

	// ErrZeroTotal blocks distribution when the declared total is not > 0.
	ErrZeroTotal = errors.New("distribution total must be greater than zero")
)

// =============================================================================
// DISTRIBUTION ERROR - User-visible validation failure
// =============================================================================

// DistributionErrorCode identifies the validation rule that failed.
type DistributionErrorCode string

const (
	DistributionNoSelection   DistributionErrorCode = "no_selection"
	DistributionZeroTotal     DistributionErrorCode = "zero_total"
	DistributionIncompleteRow DistributionErrorCode = "incomplete_row"
	DistributionSumMismatch   DistributionErrorCode = "sum_mismatch"
	DistributionPctMismatch   DistributionErrorCode = "percentage_mismatch"
)

// DistributionError is a validation failure with a user-visible message
// (the product's locale is Spanish) and, for sum mismatches, the signed
// difference between entered values and the declared total.
type DistributionError struct {
	Code       DistributionErrorCode
	Message    string
	Difference decimal.Decimal
}

func (e *DistributionError) Error() string { return e.Message }

// Unwrap maps validation codes onto the package sentinels so callers can
// use errors.Is without inspecting codes.
func (e *DistributionError) Unwrap() error {
	switch e.Code {
	case DistributionNoSelection:
		return ErrNoRowsSelected
	case DistributionZeroTotal:
		return ErrZeroTotal
	default:
		return nil
	}
}

func newDistributionError(code DistributionErrorCode, format string, args ...any) *DistributionError {
	return &DistributionError{Code: code, Message: fmt.Sprintf(format, args...)}
}
