/*
distribute.go - Bulk distribution of hours across selected rows

PURPOSE:
  Given a declared total and a selected set of assignment rows, computes
  per-row allocations and validates consistency before they may be applied
  to the manual-hours maps.

MODES:
  hours       - the user enters hour values per row directly; the entered
                values must sum to the declared total (within Epsilon)
  percentage  - the user enters percentages; they must sum to 100 (+-0.5);
                each row's hours are pct/100 * total

EQUAL SPLIT EXACTNESS:
  base = total / count, rounded to 4 decimals, is assigned to every row
  except the last; the last row receives the REMAINDER (total minus the
  sum assigned so far). The sum of all rows therefore equals the declared
  total exactly, by construction, regardless of rounding on individual
  shares. With 3 rows and a total of 10: [3.3333, 3.3333, 3.3334].
*/
package registry

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DistributionMode selects how per-row values are interpreted.
type DistributionMode string

const (
	ModeHours      DistributionMode = "hours"
	ModePercentage DistributionMode = "percentage"
)

// percentageTolerance is the allowed drift of a percentage sum around 100.
var (
	hundred             = decimal.NewFromInt(100)
	percentageTolerance = decimal.RequireFromString("0.5")
)

// DistributionRow is one selected row with its raw entered value
// (hours or percentage, depending on mode; "" means blank).
type DistributionRow struct {
	AssignmentID string `json:"assignmentId"`
	Entered      string `json:"entered"`
}

// DistributionInput is a distribution request for one day.
type DistributionInput struct {
	DayKey      string            `json:"dayKey"`
	Mode        DistributionMode  `json:"mode"`
	Total       decimal.Decimal   `json:"total"`
	Rows        []DistributionRow `json:"rows"`
	Description string            `json:"description,omitempty"`
}

// DistributionResult is a validated set of per-assignment hour updates for
// one day, ready to be pushed into manual-hours maps.
type DistributionResult struct {
	DayKey      string                     `json:"dayKey"`
	Mode        DistributionMode           `json:"viewMode"`
	Updates     map[string]decimal.Decimal `json:"updates"`
	Description string                     `json:"description,omitempty"`
}

// EqualSplit divides total across n rows: round(total/n, 4) everywhere but
// the last row, which takes the exact remainder.
func EqualSplit(total decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	shares := make([]decimal.Decimal, n)
	base := total.Div(decimal.NewFromInt(int64(n))).Round(4)

	assigned := decimal.Zero
	for i := 0; i < n-1; i++ {
		shares[i] = base
		assigned = assigned.Add(base)
	}
	shares[n-1] = total.Sub(assigned)
	return shares
}

// EqualSplitRows fills the rows of in with an equal split: hour shares in
// hours mode, percentage shares in percentage mode. Entered values keep the
// full 4-decimal precision so the filled rows still validate against the
// declared total; display rounding happens only at apply time.
func EqualSplitRows(in DistributionInput) []DistributionRow {
	basis := in.Total
	if in.Mode == ModePercentage {
		basis = hundred
	}
	shares := EqualSplit(basis, len(in.Rows))

	rows := make([]DistributionRow, len(in.Rows))
	for i, row := range in.Rows {
		entered := strings.ReplaceAll(shares[i].String(), ".", ",")
		rows[i] = DistributionRow{AssignmentID: row.AssignmentID, Entered: entered}
	}
	return rows
}

// EstimatedHours converts a percentage share to hours against the total.
func EstimatedHours(percent, total decimal.Decimal) decimal.Decimal {
	return percent.Div(hundred).Mul(total)
}

// Validate checks the consistency rules that must hold before apply is
// permitted. Returns nil when the input is applicable.
func (in DistributionInput) Validate() *DistributionError {
	if len(in.Rows) == 0 {
		return newDistributionError(DistributionNoSelection,
			"Selecciona al menos una empresa para repartir las horas")
	}
	if !in.Total.IsPositive() {
		return newDistributionError(DistributionZeroTotal,
			"Introduce un total de horas mayor que cero")
	}

	switch in.Mode {
	case ModePercentage:
		sum := decimal.Zero
		for _, row := range in.Rows {
			sum = sum.Add(ParseHour(row.Entered))
		}
		if sum.Sub(hundred).Abs().GreaterThan(percentageTolerance) {
			err := newDistributionError(DistributionPctMismatch,
				"Los porcentajes deben sumar 100%% (actual: %s%%)", FormatHours(sum))
			err.Difference = sum.Sub(hundred)
			return err
		}

	default: // hours
		sum := decimal.Zero
		for _, row := range in.Rows {
			if strings.TrimSpace(row.Entered) == "" {
				return newDistributionError(DistributionIncompleteRow,
					"Completa las horas para todas las empresas seleccionadas antes de aplicar")
			}
			sum = sum.Add(ParseHour(row.Entered))
		}
		if !HoursEqual(sum, in.Total) {
			diff := in.Total.Sub(sum)
			var err *DistributionError
			if diff.IsPositive() {
				err = newDistributionError(DistributionSumMismatch,
					"Faltan %s horas para alcanzar el total declarado", FormatHours(diff))
			} else {
				err = newDistributionError(DistributionSumMismatch,
					"Sobran %s horas respecto al total declarado", FormatHours(diff.Neg()))
			}
			err.Difference = sum.Sub(in.Total)
			return err
		}
	}
	return nil
}

// Apply validates the input and computes the per-assignment updates,
// clamped to >= 0.
func Apply(in DistributionInput) (*DistributionResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	updates := make(map[string]decimal.Decimal, len(in.Rows))
	for _, row := range in.Rows {
		value := ParseHour(row.Entered)
		if in.Mode == ModePercentage {
			value = EstimatedHours(value, in.Total)
		}
		updates[row.AssignmentID] = ClampHours(value)
	}

	return &DistributionResult{
		DayKey:      in.DayKey,
		Mode:        in.Mode,
		Updates:     updates,
		Description: strings.TrimSpace(in.Description),
	}, nil
}

// ApplyToAssignments pushes a distribution result into the manual-hours
// maps of the matching assignments, formatted for display. Assignments are
// replaced, not mutated in place.
func ApplyToAssignments(result *DistributionResult, assignments []Assignment) []Assignment {
	out := make([]Assignment, len(assignments))
	for i, a := range assignments {
		if value, ok := result.Updates[a.ID]; ok {
			out[i] = a.SetManualHours(result.DayKey, FormatHours(value))
		} else {
			out[i] = a
		}
	}
	return out
}
