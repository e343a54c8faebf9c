/*
hours.go - Hour value parsing, formatting and epsilon comparison

PURPOSE:
  Converts locale-formatted decimal strings (comma or dot separator) to
  decimal hour values and back. Users type "3,5", "8h" or "25%"; tracked
  data arrives as decimals; both meet here.

EPSILON:
  Two hour totals are considered equal when they differ by less than 0.01.
  This single tolerance is applied EVERYWHERE two totals are compared:
  distribution validation, save-plan diffing, duplicate detection. Using a
  different tolerance in one consumer is a bug class this file exists to
  prevent.

SEE ALSO:
  - distribute.go: validation sums
  - planner.go: value-change detection
*/
package registry

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Epsilon is the tolerance under which two hour totals are considered equal.
var Epsilon = decimal.RequireFromString("0.01")

// ParseHour converts a raw user-entered hour string to a decimal value.
// It strips "%" and "h" suffixes, accepts comma as the decimal separator,
// and returns zero for empty or unparseable input. It never fails: parse
// failures are recovered locally, not surfaced to the caller.
func ParseHour(raw string) decimal.Decimal {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimSuffix(s, "h")
	s = strings.TrimSuffix(s, "H")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// FormatHours renders an hour value for display: Spanish convention with a
// comma decimal separator and at most two fraction digits. Whole values
// carry no fraction ("8", not "8,00").
func FormatHours(d decimal.Decimal) string {
	rounded := d.Round(2)
	s := rounded.String()
	// Trim trailing zeros in the fraction, then a dangling point.
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return strings.ReplaceAll(s, ".", ",")
}

// HoursEqual reports whether two hour totals are equal within Epsilon.
func HoursEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(Epsilon)
}

// ClampHours clamps an hour value to zero when negative. Resolved hour
// values are never negative.
func ClampHours(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
