/*
totals.go - Row, per-day and grand totals

PURPOSE:
  Aggregates resolved hour values over a day range. Totals are computed
  strictly through Resolve (resolve.go), so they always agree with what a
  cell would display and with what the save planner would diff.

COMPLETENESS:
  DayTotals returns one entry for EVERY day descriptor in the range, zero
  for days with no contributions. Callers must never have to guard against
  sparse maps.
*/
package registry

import "github.com/shopspring/decimal"

// RowTotal sums the resolved hours of one assignment over the day range.
func RowTotal(a Assignment, ctx *ResolutionContext, days []DayDescriptor) decimal.Decimal {
	total := decimal.Zero
	for _, day := range days {
		total = total.Add(ResolveHours(a, day.DateKey, ctx))
	}
	return total
}

// DayTotals sums resolved hours per day across a set of assignments. The
// result holds one entry per descriptor, initialized to zero, even for
// days no assignment contributes to.
func DayTotals(assignments []Assignment, ctx *ResolutionContext, days []DayDescriptor) map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal, len(days))
	for _, day := range days {
		totals[day.DateKey] = decimal.Zero
	}
	for _, a := range assignments {
		for _, day := range days {
			totals[day.DateKey] = totals[day.DateKey].Add(ResolveHours(a, day.DateKey, ctx))
		}
	}
	return totals
}

// GrandTotal sums a per-day totals map.
func GrandTotal(totals map[string]decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range totals {
		sum = sum.Add(v)
	}
	return sum
}
