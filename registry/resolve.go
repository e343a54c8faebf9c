/*
resolve.go - Effective hour value resolution

PURPOSE:
  Computes the effective hour value for one (assignment, day) cell from the
  two sources that can feed it:

    1. MANUAL  - a non-empty, parseable manual override always wins
    2. TRACKED - else the externally-fetched record for that worker/day,
                 matched by company id first, company name second
    3. UNSET   - else zero

  Every consumer (cell display, row totals, group totals, export, bulk
  distribution baseline, save planning) resolves through this one function.
  Divergent resolution logic between the display path and the save path is
  the bug class this file exists to prevent.

SIDE EFFECTS:
  None. Resolution is a pure function of current state.
*/
package registry

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ResolutionState identifies which source produced a resolved value.
type ResolutionState string

const (
	StateManual  ResolutionState = "manual"
	StateTracked ResolutionState = "tracked"
	StateUnset   ResolutionState = "unset"
)

// Resolution is the effective value for one cell, clamped to >= 0.
type Resolution struct {
	State ResolutionState
	Hours decimal.Decimal
}

// ResolutionContext carries the tracked state resolution reads from:
// worker id -> per-day tracked data, replaced wholesale on every fetch.
type ResolutionContext struct {
	WeekData map[string]WorkerWeekData
}

// NewResolutionContext builds an empty context.
func NewResolutionContext() *ResolutionContext {
	return &ResolutionContext{WeekData: make(map[string]WorkerWeekData)}
}

// DayData returns the tracked record for a worker/day, if fetched.
func (c *ResolutionContext) DayData(workerID, dateKey string) (WorkerDayData, bool) {
	if c == nil {
		return WorkerDayData{}, false
	}
	week, ok := c.WeekData[workerID]
	if !ok {
		return WorkerDayData{}, false
	}
	day, ok := week.Days[dateKey]
	return day, ok
}

// Resolve computes the effective hour value for one assignment/day.
func Resolve(a Assignment, dateKey string, ctx *ResolutionContext) Resolution {
	if raw, ok := a.Hours[dateKey]; ok {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			return Resolution{State: StateManual, Hours: ClampHours(ParseHour(trimmed))}
		}
	}

	if day, ok := ctx.DayData(a.WorkerID, dateKey); ok {
		if ch, found := day.CompanyHours.Get(a.CompanyID, a.CompanyName); found {
			return Resolution{State: StateTracked, Hours: ClampHours(ch.Hours)}
		}
	}

	return Resolution{State: StateUnset, Hours: decimal.Zero}
}

// ResolveHours is Resolve without the state, for callers that only need
// the number.
func ResolveHours(a Assignment, dateKey string, ctx *ResolutionContext) decimal.Decimal {
	return Resolve(a, dateKey, ctx).Hours
}
