/*
Package registry provides the core hour-reconciliation engine.

PURPOSE:
  This package contains the domain types and algorithms for the hours
  registry: merging manually-entered hour values with externally-tracked
  records per worker/company/day, resolving identity across inconsistent
  keys, computing totals, distributing aggregates across rows, and
  planning diff-based saves against the external control-schedule API.

KEY CONCEPTS IN THIS FILE (types.go):
  - Assignment: a (worker, company) pairing carrying manual hour overrides
  - WorkerWeekData: tracked (externally authoritative) hours per day
  - HourSegment: one shift/time-range within a day
  - NoteEntry: a free-text note attached to a worker/day
  - GroupView: a read-only projection of assignments with totals

DESIGN PRINCIPLES:
  1. Precision: hour amounts use decimal.Decimal, never raw floats
  2. Single resolution path: every consumer resolves cell values through
     Resolve (resolve.go), so display, export and save never diverge
  3. Snapshot discipline: tracked state is replaced wholesale on fetch;
     drafts are diffed against an explicit baseline before saving

SEE ALSO:
  - identity.go: company/worker identity normalization
  - resolve.go: manual-over-tracked resolution
  - distribute.go: bulk distribution of hours/percentages
  - planner.go: diff-based save planning
*/
package registry

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// ASSIGNMENT - One (worker, company) pairing with manual overrides
// =============================================================================

// Assignment represents one worker/company pairing in the registry.
//
// Hours holds MANUAL OVERRIDES ONLY, keyed by date key (YYYY-MM-DD).
// Absence of a key means "use the tracked value, not a manual one".
// Values are stored as raw user input strings ("3,5", "8") and parsed
// on resolution, so unparseable input degrades to zero without losing
// what the user typed.
type Assignment struct {
	ID          string            `json:"id"`
	WorkerID    string            `json:"workerId"`
	WorkerName  string            `json:"workerName"`
	CompanyID   string            `json:"companyId"`
	CompanyName string            `json:"companyName"`
	Hours       map[string]string `json:"hours"`
}

// SetManualHours returns a copy of the assignment with the override for
// dateKey replaced. Assignments are updated by whole-value replacement so
// concurrent readers always see a consistent snapshot.
func (a Assignment) SetManualHours(dateKey, raw string) Assignment {
	hours := make(map[string]string, len(a.Hours)+1)
	for k, v := range a.Hours {
		hours[k] = v
	}
	if raw == "" {
		delete(hours, dateKey)
	} else {
		hours[dateKey] = raw
	}
	a.Hours = hours
	return a
}

// =============================================================================
// TRACKED DATA - Externally authoritative records, replaced on every fetch
// =============================================================================

// ScheduleEntry is one tracked control-schedule record for a worker/day.
type ScheduleEntry struct {
	ID        string          `json:"id"`
	CompanyID string          `json:"companyId"`
	Hours     decimal.Decimal `json:"hours"`
	Shifts    []WorkShift     `json:"shifts"`
}

// WorkShift is a start/end pair inside a tracked entry.
type WorkShift struct {
	Start       string `json:"startTime"`
	End         string `json:"endTime"`
	Observation string `json:"observations,omitempty"`
}

// NoteEntry is a free-text note for a worker/day. A note without a company
// identity applies to every assignment of that worker/day.
type NoteEntry struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	CompanyID   string `json:"companyId,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
	Origin      string `json:"origin,omitempty"`
}

// AppliesTo reports whether the note applies to the given assignment.
// Unassigned-company notes apply to all assignments of the worker/day.
func (n NoteEntry) AppliesTo(a Assignment) bool {
	id := BuildCompanyIdentity(n.CompanyID, n.CompanyName)
	if id.IsUnassigned() {
		return true
	}
	target := BuildCompanyIdentity(a.CompanyID, a.CompanyName)
	return id.ID == target.ID
}

// CompanyHours is the tracked hour total for one company on one day.
type CompanyHours struct {
	CompanyID string          `json:"companyId"`
	Name      string          `json:"name"`
	Hours     decimal.Decimal `json:"hours"`
}

// WorkerDayData is the tracked record for one worker/day.
type WorkerDayData struct {
	TotalHours   decimal.Decimal
	CompanyHours *CompanyHoursLookup
	Entries      []ScheduleEntry
	NoteEntries  []NoteEntry
}

// WorkerWeekData is the tracked record for one worker across the requested
// range. Replaced wholesale on every successful fetch.
type WorkerWeekData struct {
	Days map[string]WorkerDayData
}

// =============================================================================
// HOUR SEGMENT - Editable shift draft for one assignment/day
// =============================================================================

// HourSegment is a single editable shift within a day for one assignment.
// Total equals end-start when both times are set; the user may override
// Total independently when times are absent.
type HourSegment struct {
	ID          string          `json:"id"`
	Start       string          `json:"start"`
	End         string          `json:"end"`
	Total       decimal.Decimal `json:"total"`
	Description string          `json:"description"`
}

// Complete reports whether both times are present. Only complete segments
// contribute to save payloads.
func (s HourSegment) Complete() bool {
	return s.Start != "" && s.End != ""
}

// =============================================================================
// GROUP VIEW - Read-only projection, always derived
// =============================================================================

// GroupView is a derived projection of assignments grouped by worker or
// company, with per-day totals. Rebuilt whenever assignments, tracked data
// or the day range change; it has no independent lifecycle.
type GroupView struct {
	ID          string                     `json:"id"`
	Name        string                     `json:"name"`
	Assignments []Assignment               `json:"assignments"`
	Totals      map[string]decimal.Decimal `json:"totals"`
}
