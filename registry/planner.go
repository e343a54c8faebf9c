/*
planner.go - Diff-based save planning

PURPOSE:
  Decides, for every (assignment, day) in the visible set, whether a
  network write is needed, by diffing the current editable state (manual
  hours, shift segments, note drafts) against the last-synchronized
  baseline. Only changed cells produce payload items; an unchanged state
  diffs to an empty plan (running the planner twice after a successful
  save is a no-op).

SNAPSHOTS:
  Baseline - last-synced truth, built from tracked data (BuildBaseline)
  Draft    - in-progress edits, built from assignments + segment/note
             drafts (BuildDraft)
  Diff     - pure function of the two; no comparison logic lives in
             callers or HTTP handlers

DECISION TABLE (hour records):
  existing  manual        segments changed   action
  none      > 0           -                  create, value = hours
  none      absent        yes (>0 shifts)    create, value = sum(durations)
  present   differs       no                 update value only
  present   same/absent   yes                update shifts only
  present   <= 0          and none drafted   soft-delete: value "0", shifts []
  any       no effective change              SKIP - no item emitted

NOTES:
  Diffed independently per (worker, day): create / update / delete /
  nothing, against the single normalized baseline note.

FAIL-CLOSED:
  An assignment with an empty worker id aborts the ENTIRE plan before any
  network call. No partial plan is ever returned alongside an error.
*/
package registry

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYLOAD TYPES
// =============================================================================

// ControlScheduleType is the record discriminator of the external API.
type ControlScheduleType int

const (
	TypeHourRecord ControlScheduleType = 1
	TypeDayNote    ControlScheduleType = 7
)

// PlanItem is one create/update/delete payload record. An empty ID signals
// "create new"; non-empty signals "update/delete existing by id".
type PlanItem struct {
	ID                  string              `json:"id"`
	DateTime            string              `json:"dateTime"`
	ParameterID         string              `json:"parameterId"`
	ControlScheduleType ControlScheduleType `json:"controlScheduleType"`
	Value               *string             `json:"value,omitempty"`
	CompanyID           string              `json:"companyId,omitempty"`
	WorkShifts          []WorkShift         `json:"workShifts"`

	// Key is a deterministic identity for this change (worker|day|type|company),
	// kept for stable ordering and safe-merge on resend. Not part of the wire
	// contract yet.
	Key string `json:"-"`
}

// WorkerBatch groups the items sent in one request for one worker.
type WorkerBatch struct {
	WorkerID   string
	WorkerName string
	Items      []PlanItem
}

// SavePlan is the full set of per-worker batches, ordered by worker id.
type SavePlan struct {
	Workers []WorkerBatch
}

// Empty reports whether the plan contains no items at all.
func (p *SavePlan) Empty() bool {
	for _, w := range p.Workers {
		if len(w.Items) > 0 {
			return false
		}
	}
	return true
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// CellKey identifies one (assignment, day) cell.
type CellKey struct {
	AssignmentID string
	DateKey      string
}

// NoteKey identifies one (worker, day) note slot.
type NoteKey struct {
	WorkerID string
	DateKey  string
}

// Baseline is the last-synchronized snapshot used for diffing.
type Baseline struct {
	Entries map[CellKey]ScheduleEntry
	Notes   map[NoteKey]NoteEntry
}

// Draft is the in-progress editable state.
type Draft struct {
	ManualHours map[CellKey]string
	Segments    map[CellKey][]HourSegment
	Notes       map[NoteKey]string
}

// NewBaseline builds an empty baseline.
func NewBaseline() *Baseline {
	return &Baseline{
		Entries: make(map[CellKey]ScheduleEntry),
		Notes:   make(map[NoteKey]NoteEntry),
	}
}

// NewDraft builds an empty draft.
func NewDraft() *Draft {
	return &Draft{
		ManualHours: make(map[CellKey]string),
		Segments:    make(map[CellKey][]HourSegment),
		Notes:       make(map[NoteKey]string),
	}
}

// BuildBaseline derives the baseline snapshot from tracked state: for every
// assignment/day, the tracked entry whose company matches the assignment
// (id precedence over name), and for every worker/day the note that applies
// to the assignment's company, company matches winning over day-level notes
// without one.
func BuildBaseline(assignments []Assignment, ctx *ResolutionContext, days []DayDescriptor) *Baseline {
	b := NewBaseline()
	for _, a := range assignments {
		company := BuildCompanyIdentity(a.CompanyID, a.CompanyName)
		for _, day := range days {
			data, ok := ctx.DayData(a.WorkerID, day.DateKey)
			if !ok {
				continue
			}
			for _, entry := range data.Entries {
				entryCompany := BuildCompanyIdentity(entry.CompanyID, "")
				if entryCompany.ID == company.ID || entryCompany.IsUnassigned() {
					b.Entries[CellKey{a.ID, day.DateKey}] = entry
					break
				}
			}
			noteKey := NoteKey{a.WorkerID, day.DateKey}
			if note, ok := baselineNote(a, data.NoteEntries); ok {
				existing, seen := b.Notes[noteKey]
				if !seen || BuildCompanyIdentity(existing.CompanyID, existing.CompanyName).IsUnassigned() {
					b.Notes[noteKey] = note
				}
			}
		}
	}
	return b
}

// baselineNote selects the tracked note applicable to the assignment: the
// first non-empty note tagged with the assignment's company wins; a note
// carrying no company applies to every assignment and serves as fallback.
func baselineNote(a Assignment, notes []NoteEntry) (NoteEntry, bool) {
	var fallback NoteEntry
	var haveFallback bool
	for _, note := range notes {
		if strings.TrimSpace(note.Text) == "" || !note.AppliesTo(a) {
			continue
		}
		if !BuildCompanyIdentity(note.CompanyID, note.CompanyName).IsUnassigned() {
			return note, true
		}
		if !haveFallback {
			fallback, haveFallback = note, true
		}
	}
	return fallback, haveFallback
}

// BuildDraft assembles the draft snapshot from the assignments' manual
// overrides plus the segment and note drafts held by the caller.
func BuildDraft(assignments []Assignment, segments map[CellKey][]HourSegment, notes map[NoteKey]string) *Draft {
	d := NewDraft()
	for _, a := range assignments {
		for dateKey, raw := range a.Hours {
			d.ManualHours[CellKey{a.ID, dateKey}] = raw
		}
	}
	for key, segs := range segments {
		d.Segments[key] = segs
	}
	for key, text := range notes {
		d.Notes[key] = text
	}
	return d
}

// =============================================================================
// SEGMENT HELPERS
// =============================================================================

// SegmentDuration computes the hours covered by one segment: end-start when
// both times parse (overnight wraps past midnight), else the user-entered
// total.
func SegmentDuration(s HourSegment) decimal.Decimal {
	start, err1 := time.Parse("15:04", s.Start)
	end, err2 := time.Parse("15:04", s.End)
	if err1 != nil || err2 != nil {
		return ClampHours(s.Total)
	}
	d := end.Sub(start)
	if d < 0 {
		d += 24 * time.Hour
	}
	return decimal.NewFromFloat(d.Hours())
}

// shiftPayload converts drafted segments to wire shifts, keeping only
// segments with both times set.
func shiftPayload(segments []HourSegment) []WorkShift {
	var shifts []WorkShift
	for _, s := range segments {
		if !s.Complete() {
			continue
		}
		shifts = append(shifts, WorkShift{
			Start:       s.Start,
			End:         s.End,
			Observation: strings.TrimSpace(s.Description),
		})
	}
	return shifts
}

// shiftsEqual is the structural shift-list equality: same count, and each
// (start, end, trimmed observation) equal pairwise in order.
func shiftsEqual(a, b []WorkShift) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Start != b[i].Start || a[i].End != b[i].End ||
			strings.TrimSpace(a[i].Observation) != strings.TrimSpace(b[i].Observation) {
			return false
		}
	}
	return true
}

func sumShiftDurations(shifts []WorkShift) decimal.Decimal {
	total := decimal.Zero
	for _, sh := range shifts {
		total = total.Add(SegmentDuration(HourSegment{Start: sh.Start, End: sh.End}))
	}
	return total
}

// =============================================================================
// DIFF
// =============================================================================

// Diff compares draft against baseline for the visible assignments/days and
// emits the minimal save plan. Returns ErrMissingParameterID (and no plan)
// if any assignment lacks a worker id.
func Diff(baseline *Baseline, draft *Draft, assignments []Assignment, days []DayDescriptor) (*SavePlan, error) {
	// Precondition sweep first: fail closed before emitting anything.
	for _, a := range assignments {
		if _, ok := NormalizeKey(a.WorkerID); !ok {
			return nil, fmt.Errorf("assignment %s (%s): %w", a.ID, a.CompanyName, ErrMissingParameterID)
		}
	}

	batches := make(map[string]*WorkerBatch)
	batch := func(a Assignment) *WorkerBatch {
		workerID, _ := NormalizeKey(a.WorkerID)
		wb, ok := batches[workerID]
		if !ok {
			wb = &WorkerBatch{WorkerID: workerID, WorkerName: a.WorkerName}
			batches[workerID] = wb
		}
		return wb
	}

	notesDone := make(map[NoteKey]bool)

	for _, a := range assignments {
		company := BuildCompanyIdentity(a.CompanyID, a.CompanyName)
		workerID, _ := NormalizeKey(a.WorkerID)

		for _, day := range days {
			cell := CellKey{a.ID, day.DateKey}
			if item, ok := diffCell(baseline, draft, cell, workerID, company, day.DateKey); ok {
				wb := batch(a)
				wb.Items = append(wb.Items, item)
			}

			noteKey := NoteKey{workerID, day.DateKey}
			if !notesDone[noteKey] {
				notesDone[noteKey] = true
				if item, ok := diffNote(baseline, draft, noteKey); ok {
					wb := batch(a)
					wb.Items = append(wb.Items, item)
				}
			}
		}
	}

	plan := &SavePlan{}
	for _, wb := range batches {
		// Hour records before note records, then by day, so the external
		// API applies each batch deterministically.
		sort.Slice(wb.Items, func(i, j int) bool {
			if wb.Items[i].ControlScheduleType != wb.Items[j].ControlScheduleType {
				return wb.Items[i].ControlScheduleType < wb.Items[j].ControlScheduleType
			}
			return wb.Items[i].Key < wb.Items[j].Key
		})
		plan.Workers = append(plan.Workers, *wb)
	}
	sort.Slice(plan.Workers, func(i, j int) bool {
		return plan.Workers[i].WorkerID < plan.Workers[j].WorkerID
	})
	return plan, nil
}

// diffCell applies the hour-record decision table to one cell.
func diffCell(baseline *Baseline, draft *Draft, cell CellKey, workerID string, company CompanyIdentity, dateKey string) (PlanItem, bool) {
	manualRaw, manualGiven := draft.ManualHours[cell]
	manualGiven = manualGiven && strings.TrimSpace(manualRaw) != ""
	manualHours := decimal.Zero
	if manualGiven {
		manualHours = ParseHour(manualRaw)
	}

	existing, hasExisting := baseline.Entries[cell]

	// A cell absent from the segment draft is untouched, not cleared:
	// untouched shifts compare equal to the baseline by definition.
	segments, segmentsTouched := draft.Segments[cell]
	newShifts := shiftPayload(segments)
	if !segmentsTouched {
		newShifts = existing.Shifts
	}

	item := PlanItem{
		DateTime:            DateTimeForKey(dateKey),
		ParameterID:         workerID,
		ControlScheduleType: TypeHourRecord,
		CompanyID:           company.ID,
		Key:                 fmt.Sprintf("%s|%s|hours|%s", workerID, dateKey, company.ID),
	}

	if !hasExisting {
		switch {
		case manualGiven && manualHours.IsPositive():
			item.Value = formatValue(manualHours)
			item.WorkShifts = newShifts
			return item, true
		case !manualGiven && len(newShifts) > 0:
			item.Value = formatValue(sumShiftDurations(newShifts))
			item.WorkShifts = newShifts
			return item, true
		}
		return PlanItem{}, false
	}

	item.ID = existing.ID
	shiftsChanged := !shiftsEqual(newShifts, existing.Shifts)

	// Soft delete: manual hours cleared to zero with no drafted segments.
	// An untouched segment draft counts as empty here: entering 0 means
	// "clear this cell", shifts included.
	cleared := manualGiven && !manualHours.IsPositive() &&
		(!segmentsTouched || len(newShifts) == 0)
	if cleared {
		item.Value = formatValue(decimal.Zero)
		item.WorkShifts = []WorkShift{}
		return item, true
	}

	valueChanged := manualGiven && !HoursEqual(manualHours, existing.Hours)
	switch {
	case valueChanged:
		item.Value = formatValue(manualHours)
		if shiftsChanged {
			item.WorkShifts = newShifts
		} else {
			item.WorkShifts = existing.Shifts
		}
		return item, true
	case shiftsChanged:
		item.WorkShifts = newShifts
		return item, true
	}
	return PlanItem{}, false
}

// diffNote applies the note decision table to one (worker, day).
func diffNote(baseline *Baseline, draft *Draft, key NoteKey) (PlanItem, bool) {
	existing, hasExisting := baseline.Notes[key]
	edited, hasEdited := draft.Notes[key]
	edited = strings.TrimSpace(edited)
	hasEdited = hasEdited && edited != ""

	item := PlanItem{
		DateTime:            DateTimeForKey(key.DateKey),
		ParameterID:         key.WorkerID,
		ControlScheduleType: TypeDayNote,
		Key:                 fmt.Sprintf("%s|%s|note", key.WorkerID, key.DateKey),
	}

	switch {
	case !hasExisting && hasEdited:
		item.Value = &edited
		return item, true
	case hasExisting && hasEdited && strings.TrimSpace(existing.Text) != edited:
		item.ID = existing.ID
		item.Value = &edited
		return item, true
	case hasExisting && !hasEdited:
		// Delete only when the caller explicitly drafted an empty text;
		// an untouched note slot is not a deletion.
		if _, touched := draft.Notes[key]; touched {
			item.ID = existing.ID
			empty := ""
			item.Value = &empty
			return item, true
		}
	}
	return PlanItem{}, false
}

// formatValue renders a wire value: dot separator, two decimals at most.
func formatValue(d decimal.Decimal) *string {
	s := d.Round(2).String()
	return &s
}
