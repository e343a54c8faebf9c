/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/hours-engine/registry"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// CreateAssignmentRequest is the request to create a worker/company pairing.
type CreateAssignmentRequest struct {
	WorkerID    string `json:"workerId"`
	WorkerName  string `json:"workerName"`
	CompanyID   string `json:"companyId"`
	CompanyName string `json:"companyName"`
}

// SetHoursRequest sets or clears a manual hour override.
type SetHoursRequest struct {
	Value string `json:"value"`
}

// SetNoteRequest sets the note draft for a worker/day.
type SetNoteRequest struct {
	Text string `json:"text"`
}

// SetSegmentsRequest replaces the drafted shift segments for one cell.
type SetSegmentsRequest struct {
	Segments []registry.HourSegment `json:"segments"`
}

// SetRateRequest sets a company's hourly rate for the export surface.
type SetRateRequest struct {
	Rate decimal.Decimal `json:"rate"`
}

// SyncRequest fetches tracked summaries for a set of workers and a range.
type SyncRequest struct {
	Workers      []SyncWorker `json:"workers"`
	From         string       `json:"from"`
	To           string       `json:"to"`
	IncludeNotes bool         `json:"includeNotes"`
}

// SyncWorker identifies one worker to fetch.
type SyncWorker struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SyncResponse reports which workers synced and which failed. Warning is
// the aggregated user-visible message when some (but not all) fetches
// failed.
type SyncResponse struct {
	Synced  []string `json:"synced"`
	Failed  []string `json:"failed,omitempty"`
	Warning string   `json:"warning,omitempty"`
}

// RangeRequest carries a date range for save/totals operations.
type RangeRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// TotalsResponse carries every aggregate for the requested range. PerDay
// holds one entry per day descriptor, zero-filled.
type TotalsResponse struct {
	Days      []registry.DayDescriptor   `json:"days"`
	PerDay    map[string]decimal.Decimal `json:"perDay"`
	PerRow    map[string]decimal.Decimal `json:"perRow"`
	Grand     decimal.Decimal            `json:"grand"`
	ByWorker  []registry.GroupView       `json:"byWorker"`
	ByCompany []registry.GroupView       `json:"byCompany"`
}

// SaveResponse reports the outcome of a save: how many items were planned,
// and which workers were committed before a failure (if any).
type SaveResponse struct {
	Planned      int      `json:"planned"`
	SavedWorkers []string `json:"savedWorkers"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	Difference string `json:"difference,omitempty"`
}
