/*
handlers.go - HTTP API handlers for the hours registry

PURPOSE:
  Exposes the reconciliation engine via REST. Handles HTTP
  request/response, JSON serialization, and delegates to the registry,
  schedule and export packages.

ENDPOINTS:
  Assignments:
    GET    /api/assignments                    List assignments + overrides
    POST   /api/assignments                    Create assignment
    GET    /api/assignments/{id}               Get one assignment
    PUT    /api/assignments/{id}/hours/{date}  Set manual override
    DELETE /api/assignments/{id}/hours/{date}  Clear manual override
    PUT    /api/assignments/{id}/segments/{date} Replace segment draft

  Workers:
    PUT    /api/workers/{id}/notes/{date}      Set note draft

  Companies:
    PUT    /api/companies/{id}/rate            Set hourly rate (export)

  Engine:
    GET    /api/totals?from=&to=               Row/day/grand totals + groups
    POST   /api/distribute                     Validate + apply distribution
    POST   /api/sync                           Fetch tracked summaries
    POST   /api/save                           Diff + sequential batch save
    GET    /api/export?from=&to=               XLSX workbook

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input (bad dates, bad body)
  - 404: Unknown assignment
  - 422: Engine validation failures (distribution, missing worker id)
  - 502: Upstream control-schedule failures

STATE:
  The handler keeps the tracked-data snapshot (ResolutionContext) in
  memory, loaded from the persisted baselines at startup and replaced
  wholesale on every successful sync. A new sync cancels the previous
  in-flight one, so a stale response can never overwrite newer state.
*/
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/hours-engine/export"
	"github.com/warp/hours-engine/registry"
	"github.com/warp/hours-engine/schedule"
	"github.com/warp/hours-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Client *schedule.Client

	mu         sync.Mutex
	tracked    *registry.ResolutionContext
	syncCancel context.CancelFunc
}

// NewHandler creates a handler and warms the tracked snapshot from the
// persisted baselines.
func NewHandler(store *sqlite.Store, client *schedule.Client) (*Handler, error) {
	h := &Handler{Store: store, Client: client, tracked: registry.NewResolutionContext()}

	weeks, err := store.LoadBaselines(context.Background())
	if err != nil {
		return nil, fmt.Errorf("loading baselines: %w", err)
	}
	h.tracked = &registry.ResolutionContext{WeekData: weeks}
	return h, nil
}

// trackedSnapshot returns the current tracked context. The context value is
// replaced, never mutated, so a snapshot stays consistent for the whole
// request even while a sync completes concurrently.
func (h *Handler) trackedSnapshot() *registry.ResolutionContext {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tracked
}

func (h *Handler) replaceTracked(updates map[string]registry.WorkerWeekData) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := make(map[string]registry.WorkerWeekData, len(h.tracked.WeekData)+len(updates))
	for id, week := range h.tracked.WeekData {
		next[id] = week
	}
	for id, week := range updates {
		next[id] = week
	}
	h.tracked = &registry.ResolutionContext{WeekData: next}
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

// ListAssignments returns all assignments with their manual overrides.
// Opaque worker/company tokens (UUIDs, numeric ids) are resolved to display
// labels through the upstream parameter lookup; a failed lookup leaves the
// raw tokens in place.
func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.Store.ListAssignments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "No se pudieron cargar las asignaciones", err)
		return
	}
	if assignments == nil {
		assignments = []registry.Assignment{}
	}
	h.resolveOpaqueLabels(r.Context(), assignments)
	writeJSON(w, http.StatusOK, assignments)
}

// resolveOpaqueLabels replaces machine-id display tokens with labels from
// one batched parameter lookup. Best effort: on lookup failure the raw
// tokens still render.
func (h *Handler) resolveOpaqueLabels(ctx context.Context, assignments []registry.Assignment) {
	var ids []string
	seen := make(map[string]bool)
	collect := func(token string) {
		if !registry.LooksOpaque(token) {
			return
		}
		key := strings.ToLower(strings.TrimSpace(token))
		if !seen[key] {
			seen[key] = true
			ids = append(ids, token)
		}
	}
	for _, a := range assignments {
		worker := a.WorkerName
		if worker == "" {
			worker = a.WorkerID
		}
		collect(worker)
		collect(a.CompanyName)
	}
	if len(ids) == 0 {
		return
	}

	labels, err := h.Client.LookupParameterLabels(ctx, ids)
	if err != nil {
		return
	}
	for i := range assignments {
		worker := assignments[i].WorkerName
		if worker == "" {
			worker = assignments[i].WorkerID
		}
		assignments[i].WorkerName = registry.ResolveDisplayLabel(worker, labels)
		assignments[i].CompanyName = registry.ResolveDisplayLabel(assignments[i].CompanyName, labels)
	}
}

// GetAssignment returns one assignment by id.
func (h *Handler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := h.Store.GetAssignment(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "Asignación no encontrada", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "No se pudo cargar la asignación", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// CreateAssignment creates a worker/company pairing.
func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req CreateAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo de petición inválido", err)
		return
	}
	if _, ok := registry.NormalizeKey(req.WorkerID); !ok {
		writeError(w, http.StatusBadRequest, "workerId es obligatorio", nil)
		return
	}

	a, err := h.Store.CreateAssignment(r.Context(), registry.Assignment{
		WorkerID:    req.WorkerID,
		WorkerName:  req.WorkerName,
		CompanyID:   req.CompanyID,
		CompanyName: req.CompanyName,
		Hours:       map[string]string{},
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "No se pudo crear la asignación", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// SetManualHours sets a manual override for one cell.
func (h *Handler) SetManualHours(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dateKey := chi.URLParam(r, "date")
	if _, err := registry.ParseDateKey(dateKey); err != nil {
		writeError(w, http.StatusBadRequest, "Fecha inválida (usa YYYY-MM-DD)", err)
		return
	}

	var req SetHoursRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo de petición inválido", err)
		return
	}
	if err := h.Store.SetManualHours(r.Context(), id, dateKey, req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, "No se pudo guardar el valor", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearManualHours removes a manual override.
func (h *Handler) ClearManualHours(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dateKey := chi.URLParam(r, "date")
	if err := h.Store.SetManualHours(r.Context(), id, dateKey, ""); err != nil {
		writeError(w, http.StatusInternalServerError, "No se pudo borrar el valor", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetSegments replaces the drafted shift segments for one cell.
func (h *Handler) SetSegments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dateKey := chi.URLParam(r, "date")
	if _, err := registry.ParseDateKey(dateKey); err != nil {
		writeError(w, http.StatusBadRequest, "Fecha inválida (usa YYYY-MM-DD)", err)
		return
	}

	var req SetSegmentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo de petición inválido", err)
		return
	}
	if err := h.Store.SetSegmentDraft(r.Context(), id, dateKey, req.Segments); err != nil {
		writeError(w, http.StatusInternalServerError, "No se pudieron guardar los tramos", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetNote sets the note draft for a worker/day.
func (h *Handler) SetNote(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "id")
	dateKey := chi.URLParam(r, "date")

	var req SetNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo de petición inválido", err)
		return
	}
	if err := h.Store.SetNoteDraft(r.Context(), workerID, dateKey, req.Text); err != nil {
		writeError(w, http.StatusInternalServerError, "No se pudo guardar la nota", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetCompanyRate sets a company's hourly rate for the export surface.
func (h *Handler) SetCompanyRate(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "id")

	var req SetRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo de petición inválido", err)
		return
	}
	identity := registry.BuildCompanyIdentity(companyID, "")
	if err := h.Store.SetCompanyRate(r.Context(), identity.ID, req.Rate); err != nil {
		writeError(w, http.StatusInternalServerError, "No se pudo guardar la tarifa", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TOTALS
// =============================================================================

// GetTotals computes every aggregate for the requested range.
func (h *Handler) GetTotals(w http.ResponseWriter, r *http.Request) {
	days, ok := h.parseRange(w, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if !ok {
		return
	}

	assignments, err := h.Store.ListAssignments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "No se pudieron cargar las asignaciones", err)
		return
	}

	tracked := h.trackedSnapshot()
	perDay := registry.DayTotals(assignments, tracked, days)

	writeJSON(w, http.StatusOK, TotalsResponse{
		Days:      days,
		PerDay:    perDay,
		PerRow:    rowTotalsFor(assignments, tracked, days),
		Grand:     registry.GrandTotal(perDay),
		ByWorker:  registry.GroupByWorker(assignments, tracked, days),
		ByCompany: registry.GroupByCompany(assignments, tracked, days),
	})
}

// =============================================================================
// DISTRIBUTION
// =============================================================================

// Distribute validates a bulk distribution and applies it to the
// manual-hours maps for the target day.
func (h *Handler) Distribute(w http.ResponseWriter, r *http.Request) {
	var in registry.DistributionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo de petición inválido", err)
		return
	}
	if _, err := registry.ParseDateKey(in.DayKey); err != nil {
		writeError(w, http.StatusBadRequest, "Fecha inválida (usa YYYY-MM-DD)", err)
		return
	}

	result, err := registry.Apply(in)
	if err != nil {
		var verr *registry.DistributionError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
				Error:      verr.Message,
				Code:       string(verr.Code),
				Difference: verr.Difference.String(),
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "No se pudo aplicar el reparto", err)
		return
	}

	updates := make(map[registry.CellKey]string, len(result.Updates))
	for assignmentID, value := range result.Updates {
		updates[registry.CellKey{AssignmentID: assignmentID, DateKey: result.DayKey}] = registry.FormatHours(value)
	}
	if err := h.Store.ApplyManualHours(r.Context(), updates); err != nil {
		writeError(w, http.StatusInternalServerError, "No se pudo aplicar el reparto", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// SYNC - Tracked data fetch
// =============================================================================

// Sync fetches tracked summaries for the requested workers and range,
// cancelling any previous in-flight sync. Per-worker failures do not block
// the others: successes are committed and the failures are aggregated into
// a warning.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo de petición inválido", err)
		return
	}
	from, err := registry.ParseDateKey(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Fecha 'from' inválida", err)
		return
	}
	to, err := registry.ParseDateKey(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Fecha 'to' inválida", err)
		return
	}
	if len(req.Workers) == 0 {
		writeError(w, http.StatusBadRequest, "Selecciona al menos un trabajador", nil)
		return
	}

	// Changing the worker set or range invalidates the previous sync.
	h.mu.Lock()
	if h.syncCancel != nil {
		h.syncCancel()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	h.syncCancel = cancel
	h.mu.Unlock()
	defer cancel()

	reqs := make([]schedule.SummaryRequest, 0, len(req.Workers))
	for _, worker := range req.Workers {
		reqs = append(reqs, schedule.SummaryRequest{
			WorkerID:     worker.ID,
			WorkerName:   worker.Name,
			From:         from,
			To:           to,
			IncludeNotes: req.IncludeNotes,
		})
	}

	results, fetchErr := h.Client.FetchSummaries(ctx, reqs)
	if ctx.Err() != nil {
		// A newer sync superseded this one; its results must not land.
		writeError(w, http.StatusConflict, "Sincronización cancelada por una petición más reciente", ctx.Err())
		return
	}

	for workerID, week := range results {
		if err := h.Store.SaveBaseline(r.Context(), workerID, week); err != nil {
			writeError(w, http.StatusInternalServerError, "No se pudo guardar la línea base", err)
			return
		}
	}
	h.replaceTracked(results)

	resp := SyncResponse{}
	for workerID := range results {
		resp.Synced = append(resp.Synced, workerID)
	}
	var ferr *schedule.FetchError
	if errors.As(fetchErr, &ferr) {
		resp.Failed = ferr.WorkerNames
		resp.Warning = ferr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// SAVE - Diff and sequential send
// =============================================================================

// Save diffs the draft state against the baseline for the requested range
// and sends the resulting plan one worker at a time. Nothing already sent
// is rolled back on failure; the next save re-diffs from the refreshed
// baseline.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	var req RangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo de petición inválido", err)
		return
	}
	days, ok := h.parseRange(w, req.From, req.To)
	if !ok {
		return
	}

	assignments, err := h.Store.ListAssignments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "No se pudieron cargar las asignaciones", err)
		return
	}
	segments, err := h.Store.SegmentDrafts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "No se pudieron cargar los tramos", err)
		return
	}
	notes, err := h.Store.NoteDrafts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "No se pudieron cargar las notas", err)
		return
	}

	tracked := h.trackedSnapshot()
	baseline := registry.BuildBaseline(assignments, tracked, days)
	draft := registry.BuildDraft(assignments, segments, notes)

	plan, err := registry.Diff(baseline, draft, assignments, days)
	if err != nil {
		if errors.Is(err, registry.ErrMissingParameterID) {
			writeError(w, http.StatusUnprocessableEntity, err.Error(), nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "No se pudo calcular el guardado", err)
		return
	}

	planned := 0
	for _, batch := range plan.Workers {
		planned += len(batch.Items)
	}
	if plan.Empty() {
		writeJSON(w, http.StatusOK, SaveResponse{Planned: 0, SavedWorkers: []string{}})
		return
	}

	saved, sendErr := h.Client.SaveWorkerBatches(r.Context(), plan)
	if sendErr != nil {
		// Committed batches stay committed upstream; the client baseline is
		// NOT refreshed, so the next save re-diffs and may resend them.
		var serr *schedule.SaveError
		if errors.As(sendErr, &serr) {
			writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: serr.Error()})
			return
		}
		writeError(w, http.StatusBadGateway, "Error al guardar", sendErr)
		return
	}

	// Full success: clear the drafts that are now upstream truth, scoped to
	// the saved range. Drafts outside it were never sent and must survive.
	// The baseline itself refreshes on the next sync.
	dateKeys := make([]string, 0, len(days))
	for _, day := range days {
		dateKeys = append(dateKeys, day.DateKey)
	}
	if err := h.Store.ClearNoteDrafts(r.Context(), saved, dateKeys); err != nil {
		writeError(w, http.StatusInternalServerError, "Guardado completado pero no se pudieron limpiar las notas", err)
		return
	}
	assignmentIDs := make([]string, 0, len(assignments))
	for _, a := range assignments {
		assignmentIDs = append(assignmentIDs, a.ID)
	}
	if err := h.Store.ClearSegmentDrafts(r.Context(), assignmentIDs, dateKeys); err != nil {
		writeError(w, http.StatusInternalServerError, "Guardado completado pero no se pudieron limpiar los tramos", err)
		return
	}

	writeJSON(w, http.StatusOK, SaveResponse{Planned: planned, SavedWorkers: saved})
}

// =============================================================================
// EXPORT
// =============================================================================

// Export streams the XLSX workbook for the requested range.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	days, ok := h.parseRange(w, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if !ok {
		return
	}

	assignments, err := h.Store.ListAssignments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "No se pudieron cargar las asignaciones", err)
		return
	}
	rates, err := h.Store.CompanyRates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "No se pudieron cargar las tarifas", err)
		return
	}

	workbook, err := export.BuildWorkbook(export.Input{
		Assignments: assignments,
		Context:     h.trackedSnapshot(),
		Days:        days,
		Rates:       rates,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "No se pudo generar el fichero", err)
		return
	}

	filename := fmt.Sprintf("horas_%s_%s.xlsx", days[0].DateKey, days[len(days)-1].DateKey)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
	if _, err := workbook.WriteTo(w); err != nil {
		// Headers are already out; nothing more to report to the client.
		return
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// rowTotalsFor computes the per-assignment totals map for the response.
func rowTotalsFor(assignments []registry.Assignment, tracked *registry.ResolutionContext, days []registry.DayDescriptor) map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal, len(assignments))
	for _, a := range assignments {
		totals[a.ID] = registry.RowTotal(a, tracked, days)
	}
	return totals
}

func (h *Handler) parseRange(w http.ResponseWriter, fromKey, toKey string) ([]registry.DayDescriptor, bool) {
	from, err := registry.ParseDateKey(fromKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Fecha 'from' inválida (usa YYYY-MM-DD)", err)
		return nil, false
	}
	to, err := registry.ParseDateKey(toKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Fecha 'to' inválida (usa YYYY-MM-DD)", err)
		return nil, false
	}
	return registry.BuildDayDescriptors(from, to), true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		message = fmt.Sprintf("%s: %v", message, err)
	}
	writeJSON(w, status, ErrorResponse{Error: message})
}
