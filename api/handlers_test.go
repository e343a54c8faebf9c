/*
handlers_test.go - Unit tests for API handlers

Tests the HTTP surface end to end against an in-memory store and a stub
control-schedule server: assignments, distribution, sync, save, export.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/hours-engine/registry"
	"github.com/warp/hours-engine/schedule"
	"github.com/warp/hours-engine/store/sqlite"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestAPI(t *testing.T, upstreamURL string) (*Handler, http.Handler) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h, err := NewHandler(store, schedule.New(upstreamURL, ""))
	require.NoError(t, err)
	return h, NewRouter(h)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createAssignment(t *testing.T, router http.Handler, workerID, workerName, companyID, companyName string) registry.Assignment {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/assignments", CreateAssignmentRequest{
		WorkerID: workerID, WorkerName: workerName,
		CompanyID: companyID, CompanyName: companyName,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var a registry.Assignment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	return a
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func TestCreateAssignment_HTTP(t *testing.T) {
	_, router := newTestAPI(t, "http://unused")

	a := createAssignment(t, router, "w1", "Ana", "", "Construcciones López")
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "construcciones-lopez", a.CompanyID)

	// Missing worker id is rejected before touching the store.
	rec := doJSON(t, router, http.MethodPost, "/api/assignments", CreateAssignmentRequest{
		WorkerID: "  ", CompanyName: "Acme",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAssignment_HTTP(t *testing.T) {
	_, router := newTestAPI(t, "http://unused")
	a := createAssignment(t, router, "w1", "Ana", "c1", "Acme")

	rec := doJSON(t, router, http.MethodGet, "/api/assignments/"+a.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got registry.Assignment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, a.ID, got.ID)

	rec = doJSON(t, router, http.MethodGet, "/api/assignments/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAssignments_ResolvesOpaqueLabels(t *testing.T) {
	var gotIDs []string
	upstream := stubUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/parameters/labels", r.URL.Path)
		var req map[string][]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotIDs = req["ids"]
		w.Write([]byte(`{"8f14e45f-ceea-467f-9ff0-9b1dcb8ba7a1": "Ana García", "123456": "Acme S.L."}`))
	})

	_, router := newTestAPI(t, upstream.URL)
	createAssignment(t, router, "8f14e45f-ceea-467f-9ff0-9b1dcb8ba7a1", "", "c1", "123456")

	rec := doJSON(t, router, http.MethodGet, "/api/assignments", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.ElementsMatch(t, []string{"8f14e45f-ceea-467f-9ff0-9b1dcb8ba7a1", "123456"}, gotIDs,
		"one batched lookup covering every opaque token")

	var list []registry.Assignment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Ana García", list[0].WorkerName, "nameless worker resolves via its id")
	assert.Equal(t, "Acme S.L.", list[0].CompanyName)
}

func TestListAssignments_LabelLookupFailureIsNonFatal(t *testing.T) {
	upstream := stubUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, router := newTestAPI(t, upstream.URL)
	createAssignment(t, router, "123456", "", "c1", "Acme")

	rec := doJSON(t, router, http.MethodGet, "/api/assignments", nil)
	require.Equal(t, http.StatusOK, rec.Code, "raw tokens still render when the lookup fails")

	var list []registry.Assignment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "", list[0].WorkerName)
	assert.Equal(t, "Acme", list[0].CompanyName)
}

func TestManualHours_HTTPRoundTrip(t *testing.T) {
	_, router := newTestAPI(t, "http://unused")
	a := createAssignment(t, router, "w1", "Ana", "c1", "Acme")

	rec := doJSON(t, router, http.MethodPut, "/api/assignments/"+a.ID+"/hours/2024-03-04", SetHoursRequest{Value: "3,5"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/api/assignments/"+a.ID+"/hours/04-03-2024", SetHoursRequest{Value: "3,5"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "malformed date key")

	rec = doJSON(t, router, http.MethodGet, "/api/assignments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []registry.Assignment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "3,5", list[0].Hours["2024-03-04"])

	rec = doJSON(t, router, http.MethodDelete, "/api/assignments/"+a.ID+"/hours/2024-03-04", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/assignments", nil)
	// Decode into a fresh slice: reusing the populated one would merge the
	// old Hours map into the new value and mask the deletion.
	var after []registry.Assignment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &after))
	require.Len(t, after, 1)
	assert.Empty(t, after[0].Hours)
}

// =============================================================================
// TOTALS
// =============================================================================

func TestGetTotals_HTTP(t *testing.T) {
	_, router := newTestAPI(t, "http://unused")
	a1 := createAssignment(t, router, "w1", "Ana", "c1", "Acme")
	a2 := createAssignment(t, router, "w1", "Ana", "c2", "Beta")

	doJSON(t, router, http.MethodPut, "/api/assignments/"+a1.ID+"/hours/2024-03-04", SetHoursRequest{Value: "4"})
	doJSON(t, router, http.MethodPut, "/api/assignments/"+a2.ID+"/hours/2024-03-05", SetHoursRequest{Value: "3,5"})

	rec := doJSON(t, router, http.MethodGet, "/api/totals?from=2024-03-04&to=2024-03-10", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp TotalsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Days, 7)
	assert.True(t, resp.PerDay["2024-03-04"].Equal(dec("4")))
	assert.True(t, resp.PerDay["2024-03-06"].IsZero(), "empty days are present and zero")
	assert.True(t, resp.Grand.Equal(dec("7.5")))
	assert.True(t, resp.PerRow[a1.ID].Equal(dec("4")))
	require.Len(t, resp.ByWorker, 1)
	assert.True(t, resp.ByWorker[0].Totals["2024-03-05"].Equal(dec("3.5")))

	rec = doJSON(t, router, http.MethodGet, "/api/totals?from=bad&to=2024-03-10", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// DISTRIBUTION
// =============================================================================

func TestDistribute_HTTP(t *testing.T) {
	_, router := newTestAPI(t, "http://unused")
	a1 := createAssignment(t, router, "w1", "Ana", "c1", "Acme")
	a2 := createAssignment(t, router, "w1", "Ana", "c2", "Beta")

	rec := doJSON(t, router, http.MethodPost, "/api/distribute", registry.DistributionInput{
		DayKey: "2024-03-04",
		Mode:   registry.ModeHours,
		Total:  dec("7.5"),
		Rows: []registry.DistributionRow{
			{AssignmentID: a1.ID, Entered: "4"},
			{AssignmentID: a2.ID, Entered: "3,5"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The applied values are persisted as formatted overrides.
	rec = doJSON(t, router, http.MethodGet, "/api/assignments", nil)
	var list []registry.Assignment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	byID := map[string]registry.Assignment{}
	for _, a := range list {
		byID[a.ID] = a
	}
	assert.Equal(t, "4", byID[a1.ID].Hours["2024-03-04"])
	assert.Equal(t, "3,5", byID[a2.ID].Hours["2024-03-04"])
}

func TestDistribute_HTTPValidationFailure(t *testing.T) {
	_, router := newTestAPI(t, "http://unused")
	a1 := createAssignment(t, router, "w1", "Ana", "c1", "Acme")
	a2 := createAssignment(t, router, "w1", "Ana", "c2", "Beta")

	rec := doJSON(t, router, http.MethodPost, "/api/distribute", registry.DistributionInput{
		DayKey: "2024-03-04",
		Mode:   registry.ModeHours,
		Total:  dec("10"),
		Rows: []registry.DistributionRow{
			{AssignmentID: a1.ID, Entered: "4"},
			{AssignmentID: a2.ID, Entered: "4"},
		},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sum_mismatch", resp.Code)
	assert.Contains(t, resp.Error, "Faltan 2 horas")
	assert.Equal(t, "-2", resp.Difference)

	// Nothing was persisted.
	rec = doJSON(t, router, http.MethodGet, "/api/assignments", nil)
	var list []registry.Assignment
	json.Unmarshal(rec.Body.Bytes(), &list)
	for _, a := range list {
		assert.Empty(t, a.Hours)
	}
}

// =============================================================================
// SYNC
// =============================================================================

func stubUpstream(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestSync_HTTPPartialFailure(t *testing.T) {
	upstream := stubUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("parameterId") == "w2" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{
			"hoursByDate": {
				"2024-03-04": {
					"totalHours": 8,
					"companies": [{"companyId": "c1", "name": "Acme", "hours": 8}],
					"entries": [{"id": "e1", "companyId": "c1", "hours": 8}]
				}
			}
		}`))
	})

	h, router := newTestAPI(t, upstream.URL)
	createAssignment(t, router, "w1", "Ana", "c1", "Acme")

	rec := doJSON(t, router, http.MethodPost, "/api/sync", SyncRequest{
		Workers: []SyncWorker{{ID: "w1", Name: "Ana"}, {ID: "w2", Name: "Luis"}},
		From:    "2024-03-04",
		To:      "2024-03-10",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SyncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"w1"}, resp.Synced)
	assert.Equal(t, []string{"Luis"}, resp.Failed)
	assert.Contains(t, resp.Warning, "no se pudieron cargar las horas de: Luis")

	// The tracked snapshot now feeds the totals.
	rec = doJSON(t, router, http.MethodGet, "/api/totals?from=2024-03-04&to=2024-03-10", nil)
	var totals TotalsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &totals))
	assert.True(t, totals.PerDay["2024-03-04"].Equal(dec("8")))

	// And it survives a restart via the persisted baselines.
	h2, err := NewHandler(h.Store, h.Client)
	require.NoError(t, err)
	week, ok := h2.trackedSnapshot().WeekData["w1"]
	require.True(t, ok)
	assert.True(t, week.Days["2024-03-04"].TotalHours.Equal(dec("8")))
}

func TestSync_HTTPRejectsEmptyWorkerSet(t *testing.T) {
	_, router := newTestAPI(t, "http://unused")
	rec := doJSON(t, router, http.MethodPost, "/api/sync", SyncRequest{
		From: "2024-03-04", To: "2024-03-10",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// SAVE
// =============================================================================

func TestSave_HTTPFullSuccess(t *testing.T) {
	var captured [][]registry.PlanItem
	upstream := stubUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/controlSchedule/save" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var items []registry.PlanItem
		require.NoError(t, json.NewDecoder(r.Body).Decode(&items))
		captured = append(captured, items)
	})

	h, router := newTestAPI(t, upstream.URL)
	a := createAssignment(t, router, "w1", "Ana", "c1", "Acme")
	doJSON(t, router, http.MethodPut, "/api/assignments/"+a.ID+"/hours/2024-03-04", SetHoursRequest{Value: "4"})
	doJSON(t, router, http.MethodPut, "/api/workers/w1/notes/2024-03-04", SetNoteRequest{Text: "llega tarde"})
	// A note drafted outside the saved range is never sent and must survive.
	doJSON(t, router, http.MethodPut, "/api/workers/w1/notes/2024-03-15", SetNoteRequest{Text: "semana siguiente"})

	rec := doJSON(t, router, http.MethodPost, "/api/save", RangeRequest{From: "2024-03-04", To: "2024-03-10"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SaveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Planned)
	assert.Equal(t, []string{"w1"}, resp.SavedWorkers)

	require.Len(t, captured, 1)
	items := captured[0]
	require.Len(t, items, 2)
	assert.Equal(t, registry.TypeHourRecord, items[0].ControlScheduleType)
	require.NotNil(t, items[0].Value)
	assert.Equal(t, "4", *items[0].Value)
	assert.Equal(t, registry.TypeDayNote, items[1].ControlScheduleType)
	assert.Equal(t, "llega tarde", *items[1].Value)

	// Drafts covered by the save are cleared; the out-of-range one stays.
	notes, err := h.Store.NoteDrafts(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, notes, registry.NoteKey{WorkerID: "w1", DateKey: "2024-03-04"})
	assert.Equal(t, "semana siguiente", notes[registry.NoteKey{WorkerID: "w1", DateKey: "2024-03-15"}])
}

func TestSave_HTTPEmptyPlan(t *testing.T) {
	_, router := newTestAPI(t, "http://unused") // must not be dialed
	createAssignment(t, router, "w1", "Ana", "c1", "Acme")

	rec := doJSON(t, router, http.MethodPost, "/api/save", RangeRequest{From: "2024-03-04", To: "2024-03-10"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SaveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.Planned)
	assert.Empty(t, resp.SavedWorkers)
}

func TestSave_HTTPUpstreamFailureKeepsDrafts(t *testing.T) {
	upstream := stubUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message": "horas fuera de rango"}`))
	})

	h, router := newTestAPI(t, upstream.URL)
	a := createAssignment(t, router, "w1", "Ana", "c1", "Acme")
	doJSON(t, router, http.MethodPut, "/api/assignments/"+a.ID+"/hours/2024-03-04", SetHoursRequest{Value: "4"})
	doJSON(t, router, http.MethodPut, "/api/workers/w1/notes/2024-03-04", SetNoteRequest{Text: "nota"})

	rec := doJSON(t, router, http.MethodPost, "/api/save", RangeRequest{From: "2024-03-04", To: "2024-03-10"})
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "error guardando Ana")
	assert.Contains(t, resp.Error, "horas fuera de rango")

	// Drafts stay: the next save re-diffs and resends.
	notes, err := h.Store.NoteDrafts(context.Background())
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

// =============================================================================
// EXPORT
// =============================================================================

func TestExport_HTTP(t *testing.T) {
	_, router := newTestAPI(t, "http://unused")
	a := createAssignment(t, router, "w1", "Ana", "c1", "Acme")
	doJSON(t, router, http.MethodPut, "/api/assignments/"+a.ID+"/hours/2024-03-04", SetHoursRequest{Value: "8"})
	doJSON(t, router, http.MethodPut, "/api/companies/c1/rate", SetRateRequest{Rate: dec("20")})

	rec := doJSON(t, router, http.MethodGet, "/api/export?from=2024-03-04&to=2024-03-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "horas_2024-03-04_2024-03-10.xlsx")
	assert.NotZero(t, rec.Body.Len())
}
