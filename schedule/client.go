/*
Package schedule is the client for the external control-schedule API.

PURPOSE:
  The engine treats the external system as a collaborator: this package
  owns transport, payload shapes and error surfacing, so the registry
  package stays pure.

OPERATIONS:
  FetchWorkerSummary   - tracked hours/shifts/notes for one worker/range
  FetchSummaries       - fan-out over N workers with all-settled semantics
  SaveWorkerBatches    - sequential per-worker POSTs, abort on first failure
  LookupParameterLabels - batch opaque-id -> display-label resolution

FAILURE MODEL:
  Fetch failures are isolated per worker and aggregated (*FetchError): one
  worker failing never blocks the others' results. Save failures are fatal
  for the remainder of the batch (*SaveError); entries already accepted by
  the server are NOT rolled back - the next save re-diffs from the
  refreshed baseline. Server error bodies are surfaced verbatim, parsed
  from the JSON message/error/title/detail fields when present.

CANCELLATION:
  Every operation takes a context. The caller cancels the previous sync's
  context when the worker set or range changes, so a stale response can
  never overwrite newer state.
*/
package schedule

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/hours-engine/registry"
)

// Client talks to the control-schedule API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// New creates a client with a sane default timeout.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// =============================================================================
// ERRORS
// =============================================================================

// FetchError aggregates per-worker fetch failures. Successful workers'
// data is still returned alongside it.
type FetchError struct {
	WorkerNames []string
	Errs        []error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("no se pudieron cargar las horas de: %s", strings.Join(e.WorkerNames, ", "))
}

// SaveError is a fatal save failure carrying the server's message verbatim
// and the worker whose batch failed. Err holds the underlying transport
// error when the POST never reached the server, so errors.Is can see
// context cancellation and friends through the wrapper.
type SaveError struct {
	WorkerID   string
	WorkerName string
	StatusCode int
	Message    string
	Err        error
}

func (e *SaveError) Error() string {
	if e.WorkerName != "" {
		return fmt.Sprintf("error guardando %s: %s", e.WorkerName, e.Message)
	}
	return e.Message
}

func (e *SaveError) Unwrap() error { return e.Err }

// serverMessage extracts a human-readable message from an error response
// body: JSON message/error/title/detail fields first, raw text otherwise.
func serverMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, field := range []string{"message", "error", "title", "detail"} {
			if v, ok := payload[field].(string); ok && v != "" {
				return v
			}
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "error desconocido del servidor"
	}
	return text
}

// =============================================================================
// SUMMARY FETCH
// =============================================================================

// SummaryRequest asks for one worker's tracked data over a range.
type SummaryRequest struct {
	WorkerID     string
	WorkerName   string
	From, To     time.Time
	IncludeNotes bool
}

// summaryResponse is the wire shape of the summary endpoint.
type summaryResponse struct {
	HoursByDate map[string]summaryDay `json:"hoursByDate"`
}

type summaryDay struct {
	TotalHours decimalString            `json:"totalHours"`
	Companies  []summaryCompany         `json:"companies"`
	Entries    []registry.ScheduleEntry `json:"entries"`
	Notes      []registry.NoteEntry     `json:"noteEntries"`
}

type summaryCompany struct {
	CompanyID string        `json:"companyId"`
	Name      string        `json:"name"`
	Hours     decimalString `json:"hours"`
}

// FetchWorkerSummary fetches tracked data for one worker and converts it to
// the engine's tracked representation.
func (c *Client) FetchWorkerSummary(ctx context.Context, req SummaryRequest) (registry.WorkerWeekData, error) {
	q := url.Values{}
	q.Set("parameterId", req.WorkerID)
	q.Set("from", registry.DateKeyFor(req.From))
	q.Set("to", registry.DateKeyFor(req.To))
	if req.IncludeNotes {
		q.Set("includeNotes", "true")
	}

	var resp summaryResponse
	if err := c.getJSON(ctx, "/controlSchedule/summary?"+q.Encode(), &resp); err != nil {
		return registry.WorkerWeekData{}, err
	}

	week := registry.WorkerWeekData{Days: make(map[string]registry.WorkerDayData, len(resp.HoursByDate))}
	for dateKey, day := range resp.HoursByDate {
		lookup := registry.NewCompanyHoursLookup()
		for _, company := range day.Companies {
			lookup.Add(registry.CompanyHours{
				CompanyID: company.CompanyID,
				Name:      company.Name,
				Hours:     company.Hours.Decimal(),
			})
		}
		week.Days[dateKey] = registry.WorkerDayData{
			TotalHours:   day.TotalHours.Decimal(),
			CompanyHours: lookup,
			Entries:      day.Entries,
			NoteEntries:  day.Notes,
		}
	}
	return week, nil
}

// FetchSummaries fans out one request per worker and collects results with
// all-settled semantics: one worker failing does not block the others. The
// returned map holds every successful worker; the *FetchError (if any)
// lists the failed workers by name.
func (c *Client) FetchSummaries(ctx context.Context, reqs []SummaryRequest) (map[string]registry.WorkerWeekData, error) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]registry.WorkerWeekData, len(reqs))
		failed  *FetchError
	)

	for _, req := range reqs {
		wg.Add(1)
		go func(req SummaryRequest) {
			defer wg.Done()
			week, err := c.FetchWorkerSummary(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if failed == nil {
					failed = &FetchError{}
				}
				name := req.WorkerName
				if name == "" {
					name = req.WorkerID
				}
				failed.WorkerNames = append(failed.WorkerNames, name)
				failed.Errs = append(failed.Errs, err)
				return
			}
			results[req.WorkerID] = week
		}(req)
	}
	wg.Wait()

	if failed != nil {
		sort.Strings(failed.WorkerNames)
		return results, failed
	}
	return results, nil
}

// =============================================================================
// BATCH SAVE
// =============================================================================

// SaveWorkerBatches sends the plan one worker at a time, awaiting each POST
// before starting the next. The first failure aborts the remaining sends;
// entries already accepted by the server are not rolled back. Returns the
// ids of workers whose batches were committed before any failure.
func (c *Client) SaveWorkerBatches(ctx context.Context, plan *registry.SavePlan) ([]string, error) {
	var saved []string
	for _, batch := range plan.Workers {
		if len(batch.Items) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return saved, err
		}
		if err := c.postBatch(ctx, batch); err != nil {
			return saved, err
		}
		saved = append(saved, batch.WorkerID)
	}
	return saved, nil
}

func (c *Client) postBatch(ctx context.Context, batch registry.WorkerBatch) error {
	body, err := json.Marshal(batch.Items)
	if err != nil {
		return fmt.Errorf("encoding batch for %s: %w", batch.WorkerID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/controlSchedule/save", bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.decorate(req)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return &SaveError{WorkerID: batch.WorkerID, WorkerName: batch.WorkerName, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &SaveError{
			WorkerID:   batch.WorkerID,
			WorkerName: batch.WorkerName,
			StatusCode: resp.StatusCode,
			Message:    serverMessage(raw),
		}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// =============================================================================
// PARAMETER LABEL LOOKUP
// =============================================================================

// LookupParameterLabels resolves a batch of opaque parameter ids to display
// labels. Keys of the returned map are lower-cased for case-insensitive
// lookup.
func (c *Client) LookupParameterLabels(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}

	body, err := json.Marshal(map[string][]string{"ids": ids})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/parameters/labels", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.decorate(req)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("parameter lookup failed (%d): %s", resp.StatusCode, serverMessage(raw))
	}

	var raw map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding parameter labels: %w", err)
	}
	labels := make(map[string]string, len(raw))
	for id, label := range raw {
		labels[strings.ToLower(strings.TrimSpace(id))] = label
	}
	return labels, nil
}

// =============================================================================
// TRANSPORT HELPERS
// =============================================================================

func (c *Client) decorate(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	c.decorate(req)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return fmt.Errorf("GET %s failed (%d): %s", path, resp.StatusCode, serverMessage(raw))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
