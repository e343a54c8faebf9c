/*
Package sqlite provides the SQLite-backed store for the hours registry.

PURPOSE:
  Persists the registry's editable state between sessions:

    assignments   - (worker, company) pairings
    manual_hours  - manual hour overrides per assignment/day (the draft)
    note_drafts   - note text per worker/day (the draft)
    baselines     - last-synchronized tracked state per worker/day,
                    refreshed on successful fetch and after a fully
                    successful save

  Tracked state is stored as a JSON payload per (worker, day): it is
  replaced wholesale on every sync and only ever read back whole, so a
  relational decomposition would buy nothing.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite WAL mode, the same
  arrangement as the rest of our services.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool with versioned migrations.

USAGE:
  store, err := sqlite.New("./data/hours.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/hours-engine/registry"
)

// Store implements registry persistence using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: the store serializes writes anyway, and a pooled
	// ":memory:" database would otherwise be a different DB per connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		worker_name TEXT NOT NULL,
		company_id TEXT NOT NULL,
		company_name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assignments_worker
		ON assignments(worker_id);
	CREATE INDEX IF NOT EXISTS idx_assignments_company
		ON assignments(company_id);

	-- One (worker, company) pairing exists at most once.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_pairing
		ON assignments(worker_id, company_id);

	CREATE TABLE IF NOT EXISTS manual_hours (
		assignment_id TEXT NOT NULL REFERENCES assignments(id),
		date_key TEXT NOT NULL,
		raw_value TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (assignment_id, date_key)
	);

	CREATE TABLE IF NOT EXISTS note_drafts (
		worker_id TEXT NOT NULL,
		date_key TEXT NOT NULL,
		text TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (worker_id, date_key)
	);

	CREATE TABLE IF NOT EXISTS segment_drafts (
		assignment_id TEXT NOT NULL,
		date_key TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (assignment_id, date_key)
	);

	CREATE TABLE IF NOT EXISTS company_rates (
		company_id TEXT PRIMARY KEY,
		rate TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS baselines (
		worker_id TEXT NOT NULL,
		date_key TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		synced_at TEXT NOT NULL,
		PRIMARY KEY (worker_id, date_key)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

// CreateAssignment persists a new pairing. A missing id is minted; the
// company identity is canonicalized before storage so every consumer sees
// exactly one (id, name) pair per company.
func (s *Store) CreateAssignment(ctx context.Context, a registry.Assignment) (registry.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	company := registry.BuildCompanyIdentity(a.CompanyID, a.CompanyName)
	a.CompanyID, a.CompanyName = company.ID, company.Name

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assignments (id, worker_id, worker_name, company_id, company_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(worker_id, company_id) DO UPDATE SET
			worker_name = excluded.worker_name,
			company_name = excluded.company_name`,
		a.ID, a.WorkerID, a.WorkerName, a.CompanyID, a.CompanyName, now())
	if err != nil {
		return registry.Assignment{}, fmt.Errorf("creating assignment: %w", err)
	}
	return a, nil
}

// ListAssignments loads all assignments with their manual-hour overrides.
func (s *Store) ListAssignments(ctx context.Context) ([]registry.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, worker_id, worker_name, company_id, company_name
		FROM assignments ORDER BY worker_name, company_name`)
	if err != nil {
		return nil, fmt.Errorf("listing assignments: %w", err)
	}
	defer rows.Close()

	var assignments []registry.Assignment
	byID := make(map[string]int)
	for rows.Next() {
		var a registry.Assignment
		if err := rows.Scan(&a.ID, &a.WorkerID, &a.WorkerName, &a.CompanyID, &a.CompanyName); err != nil {
			return nil, err
		}
		a.Hours = make(map[string]string)
		byID[a.ID] = len(assignments)
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hourRows, err := s.db.QueryContext(ctx, `SELECT assignment_id, date_key, raw_value FROM manual_hours`)
	if err != nil {
		return nil, fmt.Errorf("loading manual hours: %w", err)
	}
	defer hourRows.Close()

	for hourRows.Next() {
		var assignmentID, dateKey, raw string
		if err := hourRows.Scan(&assignmentID, &dateKey, &raw); err != nil {
			return nil, err
		}
		if i, ok := byID[assignmentID]; ok {
			assignments[i].Hours[dateKey] = raw
		}
	}
	return assignments, hourRows.Err()
}

// GetAssignment loads one assignment by id, with overrides.
func (s *Store) GetAssignment(ctx context.Context, id string) (registry.Assignment, error) {
	assignments, err := s.ListAssignments(ctx)
	if err != nil {
		return registry.Assignment{}, err
	}
	for _, a := range assignments {
		if a.ID == id {
			return a, nil
		}
	}
	return registry.Assignment{}, sql.ErrNoRows
}

// SetManualHours upserts one manual override. An empty raw value clears it.
func (s *Store) SetManualHours(ctx context.Context, assignmentID, dateKey, raw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(raw) == "" {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM manual_hours WHERE assignment_id = ? AND date_key = ?`,
			assignmentID, dateKey)
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO manual_hours (assignment_id, date_key, raw_value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(assignment_id, date_key) DO UPDATE SET
			raw_value = excluded.raw_value,
			updated_at = excluded.updated_at`,
		assignmentID, dateKey, raw, now())
	return err
}

// ApplyManualHours persists a batch of overrides atomically (the write
// path of a bulk distribution).
func (s *Store) ApplyManualHours(ctx context.Context, updates map[registry.CellKey]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for cell, raw := range updates {
		if strings.TrimSpace(raw) == "" {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM manual_hours WHERE assignment_id = ? AND date_key = ?`,
				cell.AssignmentID, cell.DateKey); err != nil {
				return err
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO manual_hours (assignment_id, date_key, raw_value, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(assignment_id, date_key) DO UPDATE SET
				raw_value = excluded.raw_value,
				updated_at = excluded.updated_at`,
			cell.AssignmentID, cell.DateKey, raw, now()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// =============================================================================
// NOTE DRAFTS
// =============================================================================

// SetNoteDraft upserts the note draft for a worker/day. Empty text is kept
// as an explicit draft: it means "delete the note upstream", which the
// planner distinguishes from "untouched".
func (s *Store) SetNoteDraft(ctx context.Context, workerID, dateKey, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO note_drafts (worker_id, date_key, text, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(worker_id, date_key) DO UPDATE SET
			text = excluded.text,
			updated_at = excluded.updated_at`,
		workerID, dateKey, text, now())
	return err
}

// NoteDrafts loads every drafted note keyed by (worker, day).
func (s *Store) NoteDrafts(ctx context.Context) (map[registry.NoteKey]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT worker_id, date_key, text FROM note_drafts`)
	if err != nil {
		return nil, fmt.Errorf("loading note drafts: %w", err)
	}
	defer rows.Close()

	notes := make(map[registry.NoteKey]string)
	for rows.Next() {
		var workerID, dateKey, text string
		if err := rows.Scan(&workerID, &dateKey, &text); err != nil {
			return nil, err
		}
		notes[registry.NoteKey{WorkerID: workerID, DateKey: dateKey}] = text
	}
	return notes, rows.Err()
}

// ClearNoteDrafts removes the drafts covered by a fully successful save:
// only the given workers AND only the given days. Drafts for days outside
// the saved range were never sent and must survive.
func (s *Store) ClearNoteDrafts(ctx context.Context, workerIDs, dateKeys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range workerIDs {
		for _, dateKey := range dateKeys {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM note_drafts WHERE worker_id = ? AND date_key = ?`,
				id, dateKey); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// =============================================================================
// SEGMENT DRAFTS
// =============================================================================

// SetSegmentDraft replaces the drafted shift segments for one cell. An
// explicit empty list is stored (it means "clear the shifts upstream"),
// matching the planner's touched/untouched distinction.
func (s *Store) SetSegmentDraft(ctx context.Context, assignmentID, dateKey string, segments []registry.HourSegment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if segments == nil {
		segments = []registry.HourSegment{}
	}
	for i := range segments {
		if segments[i].ID == "" {
			segments[i].ID = uuid.NewString()
		}
	}
	payload, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("encoding segments for %s/%s: %w", assignmentID, dateKey, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO segment_drafts (assignment_id, date_key, payload_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(assignment_id, date_key) DO UPDATE SET
			payload_json = excluded.payload_json,
			updated_at = excluded.updated_at`,
		assignmentID, dateKey, string(payload), now())
	return err
}

// SegmentDrafts loads every drafted segment list keyed by cell.
func (s *Store) SegmentDrafts(ctx context.Context) (map[registry.CellKey][]registry.HourSegment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT assignment_id, date_key, payload_json FROM segment_drafts`)
	if err != nil {
		return nil, fmt.Errorf("loading segment drafts: %w", err)
	}
	defer rows.Close()

	drafts := make(map[registry.CellKey][]registry.HourSegment)
	for rows.Next() {
		var assignmentID, dateKey, raw string
		if err := rows.Scan(&assignmentID, &dateKey, &raw); err != nil {
			return nil, err
		}
		var segments []registry.HourSegment
		if err := json.Unmarshal([]byte(raw), &segments); err != nil {
			return nil, fmt.Errorf("decoding segments for %s/%s: %w", assignmentID, dateKey, err)
		}
		drafts[registry.CellKey{AssignmentID: assignmentID, DateKey: dateKey}] = segments
	}
	return drafts, rows.Err()
}

// ClearSegmentDrafts removes the drafts covered by a fully successful save,
// scoped to the given assignments and days like ClearNoteDrafts.
func (s *Store) ClearSegmentDrafts(ctx context.Context, assignmentIDs, dateKeys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range assignmentIDs {
		for _, dateKey := range dateKeys {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM segment_drafts WHERE assignment_id = ? AND date_key = ?`,
				id, dateKey); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// =============================================================================
// COMPANY RATES - For the export surface
// =============================================================================

// SetCompanyRate upserts the hourly rate for a company.
func (s *Store) SetCompanyRate(ctx context.Context, companyID string, rate decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO company_rates (company_id, rate) VALUES (?, ?)
		ON CONFLICT(company_id) DO UPDATE SET rate = excluded.rate`,
		companyID, rate.String())
	return err
}

// CompanyRates loads all rates keyed by canonical company id.
func (s *Store) CompanyRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT company_id, rate FROM company_rates`)
	if err != nil {
		return nil, fmt.Errorf("loading company rates: %w", err)
	}
	defer rows.Close()

	rates := make(map[string]decimal.Decimal)
	for rows.Next() {
		var companyID, raw string
		if err := rows.Scan(&companyID, &raw); err != nil {
			return nil, err
		}
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		rates[companyID] = rate
	}
	return rates, rows.Err()
}

// =============================================================================
// BASELINES - Last-synchronized tracked state
// =============================================================================

// dayPayload is the serialized form of one worker/day of tracked state.
type dayPayload struct {
	TotalHours decimal.Decimal          `json:"totalHours"`
	Companies  []registry.CompanyHours  `json:"companies"`
	Entries    []registry.ScheduleEntry `json:"entries"`
	Notes      []registry.NoteEntry     `json:"noteEntries"`
}

// SaveBaseline replaces the stored tracked state for one worker wholesale.
func (s *Store) SaveBaseline(ctx context.Context, workerID string, week registry.WorkerWeekData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM baselines WHERE worker_id = ?`, workerID); err != nil {
		return err
	}
	syncedAt := now()
	for dateKey, day := range week.Days {
		payload, err := json.Marshal(dayPayload{
			TotalHours: day.TotalHours,
			Companies:  day.CompanyHours.Companies(),
			Entries:    day.Entries,
			Notes:      day.NoteEntries,
		})
		if err != nil {
			return fmt.Errorf("encoding baseline for %s/%s: %w", workerID, dateKey, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO baselines (worker_id, date_key, payload_json, synced_at)
			VALUES (?, ?, ?, ?)`,
			workerID, dateKey, string(payload), syncedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadBaselines reconstructs the tracked state for all workers, keyed by
// worker id.
func (s *Store) LoadBaselines(ctx context.Context) (map[string]registry.WorkerWeekData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT worker_id, date_key, payload_json FROM baselines`)
	if err != nil {
		return nil, fmt.Errorf("loading baselines: %w", err)
	}
	defer rows.Close()

	weeks := make(map[string]registry.WorkerWeekData)
	for rows.Next() {
		var workerID, dateKey, raw string
		if err := rows.Scan(&workerID, &dateKey, &raw); err != nil {
			return nil, err
		}
		var payload dayPayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("decoding baseline for %s/%s: %w", workerID, dateKey, err)
		}

		week, ok := weeks[workerID]
		if !ok {
			week = registry.WorkerWeekData{Days: make(map[string]registry.WorkerDayData)}
		}
		lookup := registry.NewCompanyHoursLookup()
		for _, ch := range payload.Companies {
			lookup.Add(ch)
		}
		week.Days[dateKey] = registry.WorkerDayData{
			TotalHours:   payload.TotalHours,
			CompanyHours: lookup,
			Entries:      payload.Entries,
			NoteEntries:  payload.Notes,
		}
		weeks[workerID] = week
	}
	return weeks, rows.Err()
}
