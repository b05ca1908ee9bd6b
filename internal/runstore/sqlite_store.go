// Package runstore provides persistent storage for optimization runs and
// their density-control events using SQLite.
package runstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/beztri/engine/internal/densify"
)

// Run identifies one optimization run over one scene.
type Run struct {
	ID         string     `json:"run_id"`
	Scene      string     `json:"scene"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Event is one recorded density-control pass.
type Event struct {
	ID         int64           `json:"id"`
	RunID      string          `json:"run_id"`
	Iteration  int             `json:"iteration"`
	Report     densify.Report  `json:"report"`
	Thresholds densify.Options `json:"thresholds"`
	Population int             `json:"population"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Store records runs and density events in SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens (or creates) the database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		scene TEXT NOT NULL,
		created_at TEXT NOT NULL,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_scene ON runs(scene);

	CREATE TABLE IF NOT EXISTS density_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		iteration INTEGER NOT NULL,
		split INTEGER NOT NULL,
		added INTEGER NOT NULL,
		pruned INTEGER NOT NULL,
		coarsened INTEGER NOT NULL,
		population INTEGER NOT NULL,
		thresholds_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_density_events_run ON density_events(run_id);
	CREATE INDEX IF NOT EXISTS idx_density_events_run_iter ON density_events(run_id, iteration);
	`
	_, err := s.db.Exec(schema)
	return err
}

// BeginRun creates a run record with a fresh ID.
func (s *Store) BeginRun(scene string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := &Run{
		ID:        uuid.NewString(),
		Scene:     scene,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, scene, created_at, finished_at)
		VALUES (?, ?, ?, ?)
	`, run.ID, run.Scene, run.CreatedAt.Format(time.RFC3339), nil)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// FinishRun stamps the run's end time.
func (s *Store) FinishRun(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE runs SET finished_at = ? WHERE run_id = ?
	`, time.Now().UTC().Format(time.RFC3339), runID)
	return err
}

// GetRun retrieves a run by ID. Returns nil when the run does not exist.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, scene, created_at, finished_at FROM runs WHERE run_id = ?
	`, runID)

	var run Run
	var createdAtStr string
	var finishedAtStr sql.NullString
	err := row.Scan(&run.ID, &run.Scene, &createdAtStr, &finishedAtStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
	if finishedAtStr.Valid {
		t, _ := time.Parse(time.RFC3339, finishedAtStr.String)
		run.FinishedAt = &t
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT run_id, scene, created_at, finished_at FROM runs
		ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var createdAtStr string
		var finishedAtStr sql.NullString
		if err := rows.Scan(&run.ID, &run.Scene, &createdAtStr, &finishedAtStr); err != nil {
			return nil, err
		}
		run.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
		if finishedAtStr.Valid {
			t, _ := time.Parse(time.RFC3339, finishedAtStr.String)
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RecordEvent appends one density-control event to a run.
func (s *Store) RecordEvent(runID string, iteration int, rep densify.Report, opts densify.Options, population int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	thresholdsJSON, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("failed to marshal thresholds: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO density_events (run_id, iteration, split, added, pruned, coarsened, population, thresholds_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		iteration,
		rep.Split,
		rep.Added,
		rep.Pruned,
		rep.Coarsened,
		population,
		string(thresholdsJSON),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// Events returns all density events of a run in iteration order.
func (s *Store) Events(runID string) ([]Event, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, iteration, split, added, pruned, coarsened, population, thresholds_json, created_at
		FROM density_events WHERE run_id = ? ORDER BY iteration ASC, id ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var thresholdsJSON string
		var createdAtStr string
		if err := rows.Scan(
			&ev.ID, &ev.RunID, &ev.Iteration,
			&ev.Report.Split, &ev.Report.Added, &ev.Report.Pruned, &ev.Report.Coarsened,
			&ev.Population, &thresholdsJSON, &createdAtStr,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(thresholdsJSON), &ev.Thresholds); err != nil {
			return nil, fmt.Errorf("failed to unmarshal thresholds: %w", err)
		}
		ev.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
		events = append(events, ev)
	}
	return events, rows.Err()
}
