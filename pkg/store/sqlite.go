package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/acqlab/instrumentd/pkg/models"
)

// SQLiteStore is the SQLite-backed implementation of the run history store
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if necessary creates) the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// WAL plus a busy timeout keeps the single-writer daemon responsive
	// when the status API reads concurrently.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Serialize writes to avoid SQLITE_BUSY
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		label TEXT,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		stopped_at DATETIME,
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS steps (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES runs(id),
		idx INTEGER NOT NULL,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		stopped_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE INDEX IF NOT EXISTS idx_steps_run ON steps(run_id, idx);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateRun adds a run record
func (s *SQLiteStore) CreateRun(run *models.Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, label, status, started_at, stopped_at, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.Label, string(run.Status), run.StartedAt, run.StoppedAt, run.Error)
	return err
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(id string) (*models.Run, error) {
	row := s.db.QueryRow(`
		SELECT id, label, status, started_at, stopped_at, error
		FROM runs WHERE id = ?
	`, id)
	return scanRun(row)
}

// ListRuns returns all runs, newest first
func (s *SQLiteStore) ListRuns() ([]*models.Run, error) {
	rows, err := s.db.Query(`
		SELECT id, label, status, started_at, stopped_at, error
		FROM runs ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]*models.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// UpdateRunStatus applies a validated status transition
func (s *SQLiteStore) UpdateRunStatus(id string, status models.RunStatus, errMsg string) error {
	run, err := s.GetRun(id)
	if err != nil {
		return err
	}
	if err := models.ValidateRunTransition(run.Status, status); err != nil {
		return err
	}

	var stoppedAt *time.Time
	if models.IsTerminalRunStatus(status) {
		now := time.Now()
		stoppedAt = &now
	}

	_, err = s.db.Exec(`
		UPDATE runs SET status = ?, error = ?, stopped_at = COALESCE(?, stopped_at)
		WHERE id = ?
	`, string(status), errMsg, stoppedAt, id)
	return err
}

// CreateStep adds a step record
func (s *SQLiteStore) CreateStep(step *models.Step) error {
	if _, err := s.GetRun(step.RunID); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		INSERT INTO steps (id, run_id, idx, status, started_at, stopped_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, step.ID, step.RunID, step.Index, string(step.Status), step.StartedAt, step.StoppedAt)
	return err
}

// StepsForRun returns the steps of a run in index order
func (s *SQLiteStore) StepsForRun(runID string) ([]*models.Step, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, idx, status, started_at, stopped_at
		FROM steps WHERE run_id = ? ORDER BY idx
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := make([]*models.Step, 0)
	for rows.Next() {
		var step models.Step
		var status string
		var stoppedAt sql.NullTime
		if err := rows.Scan(&step.ID, &step.RunID, &step.Index, &status, &step.StartedAt, &stoppedAt); err != nil {
			return nil, err
		}
		step.Status = models.StepStatus(status)
		if stoppedAt.Valid {
			t := stoppedAt.Time
			step.StoppedAt = &t
		}
		steps = append(steps, &step)
	}
	return steps, rows.Err()
}

// UpdateStepStatus applies a validated status transition
func (s *SQLiteStore) UpdateStepStatus(id string, status models.StepStatus) error {
	row := s.db.QueryRow(`SELECT status FROM steps WHERE id = ?`, id)
	var current string
	if err := row.Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return ErrStepNotFound
		}
		return err
	}
	if err := models.ValidateStepTransition(models.StepStatus(current), status); err != nil {
		return err
	}

	var stoppedAt *time.Time
	if status == models.StepStatusDone {
		now := time.Now()
		stoppedAt = &now
	}

	_, err := s.db.Exec(`
		UPDATE steps SET status = ?, stopped_at = COALESCE(?, stopped_at)
		WHERE id = ?
	`, string(status), stoppedAt, id)
	return err
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scannable) (*models.Run, error) {
	var run models.Run
	var status string
	var stoppedAt sql.NullTime
	var label, errMsg sql.NullString

	if err := row.Scan(&run.ID, &label, &status, &run.StartedAt, &stoppedAt, &errMsg); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	run.Status = models.RunStatus(status)
	run.Label = label.String
	run.Error = errMsg.String
	if stoppedAt.Valid {
		t := stoppedAt.Time
		run.StoppedAt = &t
	}
	return &run, nil
}
