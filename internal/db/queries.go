package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Run represents a row in the runs table.
type Run struct {
	ID             string
	Pipeline       string
	Company        string
	DataDir        string
	Status         string
	CompletionRate float64
	Error          string
	StartedAt      string
	FinishedAt     string
}

// StageEvent represents a row in the stage_events table.
type StageEvent struct {
	ID        int
	RunID     string
	Stage     string
	Agent     string
	Status    string
	Detail    string
	Timestamp string
}

// CreateRun inserts a new run in the running state and returns its id.
func (d *DB) CreateRun(pipeline, company, dataDir string) (string, error) {
	id := uuid.NewString()
	_, err := d.conn.Exec(
		`INSERT INTO runs (id, pipeline, company, data_dir, status) VALUES (?, ?, ?, ?, 'running')`,
		id, pipeline, company, dataDir,
	)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

// FinishRun marks a run completed or failed.
func (d *DB) FinishRun(id string, completionRate float64, runErr string) error {
	status := "completed"
	if runErr != "" {
		status = "failed"
	}
	_, err := d.conn.Exec(
		`UPDATE runs SET status = ?, completion_rate = ?, error = ?, finished_at = datetime('now') WHERE id = ?`,
		status, completionRate, runErr, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// LogStageEvent inserts a stage transition for a run.
func (d *DB) LogStageEvent(runID, stage, agent, status, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO stage_events (run_id, stage, agent, status, detail) VALUES (?, ?, ?, ?, ?)`,
		runID, stage, agent, status, detail,
	)
	if err != nil {
		return fmt.Errorf("log stage event: %w", err)
	}
	return nil
}

// GetRun returns one run by id, or nil when it does not exist.
func (d *DB) GetRun(id string) (*Run, error) {
	row := d.conn.QueryRow(
		`SELECT id, pipeline, company, data_dir, status, completion_rate, error, started_at, finished_at
		 FROM runs WHERE id = ?`, id,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs, newest first.
func (d *DB) ListRuns(limit int) ([]Run, error) {
	rows, err := d.conn.Query(
		`SELECT id, pipeline, company, data_dir, status, completion_rate, error, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// ListStageEvents returns a run's stage transitions in order.
func (d *DB) ListStageEvents(runID string) ([]StageEvent, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, stage, agent, status, detail, timestamp
		 FROM stage_events WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list stage events: %w", err)
	}
	defer rows.Close()

	var events []StageEvent
	for rows.Next() {
		var e StageEvent
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Stage, &e.Agent, &e.Status, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan stage event: %w", err)
		}
		e.Detail = detail.String
		events = append(events, e)
	}
	return events, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var r Run
	var runErr, finished sql.NullString
	if err := row.Scan(&r.ID, &r.Pipeline, &r.Company, &r.DataDir, &r.Status,
		&r.CompletionRate, &runErr, &r.StartedAt, &finished); err != nil {
		return nil, err
	}
	r.Error = runErr.String
	r.FinishedAt = finished.String
	return &r, nil
}
