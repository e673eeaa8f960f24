package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const runColumns = `id, command, status, resumed_from, started_at, completed_at, error`

// --- Run operations ---

// CreateRun starts a run of command. resumedFrom names the failed run whose
// completed steps this run skips, or is empty.
func (s *SQLiteStore) CreateRun(command string, resumedFrom string) (*Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	run := &Run{
		ID:          generateID(),
		Command:     command,
		Status:      RunStatusRunning,
		ResumedFrom: resumedFrom,
		StartedAt:   time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO runs (id, command, status, resumed_from, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Command, run.Status, nullString(run.ResumedFrom), run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	return run, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run as finished with the given status.
func (s *SQLiteStore) CompleteRun(id string, status RunStatus, errMsg string) error {
	if s.db == nil {
		return errNotOpened
	}

	result, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		status, time.Now().UTC(), nullString(errMsg), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// GetLatestRun retrieves the most recent run of command, or nil if there is none.
func (s *SQLiteStore) GetLatestRun(command string) (*Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	run, err := scanRun(s.db.QueryRow(
		`SELECT `+runColumns+` FROM runs WHERE command = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`,
		command,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // No runs found, return nil without error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	run := &Run{}
	var resumedFrom, errMsg sql.NullString
	var completedAt sql.NullTime

	if err := row.Scan(&run.ID, &run.Command, &run.Status, &resumedFrom, &run.StartedAt, &completedAt, &errMsg); err != nil {
		return nil, err
	}

	run.ResumedFrom = resumedFrom.String
	run.Error = errMsg.String
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

// --- Step operations ---

// RecordStep inserts a step. ID is generated when empty.
func (s *SQLiteStore) RecordStep(step *StepRun) error {
	if s.db == nil {
		return errNotOpened
	}
	if step.ID == "" {
		step.ID = generateID()
	}
	if step.Status == "" {
		step.Status = StepStatusPending
	}

	_, err := s.db.Exec(
		`INSERT INTO step_runs (id, run_id, sequence, statement, position, status, rows_affected, error, note, execution_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		step.ID, step.RunID, step.Sequence, step.Statement, step.Position, step.Status,
		step.RowsAffected, nullString(step.Error), nullString(step.Note), step.ExecutionMS,
	)
	if err != nil {
		return fmt.Errorf("failed to record step %s: %w", step.Key(), err)
	}
	return nil
}

// UpdateStep applies a status transition. Moving to running stamps
// started_at; moving to any final status stamps completed_at.
func (s *SQLiteStore) UpdateStep(id string, update StepUpdate) error {
	if s.db == nil {
		return errNotOpened
	}

	now := time.Now().UTC()
	var query string
	switch update.Status {
	case StepStatusRunning:
		query = `UPDATE step_runs SET status = ?, rows_affected = ?, error = ?, note = ?, execution_ms = ?, started_at = ? WHERE id = ?`
	default:
		query = `UPDATE step_runs SET status = ?, rows_affected = ?, error = ?, note = ?, execution_ms = ?, completed_at = ? WHERE id = ?`
	}

	result, err := s.db.Exec(query,
		update.Status, update.RowsAffected, nullString(update.Error), nullString(update.Note), update.ExecutionMS, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update step: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("step not found: %s", id)
	}
	return nil
}

// GetStepsForRun returns a run's steps in execution order.
func (s *SQLiteStore) GetStepsForRun(runID string) ([]*StepRun, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	rows, err := s.db.Query(
		`SELECT id, run_id, sequence, statement, position, status, rows_affected,
		        started_at, completed_at, error, note, execution_ms
		 FROM step_runs WHERE run_id = ? ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var steps []*StepRun
	for rows.Next() {
		step := &StepRun{}
		var startedAt, completedAt sql.NullTime
		var errMsg, note sql.NullString

		if err := rows.Scan(&step.ID, &step.RunID, &step.Sequence, &step.Statement, &step.Position,
			&step.Status, &step.RowsAffected, &startedAt, &completedAt, &errMsg, &note, &step.ExecutionMS); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		if startedAt.Valid {
			step.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			step.CompletedAt = &completedAt.Time
		}
		step.Error = errMsg.String
		step.Note = note.String
		steps = append(steps, step)
	}
	return steps, rows.Err()
}
