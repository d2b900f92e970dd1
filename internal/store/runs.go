package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a recorded batch.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusStopped RunStatus = "stopped"
	RunStatusFailed  RunStatus = "failed"
)

// Run is one batch started by `berth up`.
type Run struct {
	ID        string
	Project   string
	Status    RunStatus
	Workloads int
	StartedAt time.Time
	StoppedAt *time.Time
	Error     *string
}

const runColumns = `id, project, status, workloads, started_at, stopped_at, error`

// CreateRun inserts a new run. StartedAt defaults to now.
func (db *DB) CreateRun(ctx context.Context, run *Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Project, run.Status, run.Workloads, run.StartedAt, run.StoppedAt, run.Error)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// SetRunWorkloads records how many containers the batch started.
func (db *DB) SetRunWorkloads(ctx context.Context, id string, n int) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE runs SET workloads = ? WHERE id = ?`, n, id)
	if err != nil {
		return fmt.Errorf("failed to update run workloads: %w", err)
	}
	return nil
}

// UpdateRunStatus moves a run to a new status. Terminal statuses set
// stopped_at.
func (db *DB) UpdateRunStatus(ctx context.Context, id string, status RunStatus, errMsg *string) error {
	var (
		result sql.Result
		err    error
	)
	if status == RunStatusRunning {
		result, err = db.conn.ExecContext(ctx,
			`UPDATE runs SET status = ?, error = ?, stopped_at = NULL WHERE id = ?`, status, errMsg, id)
	} else {
		result, err = db.conn.ExecContext(ctx,
			`UPDATE runs SET status = ?, error = ?, stopped_at = ? WHERE id = ?`, status, errMsg, time.Now().UTC(), id)
	}
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// GetRun retrieves a run by its ID.
// Returns nil, nil if the run does not exist.
func (db *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetLatestRun returns the most recently started run of a project with the
// given status. Returns nil, nil if there is none.
func (db *DB) GetLatestRun(ctx context.Context, project string, status RunStatus) (*Run, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE project = ? AND status = ?
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`, project, status)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns a project's runs, newest first. limit <= 0 means all.
func (db *DB) ListRuns(ctx context.Context, project string, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE project = ? ORDER BY started_at DESC, id DESC`
	args := []any{project}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	run := &Run{}
	var stoppedAt sql.NullTime
	var errMsg sql.NullString
	if err := s.Scan(&run.ID, &run.Project, &run.Status, &run.Workloads, &run.StartedAt, &stoppedAt, &errMsg); err != nil {
		return nil, err
	}
	if stoppedAt.Valid {
		t := stoppedAt.Time
		run.StoppedAt = &t
	}
	if errMsg.Valid {
		msg := errMsg.String
		run.Error = &msg
	}
	return run, nil
}
