package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const runColumns = `
	id, started_at, workers, clock_limit, spawn_limit, max_duration_ms,
	status, stop_reason, total_spawned, completions, final_seconds, final_nanos, finished_at
`

// ReadRun retrieves a single run by ID.
// Returns ErrRunNotFound if it does not exist.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// LatestRun returns the most recently started run.
// Returns ErrRunNotFound if the store is empty.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT 1
	`)
	return scanRun(row)
}

// ReadEvents returns all events of a run ordered by seq.
//
// Returns an empty slice (not nil) if the run has no events.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, worker, master_seconds, master_nanos, worker_seconds, worker_nanos,
		       total_spawned, live, reason
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []EventRecord{}
	for rows.Next() {
		var rec EventRecord
		if err := rows.Scan(
			&rec.Seq,
			&rec.Kind,
			&rec.Worker,
			&rec.MasterClock.Seconds,
			&rec.MasterClock.Nanoseconds,
			&rec.WorkerClock.Seconds,
			&rec.WorkerClock.Nanoseconds,
			&rec.TotalSpawned,
			&rec.Live,
			&rec.Reason,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

func scanRun(row *sql.Row) (Run, error) {
	var (
		run         Run
		startedAt   int64
		maxDuration int64
		status      string
		finishedAt  sql.NullInt64
	)
	err := row.Scan(
		&run.ID,
		&startedAt,
		&run.Workers,
		&run.ClockLimit,
		&run.SpawnLimit,
		&maxDuration,
		&status,
		&run.StopReason,
		&run.TotalSpawned,
		&run.Completions,
		&run.FinalClock.Seconds,
		&run.FinalClock.Nanoseconds,
		&finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	run.StartedAt = time.Unix(0, startedAt)
	run.MaxDuration = time.Duration(maxDuration) * time.Millisecond
	run.Status = RunStatus(status)
	if finishedAt.Valid {
		t := time.Unix(0, finishedAt.Int64)
		run.FinishedAt = &t
	}
	return run, nil
}
