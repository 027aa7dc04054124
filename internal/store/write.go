package store

import (
	"context"
	"fmt"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/simlog"
)

// BeginRun inserts a new run in the running state.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, started_at, workers, clock_limit, spawn_limit, max_duration_ms, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.StartedAt.UnixNano(),
		run.Workers,
		run.ClockLimit,
		run.SpawnLimit,
		run.MaxDuration.Milliseconds(),
		string(RunRunning),
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// WriteEvent appends one event to a run's log. seq must be unique per run.
//
// Note: The run referenced by runID must exist (foreign key constraint).
func (s *Store) WriteEvent(ctx context.Context, runID string, seq int64, ev simlog.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events
		(run_id, seq, kind, worker, master_seconds, master_nanos, worker_seconds, worker_nanos, total_spawned, live, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		seq,
		string(ev.Kind),
		int(ev.Worker),
		ev.MasterClock.Seconds,
		ev.MasterClock.Nanoseconds,
		ev.WorkerClock.Seconds,
		ev.WorkerClock.Nanoseconds,
		ev.TotalSpawned,
		ev.Live,
		ev.Reason,
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run. Returns ErrRunNotFound if the run
// was never begun.
func (s *Store) FinishRun(ctx context.Context, runID string, sum RunSummary) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, stop_reason = ?, total_spawned = ?, completions = ?,
		    final_seconds = ?, final_nanos = ?, finished_at = ?
		WHERE id = ?
	`,
		string(RunFinished),
		sum.StopReason,
		sum.TotalSpawned,
		sum.Completions,
		sum.FinalClock.Seconds,
		sum.FinalClock.Nanoseconds,
		sum.FinishedAt.UnixNano(),
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}
