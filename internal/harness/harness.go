package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/master"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/resource"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/simlog"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/store"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/worker"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if the stop reason matched and every assertion held.
	Pass bool

	RunID  string
	Sim    master.Result
	Events []simlog.Event

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Run executes a scenario end to end.
//
// Each scenario runs against a fresh resource registry and a fresh in-memory
// run log, so scenarios can run in parallel.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	ctx := context.Background()

	runID := store.NewFixedGenerator("scenario-" + scenario.Name).Generate()
	maxDuration := time.Duration(-1)
	if scenario.MaxDurationMillis != nil {
		maxDuration = time.Duration(*scenario.MaxDurationMillis) * time.Millisecond
	}
	if err := st.BeginRun(ctx, store.Run{
		ID:          runID,
		StartedAt:   time.Now(),
		Workers:     scenario.Workers,
		ClockLimit:  scenario.ClockLimitSeconds,
		SpawnLimit:  scenario.SpawnLimit,
		MaxDuration: maxDuration,
	}); err != nil {
		return nil, err
	}
	recorder := store.NewRecorder(ctx, st, runID)

	res, err := resource.Open(resource.NewRegistry(), resource.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open resources: %w", err)
	}

	lopts := []master.LauncherOption{
		master.WithLauncherSink(recorder),
		master.WithLauncherLogger(logger),
	}
	if scenario.FixedBudget != nil {
		lopts = append(lopts, master.WithBudget(worker.FixedBudget(*scenario.FixedBudget)))
	}
	launcher := master.NewGoroutineLauncher(res, lopts...)

	m := master.New(res, launcher,
		master.WithInitialWorkers(scenario.Workers),
		master.WithSpawnLimit(scenario.SpawnLimit),
		master.WithClockLimit(scenario.ClockLimitSeconds),
		master.WithMaxDuration(maxDuration),
		master.WithSink(recorder),
		master.WithLogger(logger),
	)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if scenario.InterruptAfterMillis != nil {
		timer := time.AfterFunc(time.Duration(*scenario.InterruptAfterMillis)*time.Millisecond, func() {
			cancel(master.ErrInterrupted)
		})
		defer timer.Stop()
	}

	sim, err := m.Run(runCtx)
	if err != nil {
		return nil, fmt.Errorf("simulation failed: %w", err)
	}

	if err := st.FinishRun(ctx, runID, store.RunSummary{
		StopReason:   sim.Reason.String(),
		TotalSpawned: sim.TotalSpawned,
		Completions:  sim.Completions,
		FinalClock:   sim.FinalClock,
		FinishedAt:   time.Now(),
	}); err != nil {
		return nil, err
	}

	records, err := st.ReadEvents(ctx, runID)
	if err != nil {
		return nil, err
	}

	result := &Result{Pass: true, RunID: runID, Sim: sim}
	for _, rec := range records {
		result.Events = append(result.Events, rec.Event())
	}

	if got := sim.Reason.String(); got != scenario.Expect.StopReason {
		result.AddError(fmt.Sprintf("stop reason: expected %q, got %q", scenario.Expect.StopReason, got))
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, scenario.Workers) {
		result.AddError(msg)
	}

	return result, nil
}
