// Package worker implements the user process side of the simulation.
//
// A worker draws a run budget, then loops on the token channel. Each time it
// holds the token it compares elapsed virtual time against its budget: once
// the budget is spent it reports to the master, forwards the token and exits;
// otherwise it forwards the token and waits for its next turn.
//
// Receiving the token is the only place a worker blocks. Termination arrives
// as cancellation of the worker's context, and context.Cause tells the worker
// whether the master was interrupted, timed out, or shut down normally.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/ipc"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/vclock"
)

// ExitStatus mirrors a process exit status.
type ExitStatus int

const (
	// ExitSuccess: the budget elapsed and the report was delivered, or the
	// worker was told to stop because of a wall-clock timeout.
	ExitSuccess ExitStatus = 0
	// ExitFailure: interrupted, or a message could not be delivered.
	ExitFailure ExitStatus = 1
)

// Cause describes why a worker stopped.
type Cause string

const (
	CauseBudget    Cause = "budget"
	CauseInterrupt Cause = "interrupt"
	CauseTimeout   Cause = "timeout"
	CauseShutdown  Cause = "shutdown"
	CauseFailure   Cause = "failure"
)

// ErrReportUndelivered is returned when the completion report could not be
// sent. The worker still forwards the token before exiting.
var ErrReportUndelivered = errors.New("worker: completion report undelivered")

// ClockReader is the read-only view of the virtual clock given to workers.
type ClockReader interface {
	Snapshot() vclock.Time
}

// Config wires a worker to the shared resources.
type Config struct {
	ID      ipc.WorkerID
	Clock   ClockReader
	Tokens  *ipc.TokenChannel
	Reports *ipc.CompletionChannel
	Budget  BudgetSource
	Logger  *slog.Logger
}

// Result is the outcome of Run.
type Result struct {
	Status ExitStatus
	Cause  Cause
	Budget uint32
	Start  vclock.Time
	End    vclock.Time
	Turns  int
}

// Worker is a single simulated user process.
type Worker struct {
	id      ipc.WorkerID
	clock   ClockReader
	tokens  *ipc.TokenChannel
	reports *ipc.CompletionChannel
	budget  BudgetSource
	logger  *slog.Logger
}

// New creates a worker. A nil Budget means RandomBudget with the default
// bound; a nil Logger means slog.Default().
func New(cfg Config) *Worker {
	w := &Worker{
		id:      cfg.ID,
		clock:   cfg.Clock,
		tokens:  cfg.Tokens,
		reports: cfg.Reports,
		budget:  cfg.Budget,
		logger:  cfg.Logger,
	}
	if w.budget == nil {
		w.budget = RandomBudget{Max: DefaultBudgetMax}
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	w.logger = w.logger.With("worker", int(cfg.ID))
	return w
}

// ID returns the worker's identifier.
func (w *Worker) ID() ipc.WorkerID { return w.id }

// Run executes the token protocol until the budget elapses or ctx is
// cancelled. The returned error is nil for ExitSuccess.
func (w *Worker) Run(ctx context.Context) (Result, error) {
	res := Result{Start: w.clock.Snapshot()}
	res.Budget = w.budget.Budget(res.Start, w.id)

	w.logger.Debug("worker started", "start", res.Start.String(), "budget", res.Budget)

	w.tokens.Join(w.id)
	defer w.tokens.Leave(w.id)

	for {
		if _, err := w.tokens.Receive(ctx, w.id); err != nil {
			return w.stopped(ctx, res, err)
		}
		res.Turns++

		// Critical section.
		now := w.clock.Snapshot()
		if now.Sub(res.Start) < uint64(res.Budget) {
			if err := w.tokens.Forward(w.id); err != nil {
				return w.stopped(ctx, res, fmt.Errorf("forward token: %w", err))
			}
			continue
		}

		res.End = now
		report := ipc.CompletionReport{
			Type:   ipc.MessageCompletion,
			Worker: w.id,
			Clock:  now,
			Start:  res.Start,
			Budget: res.Budget,
		}
		if err := w.reports.Send(report); err != nil {
			w.logger.Error("error sending completion report", "error", err)
			w.release(ctx)
			res.Status, res.Cause = ExitFailure, CauseFailure
			return res, fmt.Errorf("%w: %w", ErrReportUndelivered, err)
		}

		w.release(ctx)
		w.logger.Debug("worker finished",
			"start", res.Start.String(),
			"budget", res.Budget,
			"clock", now.String(),
		)
		res.Status, res.Cause = ExitSuccess, CauseBudget
		return res, nil
	}
}

// release gives the token up before exit. It is forwarded to the next worker
// unless termination has been broadcast, in which case no worker remains to
// take it and it is discarded. If the channel is already gone the token goes
// with it.
func (w *Worker) release(ctx context.Context) {
	var err error
	if ctx.Err() != nil {
		err = w.tokens.Discard(w.id)
	} else {
		err = w.tokens.Forward(w.id)
	}
	if err != nil {
		if errors.Is(err, ipc.ErrClosed) {
			w.logger.Debug("token channel closed, token discarded")
			return
		}
		w.logger.Warn("release token on exit", "error", err)
	}
}

// stopped maps why the token loop ended onto an exit status.
func (w *Worker) stopped(ctx context.Context, res Result, err error) (Result, error) {
	res.End = w.clock.Snapshot()

	cause := context.Cause(ctx)
	switch {
	case ctx.Err() != nil && errors.Is(cause, ipc.ErrTerminateTimeout):
		w.logger.Info("worker exiting due to timeout")
		res.Status, res.Cause = ExitSuccess, CauseTimeout
		return res, nil

	case ctx.Err() != nil && errors.Is(cause, ipc.ErrTerminateShutdown):
		w.logger.Info("worker exiting due to shutdown")
		res.Status, res.Cause = ExitFailure, CauseShutdown
		return res, cause

	case ctx.Err() != nil, errors.Is(err, ipc.ErrClosed):
		w.logger.Info("worker exiting due to interrupt signal")
		res.Status, res.Cause = ExitFailure, CauseInterrupt
		if cause == nil {
			cause = err
		}
		return res, cause

	default:
		w.logger.Error("worker failed", "error", err)
		res.Status, res.Cause = ExitFailure, CauseFailure
		return res, err
	}
}
