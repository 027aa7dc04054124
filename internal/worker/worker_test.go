package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/ipc"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/vclock"
)

type fixture struct {
	clock   *vclock.Clock
	tokens  *ipc.TokenChannel
	reports *ipc.CompletionChannel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:   vclock.New(),
		tokens:  ipc.NewTokenChannel(),
		reports: ipc.NewCompletionChannel(),
	}
	require.NoError(t, f.tokens.Seed())
	return f
}

func (f *fixture) worker(id ipc.WorkerID, budget BudgetSource) *Worker {
	return New(Config{ID: id, Clock: f.clock, Tokens: f.tokens, Reports: f.reports, Budget: budget})
}

func runAsync(ctx context.Context, w *Worker) <-chan struct {
	res Result
	err error
} {
	out := make(chan struct {
		res Result
		err error
	}, 1)
	go func() {
		res, err := w.Run(ctx)
		out <- struct {
			res Result
			err error
		}{res, err}
	}()
	return out
}

func TestWorker_ZeroBudgetFinishesOnFirstTurn(t *testing.T) {
	f := newFixture(t)
	f.clock.Advance(42_000)

	res, err := f.worker(1, FixedBudget(0)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExitSuccess, res.Status)
	assert.Equal(t, CauseBudget, res.Cause)
	assert.Equal(t, 1, res.Turns)

	report, ok := f.reports.TryReceive()
	require.True(t, ok, "worker must report completion")
	assert.Equal(t, ipc.WorkerID(1), report.Worker)
	assert.Equal(t, vclock.Time{Nanoseconds: 42_000}, report.Clock)
	assert.Equal(t, uint32(0), report.Budget)

	_, held := f.tokens.Holder()
	assert.False(t, held, "token must be forwarded before exit")
	_, ok = f.reports.TryReceive()
	assert.False(t, ok, "exactly one report per worker")
}

func TestWorker_RunsUntilBudgetElapses(t *testing.T) {
	f := newFixture(t)
	done := runAsync(context.Background(), f.worker(1, FixedBudget(50_000)))

	var final struct {
		res Result
		err error
	}
	require.Eventually(t, func() bool {
		select {
		case final = <-done:
			return true
		default:
			f.clock.Advance(vclock.DefaultTick)
			return false
		}
	}, 5*time.Second, time.Microsecond)

	require.NoError(t, final.err)
	assert.Equal(t, ExitSuccess, final.res.Status)
	assert.GreaterOrEqual(t, final.res.End.Sub(final.res.Start), uint64(50_000))

	report, ok := f.reports.TryReceive()
	require.True(t, ok)
	assert.Equal(t, final.res.End, report.Clock)
}

func TestWorker_TokenVisitsEveryWorker(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Budgets too large to elapse: workers just pass the token around.
	var results []<-chan struct {
		res Result
		err error
	}
	for id := ipc.WorkerID(1); id <= 3; id++ {
		results = append(results, runAsync(ctx, f.worker(id, FixedBudget(1<<31))))
	}

	require.Eventually(t, func() bool { return f.tokens.Passes() > 300 }, 5*time.Second, time.Millisecond)
	cancel()

	for _, ch := range results {
		select {
		case r := <-ch:
			assert.Greater(t, r.res.Turns, 0, "every worker must get a turn")
			assert.Equal(t, CauseInterrupt, r.res.Cause)
		case <-time.After(time.Second):
			t.Fatal("worker did not stop on cancellation")
		}
	}
}

func TestWorker_TerminateCauses(t *testing.T) {
	tests := []struct {
		name       string
		cause      error
		wantStatus ExitStatus
		wantCause  Cause
		wantErr    bool
	}{
		{"timeout", ipc.ErrTerminateTimeout, ExitSuccess, CauseTimeout, false},
		{"interrupt", ipc.ErrTerminateInterrupt, ExitFailure, CauseInterrupt, true},
		{"shutdown", ipc.ErrTerminateShutdown, ExitFailure, CauseShutdown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			// Hold the token so the worker under test blocks in Receive.
			_, err := f.tokens.Receive(context.Background(), 99)
			require.NoError(t, err)

			ctx, cancel := context.WithCancelCause(context.Background())
			done := runAsync(ctx, f.worker(1, FixedBudget(0)))
			require.Eventually(t, func() bool { return f.tokens.Waiting() == 1 }, time.Second, time.Millisecond)

			cancel(tt.cause)
			r := <-done

			assert.Equal(t, tt.wantStatus, r.res.Status)
			assert.Equal(t, tt.wantCause, r.res.Cause)
			if tt.wantErr {
				assert.ErrorIs(t, r.err, tt.cause)
			} else {
				assert.NoError(t, r.err)
			}
			assert.Equal(t, 0, f.reports.Len(), "terminated worker must not report")
		})
	}
}

func TestWorker_UndeliveredReportStillForwardsToken(t *testing.T) {
	f := newFixture(t)
	f.reports.Close()

	res, err := f.worker(1, FixedBudget(0)).Run(context.Background())
	assert.ErrorIs(t, err, ErrReportUndelivered)
	assert.ErrorIs(t, err, ipc.ErrClosed)
	assert.Equal(t, ExitFailure, res.Status)

	_, err = f.tokens.Receive(context.Background(), 2)
	assert.NoError(t, err, "token must survive a failed report")
}

// lateCancelCtx reports cancellation from its second Err call on, so the
// worker gets the token and then sees termination on its way out.
type lateCancelCtx struct {
	context.Context
	calls int
}

func (c *lateCancelCtx) Err() error {
	c.calls++
	if c.calls > 1 {
		return context.Canceled
	}
	return nil
}

func TestWorker_DiscardsTokenAfterTermination(t *testing.T) {
	f := newFixture(t)

	res, err := f.worker(1, FixedBudget(0)).Run(&lateCancelCtx{Context: context.Background()})
	require.NoError(t, err)
	assert.Equal(t, CauseBudget, res.Cause)

	_, held := f.tokens.Holder()
	assert.False(t, held)
	assert.Equal(t, 0, f.tokens.Close(), "token is discarded, not parked for a successor")
	_, ok := f.reports.TryReceive()
	assert.True(t, ok, "report is still delivered")
}

func TestWorker_ForwardsTokenWhileRunning(t *testing.T) {
	f := newFixture(t)

	_, err := f.worker(1, FixedBudget(0)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.tokens.Close(), "token is parked for the next worker")
}

func TestWorker_ClosedTokenChannel(t *testing.T) {
	f := newFixture(t)
	f.tokens.Close()

	res, err := f.worker(1, FixedBudget(0)).Run(context.Background())
	assert.ErrorIs(t, err, ipc.ErrClosed)
	assert.Equal(t, ExitFailure, res.Status)
	assert.Equal(t, CauseInterrupt, res.Cause)
}

func TestRandomBudget_Bounds(t *testing.T) {
	src := RandomBudget{Max: DefaultBudgetMax}
	seen := make(map[uint32]bool)

	for i := 0; i < 1000; i++ {
		b := src.Budget(vclock.FromNanos(uint64(i)*vclock.DefaultTick), ipc.WorkerID(i%7+1))
		require.GreaterOrEqual(t, b, uint32(1))
		require.LessOrEqual(t, b, uint32(DefaultBudgetMax))
		seen[b] = true
	}
	assert.Greater(t, len(seen), 900, "budgets should be diverse")
}

func TestRandomBudget_SeededFromClock(t *testing.T) {
	src := RandomBudget{Max: 10}
	at := vclock.Time{Seconds: 1, Nanoseconds: 5000}

	assert.Equal(t, src.Budget(at, 3), src.Budget(at, 3), "same seed, same budget")
}

func TestFixedBudget(t *testing.T) {
	assert.Equal(t, uint32(7), FixedBudget(7).Budget(vclock.Time{}, 1))
}
