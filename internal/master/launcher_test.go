package master

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/ipc"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/resource"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/simlog"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/worker"
)

// crashingRunner takes the token and panics while holding it.
type crashingRunner struct {
	id     ipc.WorkerID
	tokens *ipc.TokenChannel
}

func (r crashingRunner) Run(ctx context.Context) (worker.Result, error) {
	if _, err := r.tokens.Receive(ctx, r.id); err != nil {
		return worker.Result{Cause: worker.CauseInterrupt}, err
	}
	panic("segfault in critical section")
}

func crashingFactory(cfg worker.Config) Runner {
	return crashingRunner{id: cfg.ID, tokens: cfg.Tokens}
}

func runCrash(t *testing.T, recoverToken bool) (*fixture, Result) {
	t.Helper()
	f := newFixture(t, WithRunnerFactory(crashingFactory), WithTokenRecovery(recoverToken))
	m := f.master(
		WithInitialWorkers(1),
		WithSpawnLimit(math.MaxInt32),
		WithClockLimit(math.MaxUint32),
		WithMaxDuration(100*time.Millisecond),
		WithTimerPeriod(10*time.Millisecond),
	)
	res, err := m.Run(context.Background())
	require.NoError(t, err)
	return f, res
}

func TestLauncher_CrashedHolderTokenRegenerated(t *testing.T) {
	f, res := runCrash(t, true)

	assert.Equal(t, StopTimeout, res.Reason)
	stats := f.launcher.Stats()
	assert.Equal(t, 1, stats.Launched)
	assert.Equal(t, 1, stats.Crashed)
	assert.Equal(t, 1, stats.Reclaimed)

	require.Len(t, f.sink.OfKind(simlog.KindWorkerCrashed), 1)
	reclaimed := f.sink.OfKind(simlog.KindTokenReclaimed)
	require.Len(t, reclaimed, 1)
	assert.EqualValues(t, 1, reclaimed[0].Worker)

	// Nobody was waiting, so the new token was parked until teardown.
	assert.Equal(t, 1, res.Teardown.DiscardedTokens)
}

func TestLauncher_CrashedHolderTokenLost(t *testing.T) {
	f, res := runCrash(t, false)

	assert.Equal(t, StopTimeout, res.Reason)
	stats := f.launcher.Stats()
	assert.Equal(t, 1, stats.Crashed)
	assert.Zero(t, stats.Reclaimed)
	assert.Empty(t, f.sink.OfKind(simlog.KindTokenReclaimed))
}

func TestLauncher_AssignsSequentialIDs(t *testing.T) {
	f := newFixture(t, WithBudget(worker.FixedBudget(math.MaxUint32)))
	defer f.res.Teardown(nil)

	for want := 1; want <= 3; want++ {
		id, err := f.launcher.Launch()
		require.NoError(t, err)
		assert.EqualValues(t, want, id)
	}
	assert.Equal(t, 3, f.launcher.Stats().Launched)
}

func TestLauncher_LaunchAfterTeardown(t *testing.T) {
	f := newFixture(t)
	f.res.Teardown(nil)

	_, err := f.launcher.Launch()
	require.Error(t, err)
	assert.True(t, IsLaunchError(err))
	assert.ErrorIs(t, err, resource.ErrTornDown)
}

func TestLauncher_TeardownJoinsWorkers(t *testing.T) {
	f := newFixture(t, WithBudget(worker.FixedBudget(math.MaxUint32)))
	for i := 0; i < 4; i++ {
		_, err := f.launcher.Launch()
		require.NoError(t, err)
	}

	report := f.res.Teardown(ipc.ErrTerminateInterrupt)
	assert.True(t, report.WorkersJoined)

	stats := f.launcher.Stats()
	assert.Equal(t, 4, stats.Exited)
	assert.Equal(t, 4, stats.ByCause[worker.CauseInterrupt])
}

func TestLauncher_NilRunner(t *testing.T) {
	f := newFixture(t, WithRunnerFactory(func(worker.Config) Runner { return nil }))
	defer f.res.Teardown(nil)

	_, err := f.launcher.Launch()
	require.Error(t, err)
	assert.True(t, IsLaunchError(err))
}

func TestLauncher_PopulationLimitWaitsForFreeSlot(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, WithPopulationLimit(1), WithRunnerFactory(func(worker.Config) Runner {
		return gatedRunner{release: release}
	}))
	defer f.res.Teardown(nil)

	_, err := f.launcher.Launch()
	require.NoError(t, err)

	launched := make(chan ipc.WorkerID, 1)
	go func() {
		id, err := f.launcher.Launch()
		assert.NoError(t, err)
		launched <- id
	}()

	select {
	case <-launched:
		t.Fatal("second worker started while the only slot was taken")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case id := <-launched:
		assert.EqualValues(t, 2, id)
	case <-time.After(time.Second):
		t.Fatal("launch did not resume after a worker exited")
	}
}

func TestLauncher_TeardownReleasesBlockedLaunch(t *testing.T) {
	f := newFixture(t, WithPopulationLimit(1), WithBudget(worker.FixedBudget(math.MaxUint32)))

	_, err := f.launcher.Launch()
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, err := f.launcher.Launch()
		errs <- err
	}()
	time.Sleep(10 * time.Millisecond)

	f.res.Teardown(ipc.ErrTerminateTimeout)

	select {
	case err := <-errs:
		require.Error(t, err)
		assert.True(t, IsLaunchError(err))
		assert.ErrorIs(t, err, resource.ErrTornDown)
	case <-time.After(time.Second):
		t.Fatal("launch still blocked after teardown")
	}
	assert.Equal(t, 1, f.launcher.Stats().Launched)
}

// gatedRunner exits once release is closed.
type gatedRunner struct {
	release <-chan struct{}
}

func (r gatedRunner) Run(ctx context.Context) (worker.Result, error) {
	select {
	case <-r.release:
		return worker.Result{Cause: worker.CauseBudget}, nil
	case <-ctx.Done():
		return worker.Result{Cause: worker.CauseInterrupt}, nil
	}
}
