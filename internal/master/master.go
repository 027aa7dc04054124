// Package master drives the simulation: it owns the virtual clock, keeps the
// worker population constant by replacing every worker that reports
// completion, and stops on the first termination condition that holds.
//
// All mutable run state is owned by the loop goroutine in Run. The wall-clock
// watchdog and the interrupt listener never touch it. They cancel the run
// context, and a stop listener tears the shared resources down at once so
// that workers are released even while the loop is blocked in a spawn. The
// loop notices the cancellation on its next iteration.
package master

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/ipc"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/resource"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/simlog"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/vclock"
)

// Defaults.
const (
	DefaultWorkers     = 5
	DefaultClockLimit  = 2
	DefaultSpawnLimit  = 100
	DefaultMaxDuration = 20 * time.Second
)

// ErrAlreadyRun is returned when Run is called a second time.
var ErrAlreadyRun = errors.New("master: already run")

// WorkerRecord is what the master remembers about a live worker.
type WorkerRecord struct {
	Spawned vclock.Time
}

// Result summarizes a finished run.
type Result struct {
	Reason       StopReason
	TotalSpawned int
	Live         int
	Completions  int
	FinalClock   vclock.Time
	Teardown     resource.TeardownReport
	Elapsed      time.Duration
}

// Master is the simulation controller.
type Master struct {
	res      *resource.Manager
	launcher Launcher
	sink     simlog.Sink
	logger   *slog.Logger

	initial     int
	clockLimit  uint32
	spawnLimit  int
	tick        uint64
	maxDuration time.Duration
	timerPeriod time.Duration
	now         func() time.Time

	state atomic.Int32
	ran   atomic.Bool

	// Loop-owned.
	live         int
	totalSpawned int
	completions  int
	records      map[ipc.WorkerID]WorkerRecord
}

// Option configures a Master.
type Option func(*Master)

// WithInitialWorkers sets how many workers are spawned at startup. It is also
// the population the master maintains.
func WithInitialWorkers(n int) Option {
	return func(m *Master) { m.initial = n }
}

// WithClockLimit stops the run once the virtual clock reaches sec seconds.
func WithClockLimit(sec uint32) Option {
	return func(m *Master) { m.clockLimit = sec }
}

// WithSpawnLimit stops the run once more than n workers have been spawned.
func WithSpawnLimit(n int) Option {
	return func(m *Master) { m.spawnLimit = n }
}

// WithTick sets the virtual nanoseconds added per loop iteration.
func WithTick(ns uint64) Option {
	return func(m *Master) {
		if ns > 0 {
			m.tick = ns
		}
	}
}

// WithMaxDuration sets the wall-clock limit. A negative value disables it.
func WithMaxDuration(d time.Duration) Option {
	return func(m *Master) { m.maxDuration = d }
}

// WithTimerPeriod sets how often the watchdog checks the wall clock.
func WithTimerPeriod(d time.Duration) Option {
	return func(m *Master) { m.timerPeriod = d }
}

// WithSink sets where simulation events are recorded.
func WithSink(s simlog.Sink) Option {
	return func(m *Master) {
		if s != nil {
			m.sink = s
		}
	}
}

// WithLogger sets the master's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Master) { m.logger = l }
}

// WithNow overrides the wall clock used by the watchdog.
func WithNow(now func() time.Time) Option {
	return func(m *Master) { m.now = now }
}

// New creates a master over already-acquired resources.
func New(res *resource.Manager, launcher Launcher, opts ...Option) *Master {
	m := &Master{
		res:         res,
		launcher:    launcher,
		sink:        simlog.Discard,
		logger:      slog.Default(),
		initial:     DefaultWorkers,
		clockLimit:  DefaultClockLimit,
		spawnLimit:  DefaultSpawnLimit,
		tick:        vclock.DefaultTick,
		maxDuration: DefaultMaxDuration,
		timerPeriod: DefaultTimerPeriod,
		now:         time.Now,
		records:     make(map[ipc.WorkerID]WorkerRecord),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Master) State() State {
	return State(m.state.Load())
}

// Run executes the simulation until a termination condition holds, then tears
// the shared resources down. Cancelling ctx is treated as an interrupt unless
// its cause is ErrWallClockTimeout.
//
// The error is non-nil only for StopFailure.
func (m *Master) Run(ctx context.Context) (Result, error) {
	if !m.ran.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyRun
	}
	started := m.now()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	wd := Watchdog{
		Limit:  m.maxDuration,
		Period: m.timerPeriod,
		Now:    m.now,
		Logger: m.logger,
	}
	go wd.Run(ctx, started, func() { cancel(ErrWallClockTimeout) })
	go m.stopOnCancel(ctx)

	m.state.Store(int32(StateRunning))
	m.logger.Info("simulation started",
		"workers", m.initial,
		"clock_limit", m.clockLimit,
		"spawn_limit", m.spawnLimit,
		"max_duration", m.maxDuration,
	)

	for i := 0; i < m.initial; i++ {
		if err := m.spawn(); err != nil {
			return m.fail(ctx, err, started)
		}
	}

	for {
		m.res.Clock().Advance(m.tick)

		if report, ok := m.res.Reports().TryReceive(); ok {
			if err := m.complete(report); err != nil {
				return m.fail(ctx, err, started)
			}
		}

		if reason := m.check(ctx); reason != StopNone {
			return m.drain(reason, started), nil
		}
	}
}

// stopOnCancel tears the resources down as soon as ctx is cancelled. After a
// normal stop teardown has already run and this is a no-op.
func (m *Master) stopOnCancel(ctx context.Context) {
	<-ctx.Done()
	if m.res.TornDown() {
		return
	}
	reason := reasonFromCause(context.Cause(ctx))
	m.logger.Info("stop requested, releasing resources", "reason", reason.String())
	m.res.Teardown(reason.terminateCause())
}

// fail ends the run after a spawn error. A spawn refused because an external
// stop already tore the resources down is that stop, not a failure.
func (m *Master) fail(ctx context.Context, err error, started time.Time) (Result, error) {
	if ctx.Err() != nil && errors.Is(err, resource.ErrTornDown) {
		return m.drain(reasonFromCause(context.Cause(ctx)), started), nil
	}
	return m.drain(StopFailure, started), err
}

// check evaluates the termination predicates in priority order.
func (m *Master) check(ctx context.Context) StopReason {
	if m.res.Clock().Snapshot().Seconds >= m.clockLimit {
		return StopClockLimit
	}
	if m.totalSpawned > m.spawnLimit {
		return StopSpawnLimit
	}
	select {
	case <-ctx.Done():
		return reasonFromCause(context.Cause(ctx))
	default:
		return StopNone
	}
}

func (m *Master) spawn() error {
	id, err := m.launcher.Launch()
	if err != nil {
		if !IsLaunchError(err) {
			err = &LaunchError{Err: err}
		}
		m.logger.Error("failed to spawn worker", "error", err)
		return err
	}

	now := m.res.Clock().Snapshot()
	m.live++
	m.totalSpawned++
	m.records[id] = WorkerRecord{Spawned: now}

	m.logger.Info("processes spawned",
		"worker", int(id),
		"clock", now.String(),
		"total_spawned", m.totalSpawned,
		"live", m.live,
	)
	m.record(simlog.Event{
		Kind:         simlog.KindSpawn,
		Worker:       id,
		MasterClock:  now,
		TotalSpawned: m.totalSpawned,
		Live:         m.live,
	})
	return nil
}

// complete accounts for one completion report and spawns the replacement.
func (m *Master) complete(report ipc.CompletionReport) error {
	now := m.res.Clock().Snapshot()
	if m.live > 0 {
		m.live--
	} else {
		m.logger.Warn("completion report with no live workers", "worker", int(report.Worker))
	}
	if _, ok := m.records[report.Worker]; !ok {
		m.logger.Warn("completion report from unknown worker", "worker", int(report.Worker))
	}
	delete(m.records, report.Worker)
	m.completions++

	ev := simlog.Event{
		Kind:         simlog.KindCompletion,
		Worker:       report.Worker,
		MasterClock:  now,
		WorkerClock:  report.Clock,
		TotalSpawned: m.totalSpawned,
		Live:         m.live,
	}
	m.logger.Info(simlog.FormatCompletion(ev))
	m.record(ev)

	return m.spawn()
}

// drain moves to DRAINING, tears the resources down and summarizes the run.
func (m *Master) drain(reason StopReason, started time.Time) Result {
	m.state.Store(int32(StateDraining))
	m.logger.Info("simulation stopping",
		"reason", reason.String(),
		"total_spawned", m.totalSpawned,
		"live", m.live,
	)

	td := m.res.Teardown(reason.terminateCause())
	final := td.FinalClock
	m.state.Store(int32(StateTerminated))
	m.logger.Info("simulation stopped", "reason", reason.String(), "clock", final.String())

	m.record(simlog.Event{
		Kind:         simlog.KindStop,
		MasterClock:  final,
		TotalSpawned: m.totalSpawned,
		Live:         m.live,
		Reason:       reason.String(),
	})

	return Result{
		Reason:       reason,
		TotalSpawned: m.totalSpawned,
		Live:         m.live,
		Completions:  m.completions,
		FinalClock:   final,
		Teardown:     td,
		Elapsed:      m.now().Sub(started),
	}
}

func (m *Master) record(ev simlog.Event) {
	if err := m.sink.Record(ev); err != nil {
		m.logger.Warn("record event", "kind", string(ev.Kind), "error", err)
	}
}
