package master

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/ipc"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/resource"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/simlog"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/worker"
)

// Launcher starts a new worker attached to the run's shared resources.
type Launcher interface {
	Launch() (ipc.WorkerID, error)
}

// Runner is a started worker.
type Runner interface {
	Run(ctx context.Context) (worker.Result, error)
}

// RunnerFactory builds the runner for a newly assigned worker ID.
type RunnerFactory func(cfg worker.Config) Runner

// DefaultRunnerFactory builds the real token-protocol worker.
func DefaultRunnerFactory(cfg worker.Config) Runner {
	return worker.New(cfg)
}

var errNilRunner = errors.New("runner factory returned nil")

// launchRetry is how often a Launch held back by the population limit tries
// again.
const launchRetry = time.Millisecond

// LauncherStats counts worker outcomes.
type LauncherStats struct {
	Launched  int
	Exited    int
	Crashed   int
	Reclaimed int
	ByCause   map[worker.Cause]int
}

// GoroutineLauncher runs each worker in its own goroutine inside an errgroup.
// The group is attached to the resource manager, so teardown joins it.
//
// A worker that panics is recovered here. If it was holding the token the
// token is either regenerated (token recovery on) or lost for good, leaving
// the remaining workers blocked until the wall-clock limit fires.
//
// The launcher itself is the Waiter handed to the resource manager. Once
// teardown starts waiting on it no further worker is admitted.
type GoroutineLauncher struct {
	res          *resource.Manager
	group        *errgroup.Group
	factory      RunnerFactory
	budget       worker.BudgetSource
	sink         simlog.Sink
	logger       *slog.Logger
	recoverToken bool

	nextID atomic.Int64

	gate   sync.Mutex
	closed bool

	mu    sync.Mutex
	stats LauncherStats
}

// LauncherOption configures a GoroutineLauncher.
type LauncherOption func(*GoroutineLauncher)

// WithBudget sets the workers' budget source.
func WithBudget(b worker.BudgetSource) LauncherOption {
	return func(l *GoroutineLauncher) { l.budget = b }
}

// WithRunnerFactory replaces the worker implementation.
func WithRunnerFactory(f RunnerFactory) LauncherOption {
	return func(l *GoroutineLauncher) { l.factory = f }
}

// WithLauncherSink records crash and token recovery events.
func WithLauncherSink(s simlog.Sink) LauncherOption {
	return func(l *GoroutineLauncher) { l.sink = s }
}

// WithLauncherLogger sets the logger handed to workers.
func WithLauncherLogger(lg *slog.Logger) LauncherOption {
	return func(l *GoroutineLauncher) { l.logger = lg }
}

// WithTokenRecovery controls whether a token held by a crashed worker is
// regenerated. Default: true.
func WithTokenRecovery(enabled bool) LauncherOption {
	return func(l *GoroutineLauncher) { l.recoverToken = enabled }
}

// WithPopulationLimit caps concurrently running workers. Launch waits while
// the cap is reached, until a worker exits or teardown begins. Zero means no
// cap.
func WithPopulationLimit(n int) LauncherOption {
	return func(l *GoroutineLauncher) {
		if n > 0 {
			l.group.SetLimit(n)
		}
	}
}

// NewGoroutineLauncher creates a launcher bound to res.
func NewGoroutineLauncher(res *resource.Manager, opts ...LauncherOption) *GoroutineLauncher {
	l := &GoroutineLauncher{
		res:          res,
		group:        &errgroup.Group{},
		factory:      DefaultRunnerFactory,
		budget:       worker.RandomBudget{Max: worker.DefaultBudgetMax},
		sink:         simlog.Discard,
		logger:       slog.Default(),
		recoverToken: true,
		stats:        LauncherStats{ByCause: make(map[worker.Cause]int)},
	}
	for _, opt := range opts {
		opt(l)
	}
	res.AttachWorkers(l)
	return l
}

// Launch implements Launcher. It fails with resource.ErrTornDown once
// teardown has begun, including while it is waiting for a free slot.
func (l *GoroutineLauncher) Launch() (ipc.WorkerID, error) {
	stopping := l.res.WorkerContext().Done()
	select {
	case <-stopping:
		return 0, &LaunchError{Err: resource.ErrTornDown}
	default:
	}

	id := ipc.WorkerID(l.nextID.Add(1))
	r := l.factory(worker.Config{
		ID:      id,
		Clock:   l.res.Clock(),
		Tokens:  l.res.Tokens(),
		Reports: l.res.Reports(),
		Budget:  l.budget,
		Logger:  l.logger,
	})
	if r == nil {
		return 0, &LaunchError{Worker: id, Err: errNilRunner}
	}

	run := func() error {
		l.supervise(id, r)
		return nil
	}

	var retry *time.Ticker
	for {
		started, err := l.tryStart(run)
		if err != nil {
			return 0, &LaunchError{Worker: id, Err: err}
		}
		if started {
			break
		}
		if retry == nil {
			retry = time.NewTicker(launchRetry)
			defer retry.Stop()
			l.logger.Debug("population limit reached, waiting for a free slot", "worker", int(id))
		}
		select {
		case <-stopping:
			return 0, &LaunchError{Worker: id, Err: resource.ErrTornDown}
		case <-retry.C:
		}
	}

	l.mu.Lock()
	l.stats.Launched++
	l.mu.Unlock()
	return id, nil
}

// tryStart admits run into the group unless teardown has begun.
func (l *GoroutineLauncher) tryStart(run func() error) (bool, error) {
	l.gate.Lock()
	defer l.gate.Unlock()
	if l.closed || l.res.WorkerContext().Err() != nil {
		return false, resource.ErrTornDown
	}
	return l.group.TryGo(run), nil
}

// Stats returns a copy of the outcome counters.
func (l *GoroutineLauncher) Stats() LauncherStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.stats
	out.ByCause = make(map[worker.Cause]int, len(l.stats.ByCause))
	for k, v := range l.stats.ByCause {
		out.ByCause[k] = v
	}
	return out
}

// Wait stops admitting workers and blocks until every launched worker has
// returned.
func (l *GoroutineLauncher) Wait() error {
	l.gate.Lock()
	l.closed = true
	l.gate.Unlock()
	return l.group.Wait()
}

func (l *GoroutineLauncher) supervise(id ipc.WorkerID, r Runner) {
	defer func() {
		if p := recover(); p != nil {
			l.crashed(id, p)
		}
	}()

	res, err := r.Run(l.res.WorkerContext())

	l.mu.Lock()
	l.stats.Exited++
	l.stats.ByCause[res.Cause]++
	l.mu.Unlock()

	if err != nil && res.Cause == worker.CauseFailure {
		l.logger.Warn("worker exited with failure", "worker", int(id), "status", int(res.Status), "error", err)
		return
	}
	l.logger.Debug("worker exited", "worker", int(id), "status", int(res.Status), "cause", string(res.Cause))
}

func (l *GoroutineLauncher) crashed(id ipc.WorkerID, p any) {
	now := l.res.Clock().Snapshot()

	l.mu.Lock()
	l.stats.Crashed++
	l.mu.Unlock()

	l.logger.Error("worker crashed", "worker", int(id), "panic", p)
	l.record(simlog.Event{Kind: simlog.KindWorkerCrashed, Worker: id, MasterClock: now})

	holder, held := l.res.Tokens().Holder()
	if !held || holder != id {
		return
	}
	if !l.recoverToken {
		l.logger.Error("token lost with crashed worker, no progress until the wall-clock limit", "worker", int(id))
		return
	}
	if l.res.Tokens().Reclaim(id) {
		l.mu.Lock()
		l.stats.Reclaimed++
		l.mu.Unlock()

		l.logger.Warn("token regenerated after holder crashed", "worker", int(id))
		l.record(simlog.Event{Kind: simlog.KindTokenReclaimed, Worker: id, MasterClock: now})
	}
}

func (l *GoroutineLauncher) record(ev simlog.Event) {
	if err := l.sink.Record(ev); err != nil {
		l.logger.Warn("record event", "kind", string(ev.Kind), "error", err)
	}
}
