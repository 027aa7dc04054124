// Package resource owns the shared state of a simulation run: the virtual
// clock, the token channel and the completion channel.
//
// Manager.Teardown is the single shutdown path. The main loop, the interrupt
// listener and the wall-clock timer may all call it, concurrently and more
// than once; the first call does the work and every call returns the same
// report.
package resource

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/ipc"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/vclock"
)

// Default resource names.
const (
	ClockName  = "/ossclock"
	TokenName  = "msgq/critsec"
	ReportName = "msgq/oss"
)

// DefaultGrace is how long teardown waits for workers after broadcasting
// termination.
const DefaultGrace = 2 * time.Second

// ErrTornDown is returned by operations on a manager whose resources have been
// released.
var ErrTornDown = errors.New("resource: torn down")

// Waiter is anything teardown can join, typically the worker group.
type Waiter interface {
	Wait() error
}

// TeardownReport describes what a teardown released.
type TeardownReport struct {
	Cause           error
	WorkersJoined   bool
	DiscardedTokens int
	UnreadReports   int
	FinalClock      vclock.Time
	Released        []string
	Duration        time.Duration
}

// Manager owns the run's shared resources.
type Manager struct {
	registry *Registry
	names    []string
	grace    time.Duration
	logger   *slog.Logger

	clock   *vclock.Clock
	tokens  *ipc.TokenChannel
	reports *ipc.CompletionChannel

	workerCtx context.Context
	terminate context.CancelCauseFunc

	mu      sync.Mutex
	workers Waiter

	once   sync.Once
	done   chan struct{}
	report TeardownReport
}

// Option configures a Manager.
type Option func(*Manager)

// WithGrace sets how long teardown waits for workers to exit.
func WithGrace(d time.Duration) Option {
	return func(m *Manager) { m.grace = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithNames overrides the resource names, e.g. to run several simulations in
// one registry.
func WithNames(clock, token, report string) Option {
	return func(m *Manager) { m.names = []string{clock, token, report} }
}

// Open acquires the resource names in registry, creates the clock and both
// channels, and seeds the token. On failure nothing stays acquired.
func Open(registry *Registry, opts ...Option) (*Manager, error) {
	m := &Manager{
		registry: registry,
		names:    []string{ClockName, TokenName, ReportName},
		grace:    DefaultGrace,
		logger:   slog.Default(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	for i, name := range m.names {
		if err := registry.Acquire(name); err != nil {
			for _, prev := range m.names[:i] {
				registry.Release(prev)
			}
			return nil, err
		}
	}

	m.clock = vclock.New()
	m.tokens = ipc.NewTokenChannel()
	m.reports = ipc.NewCompletionChannel()
	if err := m.tokens.Seed(); err != nil {
		m.releaseNames()
		return nil, &AcquireError{Name: m.names[1], Err: err}
	}
	m.workerCtx, m.terminate = context.WithCancelCause(context.Background())

	m.logger.Debug("shared resources acquired", "names", m.names)
	return m, nil
}

// Clock returns the virtual clock. Only the master advances it.
func (m *Manager) Clock() *vclock.Clock { return m.clock }

// Tokens returns the token channel.
func (m *Manager) Tokens() *ipc.TokenChannel { return m.tokens }

// Reports returns the completion channel.
func (m *Manager) Reports() *ipc.CompletionChannel { return m.reports }

// WorkerContext is cancelled, with the termination cause, when teardown
// broadcasts termination. Every worker runs under it.
func (m *Manager) WorkerContext() context.Context { return m.workerCtx }

// Names returns the resource names this manager holds.
func (m *Manager) Names() []string {
	return append([]string(nil), m.names...)
}

// AttachWorkers registers the worker group that teardown should join.
func (m *Manager) AttachWorkers(w Waiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers = w
}

// Done is closed once teardown has completed.
func (m *Manager) Done() <-chan struct{} { return m.done }

// TornDown reports whether teardown has completed.
func (m *Manager) TornDown() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// Teardown broadcasts termination to all workers, waits up to the grace
// period for them to exit, then destroys the channels and the clock and
// releases every resource name. cause is delivered to workers through
// context.Cause; nil means ipc.ErrTerminateShutdown.
//
// Only the first call does any work. Later and concurrent calls block until
// it finishes and return the same report.
func (m *Manager) Teardown(cause error) TeardownReport {
	m.once.Do(func() {
		defer close(m.done)
		if cause == nil {
			cause = ipc.ErrTerminateShutdown
		}
		started := time.Now()
		m.logger.Info("releasing shared resources", "cause", cause)

		m.terminate(cause)
		joined := m.joinWorkers()
		if !joined {
			m.logger.Warn("workers still running after grace period", "grace", m.grace)
		}

		m.report = TeardownReport{
			Cause:           cause,
			WorkersJoined:   joined,
			DiscardedTokens: m.tokens.Close(),
			UnreadReports:   m.reports.Close(),
			FinalClock:      m.clock.Snapshot(),
		}
		m.clock.Reset()
		m.report.Released = m.releaseNames()
		m.report.Duration = time.Since(started)

		m.logger.Info("shared resources released",
			"released", m.report.Released,
			"discarded_tokens", m.report.DiscardedTokens,
			"unread_reports", m.report.UnreadReports,
			"workers_joined", joined,
		)
	})
	<-m.done
	return m.report
}

// joinWorkers waits for the attached group to finish, bounded by the grace
// period. With nothing attached there is nothing to wait for.
func (m *Manager) joinWorkers() bool {
	m.mu.Lock()
	w := m.workers
	m.mu.Unlock()
	if w == nil {
		return true
	}

	joined := make(chan struct{})
	go func() {
		if err := w.Wait(); err != nil {
			m.logger.Debug("worker group finished with error", "error", err)
		}
		close(joined)
	}()

	timer := time.NewTimer(m.grace)
	defer timer.Stop()
	select {
	case <-joined:
		return true
	case <-timer.C:
		return false
	}
}

func (m *Manager) releaseNames() []string {
	var released []string
	for i := len(m.names) - 1; i >= 0; i-- {
		if m.registry.Release(m.names[i]) {
			released = append(released, m.names[i])
		}
	}
	return released
}
