package master

import (
	"errors"
	"fmt"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/ipc"
)

// Cancellation causes for the master's run context.
var (
	// ErrInterrupted is the cause used by the interrupt listener.
	ErrInterrupted = errors.New("master: interrupted")

	// ErrWallClockTimeout is the cause used by the wall-clock watchdog.
	ErrWallClockTimeout = errors.New("master: wall-clock limit reached")
)

// State is the master's lifecycle state. TERMINATED is absorbing.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateDraining:
		return "DRAINING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// StopReason says which condition ended the run.
type StopReason int

const (
	StopNone StopReason = iota
	StopClockLimit
	StopSpawnLimit
	StopTimeout
	StopInterrupt
	StopFailure
)

var stopReasonNames = map[StopReason]string{
	StopNone:       "none",
	StopClockLimit: "clock limit",
	StopSpawnLimit: "spawn limit",
	StopTimeout:    "timeout",
	StopInterrupt:  "interrupt",
	StopFailure:    "failure",
}

func (r StopReason) String() string {
	if name, ok := stopReasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("StopReason(%d)", int(r))
}

// Message is the line printed when the run ends.
func (r StopReason) Message() string {
	return "finished via " + r.String()
}

// MarshalText encodes the reason by name.
func (r StopReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a reason name.
func (r *StopReason) UnmarshalText(text []byte) error {
	reason, err := ParseStopReason(string(text))
	if err != nil {
		return err
	}
	*r = reason
	return nil
}

// ParseStopReason is the inverse of StopReason.String.
func ParseStopReason(s string) (StopReason, error) {
	for r, name := range stopReasonNames {
		if name == s {
			return r, nil
		}
	}
	return StopNone, fmt.Errorf("unknown stop reason %q", s)
}

// terminateCause maps a stop reason onto the signal broadcast to workers.
func (r StopReason) terminateCause() error {
	switch r {
	case StopTimeout:
		return ipc.ErrTerminateTimeout
	case StopInterrupt:
		return ipc.ErrTerminateInterrupt
	default:
		return ipc.ErrTerminateShutdown
	}
}

// reasonFromCause classifies an external cancellation.
func reasonFromCause(cause error) StopReason {
	if errors.Is(cause, ErrWallClockTimeout) {
		return StopTimeout
	}
	return StopInterrupt
}

// LaunchError reports a worker that could not be started. It is fatal for the
// master because a missing replacement breaks the population invariant.
type LaunchError struct {
	Worker ipc.WorkerID
	Err    error
}

func (e *LaunchError) Error() string {
	if e.Worker != 0 {
		return fmt.Sprintf("launch worker %d: %v", e.Worker, e.Err)
	}
	return fmt.Sprintf("launch worker: %v", e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// IsLaunchError reports whether err is (or wraps) a LaunchError.
func IsLaunchError(err error) bool {
	var le *LaunchError
	return errors.As(err, &le)
}
