// Package ipc defines the message contracts exchanged between the master and
// its workers, and the two channels that carry them.
//
// The TokenChannel carries the single critical-section token among workers.
// The CompletionChannel carries completion reports from workers to the master.
// Neither channel has a capacity limit; sends fail only after the channel has
// been closed during teardown.
package ipc

import (
	"errors"
	"strconv"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/vclock"
)

// MessageType tags every message on a channel.
type MessageType int

const (
	// MessageToken tags the critical-section token.
	MessageToken MessageType = 1001
	// MessageCompletion tags a worker's completion report.
	MessageCompletion MessageType = 1002
)

// WorkerID identifies a worker for the lifetime of a run. IDs start at 1 and
// are never reused; 0 means "no worker".
type WorkerID int

func (id WorkerID) String() string {
	return strconv.Itoa(int(id))
}

// Token proves critical-section possession. It carries no payload.
type Token struct {
	Type MessageType
}

// CompletionReport is sent by a worker exactly once, when its run budget has
// elapsed.
type CompletionReport struct {
	Type   MessageType
	Worker WorkerID

	// Clock is the worker's view of the virtual clock at exit.
	Clock vclock.Time

	// Start and Budget describe the worker's run so the master can account
	// for it without tracking budgets itself.
	Start  vclock.Time
	Budget uint32
}

var (
	// ErrClosed is returned by channel operations after teardown.
	ErrClosed = errors.New("ipc: channel closed")

	// ErrNotHolder is returned when a worker forwards or discards a token
	// it does not hold.
	ErrNotHolder = errors.New("ipc: worker does not hold the token")

	// ErrAlreadySeeded is returned when the token would be created twice.
	ErrAlreadySeeded = errors.New("ipc: token already seeded")
)

// Terminate causes are delivered to workers through context.Cause when the
// master broadcasts termination.
var (
	// ErrTerminateInterrupt asks workers to exit because the user interrupted
	// the simulation.
	ErrTerminateInterrupt = errors.New("terminate: interrupt")

	// ErrTerminateTimeout asks workers to exit because the wall-clock limit
	// elapsed.
	ErrTerminateTimeout = errors.New("terminate: timeout")

	// ErrTerminateShutdown asks workers to exit because the master reached a
	// normal stop condition.
	ErrTerminateShutdown = errors.New("terminate: shutdown")
)
