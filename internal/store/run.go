package store

import (
	"errors"
	"time"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/ipc"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/simlog"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/vclock"
)

// ErrRunNotFound is returned when no run matches the requested ID.
var ErrRunNotFound = errors.New("store: run not found")

// RunStatus is the lifecycle of a stored run.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunFinished RunStatus = "finished"
)

// Run is one stored simulation run.
type Run struct {
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	Workers     int           `json:"workers"`
	ClockLimit  uint32        `json:"clock_limit_seconds"`
	SpawnLimit  int           `json:"spawn_limit"`
	MaxDuration time.Duration `json:"max_duration"`

	Status       RunStatus   `json:"status"`
	StopReason   string      `json:"stop_reason,omitempty"`
	TotalSpawned int         `json:"total_spawned"`
	Completions  int         `json:"completions"`
	FinalClock   vclock.Time `json:"final_clock"`
	FinishedAt   *time.Time  `json:"finished_at,omitempty"`
}

// RunSummary is written when a run ends.
type RunSummary struct {
	StopReason   string
	TotalSpawned int
	Completions  int
	FinalClock   vclock.Time
	FinishedAt   time.Time
}

// EventRecord is a stored event with its sequence number.
type EventRecord struct {
	Seq          int64        `json:"seq"`
	Kind         simlog.Kind  `json:"kind"`
	Worker       ipc.WorkerID `json:"worker,omitempty"`
	MasterClock  vclock.Time  `json:"master_clock"`
	WorkerClock  vclock.Time  `json:"worker_clock"`
	TotalSpawned int          `json:"total_spawned"`
	Live         int          `json:"live"`
	Reason       string       `json:"reason,omitempty"`
}

// Event converts the record back into a simulation event.
func (r EventRecord) Event() simlog.Event {
	return simlog.Event{
		Kind:         r.Kind,
		Worker:       r.Worker,
		MasterClock:  r.MasterClock,
		WorkerClock:  r.WorkerClock,
		TotalSpawned: r.TotalSpawned,
		Live:         r.Live,
		Reason:       r.Reason,
	}
}
