package store

import (
	"context"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/simlog"
)

// Recorder is a simlog.Sink that appends every event to one run's log.
type Recorder struct {
	// ctx bounds every write; Sink.Record has no context of its own.
	ctx   context.Context
	store *Store
	runID string
	seq   *Sequence
}

// NewRecorder returns a sink writing events for runID.
func NewRecorder(ctx context.Context, s *Store, runID string) *Recorder {
	return &Recorder{ctx: ctx, store: s, runID: runID, seq: NewSequence()}
}

// Record implements simlog.Sink.
func (r *Recorder) Record(ev simlog.Event) error {
	return r.store.WriteEvent(r.ctx, r.runID, r.seq.Next(), ev)
}

// RunID returns the run this recorder writes to.
func (r *Recorder) RunID() string { return r.runID }

// Written returns how many events have been recorded.
func (r *Recorder) Written() int64 { return r.seq.Current() }
