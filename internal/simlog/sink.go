// Package simlog records simulation events.
//
// The master reports every spawn, completion, token recovery and the final
// stop through a Sink. FileSink writes the human-readable completion log;
// other sinks (such as the SQLite run log) persist the full event stream.
package simlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/ipc"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/vclock"
)

// Kind identifies an event.
type Kind string

const (
	KindSpawn          Kind = "spawn"
	KindCompletion     Kind = "completion"
	KindTokenReclaimed Kind = "token_reclaimed"
	KindWorkerCrashed  Kind = "worker_crashed"
	KindStop           Kind = "stop"
)

// Event is one entry in the simulation log.
type Event struct {
	Kind   Kind
	Worker ipc.WorkerID

	// MasterClock is the master's clock when the event was observed.
	MasterClock vclock.Time
	// WorkerClock is the worker's self-reported clock (completions only).
	WorkerClock vclock.Time

	TotalSpawned int
	Live         int

	// Reason is set on stop events.
	Reason string
}

// Sink receives simulation events. Record is called from the master loop and,
// for crash events, from worker goroutines, so implementations must be safe
// for concurrent use.
type Sink interface {
	Record(ev Event) error
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(Event) error { return nil }

// Multi fans every event out to all sinks and joins their errors.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FileSink writes one line per completion:
//
//	Master: Child 3 is terminating at my time 0:48000 because it reached 0:47000
type FileSink struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
}

// NewFileSink writes to w. If w is an io.Closer, Close closes it.
func NewFileSink(w io.Writer) *FileSink {
	s := &FileSink{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenFile opens path for appending, creating it if needed.
func OpenFile(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return NewFileSink(f), nil
}

// Record implements Sink. Only completion events produce output.
func (s *FileSink) Record(ev Event) error {
	if ev.Kind != KindCompletion {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintln(s.w, FormatCompletion(ev)); err != nil {
		return fmt.Errorf("write log line: %w", err)
	}
	return s.w.Flush()
}

// Close flushes buffered output and closes the underlying writer.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.w.Flush()
	if s.closer != nil {
		err = errors.Join(err, s.closer.Close())
		s.closer = nil
	}
	return err
}

// FormatCompletion renders a completion event as a log line.
func FormatCompletion(ev Event) string {
	return fmt.Sprintf("Master: Child %d is terminating at my time %s because it reached %s",
		ev.Worker, ev.MasterClock, ev.WorkerClock)
}
