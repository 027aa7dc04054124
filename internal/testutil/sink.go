package testutil

import (
	"sync"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/simlog"
)

// RecordingSink keeps every event in memory so tests can assert on the
// sequence the master produced.
//
// Thread-safety: safe for concurrent use; crash events arrive from worker
// goroutines.
type RecordingSink struct {
	mu     sync.Mutex
	events []simlog.Event

	// Err, if set, is returned from every Record call after the event is kept.
	Err error
}

// Record implements simlog.Sink.
func (s *RecordingSink) Record(ev simlog.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.Err
}

// Events returns a copy of all recorded events in order.
func (s *RecordingSink) Events() []simlog.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]simlog.Event(nil), s.events...)
}

// OfKind returns the recorded events of the given kind in order.
func (s *RecordingSink) OfKind(kind simlog.Kind) []simlog.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []simlog.Event
	for _, ev := range s.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
