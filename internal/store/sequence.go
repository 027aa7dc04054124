package store

import "sync/atomic"

// Sequence is a monotonic logical clock for event ordering within a run.
//
// Thread-safety: Sequence is safe for concurrent use (atomic operations).
// The master loop stamps most events, but crash events come from worker
// goroutines.
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0. The first Next returns 1.
func NewSequence() *Sequence {
	return &Sequence{}
}

// NewSequenceAt creates a sequence that resumes after start.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next returns the next sequence number.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the last issued sequence number.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
