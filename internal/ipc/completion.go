package ipc

// CompletionChannel carries completion reports from workers to the master.
//
// Reports may arrive in any order. The master polls with TryReceive so its
// loop never blocks on an empty channel.
type CompletionChannel struct {
	q *queue[CompletionReport]
}

// NewCompletionChannel creates an open, empty channel.
func NewCompletionChannel() *CompletionChannel {
	return &CompletionChannel{q: newQueue[CompletionReport]()}
}

// Send queues a report. Returns ErrClosed after teardown.
func (c *CompletionChannel) Send(r CompletionReport) error {
	if r.Type == 0 {
		r.Type = MessageCompletion
	}
	if !c.q.Enqueue(r) {
		return ErrClosed
	}
	return nil
}

// TryReceive returns the oldest report, if any, without blocking.
func (c *CompletionChannel) TryReceive() (CompletionReport, bool) {
	return c.q.TryDequeue()
}

// Ready returns a channel signalled when a report may be available.
func (c *CompletionChannel) Ready() <-chan struct{} {
	return c.q.Wait()
}

// Len returns the number of undelivered reports.
func (c *CompletionChannel) Len() int {
	return c.q.Len()
}

// Close destroys the channel and returns the number of reports that were
// never received. Repeated calls return 0.
func (c *CompletionChannel) Close() int {
	return c.q.Close()
}

// Closed reports whether the channel was destroyed.
func (c *CompletionChannel) Closed() bool {
	return c.q.Closed()
}
