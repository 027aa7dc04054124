package ipc

import (
	"context"
	"sync"
)

// TokenChannel circulates the single critical-section token among workers.
//
// Workers block in Receive until the token reaches them. Blocked workers are
// served in arrival order, so the token visits every waiting worker once before
// any worker sees it twice; a newly started worker joins at the tail. When no
// worker is waiting, a forwarded token is parked in the channel until the next
// Receive, the same way a message sits in a queue until it is read.
//
// Workers that Join the rotation get a stronger guarantee for parked tokens:
// the worker that forwarded a token may not take it back while other members
// are still in the rotation. It waits in line instead.
//
// The channel tracks the current holder. A token is held from the moment it is
// handed to a worker until that worker forwards or discards it.
type TokenChannel struct {
	mu      sync.Mutex
	parked  []Token
	waiters []*tokenWaiter
	holder  WorkerID
	last    WorkerID
	members int
	seeded  bool
	closed  bool
	passes  uint64
}

type tokenWaiter struct {
	id    WorkerID
	inbox chan Token
}

// NewTokenChannel creates an empty channel. Call Seed to create the token.
func NewTokenChannel() *TokenChannel {
	return &TokenChannel{}
}

// Seed creates the token. It may be called once.
func (c *TokenChannel) Seed() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.seeded {
		return ErrAlreadySeeded
	}
	c.seeded = true
	c.deliverLocked(Token{Type: MessageToken})
	return nil
}

// Receive blocks until worker id holds the token, ctx is done, or the channel
// is closed.
func (c *TokenChannel) Receive(ctx context.Context, id WorkerID) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Token{}, ErrClosed
	}
	if len(c.parked) > 0 && !c.yieldsLocked(id) {
		tok := c.parked[0]
		c.parked = c.parked[1:]
		c.holder = id
		c.mu.Unlock()
		return tok, nil
	}

	w := &tokenWaiter{id: id, inbox: make(chan Token, 1)}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()

	select {
	case tok, ok := <-w.inbox:
		if !ok {
			return Token{}, ErrClosed
		}
		return tok, nil

	case <-ctx.Done():
		c.abandon(w)
		return Token{}, ctx.Err()
	}
}

// yieldsLocked reports whether id must leave a parked token to the rest of
// the rotation.
func (c *TokenChannel) yieldsLocked(id WorkerID) bool {
	return id != 0 && id == c.last && c.members > 1
}

// Join adds a worker to the rotation.
func (c *TokenChannel) Join(id WorkerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members++
}

// Leave removes a worker from the rotation. When at most one member remains,
// a parked token goes to whoever is still waiting for it.
func (c *TokenChannel) Leave(id WorkerID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.members > 0 {
		c.members--
	}
	if c.last == id {
		c.last = 0
	}
	if c.closed || c.members > 1 {
		return
	}
	for len(c.parked) > 0 && len(c.waiters) > 0 {
		tok := c.parked[0]
		c.parked = c.parked[1:]
		c.deliverLocked(tok)
	}
}

// abandon removes a waiter that gave up. If the token was handed to it in the
// meantime, the token moves on to the next worker instead of being lost.
func (c *TokenChannel) abandon(w *tokenWaiter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, other := range c.waiters {
		if other == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}

	select {
	case tok, ok := <-w.inbox:
		if ok && c.holder == w.id {
			c.holder = 0
			c.deliverLocked(tok)
		}
	default:
	}
}

// Forward passes the token from holder to the next waiting worker.
func (c *TokenChannel) Forward(holder WorkerID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.holder == 0 || c.holder != holder {
		return ErrNotHolder
	}
	c.holder = 0
	c.last = holder
	c.passes++
	c.deliverLocked(Token{Type: MessageToken})
	return nil
}

// Discard consumes the token without forwarding it. After Discard the system
// has no token. Workers call it on their way out once termination has been
// broadcast, since no worker remains to take the token.
func (c *TokenChannel) Discard(holder WorkerID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.holder == 0 || c.holder != holder {
		return ErrNotHolder
	}
	c.holder = 0
	c.last = holder
	return nil
}

// Reclaim regenerates the token if it was held by a worker that died without
// forwarding it. It reports whether a new token was issued.
func (c *TokenChannel) Reclaim(dead WorkerID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.holder == 0 || c.holder != dead {
		return false
	}
	c.holder = 0
	c.last = 0
	c.deliverLocked(Token{Type: MessageToken})
	return true
}

// Holder returns the worker currently holding the token.
func (c *TokenChannel) Holder() (WorkerID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holder, c.holder != 0
}

// Waiting returns the number of workers blocked in Receive.
func (c *TokenChannel) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Passes returns how many times the token has been forwarded.
func (c *TokenChannel) Passes() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.passes
}

// Close destroys the channel. Blocked receivers return ErrClosed and any token
// still parked or held is discarded. It reports the number of tokens that were
// in the system when it closed. Repeated calls return 0.
func (c *TokenChannel) Close() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0
	}
	c.closed = true

	discarded := len(c.parked)
	if c.holder != 0 {
		discarded++
	}
	for _, w := range c.waiters {
		close(w.inbox)
	}
	c.waiters = nil
	c.parked = nil
	c.holder = 0
	return discarded
}

// Closed reports whether the channel was destroyed.
func (c *TokenChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// deliverLocked hands tok to the longest-waiting worker, or parks it. The
// worker that just gave the token up is skipped while other members remain.
func (c *TokenChannel) deliverLocked(tok Token) {
	for i, w := range c.waiters {
		if c.yieldsLocked(w.id) {
			continue
		}
		c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
		c.holder = w.id
		w.inbox <- tok
		return
	}
	c.parked = append(c.parked, tok)
}
