// Package latch provides a resettable broadcast condition.
//
// A Latch has one writer that sets and clears it and any number of readers
// that wait for it to become set. Waiting never polls: each set state is
// published by closing a channel, which gives readers a happens-before edge
// with the writer.
package latch

import (
	"context"
	"sync"
)

// Latch is a settable/clearable condition. The zero value is not usable;
// call New.
type Latch struct {
	mu  sync.Mutex
	set bool
	ch  chan struct{}
}

// New returns a cleared latch.
func New() *Latch {
	return &Latch{ch: make(chan struct{})}
}

// Set marks the latch and wakes every waiter. Setting a set latch is a no-op.
func (l *Latch) Set() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.set {
		return
	}
	l.set = true
	close(l.ch)
}

// Clear resets the latch so later waiters block until the next Set.
func (l *Latch) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.set {
		return
	}
	l.set = false
	l.ch = make(chan struct{})
}

// IsSet reports the current state.
func (l *Latch) IsSet() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.set
}

// Done returns a channel that is closed once the latch is set. The channel
// belongs to the current generation: a later Clear does not reopen it.
func (l *Latch) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ch
}

// Wait blocks until the latch is set or ctx ends.
func (l *Latch) Wait(ctx context.Context) error {
	select {
	case <-l.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
