// Package event defines the device events relayed to the broker and the
// bounded queue that carries them from producers to the relay.
//
// Events carry no payload. The relay reads live device state when it
// publishes, so a queued event never goes stale.
package event

import (
	"fmt"
	"sync"

	"github.com/sweeney/button-agent/internal/telemetry"
)

// Kind is a device event.
type Kind int

const (
	ButtonPressed Kind = iota
	AddressChanged
)

func (k Kind) String() string {
	switch k {
	case ButtonPressed:
		return "BUTTON_PRESSED"
	case AddressChanged:
		return "ADDRESS_CHANGED"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Result is the outcome of an enqueue attempt.
type Result int

const (
	Accepted Result = iota
	Dropped
)

func (r Result) String() string {
	if r == Accepted {
		return "accepted"
	}
	return "dropped"
}

// Queue is a fixed-capacity FIFO. A full queue rejects new events instead
// of blocking the producer or evicting older entries. Safe for concurrent
// use by any number of producers and one consumer.
type Queue struct {
	mu       sync.Mutex
	buf      []Kind
	capacity int
	head     int // next read position
	count    int
	dropped  int
	ready    chan struct{}
}

// NewQueue creates a queue holding at most capacity events. Capacity
// below 1 is raised to 1.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		buf:      make([]Kind, capacity),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// TryEnqueue appends k if there is room. It never blocks.
func (q *Queue) TryEnqueue(k Kind) Result {
	q.mu.Lock()
	if q.count == q.capacity {
		q.dropped++
		q.mu.Unlock()
		telemetry.EventsDropped.WithLabelValues(k.String()).Inc()
		return Dropped
	}
	q.buf[(q.head+q.count)%q.capacity] = k
	q.count++
	q.mu.Unlock()

	telemetry.EventsEnqueued.WithLabelValues(k.String()).Inc()
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return Accepted
}

// TryDequeue removes the oldest event. ok is false if the queue is empty.
func (q *Queue) TryDequeue() (k Kind, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return 0, false
	}
	k = q.buf[q.head]
	q.head = (q.head + 1) % q.capacity
	q.count--
	return k, true
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return q.capacity
}

// Dropped returns how many enqueue attempts were rejected.
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Ready receives a value after an accepted enqueue. It is a wake-up hint
// only: one value may stand for several events, and the consumer must
// still drain with TryDequeue.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}
