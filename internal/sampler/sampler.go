// Package sampler polls the button line and turns debounced presses into
// queued device events. It never touches the network and never blocks on
// the queue.
package sampler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/button-agent/internal/event"
	"github.com/sweeney/button-agent/internal/gpio"
	"github.com/sweeney/button-agent/internal/logic"
	"github.com/sweeney/button-agent/internal/telemetry"
)

// Enqueuer accepts events without blocking.
type Enqueuer interface {
	TryEnqueue(k event.Kind) event.Result
}

// Sampler reads the button on every tick.
type Sampler struct {
	input     gpio.Input
	queue     Enqueuer
	debouncer *logic.Debouncer
	activeLow bool
	log       *zap.Logger

	mu         sync.Mutex
	state      logic.State
	presses    int
	dropped    int
	readErrors int
}

// New creates a Sampler. With activeLow a Low line reads as pressed, which
// matches a button to ground with the internal pull-up enabled.
func New(input gpio.Input, queue Enqueuer, debounce time.Duration, activeLow bool, log *zap.Logger) *Sampler {
	return &Sampler{
		input:     input,
		queue:     queue,
		debouncer: logic.NewDebouncer(debounce),
		activeLow: activeLow,
		log:       log,
	}
}

// Run samples on every tick until ctx ends. The tick value is the sample
// time fed to the debouncer.
func (s *Sampler) Run(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-tick:
			s.Sample(now)
		}
	}
}

// Sample reads the line once and handles the resulting edge.
func (s *Sampler) Sample(now time.Time) logic.Edge {
	level, err := s.input.Level()
	if err != nil {
		s.mu.Lock()
		s.readErrors++
		s.mu.Unlock()
		s.log.Warn("button read failed", zap.Error(err))
		return logic.EdgeNone
	}

	pressed := level == gpio.High
	if s.activeLow {
		pressed = level == gpio.Low
	}

	edge := s.debouncer.Process(pressed, now)

	s.mu.Lock()
	s.state = s.debouncer.State()
	s.mu.Unlock()

	switch edge {
	case logic.EdgePress:
		telemetry.ButtonPresses.Inc()
		result := s.queue.TryEnqueue(event.ButtonPressed)

		s.mu.Lock()
		s.presses++
		if result == event.Dropped {
			s.dropped++
		}
		s.mu.Unlock()

		if result == event.Dropped {
			s.log.Warn("event queue full, press dropped")
		} else {
			s.log.Info("button pressed")
		}
	case logic.EdgeRelease:
		s.log.Debug("button released")
	}
	return edge
}

// State returns the debouncer state after the last sample.
func (s *Sampler) State() logic.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Presses returns the number of confirmed presses.
func (s *Sampler) Presses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presses
}

// Dropped returns the number of presses the queue rejected.
func (s *Sampler) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// ReadErrors returns the number of failed line reads.
func (s *Sampler) ReadErrors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readErrors
}
