// Package indicator drives the status LED.
package indicator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/button-agent/internal/gpio"
)

// LinkState reports whether the network link is up.
type LinkState interface {
	IsUp() bool
}

// Blinker toggles an output line at a fixed rate. When a link is attached
// the line is held High while the link is up instead.
type Blinker struct {
	out  gpio.Output
	link LinkState
	log  *zap.Logger
}

// NewBlinker creates a Blinker. link may be nil for a free-running blink.
func NewBlinker(out gpio.Output, link LinkState, log *zap.Logger) *Blinker {
	return &Blinker{out: out, link: link, log: log}
}

// Run updates the line on every tick until ctx ends, then drives it Low.
func (b *Blinker) Run(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			if err := b.out.Set(gpio.Low); err != nil {
				b.log.Warn("led off failed", zap.Error(err))
			}
			return nil
		case <-tick:
			b.Step()
		}
	}
}

// Step applies one tick.
func (b *Blinker) Step() {
	next := b.out.Level().Toggle()
	if b.link != nil && b.link.IsUp() {
		next = gpio.High
		if b.out.Level() == gpio.High {
			return
		}
	}
	if err := b.out.Set(next); err != nil {
		b.log.Warn("led write failed", zap.Error(err))
	}
}
