// Package gpio provides digital input and output lines with hardware
// abstraction. The real implementation uses the Linux GPIO character
// device; the fakes allow testing without hardware.
package gpio

import "errors"

// ErrNotSupported is returned on platforms without a GPIO character device.
var ErrNotSupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Level is a raw line level.
type Level int

const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// Toggle returns the opposite level.
func (l Level) Toggle() Level {
	if l == High {
		return Low
	}
	return High
}

// Pull selects the input bias.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Input is a digital input line.
type Input interface {
	// Level returns the current raw level of the line.
	Level() (Level, error)

	// Close releases the line.
	Close() error
}

// Output is a digital output line.
type Output interface {
	// Set drives the line to level.
	Set(level Level) error

	// Level returns the last level written.
	Level() Level

	// Close releases the line.
	Close() error
}
