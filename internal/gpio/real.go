//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// RealInput reads a line from the Linux GPIO character device.
type RealInput struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewInput requests offset on chip as an input with the given bias.
func NewInput(chipName string, offset int, pull Pull) (*RealInput, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(offset, gpiocdev.AsInput, biasOption(pull))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request input line %d: %w", offset, err)
	}

	return &RealInput{chip: chip, line: line}, nil
}

// Level returns the raw line value.
func (r *RealInput) Level() (Level, error) {
	v, err := r.line.Value()
	if err != nil {
		return Low, fmt.Errorf("read line: %w", err)
	}
	if v != 0 {
		return High, nil
	}
	return Low, nil
}

// Close releases the line and chip.
func (r *RealInput) Close() error {
	var errs []error
	if r.line != nil {
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealOutput drives a line on the Linux GPIO character device.
type RealOutput struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line

	mu    sync.Mutex
	level Level
}

// NewOutput requests offset on chip as an output starting at initial.
func NewOutput(chipName string, offset int, initial Level) (*RealOutput, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(offset, gpiocdev.AsOutput(int(initial)))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request output line %d: %w", offset, err)
	}

	return &RealOutput{chip: chip, line: line, level: initial}, nil
}

// Set drives the line.
func (o *RealOutput) Set(level Level) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.line.SetValue(int(level)); err != nil {
		return fmt.Errorf("set line: %w", err)
	}
	o.level = level
	return nil
}

// Level returns the last level written.
func (o *RealOutput) Level() Level {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.level
}

// Close drives the line low and hands it back as an input with pull-down,
// matching the Pi boot default, before releasing the chip.
func (o *RealOutput) Close() error {
	var errs []error
	if o.line != nil {
		if err := o.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive line low: %w", err))
		}
		if err := o.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure line: %w", err))
		}
		if err := o.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	if o.chip != nil {
		if err := o.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func biasOption(p Pull) gpiocdev.LineReqOption {
	switch p {
	case PullUp:
		return gpiocdev.WithPullUp
	case PullDown:
		return gpiocdev.WithPullDown
	default:
		return gpiocdev.WithBiasDisabled
	}
}
