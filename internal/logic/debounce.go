package logic

import "time"

// Debouncer turns raw button samples into press and release edges.
// A level must hold for the whole window before it is confirmed; a
// contrary sample inside the window abandons the candidate.
type Debouncer struct {
	window       time.Duration
	state        State
	pendingSince time.Time
	presses      int
}

// NewDebouncer creates a debouncer in the Released state.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Process feeds one sample taken at now. It returns EdgePress at most once
// per press-release cycle.
func (d *Debouncer) Process(pressed bool, now time.Time) Edge {
	switch d.state {
	case Released:
		if pressed {
			d.state = PressCandidate
			d.pendingSince = now
		}

	case PressCandidate:
		if !pressed {
			d.state = Released
			return EdgeNone
		}
		if now.Sub(d.pendingSince) >= d.window {
			d.state = Pressed
			d.presses++
			return EdgePress
		}

	case Pressed:
		if !pressed {
			d.state = ReleaseCandidate
			d.pendingSince = now
		}

	case ReleaseCandidate:
		if pressed {
			d.state = Pressed
			return EdgeNone
		}
		if now.Sub(d.pendingSince) >= d.window {
			d.state = Released
			return EdgeRelease
		}
	}
	return EdgeNone
}

// State returns the current state.
func (d *Debouncer) State() State {
	return d.state
}

// Presses returns the number of confirmed presses.
func (d *Debouncer) Presses() int {
	return d.presses
}
