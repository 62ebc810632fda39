// Package logic contains the pure button debounce state machine.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

// State is the debouncer state.
type State int

const (
	Released State = iota
	PressCandidate
	Pressed
	ReleaseCandidate
)

func (s State) String() string {
	switch s {
	case Released:
		return "RELEASED"
	case PressCandidate:
		return "PRESS_CANDIDATE"
	case Pressed:
		return "PRESSED"
	case ReleaseCandidate:
		return "RELEASE_CANDIDATE"
	default:
		return "UNKNOWN"
	}
}

// Edge is a confirmed transition reported by Process.
type Edge int

const (
	EdgeNone Edge = iota
	EdgePress
	EdgeRelease
)

func (e Edge) String() string {
	switch e {
	case EdgePress:
		return "PRESS"
	case EdgeRelease:
		return "RELEASE"
	default:
		return "NONE"
	}
}
