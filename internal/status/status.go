// Package status provides a thread-safe status tracker for the button-agent
// daemon. It is read by the HTTP handlers and the -print-state flag.
//
// Component state is pulled at snapshot time through Sources rather than
// pushed, so the tracker never holds a stale copy of a supervisor's state.
package status

import (
	"sync"
	"time"
)

// Config contains daemon configuration for display.
type Config struct {
	ClientID        string
	Interface       string
	Broker          string
	QoS             int
	IdentifierTopic string
	AddressTopic    string
	PollMs          int64
	DebounceMs      int64
	BlinkMs         int64
	QueueCapacity   int
	HTTPAddr        string
}

// Counts are the running totals since startup.
type Counts struct {
	Presses       int
	Dropped       int
	QueueDepth    int
	Published     int
	PublishErrors int
	Received      int
	LinkConnects  int
}

// Sources read live component state. Any field may be nil.
type Sources struct {
	Link    func() string
	Session func() string
	Relay   func() string
	Address func() string
	Counts  func() Counts
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Link      string
	Session   string
	Relay     string
	Address   string
	Counts    Counts
	StartTime time.Time
	Now       time.Time
	Config    Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// SessionUp reports whether the broker session was up at snapshot time.
func (s Snapshot) SessionUp() bool {
	return s.Session == "UP"
}

// Tracker assembles snapshots from its sources.
type Tracker struct {
	mu        sync.RWMutex
	startTime time.Time
	cfg       Config
	src       Sources
	now       func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{startTime: startTime, cfg: cfg, now: time.Now}
}

// SetSources installs the component readers.
func (t *Tracker) SetSources(src Sources) {
	t.mu.Lock()
	t.src = src
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	src := t.src
	s := Snapshot{StartTime: t.startTime, Config: t.cfg}
	now := t.now
	t.mu.RUnlock()

	s.Link = read(src.Link)
	s.Session = read(src.Session)
	s.Relay = read(src.Relay)
	s.Address = read(src.Address)
	if src.Counts != nil {
		s.Counts = src.Counts()
	}
	s.Now = now()
	return s
}

func read(fn func() string) string {
	if fn == nil {
		return ""
	}
	return fn()
}
