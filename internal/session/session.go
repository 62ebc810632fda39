// Package session supervises the broker session layered on the link.
//
// The Supervisor waits once for the link at boot, starts the transport and
// from then on relies on the transport's own reconnect logic. It is the only
// writer of the session state: on every Connected notification it subscribes
// the inbound topics first and only then marks the session Up, so nothing is
// published before the subscriptions are in place.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/button-agent/internal/latch"
	"github.com/sweeney/button-agent/internal/mqtt"
	"github.com/sweeney/button-agent/internal/telemetry"
)

// ErrTransportClosed is returned by Run when the transport stops
// delivering notifications.
var ErrTransportClosed = errors.New("session: transport notification channel closed")

// State is the session state.
type State int

const (
	Down State = iota
	Up
)

func (s State) String() string {
	if s == Up {
		return "UP"
	}
	return "DOWN"
}

// Link is the view of the link supervisor the session needs.
type Link interface {
	WaitUp(ctx context.Context) error
	IsUp() bool
	UpChan() <-chan struct{}
}

// Options configures a Supervisor.
type Options struct {
	// Topics are subscribed on every connect.
	Topics []string
	// QoS is the subscription QoS.
	QoS byte
	// ConnectRetry spaces Connect calls that fail outright.
	ConnectRetry time.Duration
}

// Supervisor owns the session state.
type Supervisor struct {
	transport mqtt.Transport
	link      Link
	log       *zap.Logger
	opts      Options
	ready     *latch.Latch

	mu       sync.RWMutex
	state    State
	pending  bool
	received int
}

// NewSupervisor creates a Supervisor in the Down state.
func NewSupervisor(transport mqtt.Transport, link Link, opts Options, log *zap.Logger) *Supervisor {
	if opts.ConnectRetry <= 0 {
		opts.ConnectRetry = 5 * time.Second
	}
	return &Supervisor{
		transport: transport,
		link:      link,
		log:       log,
		opts:      opts,
		ready:     latch.New(),
	}
}

// Run waits for the link, starts the transport and processes session
// notifications until ctx ends.
func (s *Supervisor) Run(ctx context.Context) error {
	s.log.Info("waiting for link")
	if err := s.link.WaitUp(ctx); err != nil {
		return nil
	}

	if !s.connect(ctx) {
		return nil
	}

	notes := s.transport.Notifications()
	for {
		var linkUp <-chan struct{}
		if s.isPending() {
			linkUp = s.link.UpChan()
		}

		select {
		case <-ctx.Done():
			s.markDown()
			return nil
		case n, ok := <-notes:
			if !ok {
				s.markDown()
				return ErrTransportClosed
			}
			s.handle(n)
		case <-linkUp:
			s.log.Info("link back, completing deferred subscription")
			s.establish()
		}
	}
}

// connect calls Connect until it is accepted. It returns false if ctx ends
// first.
func (s *Supervisor) connect(ctx context.Context) bool {
	for {
		err := s.transport.Connect()
		if err == nil {
			s.log.Info("session connecting")
			return true
		}
		s.log.Warn("session connect failed", zap.Error(err), zap.Duration("retry", s.opts.ConnectRetry))

		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.opts.ConnectRetry):
		}
	}
}

func (s *Supervisor) handle(n mqtt.Notification) {
	switch n.Kind {
	case mqtt.Connected:
		if !s.link.IsUp() {
			s.log.Warn("session connected while link down, deferring subscription")
			s.mu.Lock()
			s.pending = true
			s.mu.Unlock()
			return
		}
		s.establish()

	case mqtt.Disconnected:
		s.log.Warn("session lost", zap.Error(n.Err))
		s.markDown()

	case mqtt.Data:
		s.mu.Lock()
		s.received++
		s.mu.Unlock()
		s.log.Debug("inbound message", zap.String("topic", n.Topic), zap.ByteString("payload", n.Payload))

	case mqtt.Error:
		s.log.Warn("transport error", zap.Error(n.Err))

	case mqtt.Published:
		s.log.Debug("published", zap.Uint16("msg_id", n.MessageID), zap.String("topic", n.Topic))

	default:
		s.log.Debug("session event", zap.Stringer("kind", n.Kind), zap.String("topic", n.Topic))
	}
}

// establish subscribes every inbound topic, then marks the session Up.
func (s *Supervisor) establish() {
	for _, topic := range s.opts.Topics {
		if err := s.transport.Subscribe(topic, s.opts.QoS); err != nil {
			s.log.Warn("subscribe failed", zap.String("topic", topic), zap.Error(err))
			continue
		}
		s.log.Debug("subscribed", zap.String("topic", topic), zap.Uint8("qos", s.opts.QoS))
	}

	s.mu.Lock()
	s.pending = false
	s.state = Up
	s.mu.Unlock()

	telemetry.BoolGauge(telemetry.SessionUp, true)
	s.ready.Set()
	s.log.Info("session up")
}

func (s *Supervisor) markDown() {
	s.ready.Clear()
	s.mu.Lock()
	s.pending = false
	s.state = Down
	s.mu.Unlock()
	telemetry.BoolGauge(telemetry.SessionUp, false)
}

func (s *Supervisor) isPending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending
}

// State returns the current session state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Received returns how many inbound messages have arrived.
func (s *Supervisor) Received() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.received
}

// IsUp reports whether the session is ready for publishing.
func (s *Supervisor) IsUp() bool {
	return s.ready.IsSet()
}

// WaitUp blocks until the session is up or ctx ends.
func (s *Supervisor) WaitUp(ctx context.Context) error {
	return s.ready.Wait(ctx)
}

// Publisher returns the transport handle for publishing. The supervisor
// remains its only owner.
func (s *Supervisor) Publisher() mqtt.Publisher {
	return s.transport
}
