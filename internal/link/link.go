// Package link supervises the network link.
//
// The Supervisor is the only writer of the link state. It consumes driver
// notifications on its own goroutine, re-issues connect on every
// disconnection with no backoff or limit, and publishes readiness through a
// latch that other components wait on.
package link

import (
	"context"
	"errors"
	"net/netip"
	"sync"

	"go.uber.org/zap"

	"github.com/sweeney/button-agent/internal/latch"
	"github.com/sweeney/button-agent/internal/netif"
	"github.com/sweeney/button-agent/internal/telemetry"
)

// ErrDriverClosed is returned by Run when the driver stops delivering
// notifications.
var ErrDriverClosed = errors.New("link: driver notification channel closed")

// State is the link state.
type State int

const (
	Down State = iota
	Connecting
	Up
)

func (s State) String() string {
	switch s {
	case Down:
		return "DOWN"
	case Connecting:
		return "CONNECTING"
	case Up:
		return "UP"
	default:
		return "UNKNOWN"
	}
}

// Supervisor owns the link state.
type Supervisor struct {
	driver netif.Driver
	log    *zap.Logger
	ready  *latch.Latch

	// onAddress is called from the Run goroutine when a new address is
	// acquired and reports whether the address was taken. It must not block.
	onAddress func(netip.Addr) bool

	mu        sync.RWMutex
	state     State
	addr      netip.Addr
	announced netip.Addr
	connects  int
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithAddressHook registers fn to run whenever the link comes up with an
// address different from the last one announced. An address is only
// considered announced once fn returns true, so a rejected address is
// offered again on the next acquisition.
func WithAddressHook(fn func(netip.Addr) bool) Option {
	return func(s *Supervisor) { s.onAddress = fn }
}

// NewSupervisor creates a Supervisor in the Down state.
func NewSupervisor(driver netif.Driver, log *zap.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		driver: driver,
		log:    log,
		ready:  latch.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts the driver and processes its notifications until ctx ends.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.driver.Start(ctx); err != nil {
		return err
	}
	s.log.Info("link driver started")

	notes := s.driver.Notifications()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-notes:
			if !ok {
				return ErrDriverClosed
			}
			s.handle(n)
		}
	}
}

func (s *Supervisor) handle(n netif.Notification) {
	switch n.Kind {
	case netif.StationStarted:
		s.log.Debug("station started")
		s.connect()

	case netif.Disconnected:
		was := s.State()
		s.ready.Clear()
		s.setState(Down, netip.Addr{})
		telemetry.BoolGauge(telemetry.LinkUp, false)
		if was == Up {
			s.log.Warn("link lost, reconnecting")
		} else {
			s.log.Debug("connect attempt failed, retrying")
		}
		s.connect()

	case netif.AddressAcquired:
		s.acquired(n.Addr)

	default:
		s.log.Debug("ignoring driver notification", zap.Stringer("kind", n.Kind))
	}
}

// connect issues a connect request. The attempt is considered outstanding
// even when the request itself fails; the driver reports the outcome.
func (s *Supervisor) connect() {
	s.mu.Lock()
	s.connects++
	if s.state == Down {
		s.state = Connecting
	}
	s.mu.Unlock()

	telemetry.LinkConnects.Inc()
	if err := s.driver.Connect(); err != nil {
		s.log.Warn("connect request failed", zap.Error(err))
	}
}

func (s *Supervisor) acquired(addr netip.Addr) {
	s.mu.Lock()
	if s.state == Down {
		s.mu.Unlock()
		s.log.Warn("address acquired without a connect attempt, ignoring", zap.Stringer("addr", addr))
		return
	}
	s.state = Up
	s.addr = addr
	announce := addr != s.announced
	s.mu.Unlock()

	s.log.Info("link up", zap.Stringer("addr", addr))
	telemetry.BoolGauge(telemetry.LinkUp, true)
	s.ready.Set()

	if !announce || s.onAddress == nil {
		return
	}
	if !s.onAddress(addr) {
		s.log.Warn("address not announced, will retry on next acquisition", zap.Stringer("addr", addr))
		return
	}
	s.mu.Lock()
	s.announced = addr
	s.mu.Unlock()
}

func (s *Supervisor) setState(st State, addr netip.Addr) {
	s.mu.Lock()
	s.state = st
	s.addr = addr
	s.mu.Unlock()
}

// State returns the current link state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Address returns the address acquired while Up, or the zero Addr.
func (s *Supervisor) Address() netip.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Connects returns how many connect requests have been issued.
func (s *Supervisor) Connects() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connects
}

// IsUp reports whether the link is ready.
func (s *Supervisor) IsUp() bool {
	return s.ready.IsSet()
}

// UpChan returns a channel closed once the link is up. See latch.Latch.Done.
func (s *Supervisor) UpChan() <-chan struct{} {
	return s.ready.Done()
}

// WaitUp blocks until the link is up or ctx ends.
func (s *Supervisor) WaitUp(ctx context.Context) error {
	return s.ready.Wait(ctx)
}
