// Package relay drains the event queue and publishes each event to the
// broker.
//
// The Relay is the queue's only consumer. It holds off while the session
// is down, handles one event per cycle, and resolves payloads from live
// device state at publish time. Delivery is best effort: a failed read or
// publish is logged and counted, and the event is not retried.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/button-agent/internal/event"
	"github.com/sweeney/button-agent/internal/mqtt"
	"github.com/sweeney/button-agent/internal/netif"
	"github.com/sweeney/button-agent/internal/telemetry"
)

// ErrUnknownKind is returned by Handle for an event kind it cannot publish.
var ErrUnknownKind = errors.New("relay: unknown event kind")

// State is the relay state.
type State int

const (
	AwaitingSession State = iota
	Idle
	Processing
)

func (s State) String() string {
	switch s {
	case AwaitingSession:
		return "AWAITING_SESSION"
	case Idle:
		return "IDLE"
	case Processing:
		return "PROCESSING"
	default:
		return "UNKNOWN"
	}
}

// Queue is the consumer side of the event queue.
type Queue interface {
	TryDequeue() (event.Kind, bool)
	Ready() <-chan struct{}
}

// Session reports broker session readiness.
type Session interface {
	WaitUp(ctx context.Context) error
	IsUp() bool
}

// Options configures publishing.
type Options struct {
	IdentifierTopic string
	AddressTopic    string
	QoS             byte
}

// Relay publishes queued events.
type Relay struct {
	queue     Queue
	session   Session
	publisher mqtt.Publisher
	identity  netif.Identity
	opts      Options
	log       *zap.Logger

	mu        sync.RWMutex
	state     State
	published int
	failed    int
}

// New creates a Relay in the AwaitingSession state.
func New(queue Queue, session Session, publisher mqtt.Publisher, identity netif.Identity, opts Options, log *zap.Logger) *Relay {
	return &Relay{
		queue:     queue,
		session:   session,
		publisher: publisher,
		identity:  identity,
		opts:      opts,
		log:       log,
	}
}

// Run processes events until ctx ends. Each tick (or queue wake-up) makes
// one dequeue attempt.
func (r *Relay) Run(ctx context.Context, tick <-chan time.Time) error {
	for {
		if !r.session.IsUp() {
			r.setState(AwaitingSession)
			r.log.Info("waiting for session")
			if err := r.session.WaitUp(ctx); err != nil {
				return nil
			}
			r.setState(Idle)
			r.log.Info("session ready, relaying events")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-tick:
		case <-r.queue.Ready():
		}

		// The session may have dropped while we were waiting.
		if !r.session.IsUp() {
			continue
		}

		kind, ok := r.queue.TryDequeue()
		if !ok {
			continue
		}

		r.setState(Processing)
		if err := r.Handle(kind); err != nil {
			r.log.Warn("event not delivered", zap.Stringer("event", kind), zap.Error(err))
		}
		r.setState(Idle)
	}
}

// Handle publishes a single event. The event counts as consumed whatever
// the outcome.
func (r *Relay) Handle(kind event.Kind) error {
	var (
		topic    string
		payload  string
		retained bool
	)

	switch kind {
	case event.ButtonPressed:
		mac, err := r.identity.HardwareAddr()
		if err != nil {
			r.recordFailure(kind)
			return fmt.Errorf("read hardware address: %w", err)
		}
		topic, payload, retained = r.opts.IdentifierTopic, FormatHardwareAddr(mac), false

	case event.AddressChanged:
		addr, err := r.identity.IPv4()
		if err != nil {
			r.recordFailure(kind)
			return fmt.Errorf("read address: %w", err)
		}
		topic, payload, retained = r.opts.AddressTopic, FormatAddress(addr), true

	default:
		r.recordFailure(kind)
		return fmt.Errorf("%w: %v", ErrUnknownKind, kind)
	}

	if err := r.publisher.Publish(topic, []byte(payload), r.opts.QoS, retained); err != nil {
		r.recordFailure(kind)
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	r.mu.Lock()
	r.published++
	r.mu.Unlock()
	telemetry.Publishes.WithLabelValues(kind.String(), "ok").Inc()

	r.log.Info("event published",
		zap.Stringer("event", kind),
		zap.String("topic", topic),
		zap.String("payload", payload),
		zap.Bool("retained", retained))
	return nil
}

func (r *Relay) recordFailure(kind event.Kind) {
	r.mu.Lock()
	r.failed++
	r.mu.Unlock()
	telemetry.Publishes.WithLabelValues(kind.String(), "error").Inc()
}

func (r *Relay) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// State returns the current relay state.
func (r *Relay) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Published returns the number of successful publishes.
func (r *Relay) Published() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.published
}

// Failed returns the number of events that could not be delivered.
func (r *Relay) Failed() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.failed
}

// FormatHardwareAddr renders a MAC as colon-separated lower-case hex,
// e.g. "b8:27:eb:12:34:56".
func FormatHardwareAddr(mac net.HardwareAddr) string {
	return mac.String()
}

// FormatAddress renders an IPv4 address in dotted-decimal form.
func FormatAddress(addr netip.Addr) string {
	return addr.Unmap().String()
}
