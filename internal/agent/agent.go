// Package agent wires the components together and runs them as one unit.
//
// Construction follows dependency order: link, session, queue, sampler,
// relay, indicator, web. Run starts every loop under a shared errgroup
// context; cancelling the context (SIGINT/SIGTERM in the daemon) makes
// each loop return at its next suspension point.
package agent

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/button-agent/internal/config"
	"github.com/sweeney/button-agent/internal/event"
	"github.com/sweeney/button-agent/internal/gpio"
	"github.com/sweeney/button-agent/internal/indicator"
	"github.com/sweeney/button-agent/internal/link"
	"github.com/sweeney/button-agent/internal/mqtt"
	"github.com/sweeney/button-agent/internal/netif"
	"github.com/sweeney/button-agent/internal/relay"
	"github.com/sweeney/button-agent/internal/sampler"
	"github.com/sweeney/button-agent/internal/session"
	"github.com/sweeney/button-agent/internal/status"
	"github.com/sweeney/button-agent/internal/telemetry"
	"github.com/sweeney/button-agent/internal/web"
)

// Deps are the external collaborators: hardware lines, the link driver,
// the identity reader and the broker transport.
type Deps struct {
	Button    gpio.Input
	LED       gpio.Output
	Driver    netif.Driver
	Identity  netif.Identity
	Transport mqtt.Transport
}

// Open creates the real collaborators for cfg. The returned close function
// releases whatever was opened; on error everything opened so far is
// already released.
func Open(cfg *config.Config, log *zap.Logger) (Deps, func(), error) {
	pull := gpio.PullDown
	if cfg.GPIO.ButtonActiveLow {
		pull = gpio.PullUp
	}
	button, err := gpio.NewInput(cfg.GPIO.Chip, cfg.GPIO.ButtonLine, pull)
	if err != nil {
		return Deps{}, nil, fmt.Errorf("init button line: %w", err)
	}
	led, err := gpio.NewOutput(cfg.GPIO.Chip, cfg.GPIO.LEDLine, gpio.Low)
	if err != nil {
		button.Close()
		return Deps{}, nil, fmt.Errorf("init led line: %w", err)
	}

	transport := mqtt.NewClient(mqtt.Options{
		Broker:         cfg.MQTT.Broker,
		ClientID:       cfg.Device.ClientID,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		KeepAlive:      cfg.MQTT.KeepAlive,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
		ConnectRetry:   cfg.MQTT.ConnectRetry,
		PublishTimeout: cfg.MQTT.PublishTimeout,
		StatusTopic:    cfg.MQTT.StatusTopic,
	}, log.Named("mqtt"))

	deps := Deps{
		Button:    button,
		LED:       led,
		Driver:    netif.NewWatcher(cfg.Link.Interface, cfg.Link.PollInterval, cfg.Link.ConnectCommand, log.Named("netif")),
		Identity:  netif.InterfaceIdentity{Name: cfg.Link.Interface},
		Transport: transport,
	}
	closeFn := func() {
		led.Close()
		button.Close()
	}
	return deps, closeFn, nil
}

// Agent owns every component.
type Agent struct {
	cfg  *config.Config
	log  *zap.Logger
	deps Deps

	link    *link.Supervisor
	session *session.Supervisor
	queue   *event.Queue
	sampler *sampler.Sampler
	relay   *relay.Relay
	blinker *indicator.Blinker
	tracker *status.Tracker
	web     *web.Server
}

// New wires the components. Nothing runs until Run.
func New(cfg *config.Config, deps Deps, log *zap.Logger) *Agent {
	a := &Agent{cfg: cfg, log: log, deps: deps}

	a.queue = event.NewQueue(cfg.Relay.QueueCapacity)
	telemetry.RegisterQueueDepth(a.queue.Len)

	a.link = link.NewSupervisor(deps.Driver, log.Named("link"),
		link.WithAddressHook(a.addressChanged))

	a.session = session.NewSupervisor(deps.Transport, a.link, session.Options{
		Topics:       cfg.MQTT.InboundTopics,
		QoS:          cfg.MQTT.SubscribeQoS(),
		ConnectRetry: cfg.MQTT.ConnectRetry,
	}, log.Named("session"))

	a.sampler = sampler.New(deps.Button, a.queue, cfg.Sampler.Debounce, cfg.GPIO.ButtonActiveLow, log.Named("sampler"))

	a.relay = relay.New(a.queue, a.session, a.session.Publisher(), deps.Identity, relay.Options{
		IdentifierTopic: cfg.MQTT.IdentifierTopic,
		AddressTopic:    cfg.MQTT.AddressTopic,
		QoS:             cfg.MQTT.PublishQoS(),
	}, log.Named("relay"))

	var follow indicator.LinkState
	if cfg.Indicator.FollowLink {
		follow = a.link
	}
	a.blinker = indicator.NewBlinker(deps.LED, follow, log.Named("indicator"))

	a.tracker = status.NewTracker(time.Now(), status.Config{
		ClientID:        cfg.Device.ClientID,
		Interface:       cfg.Link.Interface,
		Broker:          cfg.MQTT.Broker,
		QoS:             cfg.MQTT.QoS,
		IdentifierTopic: cfg.MQTT.IdentifierTopic,
		AddressTopic:    cfg.MQTT.AddressTopic,
		PollMs:          cfg.Sampler.Period.Milliseconds(),
		DebounceMs:      cfg.Sampler.Debounce.Milliseconds(),
		BlinkMs:         cfg.Indicator.Interval.Milliseconds(),
		QueueCapacity:   cfg.Relay.QueueCapacity,
		HTTPAddr:        cfg.HTTP.Addr,
	})
	a.tracker.SetSources(status.Sources{
		Link:    func() string { return a.link.State().String() },
		Session: func() string { return a.session.State().String() },
		Relay:   func() string { return a.relay.State().String() },
		Address: a.address,
		Counts:  a.counts,
	})

	if cfg.HTTP.Addr != "" {
		a.web = web.New(cfg.HTTP.Addr, a.tracker, log.Named("web"))
	}
	return a
}

// addressChanged runs on the link supervisor goroutine and must not block.
// It reports whether the event was queued.
func (a *Agent) addressChanged(addr netip.Addr) bool {
	if a.queue.TryEnqueue(event.AddressChanged) == event.Dropped {
		a.log.Warn("event queue full, address change dropped", zap.Stringer("addr", addr))
		return false
	}
	a.log.Info("address changed", zap.Stringer("addr", addr))
	return true
}

func (a *Agent) address() string {
	addr := a.link.Address()
	if !addr.IsValid() {
		return ""
	}
	return addr.String()
}

func (a *Agent) counts() status.Counts {
	return status.Counts{
		Presses:       a.sampler.Presses(),
		Dropped:       a.queue.Dropped(),
		QueueDepth:    a.queue.Len(),
		Published:     a.relay.Published(),
		PublishErrors: a.relay.Failed(),
		Received:      a.session.Received(),
		LinkConnects:  a.link.Connects(),
	}
}

// Tracker returns the status tracker.
func (a *Agent) Tracker() *status.Tracker {
	return a.tracker
}

// Run starts every component and blocks until ctx ends or one of them
// fails. The transport is closed on the way out.
func (a *Agent) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.link.Run(ctx) })
	g.Go(func() error { return a.session.Run(ctx) })
	g.Go(func() error {
		t := time.NewTicker(a.cfg.Sampler.Period)
		defer t.Stop()
		return a.sampler.Run(ctx, t.C)
	})
	g.Go(func() error {
		t := time.NewTicker(a.cfg.Relay.Tick)
		defer t.Stop()
		return a.relay.Run(ctx, t.C)
	})
	g.Go(func() error {
		t := time.NewTicker(a.cfg.Indicator.Interval)
		defer t.Stop()
		return a.blinker.Run(ctx, t.C)
	})
	if a.web != nil {
		g.Go(func() error { return a.web.Run(ctx) })
	}

	a.log.Info("started",
		zap.String("interface", a.cfg.Link.Interface),
		zap.String("broker", a.cfg.MQTT.Broker),
		zap.Duration("poll", a.cfg.Sampler.Period),
		zap.Duration("debounce", a.cfg.Sampler.Debounce),
		zap.Int("queue_capacity", a.queue.Cap()))

	err := g.Wait()
	if cerr := a.deps.Transport.Close(); cerr != nil {
		a.log.Warn("closing transport", zap.Error(cerr))
	}
	return err
}
