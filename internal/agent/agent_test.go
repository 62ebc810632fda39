package agent

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sweeney/button-agent/internal/config"
	"github.com/sweeney/button-agent/internal/event"
	"github.com/sweeney/button-agent/internal/gpio"
	"github.com/sweeney/button-agent/internal/mqtt"
	"github.com/sweeney/button-agent/internal/netif"
)

// switchInput is a button line the test flips by hand.
type switchInput struct{ level atomic.Int32 }

func newSwitch(l gpio.Level) *switchInput {
	s := &switchInput{}
	s.set(l)
	return s
}

func (s *switchInput) set(l gpio.Level)           { s.level.Store(int32(l)) }
func (s *switchInput) Level() (gpio.Level, error) { return gpio.Level(s.level.Load()), nil }
func (s *switchInput) Close() error               { return nil }

type fixture struct {
	cfg       *config.Config
	button    *switchInput
	led       *gpio.FakeOutput
	driver    *netif.FakeDriver
	identity  *netif.FakeIdentity
	transport *mqtt.FakeTransport
	agent     *Agent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.MQTT.IdentifierTopic = "device/test/id"
	cfg.MQTT.AddressTopic = "device/test/ip"
	cfg.Sampler.Period = time.Millisecond
	cfg.Sampler.Debounce = 5 * time.Millisecond
	cfg.Relay.Tick = time.Millisecond
	cfg.Indicator.Interval = 5 * time.Millisecond
	cfg.HTTP.Addr = ""

	f := &fixture{
		cfg:       cfg,
		button:    newSwitch(gpio.High),
		led:       gpio.NewFakeOutput(gpio.Low),
		driver:    netif.NewFakeDriver(),
		identity:  netif.NewFakeIdentity(net.HardwareAddr{0xb8, 0x27, 0xeb, 0x12, 0x34, 0x56}, netip.MustParseAddr("192.168.1.42")),
		transport: mqtt.NewFakeTransport(),
	}
	f.agent = New(cfg, Deps{
		Button:    f.button,
		LED:       f.led,
		Driver:    f.driver,
		Identity:  f.identity,
		Transport: f.transport,
	}, zaptest.NewLogger(t))
	return f
}

func findPublish(msgs []mqtt.Message, topic string) (mqtt.Message, bool) {
	for _, m := range msgs {
		if m.Topic == topic {
			return m, true
		}
	}
	return mqtt.Message{}, false
}

// Link comes up, the session follows, the address is published retained,
// then a button press publishes the hardware address.
func TestEndToEnd(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.agent.Run(ctx) }()

	const wait, poll = 2 * time.Second, time.Millisecond

	require.Eventually(t, func() bool { return f.driver.Connects() >= 1 }, wait, poll)
	assert.Zero(t, f.transport.Connects(), "session must wait for the link")

	f.driver.Push(netif.Notification{Kind: netif.AddressAcquired, Addr: netip.MustParseAddr("192.168.1.42")})
	require.Eventually(t, func() bool { return f.transport.Connects() == 1 }, wait, poll)
	assert.Empty(t, f.transport.Published(), "nothing published before session is up")

	f.transport.Push(mqtt.Notification{Kind: mqtt.Connected})

	require.Eventually(t, func() bool {
		_, ok := findPublish(f.transport.Published(), "device/test/ip")
		return ok
	}, wait, poll)
	addrMsg, _ := findPublish(f.transport.Published(), "device/test/ip")
	assert.Equal(t, "192.168.1.42", string(addrMsg.Payload))
	assert.True(t, addrMsg.Retained)
	assert.Equal(t, []mqtt.Subscription{{Topic: "temperatura", QoS: 0}}, f.transport.Subscriptions())

	f.button.set(gpio.Low)
	require.Eventually(t, func() bool {
		_, ok := findPublish(f.transport.Published(), "device/test/id")
		return ok
	}, wait, poll)
	f.button.set(gpio.High)

	idMsg, _ := findPublish(f.transport.Published(), "device/test/id")
	assert.Equal(t, "b8:27:eb:12:34:56", string(idMsg.Payload))
	assert.False(t, idMsg.Retained)

	require.Eventually(t, func() bool {
		return f.agent.Tracker().Snapshot().Counts.Published == 2
	}, wait, poll)
	snap := f.agent.Tracker().Snapshot()
	assert.Equal(t, "UP", snap.Link)
	assert.Equal(t, "UP", snap.Session)
	assert.Equal(t, "192.168.1.42", snap.Address)
	assert.Equal(t, 1, snap.Counts.Presses)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(wait):
		t.Fatal("agent did not stop")
	}
	assert.True(t, f.transport.Closed())
	assert.Equal(t, gpio.Low, f.led.Level())
}

func TestAddressChangeRepublishes(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.agent.Run(ctx) }()

	const wait, poll = 2 * time.Second, time.Millisecond

	require.Eventually(t, func() bool { return f.driver.Connects() >= 1 }, wait, poll)
	f.driver.Push(netif.Notification{Kind: netif.AddressAcquired, Addr: netip.MustParseAddr("192.168.1.42")})
	require.Eventually(t, func() bool { return f.transport.Connects() == 1 }, wait, poll)
	f.transport.Push(mqtt.Notification{Kind: mqtt.Connected})
	require.Eventually(t, func() bool { return len(f.transport.Published()) == 1 }, wait, poll)

	// Reassociation with the same address is not announced again.
	f.driver.Push(netif.Notification{Kind: netif.Disconnected})
	f.driver.Push(netif.Notification{Kind: netif.AddressAcquired, Addr: netip.MustParseAddr("192.168.1.42")})

	// A new lease is.
	f.identity.SetAddr(netip.MustParseAddr("192.168.1.77"))
	f.driver.Push(netif.Notification{Kind: netif.Disconnected})
	f.driver.Push(netif.Notification{Kind: netif.AddressAcquired, Addr: netip.MustParseAddr("192.168.1.77")})

	require.Eventually(t, func() bool { return len(f.transport.Published()) == 2 }, wait, poll)
	assert.Equal(t, "192.168.1.77", string(f.transport.Published()[1].Payload))

	cancel()
	require.NoError(t, <-done)
}

// An address change dropped on a full queue is announced again when the
// same lease comes back.
func TestDroppedAddressChangeRetried(t *testing.T) {
	f := newFixture(t)
	for f.agent.queue.TryEnqueue(event.ButtonPressed) == event.Accepted {
	}
	require.Equal(t, f.agent.queue.Cap(), f.agent.queue.Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.agent.Run(ctx) }()

	const wait, poll = 2 * time.Second, time.Millisecond
	addr := netip.MustParseAddr("192.168.1.42")

	require.Eventually(t, func() bool { return f.driver.Connects() >= 1 }, wait, poll)
	f.driver.Push(netif.Notification{Kind: netif.AddressAcquired, Addr: addr})
	require.Eventually(t, func() bool { return f.transport.Connects() == 1 }, wait, poll)
	require.Eventually(t, func() bool { return f.agent.queue.Dropped() == 1 }, wait, poll)

	f.transport.Push(mqtt.Notification{Kind: mqtt.Connected})
	require.Eventually(t, func() bool { return len(f.transport.Published()) == f.agent.queue.Cap() }, wait, poll)
	_, ok := findPublish(f.transport.Published(), "device/test/ip")
	assert.False(t, ok)

	f.driver.Push(netif.Notification{Kind: netif.Disconnected})
	f.driver.Push(netif.Notification{Kind: netif.AddressAcquired, Addr: addr})

	require.Eventually(t, func() bool {
		_, ok := findPublish(f.transport.Published(), "device/test/ip")
		return ok
	}, wait, poll)
	addrMsg, _ := findPublish(f.transport.Published(), "device/test/ip")
	assert.Equal(t, "192.168.1.42", string(addrMsg.Payload))

	cancel()
	require.NoError(t, <-done)
}

func TestRunFailsWhenDriverCannotStart(t *testing.T) {
	f := newFixture(t)
	f.driver.StartErr = errors.New("no such interface")

	err := f.agent.Run(context.Background())
	require.Error(t, err)
	assert.True(t, f.transport.Closed())
}
