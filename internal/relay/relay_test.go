package relay

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sweeney/button-agent/internal/event"
	"github.com/sweeney/button-agent/internal/latch"
	"github.com/sweeney/button-agent/internal/mqtt"
	"github.com/sweeney/button-agent/internal/netif"
)

type fakeSession struct{ l *latch.Latch }

func (f fakeSession) WaitUp(ctx context.Context) error { return f.l.Wait(ctx) }
func (f fakeSession) IsUp() bool                       { return f.l.IsSet() }

var (
	testMAC  = net.HardwareAddr{0xb8, 0x27, 0xeb, 0x12, 0x34, 0x56}
	testOpts = Options{IdentifierTopic: "device/test/id", AddressTopic: "device/test/ip", QoS: 1}
)

type harness struct {
	queue     *event.Queue
	session   fakeSession
	transport *mqtt.FakeTransport
	identity  *netif.FakeIdentity
	relay     *Relay
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		queue:     event.NewQueue(3),
		session:   fakeSession{l: latch.New()},
		transport: mqtt.NewFakeTransport(),
		identity:  netif.NewFakeIdentity(testMAC, netip.MustParseAddr("192.168.1.42")),
	}
	h.relay = New(h.queue, h.session, h.transport, h.identity, testOpts, zaptest.NewLogger(t))
	return h
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	ticker := time.NewTicker(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.relay.Run(ctx, ticker.C) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
		ticker.Stop()
	})
}

// Address change 0.0.0.0 -> 192.168.1.42: payload is the dotted address
// and the publish is retained.
func TestAddressChangedRetained(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.relay.Handle(event.AddressChanged))

	msgs := h.transport.Published()
	require.Len(t, msgs, 1)
	assert.Equal(t, mqtt.Message{
		Topic:    "device/test/ip",
		Payload:  []byte("192.168.1.42"),
		QoS:      1,
		Retained: true,
	}, msgs[0])
}

func TestButtonPressedNotRetained(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.relay.Handle(event.ButtonPressed))

	msgs := h.transport.Published()
	require.Len(t, msgs, 1)
	assert.Equal(t, "device/test/id", msgs[0].Topic)
	assert.Equal(t, "b8:27:eb:12:34:56", string(msgs[0].Payload))
	assert.False(t, msgs[0].Retained)
	assert.Equal(t, byte(1), msgs[0].QoS)
}

// Replaying the same event reads live state each time.
func TestReplayReadsLiveState(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.relay.Handle(event.AddressChanged))
	require.NoError(t, h.relay.Handle(event.AddressChanged))
	assert.Equal(t, 2, h.identity.Reads())

	msgs := h.transport.Published()
	require.Len(t, msgs, 2)
	assert.Equal(t, msgs[0].Payload, msgs[1].Payload)

	h.identity.SetAddr(netip.MustParseAddr("10.0.0.7"))
	require.NoError(t, h.relay.Handle(event.AddressChanged))
	assert.Equal(t, "10.0.0.7", string(h.transport.Published()[2].Payload))
}

func TestPublishFailureConsumesEvent(t *testing.T) {
	h := newHarness(t)
	h.transport.SetPublishError(mqtt.ErrNotConnected)

	err := h.relay.Handle(event.ButtonPressed)
	require.ErrorIs(t, err, mqtt.ErrNotConnected)
	assert.Equal(t, 1, h.relay.Failed())
	assert.Zero(t, h.relay.Published())
}

func TestIdentityFailure(t *testing.T) {
	h := newHarness(t)
	h.identity.SetAddr(netip.Addr{})

	err := h.relay.Handle(event.AddressChanged)
	require.ErrorIs(t, err, netif.ErrNoAddress)
	assert.Empty(t, h.transport.Published())
	assert.Equal(t, 1, h.relay.Failed())
}

func TestUnknownKind(t *testing.T) {
	h := newHarness(t)
	require.ErrorIs(t, h.relay.Handle(event.Kind(7)), ErrUnknownKind)
}

func TestNoPublishBeforeSession(t *testing.T) {
	h := newHarness(t)
	h.queue.TryEnqueue(event.ButtonPressed)
	h.queue.TryEnqueue(event.AddressChanged)
	h.run(t)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, h.transport.Published())
	assert.Equal(t, AwaitingSession, h.relay.State())
	assert.Equal(t, 2, h.queue.Len())

	h.session.l.Set()
	require.Eventually(t, func() bool { return h.relay.Published() == 2 }, time.Second, time.Millisecond)

	msgs := h.transport.Published()
	assert.Equal(t, "device/test/id", msgs[0].Topic, "FIFO order")
	assert.Equal(t, "device/test/ip", msgs[1].Topic)
	require.Eventually(t, func() bool { return h.relay.State() == Idle }, time.Second, time.Millisecond)
}

func TestPublishFailureNotRetried(t *testing.T) {
	h := newHarness(t)
	h.transport.SetPublishError(errors.New("broker gone"))
	h.session.l.Set()
	h.run(t)

	h.queue.TryEnqueue(event.ButtonPressed)
	require.Eventually(t, func() bool { return h.relay.Failed() == 1 }, time.Second, time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, h.relay.Failed())
	assert.Zero(t, h.queue.Len())
}

func TestSessionDropReturnsToAwaiting(t *testing.T) {
	h := newHarness(t)
	h.session.l.Set()
	h.run(t)

	h.queue.TryEnqueue(event.ButtonPressed)
	require.Eventually(t, func() bool { return h.relay.Published() == 1 }, time.Second, time.Millisecond)

	h.session.l.Clear()
	require.Eventually(t, func() bool { return h.relay.State() == AwaitingSession }, time.Second, time.Millisecond)

	h.queue.TryEnqueue(event.AddressChanged)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, h.relay.Published())
	assert.Equal(t, 1, h.queue.Len())

	h.session.l.Set()
	require.Eventually(t, func() bool { return h.relay.Published() == 2 }, time.Second, time.Millisecond)
}

func TestFormatHardwareAddr(t *testing.T) {
	assert.Equal(t, "b8:27:eb:12:34:56", FormatHardwareAddr(testMAC))
	assert.Equal(t, "00:00:0a:ff:01:02", FormatHardwareAddr(net.HardwareAddr{0, 0, 0x0a, 0xff, 1, 2}))
}

func TestFormatAddress(t *testing.T) {
	assert.Equal(t, "192.168.1.42", FormatAddress(netip.MustParseAddr("192.168.1.42")))
	assert.Equal(t, "10.0.0.1", FormatAddress(netip.MustParseAddr("::ffff:10.0.0.1")))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "AWAITING_SESSION", AwaitingSession.String())
	assert.Equal(t, "IDLE", Idle.String())
	assert.Equal(t, "PROCESSING", Processing.String())
}
