package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sweeney/button-agent/internal/latch"
	"github.com/sweeney/button-agent/internal/mqtt"
)

type fakeLink struct{ l *latch.Latch }

func newFakeLink() *fakeLink { return &fakeLink{l: latch.New()} }

func (f *fakeLink) WaitUp(ctx context.Context) error { return f.l.Wait(ctx) }
func (f *fakeLink) IsUp() bool                       { return f.l.IsSet() }
func (f *fakeLink) UpChan() <-chan struct{}          { return f.l.Done() }

func startSupervisor(t *testing.T, tr *mqtt.FakeTransport, link *fakeLink, opts Options) *Supervisor {
	t.Helper()
	s := NewSupervisor(tr, link, opts, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return s
}

var defaultOpts = Options{Topics: []string{"temperatura"}, QoS: 0, ConnectRetry: time.Millisecond}

// Link down at boot: the session blocks, then connects, subscribes and
// comes up once the link does.
func TestBootWaitsForLink(t *testing.T) {
	tr := mqtt.NewFakeTransport()
	link := newFakeLink()
	s := startSupervisor(t, tr, link, defaultOpts)

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, tr.Connects(), "must not connect before link is up")
	assert.Equal(t, Down, s.State())

	link.l.Set()
	require.Eventually(t, func() bool { return tr.Connects() == 1 }, time.Second, time.Millisecond)

	tr.Push(mqtt.Notification{Kind: mqtt.Connected})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.WaitUp(ctx))
	assert.Equal(t, Up, s.State())
	assert.Equal(t, []mqtt.Subscription{{Topic: "temperatura", QoS: 0}}, tr.Subscriptions())
}

func TestSubscribeBeforeReady(t *testing.T) {
	tr := mqtt.NewFakeTransport()
	link := newFakeLink()
	link.l.Set()

	var mu sync.Mutex
	var upAtSubscribe, linkAtSubscribe []bool
	var s *Supervisor
	ready := make(chan struct{})
	tr.OnSubscribe = func(string) {
		<-ready
		mu.Lock()
		upAtSubscribe = append(upAtSubscribe, s.IsUp())
		linkAtSubscribe = append(linkAtSubscribe, link.IsUp())
		mu.Unlock()
	}

	opts := defaultOpts
	opts.Topics = []string{"a", "b"}
	s = startSupervisor(t, tr, link, opts)
	close(ready)

	tr.Push(mqtt.Notification{Kind: mqtt.Connected})
	require.Eventually(t, s.IsUp, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{false, false}, upAtSubscribe)
	assert.Equal(t, []bool{true, true}, linkAtSubscribe)
}

func TestSubscriptionDeferredWhileLinkDown(t *testing.T) {
	tr := mqtt.NewFakeTransport()
	link := newFakeLink()
	link.l.Set()
	s := startSupervisor(t, tr, link, defaultOpts)
	require.Eventually(t, func() bool { return tr.Connects() == 1 }, time.Second, time.Millisecond)

	link.l.Clear()
	tr.Push(mqtt.Notification{Kind: mqtt.Connected})
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, tr.Subscriptions(), "no subscription while link is down")
	assert.False(t, s.IsUp())

	link.l.Set()
	require.Eventually(t, s.IsUp, time.Second, time.Millisecond)
	assert.Len(t, tr.Subscriptions(), 1)
}

func TestDisconnectMarksDown(t *testing.T) {
	tr := mqtt.NewFakeTransport()
	link := newFakeLink()
	link.l.Set()
	s := startSupervisor(t, tr, link, defaultOpts)

	tr.Push(mqtt.Notification{Kind: mqtt.Connected})
	require.Eventually(t, s.IsUp, time.Second, time.Millisecond)

	tr.Push(mqtt.Notification{Kind: mqtt.Disconnected, Err: errors.New("eof")})
	require.Eventually(t, func() bool { return s.State() == Down }, time.Second, time.Millisecond)
	assert.False(t, s.IsUp())

	// The transport reconnects on its own; the supervisor never calls
	// Connect again.
	tr.Push(mqtt.Notification{Kind: mqtt.Connected})
	require.Eventually(t, s.IsUp, time.Second, time.Millisecond)
	assert.Equal(t, 1, tr.Connects())
	assert.Len(t, tr.Subscriptions(), 2, "subscriptions are reissued on every connect")
}

func TestSubscribeErrorStillComesUp(t *testing.T) {
	tr := mqtt.NewFakeTransport()
	tr.SubscribeError = errors.New("not authorised")
	link := newFakeLink()
	link.l.Set()
	s := startSupervisor(t, tr, link, defaultOpts)

	tr.Push(mqtt.Notification{Kind: mqtt.Connected})
	require.Eventually(t, s.IsUp, time.Second, time.Millisecond)
}

func TestConnectErrorRetried(t *testing.T) {
	tr := mqtt.NewFakeTransport()
	tr.ConnectError = errors.New("bad url")
	link := newFakeLink()
	link.l.Set()
	startSupervisor(t, tr, link, defaultOpts)

	require.Eventually(t, func() bool { return tr.Connects() >= 3 }, time.Second, time.Millisecond)
}

func TestInboundDataCounted(t *testing.T) {
	tr := mqtt.NewFakeTransport()
	link := newFakeLink()
	link.l.Set()
	s := startSupervisor(t, tr, link, defaultOpts)

	tr.Push(mqtt.Notification{Kind: mqtt.Data, Topic: "temperatura", Payload: []byte("21.5")})
	tr.Push(mqtt.Notification{Kind: mqtt.Published, MessageID: 7})
	tr.Push(mqtt.Notification{Kind: mqtt.Error, Err: errors.New("boom")})
	require.Eventually(t, func() bool { return s.Received() == 1 }, time.Second, time.Millisecond)
}

func TestPublisherIsTransport(t *testing.T) {
	tr := mqtt.NewFakeTransport()
	s := NewSupervisor(tr, newFakeLink(), defaultOpts, zaptest.NewLogger(t))
	assert.Same(t, tr, s.Publisher())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "UP", Up.String())
	assert.Equal(t, "DOWN", Down.String())
}
