package netif

import (
	"context"
	"fmt"
	"net/netip"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// connectTimeout bounds a single run of the connect command.
const connectTimeout = 15 * time.Second

// lookupFunc returns the interface IPv4 and whether the interface is up.
type lookupFunc func(name string) (netip.Addr, bool, error)

// subscribeFunc delivers change events for iface by calling wake until ctx
// ends. wake must not block.
type subscribeFunc func(ctx context.Context, iface string, wake func(), log *zap.Logger) error

// Watcher is a Driver backed by the OS interface table. Association is
// handled by the system supplicant; Watcher observes the outcome and can
// nudge the supplicant through an optional connect command.
//
// Where the platform pushes link and address changes (netlink on Linux)
// the interface is re-read on every change and every poll as a resync.
// Elsewhere it is only polled.
type Watcher struct {
	iface      string
	poll       time.Duration
	connectCmd []string
	lookup     lookupFunc
	subscribe  subscribeFunc
	log        *zap.Logger

	notes   chan Notification
	wakeups chan struct{}

	mu      sync.Mutex // serialises Connect
	current netip.Addr
}

// NewWatcher creates a Watcher for iface, re-read at least every poll.
// connectCmd may be empty, in which case Connect is a no-op.
func NewWatcher(iface string, poll time.Duration, connectCmd []string, log *zap.Logger) *Watcher {
	return &Watcher{
		iface:      iface,
		poll:       poll,
		connectCmd: connectCmd,
		lookup:     lookupIPv4,
		subscribe:  subscribeChanges,
		log:        log,
		notes:      make(chan Notification, 8),
		wakeups:    make(chan struct{}, 1),
	}
}

// Notifications implements Driver.
func (w *Watcher) Notifications() <-chan Notification {
	return w.notes
}

// Start checks the interface exists, emits StationStarted and watches it
// until ctx ends. A failed change subscription leaves the Watcher polling.
func (w *Watcher) Start(ctx context.Context) error {
	if _, _, err := w.lookup(w.iface); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	if err := w.subscribe(ctx, w.iface, w.wake, w.log); err != nil {
		w.log.Warn("interface change events unavailable, polling only",
			zap.String("iface", w.iface), zap.Duration("poll", w.poll), zap.Error(err))
	}
	if !w.emit(ctx, Notification{Kind: StationStarted}) {
		return ctx.Err()
	}
	go w.run(ctx)
	return nil
}

// wake asks the run loop to re-read the interface. Wakeups coalesce.
func (w *Watcher) wake() {
	select {
	case w.wakeups <- struct{}{}:
	default:
	}
}

func (w *Watcher) run(ctx context.Context) {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	w.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wakeups:
			w.check(ctx)
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

// check compares the interface against the last observed address and
// emits the matching notification.
func (w *Watcher) check(ctx context.Context) {
	addr, up, err := w.lookup(w.iface)
	if err != nil {
		w.log.Debug("interface lookup failed", zap.String("iface", w.iface), zap.Error(err))
		addr, up = netip.Addr{}, false
	}
	if !up || addr.IsUnspecified() {
		addr = netip.Addr{}
	}

	switch {
	case addr == w.current:
		return
	case !addr.IsValid():
		w.current = addr
		w.emit(ctx, Notification{Kind: Disconnected})
	default:
		w.current = addr
		w.emit(ctx, Notification{Kind: AddressAcquired, Addr: addr})
	}
}

func (w *Watcher) emit(ctx context.Context, n Notification) bool {
	select {
	case w.notes <- n:
		return true
	case <-ctx.Done():
		return false
	}
}

// Connect runs the configured connect command, if any.
func (w *Watcher) Connect() error {
	if len(w.connectCmd) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, w.connectCmd[0], w.connectCmd[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("connect command %q: %w (output: %s)", w.connectCmd[0], err, out)
	}
	return nil
}
