package netif

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
)

// FakeDriver is a Driver whose notifications are pushed by tests.
type FakeDriver struct {
	mu       sync.Mutex
	connects int
	started  bool

	// ConnectErr, if set, is returned by Connect.
	ConnectErr error

	// StartErr, if set, is returned by Start.
	StartErr error

	// AutoStart makes Start emit StationStarted like a real driver.
	AutoStart bool

	notes chan Notification
}

// NewFakeDriver returns a FakeDriver that emits StationStarted on Start.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{AutoStart: true, notes: make(chan Notification, 16)}
}

// Start implements Driver.
func (f *FakeDriver) Start(ctx context.Context) error {
	if f.StartErr != nil {
		return f.StartErr
	}
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	if f.AutoStart {
		f.Push(Notification{Kind: StationStarted})
	}
	return nil
}

// Connect implements Driver and counts calls.
func (f *FakeDriver) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.ConnectErr
}

// Notifications implements Driver.
func (f *FakeDriver) Notifications() <-chan Notification {
	return f.notes
}

// Push delivers a notification as the driver would.
func (f *FakeDriver) Push(n Notification) {
	f.notes <- n
}

// Connects returns the number of Connect calls.
func (f *FakeDriver) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// Started reports whether Start succeeded.
func (f *FakeDriver) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

// FakeIdentity is an Identity with settable values. Reads are counted so
// tests can check that values are read at use time.
type FakeIdentity struct {
	mu    sync.Mutex
	mac   net.HardwareAddr
	addr  netip.Addr
	reads int

	// Err, if set, is returned by both readers.
	Err error
}

// NewFakeIdentity returns a FakeIdentity with the given MAC and address.
func NewFakeIdentity(mac net.HardwareAddr, addr netip.Addr) *FakeIdentity {
	return &FakeIdentity{mac: mac, addr: addr}
}

// SetAddr changes the reported address.
func (f *FakeIdentity) SetAddr(addr netip.Addr) {
	f.mu.Lock()
	f.addr = addr
	f.mu.Unlock()
}

// HardwareAddr implements Identity.
func (f *FakeIdentity) HardwareAddr() (net.HardwareAddr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.Err != nil {
		return nil, f.Err
	}
	if len(f.mac) == 0 {
		return nil, errors.New("no hardware address")
	}
	return f.mac, nil
}

// IPv4 implements Identity.
func (f *FakeIdentity) IPv4() (netip.Addr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.Err != nil {
		return netip.Addr{}, f.Err
	}
	if !f.addr.IsValid() {
		return netip.Addr{}, ErrNoAddress
	}
	return f.addr, nil
}

// Reads returns how many identity reads were made.
func (f *FakeIdentity) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}
