// Package netif adapts the operating system's network interface to the
// link-driver contract: connect requests in, station-started /
// disconnected / address-acquired notifications out. It also reads the
// device identity (hardware address, current IPv4) live from the OS.
package netif

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// ErrNoAddress is returned when the interface has no IPv4 address.
var ErrNoAddress = errors.New("netif: no IPv4 address assigned")

// Kind identifies a driver notification.
type Kind int

const (
	StationStarted Kind = iota
	Disconnected
	AddressAcquired
)

func (k Kind) String() string {
	switch k {
	case StationStarted:
		return "STATION_STARTED"
	case Disconnected:
		return "DISCONNECTED"
	case AddressAcquired:
		return "ADDRESS_ACQUIRED"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Notification is delivered by a Driver on its own goroutine.
type Notification struct {
	Kind Kind
	Addr netip.Addr // set for AddressAcquired
}

// Driver is the link driver consumed by the link supervisor.
type Driver interface {
	// Start begins association and notification delivery. It emits
	// StationStarted once the station is running.
	Start(ctx context.Context) error

	// Connect requests (re)association. The driver serialises overlapping
	// requests.
	Connect() error

	// Notifications delivers driver events in order.
	Notifications() <-chan Notification
}

// Identity reads device identity from live OS state.
type Identity interface {
	HardwareAddr() (net.HardwareAddr, error)
	IPv4() (netip.Addr, error)
}

// InterfaceIdentity reads identity from a named interface on every call.
type InterfaceIdentity struct {
	Name string
}

// HardwareAddr returns the interface MAC address.
func (i InterfaceIdentity) HardwareAddr() (net.HardwareAddr, error) {
	return lookupHardwareAddr(i.Name)
}

// IPv4 returns the first IPv4 address currently assigned to the interface.
func (i InterfaceIdentity) IPv4() (netip.Addr, error) {
	addr, up, err := lookupIPv4(i.Name)
	if err != nil {
		return netip.Addr{}, err
	}
	if !up || !addr.IsValid() || addr.IsUnspecified() {
		return netip.Addr{}, ErrNoAddress
	}
	return addr, nil
}
