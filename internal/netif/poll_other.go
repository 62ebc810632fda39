//go:build !linux

package netif

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"go.uber.org/zap"
)

// subscribeChanges is a no-op without netlink; the Watcher polls.
func subscribeChanges(context.Context, string, func(), *zap.Logger) error {
	return nil
}

// lookupIPv4 reports the interface's first IPv4 address and whether the
// interface is administratively up.
func lookupIPv4(name string) (netip.Addr, bool, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return netip.Addr{}, false, fmt.Errorf("lookup interface %s: %w", name, err)
	}
	up := ifi.Flags&net.FlagUp != 0

	addrs, err := ifi.Addrs()
	if err != nil {
		return netip.Addr{}, up, fmt.Errorf("list addresses of %s: %w", name, err)
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			addr, _ := netip.AddrFromSlice(v4)
			return addr, up, nil
		}
	}
	return netip.Addr{}, up, nil
}

func lookupHardwareAddr(name string) (net.HardwareAddr, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("lookup interface %s: %w", name, err)
	}
	if len(ifi.HardwareAddr) == 0 {
		return nil, fmt.Errorf("interface %s has no hardware address", name)
	}
	return ifi.HardwareAddr, nil
}
