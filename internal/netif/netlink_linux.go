//go:build linux

package netif

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"
	"go.uber.org/zap"
)

// subscribeChanges wakes on rtnetlink link and IPv4 address updates for
// iface. Both subscriptions end when ctx does.
func subscribeChanges(ctx context.Context, iface string, wake func(), log *zap.Logger) error {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", iface, err)
	}
	filter := &changeFilter{name: iface, index: link.Attrs().Index}

	onErr := func(err error) { log.Debug("netlink receive failed", zap.Error(err)) }
	links := make(chan netlink.LinkUpdate, 16)
	addrs := make(chan netlink.AddrUpdate, 16)

	if err := netlink.LinkSubscribeWithOptions(links, ctx.Done(), netlink.LinkSubscribeOptions{ErrorCallback: onErr}); err != nil {
		return fmt.Errorf("subscribe link updates: %w", err)
	}
	if err := netlink.AddrSubscribeWithOptions(addrs, ctx.Done(), netlink.AddrSubscribeOptions{ErrorCallback: onErr}); err != nil {
		// The link subscription is already running and still has to be
		// drained until ctx closes it.
		close(addrs)
		go filter.forward(links, addrs, func() {})
		return fmt.Errorf("subscribe address updates: %w", err)
	}

	go filter.forward(links, addrs, wake)
	return nil
}

// changeFilter picks out updates for one interface. The index is
// refreshed from link updates so a recreated interface is still followed.
type changeFilter struct {
	name  string
	index int
}

func (f *changeFilter) link(u netlink.LinkUpdate) bool {
	if u.Link == nil || u.Link.Attrs().Name != f.name {
		return false
	}
	f.index = u.Link.Attrs().Index
	return true
}

func (f *changeFilter) addr(u netlink.AddrUpdate) bool {
	return u.LinkIndex == f.index && u.LinkAddress.IP.To4() != nil
}

// forward calls wake for every matching update until both channels close.
func (f *changeFilter) forward(links <-chan netlink.LinkUpdate, addrs <-chan netlink.AddrUpdate, wake func()) {
	for links != nil || addrs != nil {
		select {
		case u, ok := <-links:
			if !ok {
				links = nil
				continue
			}
			if f.link(u) {
				wake()
			}
		case u, ok := <-addrs:
			if !ok {
				addrs = nil
				continue
			}
			if f.addr(u) {
				wake()
			}
		}
	}
}

// lookupIPv4 reports the interface's first IPv4 address and whether the
// interface is up and operational.
func lookupIPv4(name string) (netip.Addr, bool, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return netip.Addr{}, false, fmt.Errorf("lookup interface %s: %w", name, err)
	}
	attrs := link.Attrs()
	up := attrs.Flags&net.FlagUp != 0 && operational(attrs.OperState)

	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return netip.Addr{}, up, fmt.Errorf("list addresses of %s: %w", name, err)
	}
	for _, a := range addrs {
		if a.IPNet == nil {
			continue
		}
		if addr, ok := netip.AddrFromSlice(a.IP.To4()); ok {
			return addr, up, nil
		}
	}
	return netip.Addr{}, up, nil
}

// operational is false for the RFC 2863 states a disassociated station
// reports. Unknown counts as up; many drivers never set the state.
func operational(s netlink.LinkOperState) bool {
	switch s {
	case netlink.OperNotPresent, netlink.OperDown, netlink.OperLowerLayerDown, netlink.OperDormant:
		return false
	default:
		return true
	}
}

func lookupHardwareAddr(name string) (net.HardwareAddr, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("lookup interface %s: %w", name, err)
	}
	if len(link.Attrs().HardwareAddr) == 0 {
		return nil, fmt.Errorf("interface %s has no hardware address", name)
	}
	return link.Attrs().HardwareAddr, nil
}
