// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package platform

import (
	"net"
	"net/netip"
)

// NetLink reports the state of a host network interface. With an empty
// Name the first non-loopback interface that is up is used.
type NetLink struct {
	Name string
}

// IsLinkUp reports whether the interface is administratively up and running.
func (l NetLink) IsLinkUp() bool {
	_, ok := l.iface()
	return ok
}

// CurrentAddress returns the first IPv4 unicast address of the interface.
func (l NetLink) CurrentAddress() (netip.Addr, bool) {
	iface, ok := l.iface()
	if !ok {
		return netip.Addr{}, false
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return netip.Addr{}, false
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		addr, ok := netip.AddrFromSlice(ipnet.IP)
		if !ok {
			continue
		}
		addr = addr.Unmap()
		if addr.Is4() && !addr.IsLinkLocalUnicast() && !addr.IsUnspecified() {
			return addr, true
		}
	}
	return netip.Addr{}, false
}

func (l NetLink) iface() (*net.Interface, bool) {
	if l.Name != "" {
		iface, err := net.InterfaceByName(l.Name)
		if err != nil || !running(iface.Flags) {
			return nil, false
		}
		return iface, true
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, false
	}
	for i := range ifaces {
		if ifaces[i].Flags&net.FlagLoopback == 0 && running(ifaces[i].Flags) {
			return &ifaces[i], true
		}
	}
	return nil, false
}

func running(f net.Flags) bool {
	return f&net.FlagUp != 0 && f&net.FlagRunning != 0
}

// StaticLink is always up with a fixed address.
type StaticLink struct {
	Addr netip.Addr
}

func (l StaticLink) IsLinkUp() bool { return true }

func (l StaticLink) CurrentAddress() (netip.Addr, bool) {
	return l.Addr, l.Addr.IsValid()
}
