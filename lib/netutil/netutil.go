// Copyright (C) 2023 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package netutil resolves the network device an SSDP transport binds to.
package netutil

import (
	"errors"
	"fmt"
	"net"
	"runtime"
)

var (
	ErrNoInterface = errors.New("no usable network interface found")
	ErrNoAddress   = errors.New("network interface has no IPv4 address")
)

// A Device is the resolved network interface a transport is bound to.
type Device struct {
	Name    string
	Index   int
	HostIP  net.IP
	Network net.IP
	Mask    net.IPMask
}

// Contains returns whether ip is on the device's IPv4 network.
func (d Device) Contains(ip net.IP) bool {
	ip4 := ip.To4()
	if ip4 == nil || d.Mask == nil {
		return false
	}
	return ip4.Mask(d.Mask).Equal(d.Network)
}

func (d Device) Interface() *net.Interface {
	return &net.Interface{Index: d.Index, Name: d.Name}
}

func (d Device) String() string {
	ones, _ := d.Mask.Size()
	return fmt.Sprintf("%s (#%d) %s/%d", d.Name, d.Index, d.HostIP, ones)
}

// A Provider resolves an interface name, an IPv4 address literal or the
// empty string (autodetect) to a Device.
type Provider interface {
	Resolve(name string) (Device, error)
}

// System is the Provider backed by the host's interface list.
type System struct{}

func (System) Resolve(name string) (Device, error) {
	return resolve(name, systemLister{})
}

type lister interface {
	Interfaces() ([]net.Interface, error)
	Addrs(intf *net.Interface) ([]net.Addr, error)
}

func resolve(name string, ls lister) (Device, error) {
	intfs, err := ls.Interfaces()
	if err != nil {
		return Device{}, fmt.Errorf("listing network interfaces: %w", err)
	}

	if ip := net.ParseIP(name); ip != nil {
		return resolveAddress(ip, intfs, ls)
	}

	if name != "" {
		for i := range intfs {
			if intfs[i].Name == name {
				return deviceFor(&intfs[i], ls)
			}
		}
		return Device{}, fmt.Errorf("%w: %s", ErrNoInterface, name)
	}

	var fallback *Device
	for i := range intfs {
		intf := &intfs[i]
		// Interface flags seem to always be 0 on Windows
		if runtime.GOOS != "windows" && intf.Flags&net.FlagUp == 0 {
			continue
		}
		dev, err := deviceFor(intf, ls)
		if err != nil {
			l.Debugln("Skipping interface", intf.Name+":", err)
			continue
		}
		if intf.Flags&net.FlagLoopback != 0 {
			if fallback == nil {
				fallback = &dev
			}
			continue
		}
		if runtime.GOOS != "windows" && intf.Flags&net.FlagMulticast == 0 {
			continue
		}
		l.Debugln("Autodetected", dev)
		return dev, nil
	}

	if fallback != nil {
		l.Debugln("Falling back to loopback", *fallback)
		return *fallback, nil
	}
	return Device{}, ErrNoInterface
}

func resolveAddress(ip net.IP, intfs []net.Interface, ls lister) (Device, error) {
	if ip.To4() == nil {
		return Device{}, fmt.Errorf("%w: %s is not an IPv4 address", ErrNoAddress, ip)
	}
	for i := range intfs {
		addrs, err := ls.Addrs(&intfs[i])
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet := toIPNet(addr)
			if ipnet != nil && ipnet.IP.Equal(ip) {
				return newDevice(&intfs[i], ipnet), nil
			}
		}
	}
	return Device{}, fmt.Errorf("%w: no interface has address %s", ErrNoInterface, ip)
}

func deviceFor(intf *net.Interface, ls lister) (Device, error) {
	addrs, err := ls.Addrs(intf)
	if err != nil {
		return Device{}, fmt.Errorf("%s: %w", intf.Name, err)
	}
	for _, addr := range addrs {
		if ipnet := toIPNet(addr); ipnet != nil {
			return newDevice(intf, ipnet), nil
		}
	}
	return Device{}, fmt.Errorf("%w: %s", ErrNoAddress, intf.Name)
}

// toIPNet returns the IPv4 network of addr, or nil.
func toIPNet(addr net.Addr) *net.IPNet {
	switch a := addr.(type) {
	case *net.IPNet:
		if ip4 := a.IP.To4(); ip4 != nil {
			mask := a.Mask
			if len(mask) == net.IPv6len {
				mask = mask[12:]
			}
			return &net.IPNet{IP: ip4, Mask: mask}
		}
	case *net.IPAddr:
		if ip4 := a.IP.To4(); ip4 != nil {
			return &net.IPNet{IP: ip4, Mask: ip4.DefaultMask()}
		}
	}
	return nil
}

func newDevice(intf *net.Interface, ipnet *net.IPNet) Device {
	return Device{
		Name:    intf.Name,
		Index:   intf.Index,
		HostIP:  ipnet.IP,
		Network: ipnet.IP.Mask(ipnet.Mask),
		Mask:    ipnet.Mask,
	}
}
