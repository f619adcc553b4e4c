// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package socket opens and configures the UDP sockets an SSDP transport
// uses, one per Purpose.
package socket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/net/ipv4"

	"github.com/GNOME/gssdp-sub000/lib/netutil"
	"github.com/GNOME/gssdp-sub000/lib/ssdp"
)

type Purpose int

const (
	// Request receives unicast traffic on the SSDP port and sends
	// announcements and responses.
	Request Purpose = iota
	// Multicast receives traffic sent to the SSDP group.
	Multicast
	// Search sends discovery requests from a port other than 1900 and
	// receives their responses.
	Search
)

func (p Purpose) String() string {
	switch p {
	case Request:
		return "request"
	case Multicast:
		return "multicast"
	case Search:
		return "search"
	default:
		return fmt.Sprintf("purpose(%d)", int(p))
	}
}

// ErrReservedPort is returned for a Search socket asked to bind the SSDP
// port. Replies to searches must not be spoofable as announcements.
var ErrReservedPort = errors.New("search port must not be the SSDP port")

// Error is returned when a socket cannot be created or configured.
type Error struct {
	Purpose Purpose
	Op      string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s socket: %s: %v", e.Purpose, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Options struct {
	Purpose Purpose
	Device  netutil.Device
	// TTL of outgoing multicast datagrams; zero means ssdp.DefaultTTL.
	TTL int
	// Port is the local port of a Search socket; zero picks one at random
	// and ssdp.Port is refused. It is ignored for the other purposes.
	Port int
}

// A Packet is one received datagram.
type Packet struct {
	Data   []byte
	Source *net.UDPAddr
	// IfIndex is the index of the receiving interface, or zero when the
	// platform does not report it.
	IfIndex int
	// Truncated is set when the datagram exceeded ssdp.MaxDatagram.
	Truncated bool
}

type Endpoint struct {
	purpose Purpose
	conn    net.PacketConn
	pconn   *ipv4.PacketConn
	hasCM   bool
}

// Open creates the socket for opts.Purpose on opts.Device.
func Open(ctx context.Context, opts Options) (*Endpoint, error) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = ssdp.DefaultTTL
	}
	dev := opts.Device
	if dev.HostIP.To4() == nil {
		return nil, &Error{opts.Purpose, "resolve", fmt.Errorf("%s has no IPv4 address", dev.Name)}
	}

	var bindIP net.IP
	port := ssdp.Port
	switch opts.Purpose {
	case Request:
		bindIP = dev.HostIP
	case Multicast:
		bindIP = ssdp.MulticastAddr.IP
		if bindMulticastToInterface {
			bindIP = dev.HostIP
		}
	case Search:
		if opts.Port == ssdp.Port {
			return nil, &Error{opts.Purpose, "open", ErrReservedPort}
		}
		bindIP = dev.HostIP
		port = opts.Port
	default:
		return nil, &Error{opts.Purpose, "open", errors.New("unknown purpose")}
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var opErr error
			err := c.Control(func(fd uintptr) {
				opErr = setSockopts(fd, opts.Purpose == Request)
			})
			if err != nil {
				return err
			}
			return opErr
		},
	}
	addr := (&net.UDPAddr{IP: bindIP, Port: port}).String()
	conn, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, &Error{opts.Purpose, "bind " + addr, err}
	}

	e := &Endpoint{
		purpose: opts.Purpose,
		conn:    conn,
		pconn:   ipv4.NewPacketConn(conn),
	}
	if err := e.configure(dev, ttl); err != nil {
		conn.Close()
		return nil, err
	}

	l.Debugf("Opened %s socket on %s (%s)", opts.Purpose, conn.LocalAddr(), dev.Name)
	return e, nil
}

func (e *Endpoint) configure(dev netutil.Device, ttl int) error {
	intf := dev.Interface()

	if err := e.pconn.SetControlMessage(ipv4.FlagInterface|ipv4.FlagDst, true); err != nil {
		// Not available everywhere; the transport then filters on the
		// sender's network instead.
		l.Debugf("No packet info on %s socket: %v", e.purpose, err)
	} else {
		e.hasCM = true
	}

	switch e.purpose {
	case Multicast:
		if err := e.pconn.JoinGroup(intf, &net.UDPAddr{IP: ssdp.MulticastAddr.IP}); err != nil {
			return &Error{e.purpose, "join group on " + dev.Name, err}
		}
		if err := e.pconn.SetMulticastLoopback(true); err != nil {
			return &Error{e.purpose, "enable multicast loopback", err}
		}

	case Request, Search:
		if err := e.pconn.SetMulticastTTL(ttl); err != nil {
			return &Error{e.purpose, "set multicast ttl", err}
		}
		if err := e.pconn.SetMulticastInterface(intf); err != nil {
			return &Error{e.purpose, "set multicast interface " + dev.Name, err}
		}
	}
	return nil
}

func (e *Endpoint) Purpose() Purpose {
	return e.purpose
}

func (e *Endpoint) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}

// ReadPacket blocks until a datagram arrives or the endpoint is closed.
// buf should be larger than ssdp.MaxDatagram so oversized datagrams can be
// detected; the returned Data aliases buf.
func (e *Endpoint) ReadPacket(buf []byte) (Packet, error) {
	n, cm, src, err := e.pconn.ReadFrom(buf)
	if err != nil {
		return Packet{}, err
	}
	p := Packet{Data: buf[:n]}
	if udp, ok := src.(*net.UDPAddr); ok {
		p.Source = udp
	}
	if cm != nil {
		p.IfIndex = cm.IfIndex
	}
	if n > ssdp.MaxDatagram {
		p.Truncated = true
	}
	return p, nil
}

func (e *Endpoint) WriteTo(b []byte, dst *net.UDPAddr) error {
	_, err := e.pconn.WriteTo(b, nil, dst)
	return err
}

func (e *Endpoint) Close() error {
	return e.conn.Close()
}
