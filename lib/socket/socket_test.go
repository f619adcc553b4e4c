// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package socket

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"

	"github.com/GNOME/gssdp-sub000/lib/netutil"
	"github.com/GNOME/gssdp-sub000/lib/ssdp"
)

func loopbackDevice(t *testing.T) netutil.Device {
	t.Helper()
	dev, err := netutil.System{}.Resolve("127.0.0.1")
	if err != nil {
		t.Skip("no loopback interface:", err)
	}
	return dev
}

func TestSearchLoopback(t *testing.T) {
	dev := loopbackDevice(t)
	e, err := Open(context.Background(), Options{Purpose: Search, Device: dev})
	if err != nil {
		t.Skip("cannot open sockets here:", err)
	}
	defer e.Close()

	dst := e.LocalAddr().(*net.UDPAddr)
	if dst.Port == 0 || dst.Port == ssdp.Port {
		t.Fatalf("search socket bound to port %d", dst.Port)
	}

	payload := []byte("M-SEARCH * HTTP/1.1\r\n\r\n")
	if err := e.WriteTo(payload, dst); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, ssdp.MaxDatagram+1)
	p, err := e.ReadPacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(p.Data, payload) || p.Truncated {
		t.Fatalf("unexpected packet %q (truncated %v)", p.Data, p.Truncated)
	}
	if !p.Source.IP.Equal(dev.HostIP) {
		t.Errorf("unexpected source %v", p.Source)
	}
	if p.IfIndex != 0 && p.IfIndex != dev.Index {
		t.Errorf("packet reported on interface %d, expected %d", p.IfIndex, dev.Index)
	}

	big := bytes.Repeat([]byte("x"), ssdp.MaxDatagram+100)
	if err := e.WriteTo(big, dst); err != nil {
		t.Fatal(err)
	}
	p, err = e.ReadPacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Truncated {
		t.Error("oversized datagram not flagged")
	}
}

func TestReadAfterClose(t *testing.T) {
	dev := loopbackDevice(t)
	e, err := Open(context.Background(), Options{Purpose: Search, Device: dev})
	if err != nil {
		t.Skip("cannot open sockets here:", err)
	}
	e.Close()
	if _, err := e.ReadPacket(make([]byte, 16)); !errors.Is(err, net.ErrClosed) {
		t.Fatalf("expected net.ErrClosed, got %v", err)
	}
}

func TestOpenErrors(t *testing.T) {
	var serr *Error

	_, err := Open(context.Background(), Options{Purpose: Multicast, Device: netutil.Device{Name: "none"}})
	if !errors.As(err, &serr) || serr.Purpose != Multicast {
		t.Fatalf("expected a multicast *Error, got %v", err)
	}

	dev := netutil.Device{Name: "lo", HostIP: net.IPv4(127, 0, 0, 1)}
	_, err = Open(context.Background(), Options{Purpose: Purpose(9), Device: dev})
	if !errors.As(err, &serr) || serr.Op != "open" {
		t.Fatalf("expected an open *Error, got %v", err)
	}

	_, err = Open(context.Background(), Options{Purpose: Search, Device: netutil.Device{Name: "bogus", HostIP: net.IPv4(192, 0, 2, 254)}})
	if !errors.As(err, &serr) || serr.Purpose != Search {
		t.Fatalf("expected a search *Error binding an unowned address, got %v", err)
	}

	_, err = Open(context.Background(), Options{Purpose: Search, Device: dev, Port: ssdp.Port})
	if !errors.Is(err, ErrReservedPort) || !errors.As(err, &serr) || serr.Purpose != Search {
		t.Fatalf("expected ErrReservedPort for a search socket on the SSDP port, got %v", err)
	}
}

func TestPurposeString(t *testing.T) {
	for p, s := range map[Purpose]string{Request: "request", Multicast: "multicast", Search: "search", 7: "purpose(7)"} {
		if p.String() != s {
			t.Errorf("%d: got %q, expected %q", int(p), p.String(), s)
		}
	}
}
