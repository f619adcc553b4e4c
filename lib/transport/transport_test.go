// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/d4l3k/messagediff"

	"github.com/GNOME/gssdp-sub000/lib/mainloop"
	"github.com/GNOME/gssdp-sub000/lib/netutil"
	"github.com/GNOME/gssdp-sub000/lib/socket"
	"github.com/GNOME/gssdp-sub000/lib/ssdp"
)

var testDevice = netutil.Device{
	Name:    "eth0",
	Index:   4,
	HostIP:  net.IPv4(192, 168, 1, 20).To4(),
	Network: net.IPv4(192, 168, 1, 0).To4(),
	Mask:    net.CIDRMask(24, 32),
}

type fakeProvider struct {
	dev netutil.Device
	err error
}

func (f fakeProvider) Resolve(string) (netutil.Device, error) {
	return f.dev, f.err
}

type sentPacket struct {
	dst  string
	data string
}

type fakeEndpoint struct {
	purpose socket.Purpose
	inbox   chan socket.Packet
	done    chan struct{}

	mut     sync.Mutex
	sent    []sentPacket
	closed  bool
	sendErr error
}

func newFakeEndpoint(p socket.Purpose) *fakeEndpoint {
	return &fakeEndpoint{purpose: p, inbox: make(chan socket.Packet, 16), done: make(chan struct{})}
}

func (f *fakeEndpoint) ReadPacket(buf []byte) (socket.Packet, error) {
	select {
	case p := <-f.inbox:
		n := copy(buf, p.Data)
		p.Data = buf[:n]
		return p, nil
	case <-f.done:
		return socket.Packet{}, net.ErrClosed
	}
}

func (f *fakeEndpoint) WriteTo(b []byte, dst *net.UDPAddr) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentPacket{dst.String(), string(b)})
	return nil
}

func (f *fakeEndpoint) Close() error {
	f.mut.Lock()
	defer f.mut.Unlock()
	if f.closed {
		return net.ErrClosed
	}
	f.closed = true
	close(f.done)
	return nil
}

func (f *fakeEndpoint) Sent() []sentPacket {
	f.mut.Lock()
	defer f.mut.Unlock()
	return append([]sentPacket(nil), f.sent...)
}

type fakeNet struct {
	endpoints map[socket.Purpose]*fakeEndpoint
	failOn    socket.Purpose
	fail      bool
	opts      []socket.Options
}

func (n *fakeNet) open(_ context.Context, opts socket.Options) (endpoint, error) {
	n.opts = append(n.opts, opts)
	if n.fail && opts.Purpose == n.failOn {
		return nil, &socket.Error{Purpose: opts.Purpose, Op: "bind", Err: errors.New("address in use")}
	}
	ep := newFakeEndpoint(opts.Purpose)
	n.endpoints[opts.Purpose] = ep
	return ep, nil
}

func newTestClient(t *testing.T) (*Client, *fakeNet, *mainloop.Loop) {
	t.Helper()
	loop := mainloop.New(clock.NewMock())
	fn := &fakeNet{endpoints: make(map[socket.Purpose]*fakeEndpoint)}
	c := New(loop, Options{
		ServerID:   "test/1.0",
		UserAgent:  "tester GSSDP/1.6",
		SearchPort: 51900,
		TTL:        2,
		Network:    fakeProvider{dev: testDevice},
	})
	c.open = fn.open
	if err := c.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	return c, fn, loop
}

func TestInitOpensAllSockets(t *testing.T) {
	c, fn, _ := newTestClient(t)
	if len(fn.opts) != 3 {
		t.Fatalf("expected three sockets, got %d", len(fn.opts))
	}
	for _, o := range fn.opts {
		if o.TTL != 2 || o.Port != 51900 || o.Device.Name != "eth0" {
			t.Errorf("unexpected socket options %+v", o)
		}
	}
	if c.Device().Index != 4 {
		t.Error("device not recorded")
	}
	if err := c.Init(context.Background()); !errors.Is(err, ErrInitialized) {
		t.Error("second Init should fail, got", err)
	}
}

func TestInitReleasesOnFailure(t *testing.T) {
	loop := mainloop.New(clock.NewMock())
	fn := &fakeNet{endpoints: make(map[socket.Purpose]*fakeEndpoint), fail: true, failOn: socket.Search}
	c := New(loop, Options{Network: fakeProvider{dev: testDevice}})
	c.open = fn.open

	err := c.Init(context.Background())
	var serr *socket.Error
	if !errors.As(err, &serr) || serr.Purpose != socket.Search {
		t.Fatalf("expected search socket error, got %v", err)
	}
	for p, ep := range fn.endpoints {
		if !ep.closed {
			t.Errorf("%s socket left open", p)
		}
	}
	if err := c.Send(nil, "x", ViaRequest); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestInitNoInterface(t *testing.T) {
	loop := mainloop.New(clock.NewMock())
	c := New(loop, Options{Network: fakeProvider{err: netutil.ErrNoInterface}})
	if err := c.Init(context.Background()); !errors.Is(err, netutil.ErrNoInterface) {
		t.Fatalf("expected ErrNoInterface, got %v", err)
	}
}

func TestSendAppendsHeaders(t *testing.T) {
	c, fn, _ := newTestClient(t)

	c.AppendHeader("X-A", "1")
	c.AppendHeader("X-B", "2")
	c.AppendHeader("X-A", "3")

	if err := c.Send(nil, "NOTIFY * HTTP/1.1\r\n", ViaRequest); err != nil {
		t.Fatal(err)
	}
	c.RemoveHeader("x-a")
	dst := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 30)}
	if err := c.Send(dst, "HTTP/1.1 200 OK\r\n", ViaSearch); err != nil {
		t.Fatal(err)
	}
	c.ClearHeaders()
	if err := c.Send(nil, "M-SEARCH * HTTP/1.1\r\n", ViaSearch); err != nil {
		t.Fatal(err)
	}

	expectedRequest := []sentPacket{
		{"239.255.255.250:1900", "NOTIFY * HTTP/1.1\r\nX-A: 1\r\nX-B: 2\r\nX-A: 3\r\n\r\n"},
	}
	expectedSearch := []sentPacket{
		{"192.168.1.30:1900", "HTTP/1.1 200 OK\r\nX-B: 2\r\n\r\n"},
		{"239.255.255.250:1900", "M-SEARCH * HTTP/1.1\r\n\r\n"},
	}
	if diff, equal := messagediff.PrettyDiff(expectedRequest, fn.endpoints[socket.Request].Sent()); !equal {
		t.Errorf("Request socket sends differ. Diff:\n%s", diff)
	}
	if diff, equal := messagediff.PrettyDiff(expectedSearch, fn.endpoints[socket.Search].Sent()); !equal {
		t.Errorf("Search socket sends differ. Diff:\n%s", diff)
	}
}

func TestInactiveSuppressesSends(t *testing.T) {
	c, fn, _ := newTestClient(t)

	c.SetActive(false)
	if err := c.Send(nil, "NOTIFY * HTTP/1.1\r\n", ViaRequest); err != nil {
		t.Fatal(err)
	}
	if n := len(fn.endpoints[socket.Request].Sent()); n != 0 {
		t.Fatalf("inactive client sent %d datagrams", n)
	}

	var got int
	c.Subscribe(func(*ssdp.Message) { got++ })
	c.receive(socket.Multicast, socket.Packet{
		Data:   []byte(ssdp.ByeByeNotify(ssdp.Resource{Target: "a", USN: "b"}) + "\r\n"),
		Source: &net.UDPAddr{IP: net.IPv4(192, 168, 1, 30), Port: 1900},
	})
	if got != 1 {
		t.Fatal("inactive client should still receive")
	}
}

func TestSendError(t *testing.T) {
	c, fn, _ := newTestClient(t)
	fn.endpoints[socket.Request].sendErr = errors.New("network is unreachable")
	if err := c.Send(nil, "NOTIFY * HTTP/1.1\r\n", ViaRequest); err == nil {
		t.Fatal("expected the send error to be returned")
	}
}

func TestReceiveFilterAndDispatch(t *testing.T) {
	c, _, _ := newTestClient(t)

	var order []string
	c.Subscribe(func(m *ssdp.Message) { order = append(order, "first:"+m.Kind.String()) })
	cancel := c.Subscribe(func(m *ssdp.Message) { order = append(order, "second:"+m.Kind.String()) })

	search := []byte(ssdp.Search("ssdp:all", 3, "ua") + "\r\n")
	onNet := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 30), Port: 50000}
	offNet := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 50000}

	c.receive(socket.Multicast, socket.Packet{Data: search, Source: onNet})
	c.receive(socket.Multicast, socket.Packet{Data: search, Source: offNet})
	c.receive(socket.Multicast, socket.Packet{Data: search, Source: offNet, IfIndex: 4})
	c.receive(socket.Multicast, socket.Packet{Data: search, Source: onNet, IfIndex: 7})
	c.receive(socket.Multicast, socket.Packet{Data: search, Source: onNet, Truncated: true})
	c.receive(socket.Multicast, socket.Packet{Data: []byte("garbage\r\n\r\n"), Source: onNet})
	c.receive(socket.Multicast, socket.Packet{Data: search[:len(search)-2], Source: onNet})

	cancel()
	cancel()
	c.receive(socket.Search, socket.Packet{Data: search, Source: onNet})

	expected := []string{
		"first:discovery-request", "second:discovery-request",
		"first:discovery-request", "second:discovery-request",
		"first:discovery-request",
	}
	if diff, equal := messagediff.PrettyDiff(expected, order); !equal {
		t.Errorf("Dispatch differs. Diff:\n%s", diff)
	}
}

func TestCancelDuringDispatch(t *testing.T) {
	c, _, _ := newTestClient(t)

	var calls []int
	var cancelSecond func()
	c.Subscribe(func(*ssdp.Message) {
		calls = append(calls, 1)
		cancelSecond()
	})
	cancelSecond = c.Subscribe(func(*ssdp.Message) { calls = append(calls, 2) })

	c.receive(socket.Multicast, socket.Packet{
		Data:   []byte(ssdp.Search("ssdp:all", 3, "ua") + "\r\n"),
		Source: &net.UDPAddr{IP: net.IPv4(192, 168, 1, 30), Port: 1900},
	})
	if fmt.Sprint(calls) != "[1]" {
		t.Fatalf("cancelled subscriber was called: %v", calls)
	}
}

func TestServeReadsAndCloses(t *testing.T) {
	c, fn, _ := newTestClient(t)
	// Serve needs a running loop for dispatch.
	loop := mainloop.New(nil)
	c.loop = loop

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Serve(ctx)

	got := make(chan ssdp.Kind, 1)
	if err := loop.Do(ctx, func() {
		c.Subscribe(func(m *ssdp.Message) { got <- m.Kind })
	}); err != nil {
		t.Fatal(err)
	}

	serveCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- c.Serve(serveCtx) }()

	fn.endpoints[socket.Search].inbox <- socket.Packet{
		Data:   []byte(ssdp.Response(ssdp.Resource{Target: "a", USN: "b", Locations: []string{"http://x/"}}, "a", 5, "s", time.Now()) + "\r\n"),
		Source: &net.UDPAddr{IP: net.IPv4(192, 168, 1, 30), Port: 1900},
	}
	select {
	case k := <-got:
		if k != ssdp.DiscoveryResponse {
			t.Fatalf("unexpected kind %v", k)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message not dispatched")
	}

	stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	for p, ep := range fn.endpoints {
		if !ep.closed {
			t.Errorf("%s socket not closed", p)
		}
	}
}
