// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package transport implements the SSDP client: the three sockets bound to
// one network device, message sending with extra headers, and dispatch of
// classified incoming messages to subscribers.
//
// A Client belongs to a mainloop.Loop. Apart from Serve and Close, its
// methods must be called from code running on that loop, and subscribers
// are called on it.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/GNOME/gssdp-sub000/lib/mainloop"
	"github.com/GNOME/gssdp-sub000/lib/netutil"
	"github.com/GNOME/gssdp-sub000/lib/socket"
	"github.com/GNOME/gssdp-sub000/lib/ssdp"
	"github.com/GNOME/gssdp-sub000/lib/svcutil"
)

var (
	ErrNotInitialized = errors.New("transport not initialized")
	ErrInitialized    = errors.New("transport already initialized")
)

// Via selects the socket a message is sent from.
type Via int

const (
	// ViaRequest sends from the socket bound to the SSDP port; used for
	// announcements and discovery responses.
	ViaRequest Via = iota
	// ViaSearch sends from the search socket so that responses come back
	// to it.
	ViaSearch
)

type Options struct {
	// Interface is an interface name or IPv4 address; empty autodetects.
	Interface string
	// SearchPort is the local port of the search socket; zero is random.
	SearchPort int
	// TTL of multicast datagrams; zero means ssdp.DefaultTTL.
	TTL       int
	ServerID  string
	UserAgent string
	// Network resolves Interface; nil means netutil.System.
	Network netutil.Provider
}

type endpoint interface {
	ReadPacket(buf []byte) (socket.Packet, error)
	WriteTo(b []byte, dst *net.UDPAddr) error
	Close() error
}

type openFunc func(ctx context.Context, opts socket.Options) (endpoint, error)

func openSocket(ctx context.Context, opts socket.Options) (endpoint, error) {
	return socket.Open(ctx, opts)
}

type header struct {
	name, value string
}

type subscription struct {
	handler  ssdp.Handler
	canceled bool
}

type Client struct {
	loop *mainloop.Loop
	opts Options
	open openFunc

	dev       netutil.Device
	endpoints map[socket.Purpose]endpoint
	headers   []header
	subs      []*subscription
	active    bool
	serverID  string
	userAgent string

	closeOnce sync.Once
	closeErr  error
}

func New(loop *mainloop.Loop, opts Options) *Client {
	if opts.Network == nil {
		opts.Network = netutil.System{}
	}
	c := &Client{
		loop:      loop,
		opts:      opts,
		open:      openSocket,
		active:    true,
		serverID:  opts.ServerID,
		userAgent: opts.UserAgent,
	}
	if c.serverID == "" {
		c.serverID = ssdp.DefaultServerID()
	}
	if c.userAgent == "" {
		c.userAgent = ssdp.DefaultUserAgent()
	}
	return c
}

// Init resolves the network device and opens the sockets. On failure every
// socket already opened is closed again and the client stays unusable.
func (c *Client) Init(ctx context.Context) error {
	if c.endpoints != nil {
		return ErrInitialized
	}

	dev, err := c.opts.Network.Resolve(c.opts.Interface)
	if err != nil {
		return err
	}

	endpoints := make(map[socket.Purpose]endpoint, 3)
	for _, purpose := range []socket.Purpose{socket.Request, socket.Multicast, socket.Search} {
		ep, err := c.open(ctx, socket.Options{
			Purpose: purpose,
			Device:  dev,
			TTL:     c.opts.TTL,
			Port:    c.opts.SearchPort,
		})
		if err != nil {
			for p, opened := range endpoints {
				if cerr := opened.Close(); cerr != nil {
					l.Debugf("Closing %s socket: %v", p, cerr)
				}
			}
			return err
		}
		endpoints[purpose] = ep
	}

	c.dev = dev
	c.endpoints = endpoints
	l.Infof("SSDP transport ready on %s", dev)
	return nil
}

// Serve reads from the sockets until ctx is cancelled, posting every
// accepted message to the loop for dispatch.
func (c *Client) Serve(ctx context.Context) error {
	if c.endpoints == nil {
		return svcutil.NoRestartErr(ErrNotInitialized)
	}

	var wg sync.WaitGroup
	for purpose, ep := range c.endpoints {
		wg.Add(1)
		go func(purpose socket.Purpose, ep endpoint) {
			defer wg.Done()
			c.readLoop(purpose, ep)
		}(purpose, ep)
	}

	<-ctx.Done()
	c.Close()
	wg.Wait()
	return nil
}

func (c *Client) readLoop(purpose socket.Purpose, ep endpoint) {
	buf := make([]byte, ssdp.MaxDatagram+1)
	for {
		p, err := ep.ReadPacket(buf)
		if errors.Is(err, net.ErrClosed) {
			return
		}
		if err != nil {
			l.Debugf("Reading %s socket: %v", purpose, err)
			continue
		}
		p.Data = append([]byte(nil), p.Data...)
		c.loop.Post(func() { c.receive(purpose, p) })
	}
}

// receive validates, classifies and dispatches one datagram.
func (c *Client) receive(purpose socket.Purpose, p socket.Packet) {
	if p.Truncated {
		l.Debugf("Dropping oversized datagram from %v on %s socket", p.Source, purpose)
		metricDroppedMessages.WithLabelValues(dropOversized).Inc()
		return
	}
	if p.Source == nil {
		metricDroppedMessages.WithLabelValues(dropForeign).Inc()
		return
	}
	if !c.fromDevice(p) {
		l.Debugf("Dropping datagram from %v received outside %s", p.Source, c.dev.Name)
		metricDroppedMessages.WithLabelValues(dropForeign).Inc()
		return
	}

	msg, err := ssdp.Parse(p.Data, p.Source)
	if err != nil {
		l.Debugf("Dropping datagram from %v: %v", p.Source, err)
		metricDroppedMessages.WithLabelValues(dropMalformed).Inc()
		return
	}
	metricRecvMessages.WithLabelValues(msg.Kind.String()).Inc()

	// Subscribers may subscribe or cancel while we dispatch.
	subs := append([]*subscription(nil), c.subs...)
	for _, s := range subs {
		if !s.canceled {
			s.handler(msg)
		}
	}
}

func (c *Client) fromDevice(p socket.Packet) bool {
	if p.IfIndex != 0 {
		return p.IfIndex == c.dev.Index
	}
	return c.dev.Contains(p.Source.IP)
}

// Subscribe registers h for every dispatched message. Handlers are called
// in registration order. The returned function removes h.
func (c *Client) Subscribe(h ssdp.Handler) (cancel func()) {
	s := &subscription{handler: h}
	c.subs = append(c.subs, s)
	return func() {
		if s.canceled {
			return
		}
		s.canceled = true
		for i, sub := range c.subs {
			if sub == s {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				break
			}
		}
	}
}

// Send writes msg, followed by the extra headers and the terminating blank
// line, to dst or to the SSDP multicast group when dst is nil. A zero
// destination port means the SSDP port. Nothing is sent while the client is
// inactive.
func (c *Client) Send(dst *net.UDPAddr, msg string, via Via) error {
	if !c.active {
		return nil
	}
	if c.endpoints == nil {
		return ErrNotInitialized
	}

	if dst == nil {
		dst = ssdp.MulticastAddr
	} else if dst.Port == 0 {
		dst = &net.UDPAddr{IP: dst.IP, Port: ssdp.Port, Zone: dst.Zone}
	}

	var sb strings.Builder
	sb.WriteString(msg)
	for _, h := range c.headers {
		fmt.Fprintf(&sb, "%s: %s\r\n", h.name, h.value)
	}
	sb.WriteString("\r\n")

	purpose := socket.Request
	if via == ViaSearch {
		purpose = socket.Search
	}
	if err := c.endpoints[purpose].WriteTo([]byte(sb.String()), dst); err != nil {
		l.Warnf("Sending to %v: %v", dst, err)
		metricSendErrors.Inc()
		return err
	}
	metricSentMessages.WithLabelValues(purpose.String()).Inc()
	return nil
}

// AppendHeader adds a header to every outgoing message. Duplicates are kept.
func (c *Client) AppendHeader(name, value string) {
	c.headers = append(c.headers, header{name, value})
}

// RemoveHeader removes every extra header called name.
func (c *Client) RemoveHeader(name string) {
	kept := c.headers[:0]
	for _, h := range c.headers {
		if !strings.EqualFold(h.name, name) {
			kept = append(kept, h)
		}
	}
	c.headers = kept
}

func (c *Client) ClearHeaders() {
	c.headers = nil
}

// SetActive enables or suppresses sending. Receiving is not affected.
func (c *Client) SetActive(active bool) {
	c.active = active
}

func (c *Client) Active() bool {
	return c.active
}

func (c *Client) SetServerID(id string) {
	c.serverID = id
}

func (c *Client) ServerID() string {
	return c.serverID
}

func (c *Client) SetUserAgent(ua string) {
	c.userAgent = ua
}

func (c *Client) UserAgent() string {
	return c.userAgent
}

// Device returns the network device resolved by Init.
func (c *Client) Device() netutil.Device {
	return c.dev
}

// Close releases the sockets. It is safe to call from any goroutine and
// more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		var errs []error
		for _, ep := range c.endpoints {
			if err := ep.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				errs = append(errs, err)
			}
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}

func (c *Client) String() string {
	return fmt.Sprintf("transport@%p", c)
}
