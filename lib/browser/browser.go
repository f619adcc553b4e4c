// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package browser discovers SSDP resources of a given target type and
// tracks their availability until they expire or say goodbye.
//
// A Browser belongs to the mainloop.Loop of its client. All methods must be
// called from code running on that loop, and events are emitted on it.
package browser

import (
	"cmp"
	"errors"
	"fmt"
	"net"
	"slices"
	"time"

	"github.com/GNOME/gssdp-sub000/lib/mainloop"
	"github.com/GNOME/gssdp-sub000/lib/ssdp"
	"github.com/GNOME/gssdp-sub000/lib/transport"
)

const (
	// Discovery requests are sent searchBurst times, retryInterval apart.
	searchBurst   = 3
	retryInterval = 500 * time.Millisecond

	defaultLifetime = ssdp.DefaultMaxAge * time.Second
)

var (
	ErrActive    = errors.New("browser is active")
	ErrInvalidMX = errors.New("MX must be at least one second")
)

// Client is the part of a transport.Client the browser uses.
type Client interface {
	Subscribe(h ssdp.Handler) (cancel func())
	Send(dst *net.UDPAddr, msg string, via transport.Via) error
	UserAgent() string
}

// An Event is either ResourceAvailable or ResourceUnavailable.
type Event interface {
	event()
}

type ResourceAvailable struct {
	USN       string
	Locations []string
}

type ResourceUnavailable struct {
	USN string
}

func (ResourceAvailable) event()   {}
func (ResourceUnavailable) event() {}

// A Resource is a cached discovery result.
type Resource struct {
	USN       string
	Locations []string
	Expires   time.Time
}

type Options struct {
	// Target to search for; empty means ssdp:all.
	Target string
	// MX is the response window advertised in discovery requests, in
	// seconds; zero means ssdp.DefaultMX.
	MX int
}

type entry struct {
	Resource
	timer *mainloop.Timer
}

type subscriber struct {
	fn       func(Event)
	canceled bool
}

type Browser struct {
	loop   *mainloop.Loop
	client Client

	target ssdp.Target
	mx     int
	active bool

	cache  map[string]*entry
	retry  *mainloop.Timer
	sent   int
	subs   []*subscriber
	unsub  func()
	closed bool
}

func New(loop *mainloop.Loop, client Client, opts Options) (*Browser, error) {
	if opts.Target == "" {
		opts.Target = ssdp.AllTarget
	}
	target, err := ssdp.ParseTarget(opts.Target)
	if err != nil {
		return nil, err
	}
	if opts.MX == 0 {
		opts.MX = ssdp.DefaultMX
	}
	if opts.MX < 1 {
		return nil, ErrInvalidMX
	}

	b := &Browser{
		loop:   loop,
		client: client,
		target: target,
		mx:     opts.MX,
		cache:  make(map[string]*entry),
	}
	b.unsub = client.Subscribe(b.handle)
	return b, nil
}

// Subscribe registers fn for availability events. The returned function
// removes it.
func (b *Browser) Subscribe(fn func(Event)) (cancel func()) {
	s := &subscriber{fn: fn}
	b.subs = append(b.subs, s)
	return func() {
		s.canceled = true
		b.subs = slices.DeleteFunc(b.subs, func(o *subscriber) bool { return o == s })
	}
}

func (b *Browser) Target() string {
	return b.target.String()
}

// SetTarget changes the searched target. It fails while the browser is
// active, and keeps the previous target when target is malformed.
func (b *Browser) SetTarget(target string) error {
	if b.active {
		return ErrActive
	}
	t, err := ssdp.ParseTarget(target)
	if err != nil {
		return err
	}
	b.target = t
	return nil
}

func (b *Browser) MX() int {
	return b.mx
}

// SetMX sets the MX value of subsequent discovery requests.
func (b *Browser) SetMX(mx int) error {
	if mx < 1 {
		return ErrInvalidMX
	}
	b.mx = mx
	return nil
}

func (b *Browser) Active() bool {
	return b.active
}

// SetActive starts or stops browsing. Activation sends a burst of
// discovery requests. Deactivation stops the burst and empties the cache,
// emitting ResourceUnavailable for every cached resource.
func (b *Browser) SetActive(active bool) {
	if b.closed || active == b.active {
		return
	}
	b.active = active
	if active {
		l.Debugln("Browsing for", b.target)
		b.startDiscovery()
		return
	}
	l.Debugln("Stopped browsing for", b.target)
	b.stopDiscovery()
	b.clearCache(true)
}

// Rescan restarts the burst of discovery requests. It does nothing while
// the browser is inactive.
func (b *Browser) Rescan() bool {
	if !b.active {
		return false
	}
	b.startDiscovery()
	return true
}

// Resources returns the cached resources sorted by USN.
func (b *Browser) Resources() []Resource {
	res := make([]Resource, 0, len(b.cache))
	for _, e := range b.cache {
		r := e.Resource
		r.Locations = slices.Clone(r.Locations)
		res = append(res, r)
	}
	slices.SortFunc(res, func(x, y Resource) int {
		return cmp.Compare(x.USN, y.USN)
	})
	return res
}

// Close stops browsing without emitting events, and unsubscribes from the
// client.
func (b *Browser) Close() {
	if b.closed {
		return
	}
	b.stopDiscovery()
	b.clearCache(false)
	b.active = false
	b.closed = true
	b.unsub()
	b.subs = nil
}

func (b *Browser) startDiscovery() {
	b.stopDiscovery()
	b.search()
	b.sent = 1
	b.retry = b.loop.Every(retryInterval, func() {
		b.search()
		b.sent++
		if b.sent >= searchBurst {
			b.stopDiscovery()
		}
	})
}

func (b *Browser) stopDiscovery() {
	if b.retry != nil {
		b.retry.Stop()
		b.retry = nil
	}
}

func (b *Browser) search() {
	msg := ssdp.Search(b.target.String(), b.mx, b.client.UserAgent())
	if err := b.client.Send(nil, msg, transport.ViaSearch); err != nil {
		l.Debugln("Discovery request failed:", err)
	}
	metricSearches.Inc()
}

func (b *Browser) handle(msg *ssdp.Message) {
	if !b.active {
		return
	}

	var target string
	switch msg.Kind {
	case ssdp.DiscoveryResponse:
		target = msg.Header.Get("ST")
	case ssdp.Announcement:
		target = msg.Header.Get("NT")
	default:
		return
	}
	usn := msg.Header.Get("USN")
	if msg.Kind == ssdp.Announcement && msg.Header.Get("NTS") == ssdp.ByeBye {
		// A goodbye only needs to name a cached resource.
		b.unavailable(usn)
		return
	}
	if usn == "" || target == "" {
		l.Debugf("Ignoring %s from %v without USN or target", msg.Kind, msg.From)
		return
	}
	if !b.target.Covers(target) {
		return
	}

	if msg.Kind == ssdp.DiscoveryResponse {
		b.available(usn, msg)
		return
	}
	switch nts := msg.Header.Get("NTS"); nts {
	case ssdp.Alive:
		b.available(usn, msg)
	default:
		l.Debugf("Ignoring announcement from %v with NTS %q", msg.From, nts)
	}
}

func (b *Browser) available(usn string, msg *ssdp.Message) {
	locations := ssdp.Locations(msg.Header)
	if len(locations) == 0 {
		l.Debugf("Ignoring %s for %s without location", msg.Kind, usn)
		return
	}

	now := b.loop.Now()
	lifetime, err := ssdp.Lifetime(msg.Header, now)
	if err != nil {
		l.Warnf("Invalid lifetime for %s from %v (%v), using %v", usn, msg.From, err, defaultLifetime)
		lifetime = defaultLifetime
	}

	if e, ok := b.cache[usn]; ok {
		e.timer.Reset(lifetime)
		e.Expires = now.Add(lifetime)
		e.Locations = locations
		return
	}

	e := &entry{
		Resource: Resource{USN: usn, Locations: locations, Expires: now.Add(lifetime)},
	}
	e.timer = b.loop.AfterFunc(lifetime, func() { b.expire(usn) })
	b.cache[usn] = e
	metricCachedResources.Inc()

	l.Debugf("Resource available: %s at %v", usn, locations)
	b.emit(ResourceAvailable{USN: usn, Locations: slices.Clone(locations)})
}

func (b *Browser) unavailable(usn string) {
	e, ok := b.cache[usn]
	if !ok {
		return
	}
	e.timer.Stop()
	b.remove(usn)
	l.Debugln("Resource said goodbye:", usn)
	b.emit(ResourceUnavailable{USN: usn})
}

func (b *Browser) expire(usn string) {
	if _, ok := b.cache[usn]; !ok {
		return
	}
	b.remove(usn)
	l.Debugln("Resource expired:", usn)
	b.emit(ResourceUnavailable{USN: usn})
}

func (b *Browser) remove(usn string) {
	delete(b.cache, usn)
	metricCachedResources.Dec()
}

// clearCache stops every expiry timer and empties the cache before any
// event is emitted.
func (b *Browser) clearCache(notify bool) {
	usns := make([]string, 0, len(b.cache))
	for usn, e := range b.cache {
		e.timer.Stop()
		usns = append(usns, usn)
	}
	for _, usn := range usns {
		b.remove(usn)
	}
	if !notify {
		return
	}
	slices.Sort(usns)
	for _, usn := range usns {
		b.emit(ResourceUnavailable{USN: usn})
	}
}

func (b *Browser) emit(ev Event) {
	switch ev.(type) {
	case ResourceAvailable:
		metricEvents.WithLabelValues(eventAvailable).Inc()
	case ResourceUnavailable:
		metricEvents.WithLabelValues(eventUnavailable).Inc()
	}
	subs := slices.Clone(b.subs)
	for _, s := range subs {
		if !s.canceled {
			s.fn(ev)
		}
	}
}

func (b *Browser) String() string {
	return fmt.Sprintf("browser@%p for %s", b, b.target)
}
