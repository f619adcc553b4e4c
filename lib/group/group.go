// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package group announces a set of locally owned SSDP resources and
// answers discovery requests for them.
//
// Every outgoing message of a Group passes through a FIFO queue that sends
// at most one message per message delay.
//
// The resource set only grows while the group is unavailable, so every
// resource is announced by the same alive burst. Removal is allowed at any
// time; removing a resource from an available group sends its byebye and
// cancels its pending responses.
//
// A Group belongs to the
// mainloop.Loop of its client; all methods must be called from code running
// on that loop.
package group

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/GNOME/gssdp-sub000/lib/mainloop"
	"github.com/GNOME/gssdp-sub000/lib/rand"
	"github.com/GNOME/gssdp-sub000/lib/ssdp"
	"github.com/GNOME/gssdp-sub000/lib/transport"
)

const (
	DefaultMaxAge       = ssdp.DefaultMaxAge * time.Second
	DefaultMessageDelay = 20 * time.Millisecond
)

var (
	ErrAvailable       = errors.New("resources cannot be added while the group is available")
	ErrInvalidResource = errors.New("resource needs a target, a USN and at least one location")
	ErrUnknownResource = errors.New("no such resource")
	ErrInvalidMaxAge   = errors.New("max age must be at least one second")
	ErrInvalidDelay    = errors.New("message delay must not be negative")
)

// Client is the part of a transport.Client the group uses.
type Client interface {
	Subscribe(h ssdp.Handler) (cancel func())
	Send(dst *net.UDPAddr, msg string, via transport.Via) error
	ServerID() string
}

type Options struct {
	// MaxAge announced for the resources; zero means DefaultMaxAge.
	MaxAge time.Duration
	// MessageDelay is the minimum spacing of sends; zero means
	// DefaultMessageDelay. Use SetMessageDelay to disable spacing.
	MessageDelay time.Duration
	// Jitter returns the delay of a discovery response given the
	// requester's MX window; nil means a uniform random delay.
	Jitter func(window time.Duration) time.Duration
}

// A Resource is a published resource as returned by Resources.
type Resource struct {
	ID        int
	Target    string
	USN       string
	Locations []string
}

type resource struct {
	id            int
	res           ssdp.Resource
	target        ssdp.Target
	initialByeBye bool
	pending       []*pendingResponse
}

type pendingResponse struct {
	dst   *net.UDPAddr
	st    string
	timer *mainloop.Timer
}

type outbound struct {
	dst  *net.UDPAddr
	body string
	kind string
}

type Group struct {
	loop   *mainloop.Loop
	client Client
	jitter func(time.Duration) time.Duration

	maxAge       time.Duration
	messageDelay time.Duration
	available    bool

	resources []*resource
	nextID    int

	queue      []outbound
	pump       *mainloop.Timer
	reannounce *mainloop.Timer

	unsub  func()
	closed bool
}

func New(loop *mainloop.Loop, client Client, opts Options) (*Group, error) {
	if opts.MaxAge == 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.MaxAge < time.Second {
		return nil, ErrInvalidMaxAge
	}
	if opts.MessageDelay == 0 {
		opts.MessageDelay = DefaultMessageDelay
	}
	if opts.MessageDelay < 0 {
		return nil, ErrInvalidDelay
	}
	if opts.Jitter == nil {
		opts.Jitter = rand.Duration
	}

	g := &Group{
		loop:         loop,
		client:       client,
		jitter:       opts.Jitter,
		maxAge:       opts.MaxAge,
		messageDelay: opts.MessageDelay,
		nextID:       1,
	}
	g.unsub = client.Subscribe(g.handle)
	return g, nil
}

// AddResource publishes a resource and returns its id. Resources can only
// be added while the group is unavailable.
func (g *Group) AddResource(target, usn string, locations []string) (int, error) {
	if g.closed {
		return 0, ErrUnknownResource
	}
	if g.available {
		return 0, ErrAvailable
	}
	if target == "" || usn == "" || len(locations) == 0 || slices.Contains(locations, "") {
		return 0, ErrInvalidResource
	}
	t, err := ssdp.ParseTarget(target)
	if err != nil {
		return 0, err
	}

	r := &resource{
		id:     g.nextID,
		res:    ssdp.Resource{Target: target, USN: usn, Locations: slices.Clone(locations)},
		target: t,
	}
	g.nextID++
	g.resources = append(g.resources, r)
	metricResources.Inc()
	l.Debugf("Added resource %d: %s", r.id, usn)
	return r.id, nil
}

// AddResourceSimple publishes a resource with a single location.
func (g *Group) AddResourceSimple(target, usn, location string) (int, error) {
	return g.AddResource(target, usn, []string{location})
}

// RemoveResource unpublishes a resource, saying goodbye first when the
// group is available.
func (g *Group) RemoveResource(id int) error {
	i := slices.IndexFunc(g.resources, func(r *resource) bool { return r.id == id })
	if i < 0 {
		return ErrUnknownResource
	}
	r := g.resources[i]
	if g.available {
		g.byebye(r)
	}
	g.cancelPending(r)
	g.resources = slices.Delete(g.resources, i, i+1)
	metricResources.Dec()
	l.Debugf("Removed resource %d: %s", r.id, r.res.USN)
	return nil
}

// Resources returns the published resources in the order they were added.
func (g *Group) Resources() []Resource {
	res := make([]Resource, 0, len(g.resources))
	for _, r := range g.resources {
		res = append(res, Resource{
			ID:        r.id,
			Target:    r.res.Target,
			USN:       r.res.USN,
			Locations: slices.Clone(r.res.Locations),
		})
	}
	return res
}

func (g *Group) Available() bool {
	return g.available
}

// SetAvailable announces or unannounces every resource. While available,
// the resources are re-announced every max(1, maxAge/2-1) seconds and
// discovery requests are answered.
func (g *Group) SetAvailable(available bool) {
	if g.closed || available == g.available {
		return
	}
	g.available = available

	if available {
		l.Infof("Announcing %d resources", len(g.resources))
		g.armReannounce()
		for _, r := range g.resources {
			g.alive(r, true)
		}
		return
	}

	l.Infof("Withdrawing %d resources", len(g.resources))
	g.stopReannounce()
	for _, r := range g.resources {
		g.cancelPending(r)
		g.byebye(r)
	}
}

func (g *Group) MaxAge() time.Duration {
	return g.maxAge
}

// SetMaxAge changes the announced max age. The re-announcement interval
// follows it immediately.
func (g *Group) SetMaxAge(d time.Duration) error {
	if d < time.Second {
		return ErrInvalidMaxAge
	}
	g.maxAge = d
	if g.available {
		g.armReannounce()
	}
	return nil
}

func (g *Group) MessageDelay() time.Duration {
	return g.messageDelay
}

// SetMessageDelay changes the minimum spacing of sends; zero sends
// without spacing. A queue drain already running keeps its old pace.
func (g *Group) SetMessageDelay(d time.Duration) error {
	if d < 0 {
		return ErrInvalidDelay
	}
	g.messageDelay = d
	return nil
}

// Close stops the group. When available, every resource says goodbye and
// the queue is sent at once; otherwise queued messages are discarded.
func (g *Group) Close() {
	if g.closed {
		return
	}

	g.stopReannounce()
	for _, r := range g.resources {
		g.cancelPending(r)
	}
	if g.available {
		for _, r := range g.resources {
			g.byebye(r)
		}
		g.flush()
	} else {
		g.discard()
	}
	g.stopPump()

	g.available = false
	g.closed = true
	metricResources.Sub(float64(len(g.resources)))
	g.resources = nil
	g.unsub()
}

func (g *Group) reannounceInterval() time.Duration {
	secs := int(g.maxAge/time.Second)/2 - 1
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

func (g *Group) armReannounce() {
	g.stopReannounce()
	g.reannounce = g.loop.Every(g.reannounceInterval(), func() {
		for _, r := range g.resources {
			g.alive(r, false)
		}
	})
}

func (g *Group) stopReannounce() {
	if g.reannounce != nil {
		g.reannounce.Stop()
		g.reannounce = nil
	}
}

func (g *Group) maxAgeSeconds() int {
	return int(g.maxAge / time.Second)
}

// alive queues the alive announcement of r, preceded by a byebye the first
// time so that control points drop stale state from an earlier run.
func (g *Group) alive(r *resource, initial bool) {
	if initial && !r.initialByeBye {
		g.byebye(r)
		r.initialByeBye = true
	}
	g.enqueue(outbound{
		body: ssdp.AliveNotify(r.res, g.maxAgeSeconds(), g.client.ServerID()),
		kind: kindAlive,
	})
}

func (g *Group) byebye(r *resource) {
	g.enqueue(outbound{body: ssdp.ByeByeNotify(r.res), kind: kindByeBye})
}

func (g *Group) handle(msg *ssdp.Message) {
	if !g.available || msg.Kind != ssdp.DiscoveryRequest {
		return
	}
	st := msg.Header.Get("ST")
	if st == "" {
		l.Debugln("Ignoring discovery request without ST from", msg.From)
		return
	}
	if msg.From == nil {
		return
	}

	mx, err := strconv.Atoi(strings.TrimSpace(msg.Header.Get("MX")))
	if err != nil || mx <= 0 {
		mx = ssdp.DefaultMX
	}
	window := time.Duration(mx) * time.Second

	all := st == ssdp.AllTarget
	for _, r := range g.resources {
		if !all && !r.target.Answers(st) {
			continue
		}
		answer := st
		if all {
			answer = r.res.Target
		}
		g.schedule(r, msg.From, answer, g.jitter(window))
	}
}

func (g *Group) schedule(r *resource, dst *net.UDPAddr, st string, delay time.Duration) {
	p := &pendingResponse{dst: dst, st: st}
	p.timer = g.loop.AfterFunc(delay, func() {
		r.pending = slices.DeleteFunc(r.pending, func(o *pendingResponse) bool { return o == p })
		g.enqueue(outbound{
			dst:  p.dst,
			body: ssdp.Response(r.res, p.st, g.maxAgeSeconds(), g.client.ServerID(), g.loop.Now()),
			kind: kindResponse,
		})
	})
	r.pending = append(r.pending, p)
	l.Debugf("Answering %v for %s in %v", dst, st, delay)
}

func (g *Group) cancelPending(r *resource) {
	for _, p := range r.pending {
		p.timer.Stop()
	}
	r.pending = nil
}

// enqueue appends m to the outbound queue. When no drain is running the
// head goes out at once and a drain is armed for the rest.
func (g *Group) enqueue(m outbound) {
	g.queue = append(g.queue, m)
	metricQueuedMessages.Inc()
	if g.pump != nil {
		return
	}
	g.sendHead()
	g.armPump()
}

// armPump schedules the next send one message delay after the one just
// made, so a late timer never shortens the gap between two sends.
func (g *Group) armPump() {
	if g.messageDelay <= 0 {
		g.flush()
		return
	}
	g.pump = g.loop.AfterFunc(g.messageDelay, func() {
		g.pump = nil
		if len(g.queue) == 0 {
			return
		}
		g.sendHead()
		g.armPump()
	})
}

func (g *Group) sendHead() {
	m := g.queue[0]
	g.queue[0] = outbound{}
	g.queue = g.queue[1:]
	metricQueuedMessages.Dec()

	if err := g.client.Send(m.dst, m.body, transport.ViaRequest); err != nil {
		l.Debugf("Dropping %s message: %v", m.kind, err)
		return
	}
	metricSentMessages.WithLabelValues(m.kind).Inc()
}

func (g *Group) flush() {
	for len(g.queue) > 0 {
		g.sendHead()
	}
}

func (g *Group) discard() {
	metricQueuedMessages.Sub(float64(len(g.queue)))
	g.queue = nil
}

func (g *Group) stopPump() {
	if g.pump != nil {
		g.pump.Stop()
		g.pump = nil
	}
}

func (g *Group) String() string {
	return fmt.Sprintf("group@%p", g)
}
