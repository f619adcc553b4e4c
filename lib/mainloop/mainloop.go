// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package mainloop implements a cooperative single goroutine event loop
// with timers.
//
// Everything scheduled on a Loop (posted functions and timer callbacks)
// runs serially and to completion, so the state they touch needs no
// locking. Timers must be armed, reset and stopped from code running on
// the loop; Post and Do may be called from any goroutine.
package mainloop

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

var ErrNotMock = errors.New("mainloop: clock is not a mock")

type Loop struct {
	clock clock.Clock

	mut    sync.Mutex
	timers timerHeap
	seq    uint64
	posted []func()
	wakeup chan struct{}
}

// New returns a loop using the given clock, or the wall clock when clk is
// nil.
func New(clk clock.Clock) *Loop {
	if clk == nil {
		clk = clock.New()
	}
	return &Loop{
		clock:  clk,
		wakeup: make(chan struct{}, 1),
	}
}

func (l *Loop) Clock() clock.Clock {
	return l.clock
}

func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// Post schedules fn to run on the loop.
func (l *Loop) Post(fn func()) {
	l.mut.Lock()
	l.posted = append(l.posted, fn)
	l.mut.Unlock()
	l.wake()
}

// Do runs fn on the loop and waits for it to return. It must not be called
// from the loop itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AfterFunc arms a one shot timer calling fn after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	return l.arm(d, 0, fn)
}

// Every arms a recurring timer calling fn every d, first after d. It
// panics if d is not positive.
func (l *Loop) Every(d time.Duration, fn func()) *Timer {
	if d <= 0 {
		panic("mainloop: non-positive interval")
	}
	return l.arm(d, d, fn)
}

func (l *Loop) arm(d, interval time.Duration, fn func()) *Timer {
	t := &Timer{
		loop:     l,
		fn:       fn,
		interval: interval,
		index:    -1,
	}
	l.mut.Lock()
	l.schedule(t, d)
	l.mut.Unlock()
	l.wake()
	return t
}

// schedule pushes t with a deadline d from now. Must hold l.mut.
func (l *Loop) schedule(t *Timer, d time.Duration) {
	if d < 0 {
		d = 0
	}
	t.when = l.clock.Now().Add(d)
	l.seq++
	t.seq = l.seq
	heap.Push(&l.timers, t)
}

func (l *Loop) wake() {
	select {
	case l.wakeup <- struct{}{}:
	default:
	}
}

// Pending returns the number of armed timers.
func (l *Loop) Pending() int {
	l.mut.Lock()
	defer l.mut.Unlock()
	return len(l.timers)
}

// RunPending runs posted functions and due timers until nothing is left to
// do at the current time. It returns the number of callbacks run.
func (l *Loop) RunPending() int {
	n := 0
	for {
		fn := l.next()
		if fn == nil {
			return n
		}
		fn()
		n++
	}
}

func (l *Loop) next() func() {
	l.mut.Lock()
	defer l.mut.Unlock()

	if len(l.posted) > 0 {
		fn := l.posted[0]
		l.posted[0] = nil
		l.posted = l.posted[1:]
		return fn
	}

	if len(l.timers) == 0 {
		return nil
	}
	t := l.timers[0]
	now := l.clock.Now()
	if t.when.After(now) {
		return nil
	}

	if t.interval > 0 {
		t.when = t.when.Add(t.interval)
		if !t.when.After(now) {
			// We fell behind; skip the missed ticks rather than burst.
			t.when = now.Add(t.interval)
		}
		l.seq++
		t.seq = l.seq
		heap.Fix(&l.timers, 0)
	} else {
		heap.Pop(&l.timers)
	}
	return t.fn
}

func (l *Loop) nextDeadline() (time.Time, bool) {
	l.mut.Lock()
	defer l.mut.Unlock()
	if len(l.posted) > 0 {
		return l.clock.Now(), true
	}
	if len(l.timers) == 0 {
		return time.Time{}, false
	}
	return l.timers[0].when, true
}

// Advance moves a mock clock forward by d, stopping at every timer
// deadline on the way so that callbacks observe the time they were due at.
func (l *Loop) Advance(d time.Duration) error {
	mock, ok := l.clock.(*clock.Mock)
	if !ok {
		return ErrNotMock
	}
	target := mock.Now().Add(d)
	for {
		l.RunPending()
		when, ok := l.nextDeadline()
		if !ok || when.After(target) {
			break
		}
		mock.Set(when)
	}
	mock.Set(target)
	l.RunPending()
	return nil
}

// Serve runs the loop until ctx is cancelled.
func (l *Loop) Serve(ctx context.Context) error {
	for {
		l.RunPending()

		var timer *clock.Timer
		var timeout <-chan time.Time
		if when, ok := l.nextDeadline(); ok {
			timer = l.clock.Timer(when.Sub(l.clock.Now()))
			timeout = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case <-l.wakeup:
		case <-timeout:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (l *Loop) String() string {
	return "mainloop"
}

// A Timer is a one shot or recurring callback on a Loop.
type Timer struct {
	loop     *Loop
	fn       func()
	when     time.Time
	interval time.Duration
	seq      uint64
	index    int
}

// Stop disarms the timer. The callback will not run after Stop returns. It
// returns false if the timer was not armed.
func (t *Timer) Stop() bool {
	l := t.loop
	l.mut.Lock()
	defer l.mut.Unlock()
	if t.index < 0 {
		return false
	}
	heap.Remove(&l.timers, t.index)
	return true
}

// Reset re-arms the timer to fire d from now, whether or not it was armed.
func (t *Timer) Reset(d time.Duration) {
	l := t.loop
	l.mut.Lock()
	if t.index >= 0 {
		heap.Remove(&l.timers, t.index)
	}
	l.schedule(t, d)
	l.mut.Unlock()
	l.wake()
}

// Active returns whether the timer is armed.
func (t *Timer) Active() bool {
	l := t.loop
	l.mut.Lock()
	defer l.mut.Unlock()
	return t.index >= 0
}

// Deadline returns the time the timer fires next.
func (t *Timer) Deadline() time.Time {
	l := t.loop
	l.mut.Lock()
	defer l.mut.Unlock()
	return t.when
}

// timerHeap orders timers by deadline, then by arming order.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
