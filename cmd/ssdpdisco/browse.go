// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/GNOME/gssdp-sub000/lib/browser"
)

type browseCmd struct {
	Target   string        `arg:"" optional:"" help:"Search target (default from configuration, else ssdp:all)"`
	MX       int           `help:"Response window advertised in discovery requests, in seconds"`
	USN      string        `help:"Only print resources whose USN matches this glob pattern"`
	Duration time.Duration `help:"Stop after this long (default until interrupted)"`
	Rescan   time.Duration `help:"Repeat the discovery burst at this interval"`
}

func (c *browseCmd) Run(g *Globals) error {
	cfg, err := g.configuration()
	if err != nil {
		return err
	}
	if c.Target != "" {
		cfg.Browser.Target = c.Target
	}
	if c.MX > 0 {
		cfg.Browser.MX = c.MX
	}
	filter, err := compileFilter(c.USN)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	if c.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.Duration)
		defer cancel()
	}

	e, err := newEngine(ctx, cfg, g.MetricsListen)
	if err != nil {
		return err
	}
	b, err := browser.New(e.loop, e.client, browser.Options{
		Target: cfg.Browser.Target,
		MX:     cfg.Browser.MX,
	})
	if err != nil {
		e.client.Close()
		return err
	}
	b.Subscribe(printer(os.Stdout, filter))
	b.SetActive(true)
	if c.Rescan > 0 {
		e.loop.Every(c.Rescan, func() { b.Rescan() })
	}

	l.Infof("Browsing for %s on %s", b.Target(), e.client.Device())
	return e.run(ctx, b.Close)
}

func compileFilter(pattern string) (glob.Glob, error) {
	if pattern == "" {
		return nil, nil
	}
	filter, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("usn filter: %w", err)
	}
	return filter, nil
}

// printer writes one line per availability change of a resource whose USN
// passes filter.
func printer(w io.Writer, filter glob.Glob) func(browser.Event) {
	return func(ev browser.Event) {
		switch ev := ev.(type) {
		case browser.ResourceAvailable:
			if filter == nil || filter.Match(ev.USN) {
				fmt.Fprintf(w, "+ %s %s\n", ev.USN, strings.Join(ev.Locations, " "))
			}
		case browser.ResourceUnavailable:
			if filter == nil || filter.Match(ev.USN) {
				fmt.Fprintf(w, "- %s\n", ev.USN)
			}
		}
	}
}
