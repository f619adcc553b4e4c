// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/GNOME/gssdp-sub000/lib/config"
	"github.com/GNOME/gssdp-sub000/lib/group"
)

var errNothingToAnnounce = errors.New("no resources configured")

type announceCmd struct {
	Target   string   `help:"Announce a resource of this type in addition to the configured ones"`
	USN      string   `help:"USN of the --target resource (default a random uuid)"`
	Location []string `help:"Location of the --target resource; repeat for secondary locations"`
	MaxAge   int      `help:"Announced max age in seconds"`
}

func (c *announceCmd) Run(g *Globals) error {
	cfg, err := g.configuration()
	if err != nil {
		return err
	}
	if c.MaxAge > 0 {
		cfg.Group.MaxAgeS = c.MaxAge
	}
	if c.Target != "" {
		cfg.Group.Resources = append(cfg.Group.Resources, c.resource())
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(cfg.Group.Resources) == 0 {
		return errNothingToAnnounce
	}

	ctx, cancel := signalContext()
	defer cancel()

	e, err := newEngine(ctx, cfg, g.MetricsListen)
	if err != nil {
		return err
	}
	grp, err := newGroup(e, cfg.Group)
	if err != nil {
		e.client.Close()
		return err
	}
	grp.SetAvailable(true)

	l.Infof("Announcing %d resources on %s", len(cfg.Group.Resources), e.client.Device())
	return e.run(ctx, grp.Close)
}

func (c *announceCmd) resource() config.ResourceConfiguration {
	usn := c.USN
	if usn == "" {
		usn = fmt.Sprintf("uuid:%s::%s", uuid.NewString(), c.Target)
	}
	return config.ResourceConfiguration{
		Target:    c.Target,
		USN:       usn,
		Locations: c.Location,
	}
}

func newGroup(e *engine, cfg config.GroupConfiguration) (*group.Group, error) {
	grp, err := group.New(e.loop, e.client, group.Options{MaxAge: cfg.MaxAge()})
	if err != nil {
		return nil, err
	}
	if err := grp.SetMessageDelay(cfg.MessageDelay()); err != nil {
		return nil, err
	}
	for _, r := range cfg.Resources {
		if _, err := grp.AddResource(r.Target, r.USN, r.Locations); err != nil {
			grp.Close()
			return nil, fmt.Errorf("resource %s: %w", r.USN, err)
		}
	}
	return grp, nil
}
