// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command ssdpdisco browses for and announces SSDP resources on the local
// network.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/GNOME/gssdp-sub000/lib/config"
	"github.com/GNOME/gssdp-sub000/lib/logger"
)

type Globals struct {
	Config        string `help:"Configuration file (YAML or JSON)" type:"existingfile" env:"SSDPDISCO_CONFIG"`
	Interface     string `help:"Network interface name or IPv4 address (default autodetect)" env:"SSDPDISCO_INTERFACE"`
	SearchPort    int    `help:"Source port for discovery requests, 0 for random" default:"-1"`
	TTL           int    `help:"Multicast TTL" default:"0"`
	MetricsListen string `help:"Serve Prometheus metrics on this address" env:"SSDPDISCO_METRICS_LISTEN"`
	Debug         bool   `help:"Enable debug logging for every facility"`
}

type CLI struct {
	Globals

	Browse   browseCmd   `cmd:"" help:"Discover resources and print availability changes"`
	Announce announceCmd `cmd:"" help:"Announce resources until interrupted"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli, kong.Description("SSDP discovery and announcement tool"))
	if cli.Debug {
		for facility := range logger.DefaultLogger.Facilities() {
			logger.DefaultLogger.SetDebug(facility, true)
		}
	}
	kctx.FatalIfErrorf(kctx.Run(&cli.Globals))
}

// configuration returns the configuration file, or the defaults, with
// command line overrides applied.
func (g *Globals) configuration() (config.Configuration, error) {
	cfg := config.New()
	if g.Config != "" {
		var err error
		if cfg, err = config.Load(g.Config); err != nil {
			return config.Configuration{}, err
		}
	}
	if g.Interface != "" {
		cfg.Interface = g.Interface
	}
	if g.SearchPort >= 0 {
		cfg.SearchPort = g.SearchPort
	}
	if g.TTL > 0 {
		cfg.TTL = g.TTL
	}
	return cfg, cfg.Validate()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
