// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thejerf/suture/v4"

	"github.com/GNOME/gssdp-sub000/lib/config"
	"github.com/GNOME/gssdp-sub000/lib/mainloop"
	"github.com/GNOME/gssdp-sub000/lib/svcutil"
	"github.com/GNOME/gssdp-sub000/lib/transport"
)

const shutdownTimeout = 5 * time.Second

// engine is the event loop and transport of one command run, supervised
// together with the optional metrics server.
type engine struct {
	loop   *mainloop.Loop
	client *transport.Client
	sup    *suture.Supervisor
}

func newEngine(ctx context.Context, cfg config.Configuration, metricsListen string) (*engine, error) {
	loop := mainloop.New(nil)
	client := transport.New(loop, transport.Options{
		Interface:  cfg.Interface,
		SearchPort: cfg.SearchPort,
		TTL:        cfg.TTL,
		ServerID:   cfg.ServerID,
		UserAgent:  cfg.UserAgent,
	})
	if err := client.Init(ctx); err != nil {
		return nil, err
	}
	// The loop is not running yet, so the client can be set up directly.
	for _, h := range cfg.ExtraHeaders {
		client.AppendHeader(h.Name, h.Value)
	}

	sup := suture.New("ssdpdisco", svcutil.SpecWithDebugLogger(l))
	sup.Add(loop)
	sup.Add(client)
	if metricsListen != "" {
		sup.Add(svcutil.AsService(serveMetrics(metricsListen), "metrics listener"))
	}

	return &engine{loop: loop, client: client, sup: sup}, nil
}

// run serves until ctx is cancelled, then runs shutdown on the loop while
// the sockets are still open.
func (e *engine) run(ctx context.Context, shutdown func()) error {
	supCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := e.sup.ServeBackground(supCtx)

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	if shutdown != nil {
		sctx, scancel := context.WithTimeout(supCtx, shutdownTimeout)
		if err := e.loop.Do(sctx, shutdown); err != nil {
			l.Warnln("Shutdown:", err)
		}
		scancel()
	}
	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func serveMetrics(addr string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			<-ctx.Done()
			srv.Close()
		}()

		l.Infoln("Serving metrics on", addr)
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return svcutil.NoRestartErr(err)
	}
}
