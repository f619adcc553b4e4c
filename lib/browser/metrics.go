// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package browser

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricCachedResources = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ssdp",
		Subsystem: "browser",
		Name:      "cached_resources",
		Help:      "Number of discovered resources currently cached",
	})
	metricEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ssdp",
		Subsystem: "browser",
		Name:      "events_total",
		Help:      "Total number of availability events emitted, per event",
	}, []string{"event"})
	metricSearches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ssdp",
		Subsystem: "browser",
		Name:      "searches_total",
		Help:      "Total number of discovery requests sent",
	})
)

const (
	eventAvailable   = "available"
	eventUnavailable = "unavailable"
)

func init() {
	metricEvents.WithLabelValues(eventAvailable)
	metricEvents.WithLabelValues(eventUnavailable)
}
