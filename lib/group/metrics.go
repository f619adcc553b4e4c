// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package group

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricQueuedMessages = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ssdp",
		Subsystem: "group",
		Name:      "queued_messages",
		Help:      "Number of messages waiting in outbound queues",
	})
	metricSentMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ssdp",
		Subsystem: "group",
		Name:      "sent_messages_total",
		Help:      "Total number of messages sent, per message type",
	}, []string{"type"})
	metricResources = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ssdp",
		Subsystem: "group",
		Name:      "resources",
		Help:      "Number of published resources",
	})
)

const (
	kindAlive    = "alive"
	kindByeBye   = "byebye"
	kindResponse = "response"
)

func init() {
	for _, kind := range []string{kindAlive, kindByeBye, kindResponse} {
		metricSentMessages.WithLabelValues(kind)
	}
}
