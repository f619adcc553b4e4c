// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSentMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ssdp",
		Subsystem: "transport",
		Name:      "sent_messages_total",
		Help:      "Total number of datagrams sent, per socket",
	}, []string{"socket"})
	metricSendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ssdp",
		Subsystem: "transport",
		Name:      "send_errors_total",
		Help:      "Total number of datagrams that could not be sent",
	})
	metricRecvMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ssdp",
		Subsystem: "transport",
		Name:      "recv_messages_total",
		Help:      "Total number of messages dispatched, per message kind",
	}, []string{"kind"})
	metricDroppedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ssdp",
		Subsystem: "transport",
		Name:      "dropped_messages_total",
		Help:      "Total number of received datagrams dropped, per reason",
	}, []string{"reason"})
)

const (
	dropOversized = "oversized"
	dropForeign   = "foreign"
	dropMalformed = "malformed"
)

func init() {
	for _, reason := range []string{dropOversized, dropForeign, dropMalformed} {
		metricDroppedMessages.WithLabelValues(reason)
	}
}
