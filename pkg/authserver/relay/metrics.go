// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes recorded for relay requests.
const (
	outcomeRedirected  = "redirected"
	outcomeDialog      = "dialog"
	outcomeCompleted   = "completed"
	outcomeBadRequest  = "bad_request"
	outcomeUpstreamErr = "upstream_error"
	outcomeServerErr   = "server_error"
	outcomeRateLimited = "rate_limited"
)

// Metrics counts relay outcomes and times upstream calls. A nil *Metrics
// records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	upstream *prometheus.HistogramVec
}

// NewMetrics registers the relay collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authrelay_relay_requests_total",
			Help: "Relay requests by route and outcome",
		}, []string{"route", "outcome"}),
		upstream: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authrelay_upstream_request_duration_seconds",
			Help:    "Latency of upstream token and userinfo calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "result"}),
	}
}

func (m *Metrics) observeRequest(route, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, outcome).Inc()
}

func (m *Metrics) observeUpstream(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.upstream.WithLabelValues(operation, result).Observe(time.Since(start).Seconds())
}
