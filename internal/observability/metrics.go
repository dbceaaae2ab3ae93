// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/queryhub/queryhub/internal/auth"
)

// Metrics contains the custom Prometheus metrics for QueryHub. It implements
// auth.Recorder.
type Metrics struct {
	AuthAttempts  *prometheus.CounterVec
	Sessions      *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
	HashDurations *prometheus.HistogramVec
}

// NewMetrics creates and registers custom QueryHub metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queryhub_auth_attempts_total",
				Help: "Total number of register and login attempts by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		Sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queryhub_sessions_total",
				Help: "Total number of session lifecycle events by event",
			},
			[]string{"event"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queryhub_http_requests_total",
				Help: "Total number of HTTP requests by route pattern and status",
			},
			[]string{"route", "status"},
		),
		HashDurations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "queryhub_password_hash_seconds",
				Help:    "Time spent hashing and verifying passwords",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"op"},
		),
	}

	reg.MustRegister(m.AuthAttempts, m.Sessions, m.HTTPRequests, m.HashDurations)
	return m
}

// AuthAttempt implements auth.Recorder.
func (m *Metrics) AuthAttempt(method string, outcome auth.Outcome) {
	m.AuthAttempts.WithLabelValues(method, string(outcome)).Inc()
}

// SessionEvent implements auth.Recorder.
func (m *Metrics) SessionEvent(event string, count int) {
	if count <= 0 {
		return
	}
	m.Sessions.WithLabelValues(event).Add(float64(count))
}

// HashDuration implements auth.Recorder.
func (m *Metrics) HashDuration(op string, d time.Duration) {
	m.HashDurations.WithLabelValues(op).Observe(d.Seconds())
}

// HTTPRequest counts a served request. route is the matched mux pattern, not
// the raw path, to keep label cardinality bounded.
func (m *Metrics) HTTPRequest(route string, status int) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

var _ auth.Recorder = (*Metrics)(nil)
