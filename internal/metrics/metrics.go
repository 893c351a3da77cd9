// Mgmt
// Copyright (C) 2013-2024+ James Shubin and the project contributors
// Written by James Shubin <james@shubin.ca> and the project contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package metrics exposes the broker's Prometheus instrumentation: counts of
// open connections by kind, routed events, and certificate revocations,
// served on a /metrics HTTP endpoint.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultListen matches this codebase's own default metrics bind address.
const DefaultListen = "127.0.0.1:9233"

// Metrics is the Prometheus instrumentation handle. Run Init() on it before
// use, then Start() to begin serving /metrics.
type Metrics struct {
	Listen string

	connectionsOpen *prometheus.GaugeVec
	connectionsTotal *prometheus.CounterVec
	eventsRoutedTotal prometheus.Counter
	certsRevokedTotal prometheus.Counter

	srv *http.Server
}

// Init registers every collector. It must be called exactly once.
func (m *Metrics) Init() error {
	if m.Listen == "" {
		m.Listen = DefaultListen
	}

	m.connectionsOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taky_connections_open",
			Help: "Number of currently open connections.",
		},
		[]string{"kind"}, // the server reports "cot" for every CoT client, TLS or not
	)
	prometheus.MustRegister(m.connectionsOpen)

	m.connectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taky_connections_total",
			Help: "Total connections accepted.",
		},
		[]string{"kind"},
	)
	prometheus.MustRegister(m.connectionsTotal)

	m.eventsRoutedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taky_events_routed_total",
			Help: "Total CoT event elements received from clients.",
		},
	)
	prometheus.MustRegister(m.eventsRoutedTotal)

	m.certsRevokedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taky_certs_revoked_total",
			Help: "Total certificates revoked via the kickban command.",
		},
	)
	prometheus.MustRegister(m.certsRevokedTotal)

	return nil
}

// Start runs the /metrics HTTP server in a background goroutine.
func (m *Metrics) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	m.srv = &http.Server{Addr: m.Listen, Handler: mux}
	go func() {
		_ = m.srv.ListenAndServe()
	}()
	return nil
}

// Stop shuts down the /metrics HTTP server.
func (m *Metrics) Stop(ctx context.Context) error {
	if m.srv == nil {
		return nil
	}
	return m.srv.Shutdown(ctx)
}

// ConnOpened implements server.Metrics.
func (m *Metrics) ConnOpened(kind string) {
	m.connectionsOpen.WithLabelValues(kind).Inc()
	m.connectionsTotal.WithLabelValues(kind).Inc()
}

// ConnClosed implements server.Metrics.
func (m *Metrics) ConnClosed(kind string) {
	m.connectionsOpen.WithLabelValues(kind).Dec()
}

// EventRouted implements server.Metrics.
func (m *Metrics) EventRouted() {
	m.eventsRoutedTotal.Inc()
}

// RevokedCert implements server.Metrics.
func (m *Metrics) RevokedCert() {
	m.certsRevokedTotal.Inc()
}
