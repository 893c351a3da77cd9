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

package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestCountersReflectedInOutput(t *testing.T) {
	m := &Metrics{}
	if err := m.Init(); err != nil {
		t.Fatalf("Init: %s", err)
	}

	m.ConnOpened("cot")
	m.ConnOpened("ssl")
	m.ConnClosed("ssl")
	m.EventRouted()
	m.EventRouted()
	m.RevokedCert()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `taky_connections_open{kind="cot"} 1`) {
		t.Fatalf("expected open cot gauge of 1, got:\n%s", body)
	}
	if !strings.Contains(body, `taky_connections_open{kind="ssl"} 0`) {
		t.Fatalf("expected open ssl gauge back to 0, got:\n%s", body)
	}
	if !strings.Contains(body, "taky_events_routed_total 2") {
		t.Fatalf("expected two routed events counted, got:\n%s", body)
	}
	if !strings.Contains(body, "taky_certs_revoked_total 1") {
		t.Fatalf("expected one revoked cert counted, got:\n%s", body)
	}
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	m := &Metrics{}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %s", err)
	}
}
