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

package server

import (
	"bufio"
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/taky-project/taky/internal/config"
	"github.com/taky-project/taky/internal/cot/persist"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Taky.BindIP = "127.0.0.1"
	cfg.Taky.RootDir = t.TempDir()
	cfg.CotServer.Port = 0 // let Setup pick an ephemeral port below

	s := New(cfg, persist.NewMemory(), nil)
	s.Logf = t.Logf

	// Setup joins the bind IP with strconv.Itoa(cfg.CotServer.Port), so port
	// 0 binds "127.0.0.1:0", which net.Listen resolves to an ephemeral port;
	// the test dialer reads the chosen port back from s.srvListener.
	if err := s.Setup(); err != nil {
		t.Fatalf("Setup: %s", err)
	}
	t.Cleanup(func() {
		if err := s.Shutdown(); err != nil {
			t.Logf("Shutdown: %s", err)
		}
	})
	return s
}

// loopStep runs one Loop() iteration and fails the test on error. Each
// select() call returns as soon as any registered fd is ready, so a step
// only blocks for the full loopTimeout when nothing is actually pending.
func loopStep(t *testing.T, s *Server) {
	t.Helper()
	if err := s.Loop(); err != nil {
		t.Fatalf("Loop: %s", err)
	}
}

func TestAcceptAndBroadcastPlaintext(t *testing.T) {
	s := testServer(t)

	addr := s.srvListener.Addr().String()
	a, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial a: %s", err)
	}
	defer a.Close()
	b, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial b: %s", err)
	}
	defer b.Close()

	// One step accepts whichever of a/b's pending connections the kernel
	// surfaces as readable on the listener fd first.
	loopStep(t, s)
	loopStep(t, s)
	if len(s.clients) != 2 {
		t.Fatalf("expected 2 accepted clients, got %d", len(s.clients))
	}

	const chat = `<event version="2.0" uid="GeoChat.SRC.All Chat Rooms.room" type="b-t-f" how="h-g-i-g-o" time="2024-01-01T00:00:00Z" start="2024-01-01T00:00:00Z" stale="2024-01-01T00:05:00Z"><point lat="0" lon="0" hae="0" ce="0" le="0"/><detail><__chat parent="RootContactGroup" groupOwner="false" chatroom="All Chat Rooms" id="All Chat Rooms" senderCallsign="Alice"><chatgrp uid0="SRC" id="All Chat Rooms"/></__chat><link uid="SRC" type="a-f-G-U-C" relation="p-p"/><remarks source="BAO.F.ATAK.SRC" to="All Chat Rooms" time="2024-01-01T00:00:00Z">hello</remarks></detail></event>`
	if _, err := a.Write([]byte(chat)); err != nil {
		t.Fatalf("write: %s", err)
	}

	// First step reads from a and routes the event, buffering it into b's
	// clientConn.out; the write only reaches b's socket on the next step,
	// since a Loop() call's writable fd set is computed before that call's
	// own read/route phase runs.
	loopStep(t, s)
	loopStep(t, s)

	_ = b.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := b.Read(buf)
	if err != nil {
		t.Fatalf("read broadcast: %s", err)
	}
	if !bytes.Contains(buf[:n], []byte("GeoChat.SRC.All Chat Rooms.room")) {
		t.Fatalf("broadcast did not carry the chat event: %q", buf[:n])
	}
}

func TestMgmtPing(t *testing.T) {
	s := testServer(t)

	conn, err := net.Dial("unix", s.cfg.MgmtSocketPath())
	if err != nil {
		t.Fatalf("dial mgmt: %s", err)
	}
	defer conn.Close()

	loopStep(t, s) // accept the mgmt connection

	if _, err := conn.Write([]byte(`{"cmd":"ping"}` + "\x00")); err != nil {
		t.Fatalf("write: %s", err)
	}

	loopStep(t, s) // read the request, buffer the reply
	loopStep(t, s) // write the reply out

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(conn)
	line, err := r.ReadString(0)
	if err != nil {
		t.Fatalf("read pong: %s", err)
	}
	if !bytes.Contains([]byte(line), []byte(`"pong":"taky"`)) {
		t.Fatalf("unexpected pong body: %q", line)
	}
}
