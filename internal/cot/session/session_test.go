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

package session

import (
	"path/filepath"
	"testing"

	"github.com/taky-project/taky/internal/cot/model"
	"github.com/taky-project/taky/internal/cot/router"
	"github.com/taky-project/taky/util/semaphore"
)

type fakeRouter struct {
	routed      []*model.Event
	sentPersist int
}

func (f *fakeRouter) Route(origin router.Session, ev *model.Event) { f.routed = append(f.routed, ev) }
func (f *fakeRouter) SendPersist(s router.Session)                 { f.sentPersist++ }

const atomXML = `<?xml version="1.0"?><event version="2.0" uid="USER-1" type="a-f-G-U-C" how="m-g" time="2026-07-30T00:00:00.000Z" start="2026-07-30T00:00:00.000Z" stale="2026-07-30T00:10:00.000Z"><point lat="1" lon="2" hae="3" ce="4" le="5"/><detail><takv os="a" device="b" version="c" platform="d"/><contact callsign="Alice" endpoint="1.2.3.4:4242:tcp"/><__group name="Cyan" role="Team Member"/></detail></event>`

const pingXML = `<?xml version="1.0"?><event version="2.0" uid="USER-1" type="t-x-c-t" how="m-g" time="2026-07-30T00:00:00.000Z" start="2026-07-30T00:00:00.000Z" stale="2026-07-30T00:10:00.000Z"><point lat="0" lon="0" hae="0" ce="0" le="0"/></event>`

func TestFeedIdentifiesUserAndReplaysPersist(t *testing.T) {
	var sent []*model.Event
	s := New("1.2.3.4:5555", false, func(ev *model.Event) { sent = append(sent, ev) })
	r := &fakeRouter{}

	if err := s.Feed([]byte(atomXML), r); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	uid, ok := s.UID()
	if !ok || uid != "USER-1" {
		t.Fatalf("expected session identified as USER-1, got %q %v", uid, ok)
	}
	if r.sentPersist != 1 {
		t.Fatalf("expected SendPersist called once on first identification, got %d", r.sentPersist)
	}
	if len(r.routed) != 1 {
		t.Fatalf("expected the atom itself to be routed")
	}
}

func TestFeedPingRepliesWithoutRouting(t *testing.T) {
	var sent []*model.Event
	s := New("1.2.3.4:5555", false, func(ev *model.Event) { sent = append(sent, ev) })
	r := &fakeRouter{}

	if err := s.Feed([]byte(pingXML), r); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	if len(r.routed) != 0 {
		t.Fatalf("expected ping to never reach the router")
	}
	if len(sent) != 1 {
		t.Fatalf("expected exactly one pong sent, got %d", len(sent))
	}
	pong := sent[0]
	if pong.UID != "takPong" || pong.Etype != "t-x-c-t-r" || pong.How != "h-g-i-g-o" {
		t.Fatalf("unexpected pong: %+v", pong)
	}
}

func TestSendDroppedBeforeTLSEstablished(t *testing.T) {
	var sent []*model.Event
	s := New("1.2.3.4:5555", false, func(ev *model.Event) { sent = append(sent, ev) })
	s.TLS = TLSWait

	s.Send(&model.Event{UID: "x"})
	if len(sent) != 0 {
		t.Fatalf("expected send to be dropped while handshake incomplete")
	}
}

func TestTranscriptWritesIdentifiedFile(t *testing.T) {
	dir := t.TempDir()
	var sent []*model.Event
	s := New("1.2.3.4:5555", false, func(ev *model.Event) { sent = append(sent, ev) })
	s.EnableTranscript(dir, semaphore.NewSemaphore(4))
	r := &fakeRouter{}

	if err := s.Feed([]byte(atomXML), r); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	s.Close()

	matches, err := filepath.Glob(filepath.Join(dir, "*-USER-1-Alice.cot"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected exactly one transcript file, got %v", matches)
	}
}

func TestMonitorNeverIdentifies(t *testing.T) {
	s := New("1.2.3.4:5555", true, func(ev *model.Event) {})
	r := &fakeRouter{}

	if err := s.Feed([]byte(atomXML), r); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if _, ok := s.UID(); ok {
		t.Fatalf("monitor sessions must never install an identity")
	}
	if r.sentPersist != 0 {
		t.Fatalf("monitor sessions must not trigger SendPersist")
	}
}
