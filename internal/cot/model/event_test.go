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

package model

import (
	"testing"
	"time"

	"github.com/taky-project/taky/internal/cot/xmlnode"
)

func mustParseEvent(t *testing.T, el *xmlnode.Element) *Event {
	t.Helper()
	ev, err := FromElement(el)
	if err != nil {
		t.Fatalf("FromElement: %v", err)
	}
	return ev
}

func atomElement(uid, etype string) *xmlnode.Element {
	el := xmlnode.NewElement("event")
	el.SetAttrs("version", "2.0", "uid", uid, "type", etype, "how", "m-g")
	el.Set("time", "2026-07-30T12:00:00.000Z")
	el.Set("start", "2026-07-30T12:00:00.000Z")
	el.Set("stale", "2026-07-30T12:01:00.000Z")
	pt := xmlnode.NewElement("point")
	pt.SetAttrs("lat", "1.000000", "lon", "2.000000", "hae", "3.0", "ce", "9999999.0", "le", "9999999.0")
	el.Append(pt)
	return el
}

func TestEventUnmarshalRequiresUIDAndType(t *testing.T) {
	el := atomElement("", "a-f-G")
	if _, err := FromElement(el); err == nil {
		t.Fatalf("expected error for missing uid")
	}
}

func TestTAKUserIdentification(t *testing.T) {
	el := atomElement("uid-1", "a-f-G-U-C")
	detail := xmlnode.NewElement("detail")
	takv := xmlnode.NewElement("takv")
	takv.SetAttrs("os", "31", "device", "pixel", "version", "1.0", "platform", "ATAK")
	detail.Append(takv)
	contact := xmlnode.NewElement("contact")
	contact.SetAttrs("callsign", "JENNY", "endpoint", "*:-1:stcp")
	detail.Append(contact)
	group := xmlnode.NewElement("__group")
	group.SetAttrs("name", "Cyan", "role", "Team Member")
	detail.Append(group)
	el.Append(detail)

	ev := mustParseEvent(t, el)
	user, ok := ev.Detail.(*TAKUser)
	if !ok {
		t.Fatalf("expected a TAKUser detail, got %T", ev.Detail)
	}
	if user.UID != "uid-1" || user.Callsign != "JENNY" || user.Group != TeamCyan {
		t.Fatalf("unexpected takuser: %+v", user)
	}
}

func TestGeoChatBroadcastInference(t *testing.T) {
	el := atomElement("chat-1", "b-t-f")
	detail := xmlnode.NewElement("detail")
	chat := xmlnode.NewElement("__chat")
	chat.SetAttrs("parent", "RootContactGroup", "chatroom", AllChatRooms, "senderCallsign", "JENNY")
	detail.Append(chat)
	remarks := xmlnode.NewElement("remarks")
	remarks.Text = "hello all"
	detail.Append(remarks)
	link := xmlnode.NewElement("link")
	link.SetAttrs("uid", "uid-1", "type", "a-f-G")
	detail.Append(link)
	el.Append(detail)

	ev := mustParseEvent(t, el)
	gc, ok := ev.Detail.(*GeoChat)
	if !ok {
		t.Fatalf("expected a GeoChat detail, got %T", ev.Detail)
	}
	if !gc.Broadcast {
		t.Fatalf("expected broadcast geochat")
	}
}

func TestGeoChatTeamInference(t *testing.T) {
	el := atomElement("chat-2", "b-t-f")
	detail := xmlnode.NewElement("detail")
	chat := xmlnode.NewElement("__chat")
	chat.SetAttrs("parent", "TeamGroups", "chatroom", "Cyan", "senderCallsign", "JENNY")
	detail.Append(chat)
	remarks := xmlnode.NewElement("remarks")
	remarks.Text = "team hello"
	detail.Append(remarks)
	link := xmlnode.NewElement("link")
	link.SetAttrs("uid", "uid-1", "type", "a-f-G")
	detail.Append(link)
	el.Append(detail)

	ev := mustParseEvent(t, el)
	gc := ev.Detail.(*GeoChat)
	if gc.Broadcast || gc.DstTeam != TeamCyan {
		t.Fatalf("expected team-scoped geochat to Cyan, got %+v", gc)
	}
}

func TestMartiDestinations(t *testing.T) {
	el := atomElement("tasked-1", "t-x-tak")
	detail := xmlnode.NewElement("detail")
	marti := xmlnode.NewElement("marti")
	dest1 := xmlnode.NewElement("dest")
	dest1.Set("uid", "uid-A")
	dest2 := xmlnode.NewElement("dest")
	dest2.Set("callsign", "BOB")
	marti.Append(dest1)
	marti.Append(dest2)
	detail.Append(marti)
	el.Append(detail)

	ev := mustParseEvent(t, el)
	generic, ok := ev.Detail.(*Generic)
	if !ok {
		t.Fatalf("expected generic detail, got %T", ev.Detail)
	}
	if !generic.HasMarti() {
		t.Fatalf("expected HasMarti true")
	}
	dests := generic.Marti()
	if len(dests) != 2 || dests[0].UID != "uid-A" || dests[1].Callsign != "BOB" {
		t.Fatalf("unexpected marti dests: %+v", dests)
	}
}

func TestEventClampStale(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	ev := &Event{Stale: now.Add(24 * time.Hour)}
	ev.ClampStale(now, 10*time.Second)
	if ev.Stale.Sub(now) > 10*time.Second {
		t.Fatalf("expected stale clamped to 10s, got %s", ev.Stale.Sub(now))
	}
}

func TestEventClampStaleDisabled(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	stale := now.Add(24 * time.Hour)
	ev := &Event{Stale: stale}
	ev.ClampStale(now, -1)
	if !ev.Stale.Equal(stale) {
		t.Fatalf("expected clamp disabled to leave stale unchanged")
	}
}

func TestTAKUserMarshalRoundTrip(t *testing.T) {
	el := atomElement("uid-9", "a-f-G-U-C")
	detail := xmlnode.NewElement("detail")
	takv := xmlnode.NewElement("takv")
	takv.SetAttrs("os", "31", "device", "pixel", "version", "1.0", "platform", "ATAK")
	detail.Append(takv)
	contact := xmlnode.NewElement("contact")
	contact.SetAttrs("callsign", "JENNY", "endpoint", "*:-1:stcp")
	detail.Append(contact)
	group := xmlnode.NewElement("__group")
	group.SetAttrs("name", "Cyan", "role", "Team Member")
	detail.Append(group)
	el.Append(detail)

	ev := mustParseEvent(t, el)
	out, err := ev.AsElement()
	if err != nil {
		t.Fatalf("AsElement: %v", err)
	}
	if out.Find("detail") != detail {
		t.Fatalf("expected preserved detail element to round-trip unchanged")
	}
}
