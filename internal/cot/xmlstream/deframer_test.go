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

package xmlstream

import (
	"testing"

	"github.com/taky-project/taky/internal/cot/xmlnode"
)

func feedAll(t *testing.T, d *Deframer, chunks []string) []*xmlnode.Element {
	t.Helper()
	var all []*xmlnode.Element
	for _, c := range chunks {
		evts, err := d.Feed([]byte(c))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		all = append(all, evts...)
	}
	return all
}

func TestDeframerValidSingle(t *testing.T) {
	d := NewDeframer()
	evts := feedAll(t, d, []string{
		`<?xml version="1.0"?><event uid="a" type="a-f-G"/>`,
	})
	if len(evts) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evts))
	}
	if uid, _ := evts[0].Get("uid"); uid != "a" {
		t.Fatalf("unexpected uid: %q", uid)
	}
}

func TestDeframerSplitDecl(t *testing.T) {
	d := NewDeframer()
	evts := feedAll(t, d, []string{
		`<?xm`,
		`l version="1.0"?><event uid="a" type="a-f-G"/>`,
	})
	if len(evts) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evts))
	}
}

func TestDeframerSplitDeclAtBoundary(t *testing.T) {
	d := NewDeframer()
	evts := feedAll(t, d, []string{
		`<?xml version="1.0"?`,
		`><event uid="a" type="a-f-G"/>`,
	})
	if len(evts) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evts))
	}
}

func TestDeframerTwoDeclarations(t *testing.T) {
	d := NewDeframer()
	evts := feedAll(t, d, []string{
		`<?xml version="1.0"?><event uid="a" type="a-f-G"/`,
		`><?xml version="1.0"?><event uid="b" type="a-f-G"/>`,
	})
	if len(evts) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evts))
	}
	if uid, _ := evts[0].Get("uid"); uid != "a" {
		t.Fatalf("unexpected uid[0]: %q", uid)
	}
	if uid, _ := evts[1].Get("uid"); uid != "b" {
		t.Fatalf("unexpected uid[1]: %q", uid)
	}
}

func TestDeframerSplitAttributeValue(t *testing.T) {
	d := NewDeframer()
	evts := feedAll(t, d, []string{
		`<?xml version="1.0"?><event uid="hel`,
		`lo" type="a-f-G"/>`,
	})
	if len(evts) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evts))
	}
	if uid, _ := evts[0].Get("uid"); uid != "hello" {
		t.Fatalf("unexpected uid: %q", uid)
	}
}

func TestDeframerNestedChildren(t *testing.T) {
	d := NewDeframer()
	evts := feedAll(t, d, []string{
		`<?xml version="1.0"?><event uid="a" type="a-f-G">`,
		`<point lat="1.0" lon="2.0" hae="3.0" ce="1.0" le="1.0"/>`,
		`<detail><contact callsign="JENNY"/></detail></event>`,
	})
	if len(evts) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evts))
	}
	pt := evts[0].Find("point")
	if pt == nil {
		t.Fatalf("expected a point child")
	}
	detail := evts[0].Find("detail")
	if detail == nil || detail.Find("contact") == nil {
		t.Fatalf("expected detail/contact children")
	}
}

func TestDeframerArbitrarySplit(t *testing.T) {
	full := `<?xml version="1.0"?><event uid="a" type="a-f-G"/><?xml version="1.0"?><event uid="b" type="a-f-G"/><?xml version="1.0"?><event uid="c" type="a-f-G"/>`
	for split := 1; split < len(full)-1; split++ {
		d := NewDeframer()
		evts := feedAll(t, d, []string{full[:split], full[split:]})
		if len(evts) != 3 {
			t.Fatalf("split at %d: expected 3 events, got %d", split, len(evts))
		}
	}
}
