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
	"fmt"
	"time"

	"github.com/taky-project/taky/internal/cot/xmlnode"
)

// DefaultVersion is the CoT protocol version this implementation emits.
const DefaultVersion = "2.0"

const timestampLayout = "2006-01-02T15:04:05.000Z"

// Event is a single CoT message: identity, type, three timestamps, a
// location, and an optional Detail payload.
type Event struct {
	Version string
	UID     string
	Etype   string
	How     string

	Time  time.Time
	Start time.Time
	Stale time.Time

	Point  Point
	Detail Detail
}

// String implements fmt.Stringer.
func (e *Event) String() string {
	return fmt.Sprintf("<Event uid=%q type=%q time=%s>", e.UID, e.Etype, e.Time)
}

// FromElement unmarshals an <event> element into an Event. uid and etype
// must be present, and all three timestamps must parse, else an
// *UnmarshalError is returned.
func FromElement(elm *xmlnode.Element) (*Event, error) {
	if elm.Tag != "event" {
		return nil, NewUnmarshalError("event", fmt.Errorf("cannot create event from <%s>", elm.Tag))
	}

	uid, ok := elm.Get("uid")
	if !ok || uid == "" {
		return nil, NewUnmarshalError("event", fmt.Errorf("missing uid attribute"))
	}
	etype, ok := elm.Get("type")
	if !ok || etype == "" {
		return nil, NewUnmarshalError("event", fmt.Errorf("missing type attribute"))
	}

	t, err := parseTimestamp(elm, "time")
	if err != nil {
		return nil, err
	}
	start, err := parseTimestamp(elm, "start")
	if err != nil {
		return nil, err
	}
	stale, err := parseTimestamp(elm, "stale")
	if err != nil {
		return nil, err
	}

	ev := &Event{
		Version: elm.GetDefault("version", DefaultVersion),
		UID:     uid,
		Etype:   etype,
		How:     elm.GetDefault("how", ""),
		Time:    t,
		Start:   start,
		Stale:   stale,
	}

	if pointElm := elm.Find("point"); pointElm != nil {
		attrs := make(map[string]string, len(pointElm.Attrs))
		for _, a := range pointElm.Attrs {
			attrs[a.Name] = a.Value
		}
		pt, err := pointFromAttrs(attrs)
		if err != nil {
			return nil, err
		}
		ev.Point = pt
	}

	if detailElm := elm.Find("detail"); detailElm != nil {
		d, err := detailFromElement(detailElm, uid)
		if err != nil {
			return nil, err
		}
		ev.Detail = d
	}

	return ev, nil
}

func parseTimestamp(elm *xmlnode.Element, attr string) (time.Time, error) {
	v, ok := elm.Get(attr)
	if !ok {
		return time.Time{}, NewUnmarshalError("event", fmt.Errorf("missing %s attribute", attr))
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		// tolerate the exact millisecond-precision layout we emit ourselves
		if t2, err2 := time.Parse(timestampLayout, v); err2 == nil {
			return t2.UTC(), nil
		}
		return time.Time{}, NewUnmarshalError("event", fmt.Errorf("bad %s timestamp: %w", attr, err))
	}
	return t.UTC(), nil
}

// AsElement marshals the Event back to its <event> element form.
func (e *Event) AsElement() (*xmlnode.Element, error) {
	elm := xmlnode.NewElement("event")
	elm.SetAttrs(
		"version", e.Version,
		"uid", e.UID,
		"type", e.Etype,
		"how", e.How,
		"time", formatTimestamp(e.Time),
		"start", formatTimestamp(e.Start),
		"stale", formatTimestamp(e.Stale),
	)

	pointElm := xmlnode.NewElement("point")
	pointElm.SetAttrs(
		"lat", fmt.Sprintf("%.6f", e.Point.Lat),
		"lon", fmt.Sprintf("%.6f", e.Point.Lon),
		"hae", fmt.Sprintf("%.1f", e.Point.Hae),
		"ce", fmt.Sprintf("%.1f", e.Point.CE),
		"le", fmt.Sprintf("%.1f", e.Point.LE),
	)
	elm.Append(pointElm)

	if e.Detail != nil {
		detailElm, err := e.Detail.AsElement()
		if err != nil {
			return nil, err
		}
		elm.Append(detailElm)
	}

	return elm, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ClampStale caps e.Stale at now+maxTTL if it would otherwise exceed it.
// maxTTL < 0 disables the clamp.
func (e *Event) ClampStale(now time.Time, maxTTL time.Duration) {
	if maxTTL < 0 {
		return
	}
	limit := now.Add(maxTTL)
	if e.Stale.After(limit) {
		e.Stale = limit
	}
}

// TTL returns the duration remaining until Stale, relative to now. A
// non-positive result means the event has already expired.
func (e *Event) TTL(now time.Time) time.Duration {
	return e.Stale.Sub(now)
}
