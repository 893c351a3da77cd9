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
	"github.com/taky-project/taky/internal/cot/xmlnode"
)

// MartiDest is one destination entry of a <marti><dest/></marti> routing
// hint block, identified by UID and/or callsign.
type MartiDest struct {
	UID      string
	Callsign string
}

// Detail is the variant-typed payload of an Event. The concrete type is
// selected, at unmarshal time, by the set of child tag names present on the
// source <detail> element.
type Detail interface {
	// AsElement renders this Detail back to its <detail> element form.
	AsElement() (*xmlnode.Element, error)

	// HasMarti reports whether this detail carries a non-empty marti
	// destination list.
	HasMarti() bool

	// Marti returns the marti destination list, empty if none.
	Marti() []MartiDest
}

// detailFromElement selects and builds the right Detail variant for a
// <detail> element, by first match: TAKUser, then GeoChat, then Generic.
func detailFromElement(elm *xmlnode.Element, eventUID string) (Detail, error) {
	tags := elm.ChildTagSet()
	if isTAKUserTags(tags) {
		return takUserFromElement(elm, eventUID)
	}
	if isGeoChatTags(tags) {
		return geoChatFromElement(elm)
	}
	return &Generic{elm: elm}, nil
}

// martiFromElement extracts the marti destination list shared by every
// Detail variant that preserves its source element tree.
func martiFromElement(elm *xmlnode.Element) []MartiDest {
	marti := elm.Find("marti")
	if marti == nil {
		return nil
	}
	var dests []MartiDest
	for _, d := range marti.FindAll("dest") {
		uid, _ := d.Get("uid")
		cs, _ := d.Get("callsign")
		dests = append(dests, MartiDest{UID: uid, Callsign: cs})
	}
	return dests
}

// Generic is any Detail whose child tag set does not match a recognized
// variant. It preserves the original element tree verbatim for round-trip
// and marti routing.
type Generic struct {
	elm *xmlnode.Element
}

// AsElement returns the original element unchanged.
func (g *Generic) AsElement() (*xmlnode.Element, error) {
	return g.elm, nil
}

// HasMarti reports whether the preserved element carries marti destinations.
func (g *Generic) HasMarti() bool {
	return len(g.Marti()) > 0
}

// Marti returns the marti destination list from the preserved element.
func (g *Generic) Marti() []MartiDest {
	if g.elm == nil {
		return nil
	}
	return martiFromElement(g.elm)
}
