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
	"strconv"

	"github.com/taky-project/taky/internal/cot/xmlnode"
)

var takUserTags = map[string]bool{"takv": true, "contact": true, "__group": true}

func isTAKUserTags(tags map[string]bool) bool {
	for tag := range takUserTags {
		if !tags[tag] {
			return false
		}
	}
	return true
}

// TAKDevice describes the client software and hardware that produced a
// TAKUser self-description.
type TAKDevice struct {
	OS       string
	Version  string
	Device   string
	Platform string
}

// TAKUser is the Detail variant recognized when a <detail> element has
// {takv, contact, __group} children: a self-description or tracked-object
// announcement.
type TAKUser struct {
	UID      string
	Callsign string
	Marker   string
	Group    Team
	Role     string

	Phone    string
	XMPP     string
	Endpoint string

	Course *float64
	Speed  *float64

	Battery string
	Device  TAKDevice

	elm *xmlnode.Element // preserved source element, nil if synthesized
}

// takUserFromElement builds a TAKUser from an already-classified <detail>
// element.
func takUserFromElement(elm *xmlnode.Element, eventUID string) (*TAKUser, error) {
	u := &TAKUser{UID: eventUID, elm: elm}

	if takv := elm.Find("takv"); takv != nil {
		u.Device = TAKDevice{
			OS:       takv.GetDefault("os", ""),
			Device:   takv.GetDefault("device", ""),
			Version:  takv.GetDefault("version", ""),
			Platform: takv.GetDefault("platform", ""),
		}
	}
	if contact := elm.Find("contact"); contact != nil {
		u.Callsign = contact.GetDefault("callsign", "")
		u.Phone = contact.GetDefault("phone", "")
		u.Endpoint = contact.GetDefault("endpoint", "")
	}
	if grp := elm.Find("__group"); grp != nil {
		u.Group = ParseTeam(grp.GetDefault("name", ""))
		u.Role = grp.GetDefault("role", "")
	}
	if status := elm.Find("status"); status != nil {
		u.Battery = status.GetDefault("battery", "")
	}
	if track := elm.Find("track"); track != nil {
		if c, err := strconv.ParseFloat(track.GetDefault("course", ""), 64); err == nil {
			u.Course = &c
		}
		if s, err := strconv.ParseFloat(track.GetDefault("speed", ""), 64); err == nil {
			u.Speed = &s
		}
	}

	return u, nil
}

// AsElement renders the TAKUser back to its <detail> form. If it was built
// from a parsed element, that exact element is returned. Otherwise it is
// synthesized; device, callsign, group, role, and endpoint are required.
func (u *TAKUser) AsElement() (*xmlnode.Element, error) {
	if u.elm != nil {
		return u.elm, nil
	}
	if u.Device == (TAKDevice{}) || u.Callsign == "" || u.Group == "" || u.Role == "" || u.Endpoint == "" {
		return nil, fmt.Errorf("takuser: missing required fields, unable to convert to XML element")
	}

	detail := xmlnode.NewElement("detail")

	takv := xmlnode.NewElement("takv")
	takv.SetAttrs("os", u.Device.OS, "device", u.Device.Device, "version", u.Device.Version, "platform", u.Device.Platform)
	detail.Append(takv)

	if u.Battery != "" {
		status := xmlnode.NewElement("status")
		status.Set("battery", u.Battery)
		detail.Append(status)
	}

	uidElm := xmlnode.NewElement("uid")
	uidElm.Set("Droid", u.Callsign)
	detail.Append(uidElm)

	contact := xmlnode.NewElement("contact")
	contact.SetAttrs("callsign", u.Callsign, "endpoint", u.Endpoint)
	if u.Phone != "" {
		contact.Set("phone", u.Phone)
	}
	if u.XMPP != "" {
		contact.Set("xmppUsername", u.XMPP)
	}
	detail.Append(contact)

	group := xmlnode.NewElement("__group")
	group.SetAttrs("role", u.Role, "name", string(u.Group))
	detail.Append(group)

	if u.Course != nil && u.Speed != nil {
		track := xmlnode.NewElement("track")
		track.SetAttrs("course", fmt.Sprintf("%.1f", *u.Course), "speed", fmt.Sprintf("%.1f", *u.Speed))
		detail.Append(track)
	}

	return detail, nil
}

// HasMarti reports whether the preserved source element carries marti
// destinations; synthesized TAKUser details never carry marti.
func (u *TAKUser) HasMarti() bool {
	return len(u.Marti()) > 0
}

// Marti returns the marti destination list, if any, from the preserved
// source element.
func (u *TAKUser) Marti() []MartiDest {
	if u.elm == nil {
		return nil
	}
	return martiFromElement(u.elm)
}

// Update copies the identifying fields of other into u in place, used when
// a later TAKUser event arrives for the same session with the same UID.
func (u *TAKUser) Update(other *TAKUser) {
	if other == nil || other.UID != u.UID {
		return
	}
	u.Callsign = other.Callsign
	u.Marker = other.Marker
	u.Group = other.Group
	u.Role = other.Role
	u.Phone = other.Phone
	u.XMPP = other.XMPP
	u.Endpoint = other.Endpoint
	u.Course = other.Course
	u.Speed = other.Speed
	u.Battery = other.Battery
	u.Device = other.Device
	u.elm = other.elm
}
