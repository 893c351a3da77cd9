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

	"github.com/taky-project/taky/internal/cot/xmlnode"
)

var geoChatTags = map[string]bool{"__chat": true, "remarks": true, "link": true}

func isGeoChatTags(tags map[string]bool) bool {
	for tag := range geoChatTags {
		if !tags[tag] {
			return false
		}
	}
	return true
}

// AllChatRooms is the chatroom name that marks a GeoChat as a broadcast.
const AllChatRooms = "All Chat Rooms"

// ChatParent is the __chat/@parent attribute value distinguishing an
// individual conversation from a team-scoped one.
type ChatParent string

// The two recognized chat parent kinds.
const (
	ChatParentRoot ChatParent = "RootContactGroup"
	ChatParentTeam ChatParent = "TeamGroups"
)

// GeoChat is the Detail variant recognized when a <detail> element has
// {__chat, remarks, link} children: a chat message embedded as CoT.
type GeoChat struct {
	Chatroom   string
	ChatParent ChatParent
	GroupOwner bool

	SrcUID    string
	SrcCS     string
	SrcMarker string
	Message   string

	// Exactly one of Broadcast, DstTeam, or DstUID is the effective
	// routing destination; Broadcast and DstTeam are inferred from the
	// chatroom and parent, DstUID is read from the __chat element's id.
	Broadcast bool
	DstTeam   Team
	DstUID    string

	eventTimeRFC3339 string // used only when synthesizing <remarks time=...>
}

func geoChatFromElement(elm *xmlnode.Element) (*GeoChat, error) {
	chat := elm.Find("__chat")
	remarks := elm.Find("remarks")
	link := elm.Find("link")
	if chat == nil || remarks == nil || link == nil {
		return nil, NewUnmarshalError("geochat", fmt.Errorf("detail does not contain a geochat"))
	}

	g := &GeoChat{}
	g.ChatParent = ChatParent(chat.GetDefault("parent", ""))
	g.GroupOwner = chat.GetDefault("groupOwner", "false") == "true"
	g.SrcUID = link.GetDefault("uid", "")
	g.SrcCS = chat.GetDefault("senderCallsign", "")
	g.SrcMarker = link.GetDefault("type", "")
	g.Chatroom = chat.GetDefault("chatroom", "")
	g.Message = remarks.Text

	switch {
	case g.Chatroom == AllChatRooms:
		g.Broadcast = true
	case g.ChatParent == ChatParentTeam:
		g.DstTeam = ParseTeam(g.Chatroom)
	default:
		g.DstUID = chat.GetDefault("id", "")
	}

	return g, nil
}

// AsElement synthesizes the <detail> element for this GeoChat, encoding the
// effective destination as the hacky shared "id" token the wire format uses.
func (g *GeoChat) AsElement() (*xmlnode.Element, error) {
	var dstUID string
	switch {
	case g.Broadcast:
		dstUID = AllChatRooms
	case g.DstTeam != "":
		dstUID = string(g.DstTeam)
	default:
		dstUID = g.DstUID
	}

	detail := xmlnode.NewElement("detail")

	chat := xmlnode.NewElement("__chat")
	chat.SetAttrs(
		"parent", string(g.ChatParent),
		"groupOwner", boolStr(g.GroupOwner),
		"chatroom", g.Chatroom,
		"id", dstUID,
		"senderCallsign", g.SrcCS,
	)
	chatgrp := xmlnode.NewElement("chatgrp")
	chatgrp.SetAttrs("uid0", g.SrcUID, "uid1", dstUID, "id", dstUID)
	chat.Append(chatgrp)
	detail.Append(chat)

	link := xmlnode.NewElement("link")
	link.SetAttrs("uid", g.SrcUID, "type", g.SrcMarker, "relation", "p-p")
	detail.Append(link)

	remarks := xmlnode.NewElement("remarks")
	remarks.SetAttrs("source", fmt.Sprintf("BAO.F.ATAK.%s", g.SrcUID), "to", dstUID)
	if g.eventTimeRFC3339 != "" {
		remarks.Set("time", g.eventTimeRFC3339)
	}
	remarks.Text = g.Message
	detail.Append(remarks)

	return detail, nil
}

// HasMarti is always false for GeoChat; it routes via its own destination
// fields, never via marti.
func (g *GeoChat) HasMarti() bool { return false }

// Marti is always empty for GeoChat.
func (g *GeoChat) Marti() []MartiDest { return nil }

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
