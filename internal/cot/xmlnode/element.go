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

// Package xmlnode is a minimal mutable XML element tree, standing in for the
// attribute-ordered element objects the rest of this codebase's parsers hand
// around, so that detail payloads the router does not understand can be held
// onto and re-emitted with the same tags, attribute order, and children.
// Marshal re-encodes the tree; it does not reproduce the original bytes.
package xmlnode

import (
	"encoding/xml"
	"strings"
)

// Attr is a single ordered attribute.
type Attr struct {
	Name  string
	Value string
}

// Element is a single XML element: a tag, its ordered attributes, child
// elements in document order, and any direct text content.
type Element struct {
	Tag      string
	Attrs    []Attr
	Children []*Element
	Text     string
}

// NewElement builds an empty element with the given tag.
func NewElement(tag string) *Element {
	return &Element{Tag: tag}
}

// Get returns the value of the named attribute and whether it was present.
func (e *Element) Get(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// GetDefault returns the named attribute's value, or def if absent.
func (e *Element) GetDefault(name, def string) string {
	if v, ok := e.Get(name); ok {
		return v
	}
	return def
}

// Set assigns an attribute, overwriting any existing value, appending
// otherwise.
func (e *Element) Set(name, value string) {
	for i, a := range e.Attrs {
		if a.Name == name {
			e.Attrs[i].Value = value
			return
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
}

// SetAttrs assigns attributes in the given order, for readable construction.
func (e *Element) SetAttrs(pairs ...string) {
	for i := 0; i+1 < len(pairs); i += 2 {
		e.Set(pairs[i], pairs[i+1])
	}
}

// Append adds a child element.
func (e *Element) Append(child *Element) {
	e.Children = append(e.Children, child)
}

// Find returns the first direct child with the given tag, or nil.
func (e *Element) Find(tag string) *Element {
	for _, c := range e.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// FindPath resolves a slash-separated path of direct-child tags, e.g.
// "marti/dest" resolves one level at a time. Returns nil if any segment is
// missing.
func (e *Element) FindPath(path string) *Element {
	cur := e
	for _, tag := range strings.Split(path, "/") {
		if cur == nil {
			return nil
		}
		cur = cur.Find(tag)
	}
	return cur
}

// FindAll returns every direct child with the given tag.
func (e *Element) FindAll(tag string) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// ChildTagSet returns the set of direct child tag names, used for Detail
// variant discrimination.
func (e *Element) ChildTagSet() map[string]bool {
	set := make(map[string]bool, len(e.Children))
	for _, c := range e.Children {
		set[c.Tag] = true
	}
	return set
}

// Marshal renders the element tree as XML bytes, with no enclosing
// declaration.
func (e *Element) Marshal() ([]byte, error) {
	var sb strings.Builder
	enc := xml.NewEncoder(&sb)
	if err := e.encode(enc); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

func (e *Element) encode(enc *xml.Encoder) error {
	start := xml.StartElement{Name: xml.Name{Local: e.Tag}}
	for _, a := range e.Attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: a.Name}, Value: a.Value})
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if e.Text != "" {
		if err := enc.EncodeToken(xml.CharData(e.Text)); err != nil {
			return err
		}
	}
	for _, c := range e.Children {
		if err := c.encode(enc); err != nil {
			return err
		}
	}
	return enc.EncodeToken(xml.EndElement{Name: start.Name})
}
