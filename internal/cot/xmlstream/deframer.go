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

// Package xmlstream turns a byte stream containing an arbitrary concatenation
// of fragmentary XML declarations and <event> documents into a sequence of
// complete top-level elements, tolerating any split across Feed calls.
package xmlstream

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/taky-project/taky/internal/cot/xmlnode"
)

const (
	declStart = "<?xml "
	declEnd   = "?>"
	rootOpen  = "<root>"
)

type declState int

const (
	outsideDecl declState = iota
	insideDecl
)

// SyntaxError wraps a real XML parse failure. It is connection-fatal: the
// caller should disconnect the session with reason "XML Syntax Error".
type SyntaxError struct {
	Err error
}

func (e *SyntaxError) Error() string { return fmt.Sprintf("xml syntax error: %s", e.Err) }
func (e *SyntaxError) Unwrap() error { return e.Err }

// Deframer accepts arbitrary byte chunks from a single connection and yields
// completed <event> elements in arrival order.
type Deframer struct {
	state declState
	tail  []byte // holds a possible partial "<?xml " prefix, or the whole remainder while insideDecl

	pending bytes.Buffer // decl-stripped bytes not yet resolved into a complete element
}

// NewDeframer returns a fresh, empty Deframer.
func NewDeframer() *Deframer {
	return &Deframer{}
}

// Feed accepts a chunk of bytes and returns zero or more completed elements.
// A non-nil error is always a *SyntaxError and is connection-fatal.
func (obj *Deframer) Feed(data []byte) ([]*xmlnode.Element, error) {
	clean := obj.stripDecls(data)
	if len(clean) > 0 {
		obj.pending.Write(clean)
	}
	return obj.extractEvents()
}

// stripDecls removes every "<?xml ... ?>" declaration from data, tolerating
// a declaration split across Feed calls via obj.tail.
func (obj *Deframer) stripDecls(data []byte) []byte {
	buf := append(obj.tail, data...)
	obj.tail = nil

	var out []byte
	pos := 0
	for {
		switch obj.state {
		case outsideDecl:
			rest := buf[pos:]
			idx := bytes.Index(rest, []byte(declStart))
			if idx >= 0 {
				out = append(out, rest[:idx]...)
				pos += idx
				obj.state = insideDecl
				continue
			}
			// no full match; check whether the tail of rest could be an
			// unfinished prefix of declStart, and hold it back
			keep := partialPrefixLen(rest, declStart)
			out = append(out, rest[:len(rest)-keep]...)
			if keep > 0 {
				obj.tail = append(obj.tail, rest[len(rest)-keep:]...)
			}
			return out
		case insideDecl:
			rest := buf[pos:]
			idx := bytes.Index(rest, []byte(declEnd))
			if idx >= 0 {
				pos += idx + len(declEnd)
				obj.state = outsideDecl
				continue
			}
			// the whole remainder is still inside the declaration
			obj.tail = append(obj.tail, rest...)
			return out
		}
	}
}

// partialPrefixLen returns the length of the longest suffix of data that is
// a proper, non-empty prefix of marker.
func partialPrefixLen(data []byte, marker string) int {
	max := len(marker) - 1
	if max > len(data) {
		max = len(data)
	}
	for n := max; n > 0; n-- {
		if bytes.HasSuffix(data, []byte(marker[:n])) {
			return n
		}
	}
	return 0
}

// extractEvents decodes as many complete top-level elements as currently
// possible out of obj.pending, leaving any incomplete trailing element
// buffered for the next Feed call.
func (obj *Deframer) extractEvents() ([]*xmlnode.Element, error) {
	if obj.pending.Len() == 0 {
		return nil, nil
	}

	reader := io.MultiReader(strings.NewReader(rootOpen), bytes.NewReader(obj.pending.Bytes()))
	dec := xml.NewDecoder(reader)
	dec.Strict = true
	dec.Entity = nil

	var results []*xmlnode.Element
	var stack []*xmlnode.Element
	rootConsumed := false
	lastGoodOffset := int64(-1)

	for {
		tok, err := dec.Token()
		if err != nil {
			// The synthetic root is never closed, so running out of buffered
			// input surfaces as an "unexpected EOF" syntax error; whatever is
			// incomplete stays pending for the next Feed call.
			var xerr *xml.SyntaxError
			if err == io.EOF || err == io.ErrUnexpectedEOF ||
				(errors.As(err, &xerr) && strings.HasPrefix(xerr.Msg, "unexpected EOF")) {
				break
			}
			return results, &SyntaxError{Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if !rootConsumed {
				rootConsumed = true
				continue
			}
			el := xmlnode.NewElement(t.Name.Local)
			for _, a := range t.Attr {
				el.Set(a.Name.Local, a.Value)
			}
			if len(stack) > 0 {
				stack[len(stack)-1].Append(el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) == 0 {
				continue // closing the synthetic root
			}
			el := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				results = append(results, el)
				lastGoodOffset = dec.InputOffset() - int64(len(rootOpen))
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}

	if lastGoodOffset >= 0 {
		remaining := append([]byte(nil), obj.pending.Bytes()[lastGoodOffset:]...)
		obj.pending.Reset()
		obj.pending.Write(remaining)
	}

	return results, nil
}
