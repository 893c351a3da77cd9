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

// Package session holds per-connection state: the streaming XML deframer, an
// optionally-identified TAKUser, receive counters, the rotating transcript
// log, and the TLS handshake state. It implements router.Session.
package session

import (
	"crypto/x509"
	"fmt"
	"time"

	"github.com/taky-project/taky/internal/cot/model"
	"github.com/taky-project/taky/internal/cot/router"
	"github.com/taky-project/taky/internal/cot/xmlstream"
)

// TLSState is the handshake state of a session's connection.
type TLSState int

// The handshake state machine. Plaintext connections start and stay at
// Established; TLS connections start at Wait and move directly to
// Established once the handshake completes. The server never puts a
// connection in None or WaitTx.
const (
	TLSNone TLSState = iota
	TLSWait
	TLSWaitTx
	TLSEstablished
)

// pongUID and pongHow are the literal identity of a synthesized ping reply.
const (
	pongUID = "takPong"
	pongHow = "h-g-i-g-o"
	pongTTL = 20 * time.Second
)

// Router is the subset of *router.Router a Session needs, so this package
// does not need to import the concrete type for its zero-value uses.
type Router interface {
	Route(origin router.Session, ev *model.Event)
	SendPersist(s router.Session)
}

// Session is one connected client: anonymous until a TAKUser atom arrives
// identifying it, after which it carries that identity for its lifetime.
type Session struct {
	Logf func(format string, v ...interface{})

	// RemoteAddr is the peer's address, used for transcript naming and
	// the management status listing before identification.
	RemoteAddr string

	Monitor bool

	// PeerCert is the verified peer certificate, if client certificates
	// are in use.
	PeerCert *x509.Certificate

	ConnectedAt time.Time
	NumRx       int
	LastRx      time.Time

	TLS TLSState

	deframer *xmlstream.Deframer
	user     *model.TAKUser

	transcript *transcript

	// send is the outbound delivery callback, wired by the connection
	// layer to whatever actually writes bytes to the socket. Given as a
	// function rather than a buffer so this package stays free of any
	// I/O or framing concerns.
	send func(ev *model.Event)
}

// New builds an anonymous session for a freshly-accepted connection.
func New(remoteAddr string, monitor bool, send func(ev *model.Event)) *Session {
	return &Session{
		RemoteAddr:  remoteAddr,
		Monitor:     monitor,
		ConnectedAt: time.Now(),
		TLS:         TLSEstablished,
		deframer:    xmlstream.NewDeframer(),
		send:        send,
	}
}

func (s *Session) logf(format string, v ...interface{}) {
	if s.Logf != nil {
		s.Logf(format, v...)
	}
}

// UID implements router.Session.
func (s *Session) UID() (string, bool) {
	if s.user == nil {
		return "", false
	}
	return s.user.UID, true
}

// Group implements router.Session.
func (s *Session) Group() (model.Team, bool) {
	if s.user == nil {
		return "", false
	}
	return s.user.Group, true
}

// Callsign is an optional extension router.callsignOf looks for via a type
// assertion.
func (s *Session) Callsign() (string, bool) {
	if s.user == nil {
		return "", false
	}
	return s.user.Callsign, true
}

// IsMonitor implements router.Session.
func (s *Session) IsMonitor() bool {
	return s.Monitor
}

// Send implements router.Session. Sessions that have not completed a TLS
// handshake silently drop the send; nothing should be routed to them yet.
func (s *Session) Send(ev *model.Event) {
	if s.TLS != TLSEstablished {
		return
	}
	if s.send != nil {
		s.send(ev)
	}
}

// User returns the identified TAKUser, if any.
func (s *Session) User() (*model.TAKUser, bool) {
	if s.user == nil {
		return nil, false
	}
	return s.user, true
}

// transcriptName returns the <name> component of this session's transcript
// filename, per identification state.
func (s *Session) transcriptName() string {
	switch {
	case s.Monitor:
		return fmt.Sprintf("monitor-%s", s.RemoteAddr)
	case s.user != nil:
		return fmt.Sprintf("%s-%s", s.user.UID, s.user.Callsign)
	default:
		return fmt.Sprintf("anonymous-%s", s.RemoteAddr)
	}
}

// Feed hands newly-received bytes to the deframer, routes every yielded
// event through r, and appends each to the transcript. A *xmlstream.SyntaxError
// is connection-fatal and is returned unwrapped so the caller can disconnect.
func (s *Session) Feed(data []byte, r Router) error {
	elms, err := s.deframer.Feed(data)
	if err != nil {
		return err
	}

	for _, elm := range elms {
		s.NumRx++
		s.LastRx = time.Now()

		ev, err := model.FromElement(elm)
		if err != nil {
			s.logf("session %s: unable to parse element: %s", s.RemoteAddr, err)
			s.logTranscriptError(elm, err)
			continue
		}

		if s.handlePing(ev, r) {
			continue
		}

		s.installOrUpdateUser(ev, r)

		r.Route(s, ev)

		s.logTranscript(elm)
	}

	return nil
}

// handlePing intercepts t-x-c-t keepalives, replying with a synthesized
// pong addressed only to the sender. Pings are never logged to the
// transcript and never reach the general router.
func (s *Session) handlePing(ev *model.Event, r Router) bool {
	if ev.Etype != "t-x-c-t" {
		return false
	}
	now := time.Now()
	pong := &model.Event{
		Version: model.DefaultVersion,
		UID:     pongUID,
		Etype:   "t-x-c-t-r",
		How:     pongHow,
		Time:    now,
		Start:   now,
		Stale:   now.Add(pongTTL),
	}
	s.Send(pong)
	return true
}

// installOrUpdateUser handles atom events carrying a TAKUser detail:
// installs identity on first sight (triggering a persisted-state replay),
// or updates it in place on subsequent sightings for the same UID. A TAKUser
// for a different UID is ignored with a logged warning.
func (s *Session) installOrUpdateUser(ev *model.Event, r Router) {
	if s.Monitor || len(ev.Etype) == 0 || ev.Etype[0] != 'a' {
		return
	}
	u, ok := ev.Detail.(*model.TAKUser)
	if !ok {
		return
	}

	if s.user == nil {
		s.user = u
		r.SendPersist(s)
		return
	}
	if u.UID != s.user.UID {
		s.logf("session %s: ignoring TAKUser for %s, session is identified as %s", s.RemoteAddr, u.UID, s.user.UID)
		return
	}
	s.user.Update(u)
}
