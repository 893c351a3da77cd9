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

// Package router holds the connected-session registry and the policy that
// maps an (origin, event) pair to a destination set.
package router

import (
	"time"

	"github.com/taky-project/taky/internal/cot/model"
	"github.com/taky-project/taky/internal/cot/persist"

	"golang.org/x/time/rate"
)

// Session is the subset of connection-layer session state the router needs.
// The real implementation lives in package session; this interface keeps
// the router decoupled from socket/TLS/transcript concerns.
type Session interface {
	// UID returns the identified user's UID, and whether the session is
	// identified at all.
	UID() (string, bool)

	// Group returns the identified user's team, and whether the session
	// is identified at all.
	Group() (model.Team, bool)

	// IsMonitor reports whether this is a read-only monitor session.
	IsMonitor() bool

	// Send enqueues ev for delivery to this session. Sessions that are
	// not yet TLS-established silently drop the send.
	Send(ev *model.Event)
}

// Router owns the live session set and the persistence store.
type Router struct {
	Logf func(format string, v ...interface{})

	Persist       persist.Store
	MaxPersistTTL time.Duration // -1 disables the clamp

	sessions map[Session]struct{}
	pruneLim *rate.Limiter
}

// New builds a Router backed by store, with team/broadcast/marti routing
// and the given persisted-event TTL clamp (negative disables it).
func New(store persist.Store, maxPersistTTL time.Duration) *Router {
	return &Router{
		Persist:       store,
		MaxPersistTTL: maxPersistTTL,
		sessions:      make(map[Session]struct{}),
		// the distilled prune-rate-limit contract: at most once per 10s
		pruneLim: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

func (r *Router) logf(format string, v ...interface{}) {
	if r.Logf != nil {
		r.Logf(format, v...)
	}
}

// Add registers a newly-connected session.
func (r *Router) Add(s Session) {
	r.sessions[s] = struct{}{}
}

// Remove unregisters a disconnected session.
func (r *Router) Remove(s Session) {
	delete(r.sessions, s)
}

// NumClients returns the count of registered non-monitor sessions.
func (r *Router) NumClients() int {
	n := 0
	for s := range r.sessions {
		if !s.IsMonitor() {
			n++
		}
	}
	return n
}

// Prune asks the persistence backend to evict expired entries, no more
// often than once every 10 seconds.
func (r *Router) Prune() {
	if r.pruneLim.Allow() {
		r.Persist.Prune()
	}
}

// SendPersist delivers every live persisted event to session, skipping any
// event whose UID equals the session's own identified UID (avoids echo).
func (r *Router) SendPersist(s Session) {
	selfUID, _ := s.UID()
	for _, ev := range r.Persist.All() {
		if selfUID != "" && ev.UID == selfUID {
			continue
		}
		s.Send(ev)
	}
}

// Route dispatches ev, originated by origin, to the correct destination
// set, per the decision tree: GeoChat routing first, then non-empty marti,
// else broadcast-and-persist.
func (r *Router) Route(origin Session, ev *model.Event) {
	if gc, ok := ev.Detail.(*model.GeoChat); ok {
		r.routeGeoChat(origin, ev, gc)
		return
	}

	if ev.Detail != nil && ev.Detail.HasMarti() {
		r.routeMarti(ev, ev.Detail.Marti())
		return
	}

	r.clampTTL(ev)
	r.Persist.Track(ev)
	r.broadcast(origin, ev)
}

func (r *Router) routeGeoChat(origin Session, ev *model.Event, gc *model.GeoChat) {
	switch {
	case gc.Broadcast:
		r.broadcast(origin, ev)
	case gc.DstTeam != "":
		for s := range r.sessions {
			if s == origin {
				continue
			}
			if grp, ok := s.Group(); ok && grp == gc.DstTeam {
				s.Send(ev)
			}
		}
	default:
		for s := range r.sessions {
			if uid, ok := s.UID(); ok && uid == gc.DstUID {
				s.Send(ev)
			}
		}
	}
}

// routeMarti delivers ev to every session resolved from dests, preferring a
// UID match over a callsign match per destination entry. Unresolved
// destinations are silently dropped, never broadcast.
func (r *Router) routeMarti(ev *model.Event, dests []model.MartiDest) {
	for _, dest := range dests {
		sent := false
		if dest.UID != "" {
			for s := range r.sessions {
				if uid, ok := s.UID(); ok && uid == dest.UID {
					s.Send(ev)
					sent = true
				}
			}
		}
		if !sent && dest.Callsign != "" {
			for s := range r.sessions {
				if cs, ok := r.callsignOf(s); ok && cs == dest.Callsign {
					s.Send(ev)
				}
			}
		}
	}
}

// callsignOf extracts the identified callsign from a session, if any. This
// requires a small type assertion escape hatch since Session only exposes
// UID/Group; concrete sessions also implement Callsign() (string, bool).
func (r *Router) callsignOf(s Session) (string, bool) {
	if cs, ok := s.(interface{ Callsign() (string, bool) }); ok {
		return cs.Callsign()
	}
	return "", false
}

func (r *Router) broadcast(origin Session, ev *model.Event) {
	for s := range r.sessions {
		if s == origin {
			continue
		}
		s.Send(ev)
	}
}

func (r *Router) clampTTL(ev *model.Event) {
	if r.MaxPersistTTL < 0 {
		return
	}
	ev.ClampStale(time.Now(), r.MaxPersistTTL)
}
