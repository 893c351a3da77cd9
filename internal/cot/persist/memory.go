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

package persist

import (
	"time"

	"github.com/taky-project/taky/internal/cot/model"
)

// Memory is the in-memory Store backend: a plain map keyed by UID. It is
// only ever touched from the connection layer's loop goroutine, so it needs
// no lock (see the concurrency model).
type Memory struct {
	entries map[string]*model.Event
	Now     func() time.Time // overridable for tests; defaults to time.Now
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*model.Event),
		Now:     time.Now,
	}
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Track implements Store.
func (m *Memory) Track(ev *model.Event) {
	if !Kept(ev) {
		return
	}
	if ev.TTL(m.now()) <= 0 {
		return
	}
	m.entries[ev.UID] = ev
}

// Exists implements Store.
func (m *Memory) Exists(uid string) bool {
	ev, ok := m.entries[uid]
	if !ok {
		return false
	}
	if ev.TTL(m.now()) <= 0 {
		delete(m.entries, uid)
		return false
	}
	return true
}

// Get implements Store.
func (m *Memory) Get(uid string) (*model.Event, bool) {
	ev, ok := m.entries[uid]
	if !ok {
		return nil, false
	}
	if ev.TTL(m.now()) <= 0 {
		delete(m.entries, uid)
		return nil, false
	}
	return ev, true
}

// All implements Store. Expired entries encountered during the scan are
// purged as a side effect.
func (m *Memory) All() []*model.Event {
	now := m.now()
	out := make([]*model.Event, 0, len(m.entries))
	for uid, ev := range m.entries {
		if ev.TTL(now) <= 0 {
			delete(m.entries, uid)
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Prune implements Store: a linear scan removing anything whose TTL has
// passed.
func (m *Memory) Prune() {
	now := m.now()
	for uid, ev := range m.entries {
		if ev.TTL(now) <= 0 {
			delete(m.entries, uid)
		}
	}
}

// Purge implements Store.
func (m *Memory) Purge() int {
	n := len(m.entries)
	m.entries = make(map[string]*model.Event)
	return n
}

// Close implements Store; the in-memory backend holds no external resource.
func (m *Memory) Close() error {
	return nil
}
