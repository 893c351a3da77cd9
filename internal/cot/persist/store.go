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

// Package persist is the TTL-indexed store of the latest "sticky" event per
// UID, so that newly connecting clients can be given a coherent world view.
package persist

import (
	"strings"

	"github.com/taky-project/taky/internal/cot/model"
)

// keptPrefixes are the etype prefixes that make an event worth persisting.
var keptPrefixes = []string{"a-", "b-m-p", "b-r-f-h-c", "u-d-c", "u-d-r", "u-d-f"}

// Kept reports whether ev's type is one of the prefixes this store tracks.
func Kept(ev *model.Event) bool {
	for _, p := range keptPrefixes {
		if strings.HasPrefix(ev.Etype, p) {
			return true
		}
	}
	return false
}

// Store is the persistence backend contract. Implementations MUST degrade
// gracefully: a transient backend outage is logged once and treated as an
// empty store rather than propagated to callers.
type Store interface {
	// Track persists ev if it is a kept type and its TTL, relative to
	// now, is positive. It is a no-op otherwise.
	Track(ev *model.Event)

	// Exists reports whether uid has a live persisted event.
	Exists(uid string) bool

	// Get returns the persisted event for uid, if any.
	Get(uid string) (*model.Event, bool)

	// All returns every live persisted event. Order is unspecified.
	All() []*model.Event

	// Prune removes expired entries. Backends with native per-key expiry
	// may make this a no-op.
	Prune()

	// Purge clears the store and returns the number of entries removed.
	Purge() int

	// Close releases any resources held by the backend.
	Close() error
}
