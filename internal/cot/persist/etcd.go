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
	"context"
	"fmt"
	"time"

	"github.com/taky-project/taky/internal/cot/model"
	"github.com/taky-project/taky/internal/cot/xmlnode"
	"github.com/taky-project/taky/internal/cot/xmlstream"
	"github.com/taky-project/taky/util/errwrap"

	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/namespace"
)

// Etcd is the external key/value Store backend, substituting for a Redis
// connection: no example in this corpus depends on a Redis client, so this
// backend uses go.etcd.io/etcd/client/v3 leases for the same per-key
// TTL-expiry semantics. Keys live under "persist/<uid>" inside the caller's
// namespace (typically "taky/<site>/").
type Etcd struct {
	Logf func(format string, v ...interface{})

	client *etcd.Client
	kv     etcd.KV

	backendOK bool // latch: logs exactly once on each transition
}

// NewEtcd connects to the given seed endpoints under the given namespace
// prefix (e.g. "taky/example.com/").
func NewEtcd(seeds []string, ns string) (*Etcd, error) {
	cfg := etcd.Config{
		Endpoints:   seeds,
		DialTimeout: 5 * time.Second,
	}
	client, err := etcd.New(cfg)
	if err != nil {
		return nil, errwrap.Wrapf(err, "etcd persistence: client connect error")
	}
	kv := etcd.KV(client.KV)
	if ns != "" {
		kv = namespace.NewKV(client.KV, ns)
	}
	return &Etcd{client: client, kv: kv, backendOK: true}, nil
}

func (e *Etcd) logf(format string, v ...interface{}) {
	if e.Logf != nil {
		e.Logf(format, v...)
	}
}

// latch records a backend outcome, logging exactly once at each ok/not-ok
// transition.
func (e *Etcd) latch(ok bool) {
	if ok == e.backendOK {
		return
	}
	e.backendOK = ok
	if ok {
		e.logf("persist: connection to etcd restored")
	} else {
		e.logf("persist: lost connection to etcd")
	}
}

func persistKey(uid string) string {
	return "persist/" + uid
}

// Track implements Store.
func (e *Etcd) Track(ev *model.Event) {
	if !Kept(ev) {
		return
	}
	ttl := ev.TTL(time.Now())
	if ttl <= 0 {
		return
	}

	elm, err := ev.AsElement()
	if err != nil {
		e.latch(false)
		return
	}
	body, err := elm.Marshal()
	if err != nil {
		e.latch(false)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	leaseSeconds := int64(ttl.Round(time.Second).Seconds())
	if leaseSeconds < 1 {
		leaseSeconds = 1
	}
	lease, err := e.client.Grant(ctx, leaseSeconds)
	if err != nil {
		e.latch(false)
		return
	}
	if _, err := e.kv.Put(ctx, persistKey(ev.UID), string(body), etcd.WithLease(lease.ID)); err != nil {
		e.latch(false)
		return
	}
	e.latch(true)
}

// Exists implements Store.
func (e *Etcd) Exists(uid string) bool {
	_, ok := e.Get(uid)
	return ok
}

// Get implements Store.
func (e *Etcd) Get(uid string) (*model.Event, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := e.kv.Get(ctx, persistKey(uid))
	if err != nil {
		e.latch(false)
		return nil, false
	}
	e.latch(true)
	if len(resp.Kvs) == 0 {
		return nil, false
	}
	ev, err := decodeStoredEvent(resp.Kvs[0].Value)
	if err != nil {
		// purge the unparseable entry, matching the distilled spec's
		// "skip and purge" contract for All()
		e.deleteKey(persistKey(uid))
		return nil, false
	}
	return ev, true
}

// All implements Store.
func (e *Etcd) All() []*model.Event {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := e.kv.Get(ctx, "persist/", etcd.WithPrefix())
	if err != nil {
		e.latch(false)
		return nil
	}
	e.latch(true)

	out := make([]*model.Event, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		ev, err := decodeStoredEvent(kv.Value)
		if err != nil {
			e.deleteKey(string(kv.Key))
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Prune is a no-op: etcd leases expire entries natively.
func (e *Etcd) Prune() {}

// Purge implements Store.
func (e *Etcd) Purge() int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := e.kv.Delete(ctx, "persist/", etcd.WithPrefix())
	if err != nil {
		e.latch(false)
		return 0
	}
	e.latch(true)
	return int(resp.Deleted)
}

// Close implements Store.
func (e *Etcd) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

func (e *Etcd) deleteKey(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _ = e.kv.Delete(ctx, key)
}

func decodeStoredEvent(body []byte) (*model.Event, error) {
	el, err := parseStoredElement(body)
	if err != nil {
		return nil, fmt.Errorf("persist: corrupt stored event: %w", err)
	}
	return model.FromElement(el)
}

// parseStoredElement re-parses a single marshaled <event> element using the
// same streaming primitive the connection layer uses for live traffic.
func parseStoredElement(body []byte) (*xmlnode.Element, error) {
	d := xmlstream.NewDeframer()
	events, err := d.Feed(body)
	if err != nil {
		return nil, err
	}
	if len(events) != 1 {
		return nil, fmt.Errorf("expected exactly one stored event, got %d", len(events))
	}
	return events[0], nil
}
