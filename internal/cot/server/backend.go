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

package server

import (
	"fmt"
	"math/big"
	"time"

	"github.com/taky-project/taky/internal/cot/certdb"
	"github.com/taky-project/taky/internal/cot/mgmt"
)

// taykVersion is reported in status replies.
const taykVersion = "taky-go"

// backend adapts *Server to mgmt.Backend. It is declared as a distinct named
// type over Server, rather than a wrapper struct, so its methods can live
// alongside the rest of the connection-layer code without widening Server's
// own exported method set.
type backend Server

func (b *backend) server() *Server {
	return (*Server)(b)
}

// Status implements mgmt.Backend.
func (b *backend) Status() mgmt.StatusResponse {
	s := b.server()
	clients := make([]mgmt.ClientStatus, 0, len(s.clients))
	for _, c := range s.clients {
		if c.sess.Monitor {
			continue
		}
		cs := mgmt.ClientStatus{
			Connected: c.sess.ConnectedAt.Unix(),
			NumRx:     c.sess.NumRx,
			IP:        c.sess.RemoteAddr,
			Anonymous: true,
		}
		if !c.sess.LastRx.IsZero() {
			cs.LastRx = c.sess.LastRx.Unix()
		}
		if u, ok := c.sess.User(); ok {
			cs.Anonymous = false
			cs.UID = u.UID
			cs.Callsign = u.Callsign
			cs.Group = string(u.Group)
			cs.Battery = u.Battery
			cs.Device = u.Device.Device
			cs.OS = u.Device.OS
			cs.Version = u.Device.Version
			cs.Platform = u.Device.Platform
		}
		clients = append(clients, cs)
	}

	return mgmt.StatusResponse{
		Version:    taykVersion,
		Uptime:     time.Since(s.started).Seconds(),
		NumClients: s.router.NumClients(),
		Clients:    clients,
	}
}

// PurgePersist implements mgmt.Backend.
func (b *backend) PurgePersist() int {
	s := b.server()
	return s.router.Persist.Purge()
}

// KickBan implements mgmt.Backend: it revokes every valid certificate whose
// CommonName equals user, then disconnects any live session whose peer
// certificate carries one of the newly-revoked serials.
func (b *backend) KickBan(user string) ([]*big.Int, error) {
	s := b.server()
	if s.certDB == nil {
		return nil, fmt.Errorf("server: kickban requires client certificates to be enabled")
	}

	var revoked []*big.Int
	now := time.Now()
	for _, rec := range s.certDB.ByName(user) {
		if rec.Status != certdb.StatusValid {
			continue
		}
		if err := s.certDB.RevokeCertificate(rec.Serial, now); err != nil {
			return revoked, err
		}
		revoked = append(revoked, rec.Serial)
		s.metricsRevokedCert()
	}

	for _, c := range s.clients {
		if c.peerCert == nil {
			continue
		}
		for _, serial := range revoked {
			if c.peerCert.SerialNumber.Cmp(serial) == 0 {
				s.disconnectClient(c, "Banned")
				break
			}
		}
	}

	return revoked, nil
}
