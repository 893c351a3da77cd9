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
	"os"

	"github.com/taky-project/taky/util/errwrap"
)

// Shutdown disconnects every client, closes every listening socket, and
// removes the management socket file. It must only be called once, after
// the Loop caller has stopped calling Loop. Every listener close, socket-file
// remove, and persistence-store close failure is aggregated rather than
// dropped, so the caller's exit code can reflect a dirty shutdown; errors
// closing individual client and management connections are discarded.
func (s *Server) Shutdown() error {
	for _, c := range s.clients {
		s.disconnectClient(c, "Server shutting down")
	}
	for _, m := range s.mgmts {
		s.disconnectMgmt(m)
	}

	var reterr error

	if s.srvListener != nil {
		if err := s.srvListener.Close(); err != nil {
			reterr = errwrap.Append(reterr, err)
		}
	}
	if s.monListener != nil {
		if err := s.monListener.Close(); err != nil {
			reterr = errwrap.Append(reterr, err)
		}
	}
	if s.mgmtListener != nil {
		if err := s.mgmtListener.Close(); err != nil {
			reterr = errwrap.Append(reterr, err)
		}
		if err := os.Remove(s.cfg.MgmtSocketPath()); err != nil && !os.IsNotExist(err) {
			reterr = errwrap.Append(reterr, err)
		}
	}

	if err := s.router.Persist.Close(); err != nil {
		reterr = errwrap.Append(reterr, err)
	}

	return reterr
}
