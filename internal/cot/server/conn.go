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
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"net"
	"syscall"
	"time"

	"github.com/google/uuid"
	errwrap "github.com/pkg/errors"

	"github.com/taky-project/taky/internal/cot/mgmt"
	"github.com/taky-project/taky/internal/cot/model"
	"github.com/taky-project/taky/internal/cot/session"
)

// handshakeProbe is how long each cooperative Handshake() attempt is given
// before it is treated as "still waiting for readiness", matching the
// select-driven scheduling model: a blocking crypto/tls.Handshake call is
// never allowed to stall the loop.
const handshakeProbe = 1 * time.Millisecond

// handshakeTimeout disconnects a session that never completes its TLS
// handshake within this window of being accepted.
const handshakeTimeout = 10 * time.Second

func rawFD(conn syscall.Conn) (int, error) {
	sc, err := conn.SyscallConn()
	if err != nil {
		return -1, errwrap.Wrapf(err, "server: unable to obtain raw fd")
	}
	var fd int
	ctrlErr := sc.Control(func(f uintptr) { fd = int(f) })
	if ctrlErr != nil {
		return -1, errwrap.Wrapf(ctrlErr, "server: unable to obtain raw fd")
	}
	return fd, err
}

// clientConn is one accepted CoT session's connection-layer state: the
// socket, its raw fd (for select), the optional TLS wrapper and handshake
// progress, and the outbound byte buffer that absorbs backpressure when a
// peer is a slow reader.
type clientConn struct {
	conn net.Conn
	fd   int

	// id is a per-connection correlation identifier for log lines, freshly
	// generated on every accept so a reconnecting peer's distinct
	// connections from the same remote address can be told apart.
	id string

	tlsConn *tls.Conn

	sess *session.Session

	connectedAt time.Time
	out         bytes.Buffer

	// peerCert is filled in once the TLS handshake completes with a
	// client certificate, used by kickban to match live sessions against
	// newly-revoked serials.
	peerCert *x509.Certificate
}

func (c *clientConn) sendEvent(ev *model.Event) {
	elm, err := ev.AsElement()
	if err != nil {
		return
	}
	body, err := elm.Marshal()
	if err != nil {
		return
	}
	c.out.Write(body)
}

func (c *clientConn) netConn() net.Conn {
	if c.tlsConn != nil {
		return c.tlsConn
	}
	return c.conn
}

// stepHandshake advances a pending TLS handshake by one cooperative probe.
// It returns (established, err). A timeout from the probe means "still
// waiting for readiness" and is not an error.
func (c *clientConn) stepHandshake() (bool, error) {
	_ = c.tlsConn.SetDeadline(time.Now().Add(handshakeProbe))
	err := c.tlsConn.Handshake()
	if err == nil {
		if state := c.tlsConn.ConnectionState(); len(state.PeerCertificates) > 0 {
			c.peerCert = state.PeerCertificates[0]
		}
		_ = c.tlsConn.SetDeadline(time.Time{})
		c.sess.TLS = session.TLSEstablished
		return true, nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return false, nil
	}
	return false, err
}

// mgmtConn is one accepted management-socket connection: a raw UNIX socket
// feeding a mgmt.Handler, with its own outbound buffer.
type mgmtConn struct {
	conn    net.Conn
	fd      int
	handler *mgmt.Handler
	out     bytes.Buffer
}
