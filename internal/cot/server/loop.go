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
	"crypto/tls"
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/taky-project/taky/internal/cot/mgmt"
	"github.com/taky-project/taky/internal/cot/session"
	"github.com/taky-project/taky/internal/cot/xmlstream"
)

const recvBufSize = 4096

// Loop runs exactly one iteration of the readiness-driven event loop:
// build the fd sets, select, then process exceptional, readable, and
// writable sockets in that order, prune the persistence store, and prune
// any session stuck in a TLS handshake past its timeout.
func (s *Server) Loop() error {
	readFDs, writeFDs, exceptFDs := s.fdSets()

	rd, wr, ex, err := selectReady(readFDs, writeFDs, exceptFDs, loopTimeout)
	if err != nil {
		return err
	}

	for _, fd := range ex {
		if fd == s.srvFD || fd == s.mgmtFD || (s.monListener != nil && fd == s.monFD) {
			return errors.New("server: listening socket exceptional condition")
		}
		if c, ok := s.clients[fd]; ok {
			s.disconnectClient(c, "Exceptional condition")
		}
	}

	for _, fd := range rd {
		switch fd {
		case s.srvFD:
			s.acceptCOT(s.srvListener, false)
		case s.monFD:
			if s.monListener != nil {
				s.acceptCOT(s.monListener, true)
			}
		case s.mgmtFD:
			s.acceptMgmt()
		default:
			if c, ok := s.clients[fd]; ok {
				s.clientReadable(c)
			} else if m, ok := s.mgmts[fd]; ok {
				s.mgmtReadable(m)
			}
		}
	}

	for _, fd := range wr {
		if c, ok := s.clients[fd]; ok {
			s.clientWritable(c)
		} else if m, ok := s.mgmts[fd]; ok {
			s.mgmtWritable(m)
		}
	}

	s.router.Prune()
	s.pruneHandshakeTimeouts()

	return nil
}

func (s *Server) fdSets() (read, write, except []int) {
	read = append(read, s.srvFD, s.mgmtFD)
	if s.monListener != nil {
		read = append(read, s.monFD)
	}
	except = append(except, read...)

	for fd, c := range s.clients {
		read = append(read, fd)
		except = append(except, fd)
		if c.sess.TLS != session.TLSEstablished || c.out.Len() > 0 {
			write = append(write, fd)
		}
	}
	for fd, m := range s.mgmts {
		read = append(read, fd)
		except = append(except, fd)
		if m.out.Len() > 0 {
			write = append(write, fd)
		}
	}
	return read, write, except
}

func (s *Server) acceptCOT(ln net.Listener, forceTCP bool) {
	conn, err := ln.Accept()
	if err != nil {
		s.logf("server: accept error: %s", err)
		return
	}

	fd, err := clientFD(conn)
	if err != nil {
		s.logf("server: %s", err)
		_ = conn.Close()
		return
	}

	remoteAddr := conn.RemoteAddr().String()
	c := &clientConn{conn: conn, fd: fd, id: uuid.NewString(), connectedAt: time.Now()}

	useTLS := s.tlsCfg != nil && !forceTCP
	c.sess = s.newSession(remoteAddr, forceTCP, c)
	if useTLS {
		c.tlsConn = tls.Server(conn, s.tlsCfg)
		c.sess.TLS = session.TLSWait
	}

	s.router.Add(c.sess)
	if forceTCP {
		// monitor sessions never identify, so they get the snapshot on connect
		s.router.SendPersist(c.sess)
	}
	s.clients[fd] = c
	s.metricsConnOpened("cot")
	s.logf("New %s client from %s [%s]", connKind(useTLS), remoteAddr, c.id)
}

func (s *Server) acceptMgmt() {
	conn, err := s.mgmtListener.Accept()
	if err != nil {
		s.logf("server: mgmt accept error: %s", err)
		return
	}
	fd, err := clientFD(conn)
	if err != nil {
		s.logf("server: %s", err)
		_ = conn.Close()
		return
	}
	m := &mgmtConn{
		conn: conn,
		fd:   fd,
		handler: &mgmt.Handler{
			Logf:    s.Logf,
			Backend: (*backend)(s),
		},
	}
	s.mgmts[fd] = m
	s.logf("New management client")
}

func (s *Server) clientReadable(c *clientConn) {
	if c.tlsConn != nil && c.sess.TLS != session.TLSEstablished {
		established, err := c.stepHandshake()
		if err != nil {
			s.disconnectClient(c, "SSL Handshake failed")
			return
		}
		if !established {
			return
		}
	}

	buf := make([]byte, recvBufSize)
	n, err := c.netConn().Read(buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.disconnectClient(c, "Client disconnected")
			return
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return
		}
		s.disconnectClient(c, "Socket read error")
		return
	}
	if n == 0 {
		s.disconnectClient(c, "Client disconnected")
		return
	}

	before := c.sess.NumRx
	if err := c.sess.Feed(buf[:n], s.router); err != nil {
		var syn *xmlstream.SyntaxError
		if errors.As(err, &syn) {
			s.disconnectClient(c, "XML Syntax Error")
			return
		}
		s.disconnectClient(c, "Socket read error")
		return
	}
	for i := before; i < c.sess.NumRx; i++ {
		s.metricsEventRouted()
	}
}

func (s *Server) clientWritable(c *clientConn) {
	if c.tlsConn != nil && c.sess.TLS != session.TLSEstablished {
		established, err := c.stepHandshake()
		if err != nil {
			s.disconnectClient(c, "SSL Handshake failed")
			return
		}
		if !established {
			return
		}
	}
	if c.out.Len() == 0 {
		return
	}
	n, err := c.netConn().Write(c.out.Bytes())
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return
		}
		s.disconnectClient(c, "Socket write error")
		return
	}
	c.out.Next(n)
}

func (s *Server) mgmtReadable(m *mgmtConn) {
	buf := make([]byte, recvBufSize)
	n, err := m.conn.Read(buf)
	if err != nil || n == 0 {
		s.disconnectMgmt(m)
		return
	}
	resp, err := m.handler.Feed(buf[:n])
	if err != nil {
		s.disconnectMgmt(m)
		return
	}
	m.out.Write(resp)
}

func (s *Server) mgmtWritable(m *mgmtConn) {
	if m.out.Len() == 0 {
		return
	}
	n, err := m.conn.Write(m.out.Bytes())
	if err != nil {
		s.disconnectMgmt(m)
		return
	}
	m.out.Next(n)
}

func (s *Server) pruneHandshakeTimeouts() {
	now := time.Now()
	for _, c := range s.clients {
		if c.tlsConn != nil && c.sess.TLS != session.TLSEstablished && now.Sub(c.connectedAt) > handshakeTimeout {
			s.disconnectClient(c, "SSL Handshake timeout")
		}
	}
}

func (s *Server) disconnectClient(c *clientConn, reason string) {
	s.logf("Disconnecting client %s [%s]: %s", c.sess.RemoteAddr, c.id, reason)
	s.router.Remove(c.sess)
	c.sess.Close()
	_ = c.netConn().Close()
	delete(s.clients, c.fd)
	s.metricsConnClosed("cot")
}

func (s *Server) disconnectMgmt(m *mgmtConn) {
	_ = m.conn.Close()
	delete(s.mgmts, m.fd)
}

func connKind(tlsOn bool) string {
	if tlsOn {
		return "ssl"
	}
	return "tcp"
}
