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

// Package server drives the single non-blocking readiness loop that owns
// every socket in the process: the CoT listener (TCP or TLS), the optional
// plaintext monitor listener, the management UNIX-socket listener, and all
// accepted client connections. It is the only place select() is called.
package server

import (
	"bufio"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"syscall"
	"time"

	errwrap "github.com/pkg/errors"

	"github.com/taky-project/taky/internal/cot/certdb"
	"github.com/taky-project/taky/internal/cot/model"
	"github.com/taky-project/taky/internal/cot/persist"
	"github.com/taky-project/taky/internal/cot/router"
	"github.com/taky-project/taky/internal/cot/session"
	"github.com/taky-project/taky/internal/config"
	"github.com/taky-project/taky/util/semaphore"
)

// loopTimeout bounds each select() call, matching the reference loop's 1
// second readiness-wait suspension point.
const loopTimeout = 1 * time.Second

// maxTranscriptHandles bounds concurrently open transcript files across
// every live session, so a burst of new connections cannot exhaust file
// descriptors.
const maxTranscriptHandles = 256

// Metrics is the optional instrumentation hook; a nil Metrics is always
// safe to call through (see the no-op methods on *Server below).
type Metrics interface {
	ConnOpened(kind string)
	ConnClosed(kind string)
	EventRouted()
	RevokedCert()
}

// Server owns every socket and the router/cert-db it feeds.
type Server struct {
	Logf    func(format string, v ...interface{})
	Metrics Metrics

	cfg    *config.Config
	router *router.Router
	certDB *certdb.DB
	tlsCfg *tls.Config

	srvListener  net.Listener
	monListener  net.Listener
	mgmtListener net.Listener

	srvFD  int
	monFD  int
	mgmtFD int

	clients map[int]*clientConn
	mgmts   map[int]*mgmtConn

	transcriptSem *semaphore.Semaphore

	started time.Time
}

// New builds a Server around an already-loaded config, persistence store,
// and certificate database.
func New(cfg *config.Config, store persist.Store, certDB *certdb.DB) *Server {
	maxTTL := time.Duration(cfg.CotServer.MaxPersistTTL) * time.Second
	if cfg.CotServer.MaxPersistTTL < 0 {
		maxTTL = -1
	}
	return &Server{
		cfg:           cfg,
		router:        router.New(store, maxTTL),
		certDB:        certDB,
		clients:       make(map[int]*clientConn),
		mgmts:         make(map[int]*mgmtConn),
		transcriptSem: semaphore.NewSemaphore(maxTranscriptHandles),
	}
}

func (s *Server) logf(format string, v ...interface{}) {
	if s.Logf != nil {
		s.Logf(format, v...)
	}
}

func (s *Server) metricsConnOpened(kind string) {
	if s.Metrics != nil {
		s.Metrics.ConnOpened(kind)
	}
}
func (s *Server) metricsConnClosed(kind string) {
	if s.Metrics != nil {
		s.Metrics.ConnClosed(kind)
	}
}
func (s *Server) metricsEventRouted() {
	if s.Metrics != nil {
		s.Metrics.EventRouted()
	}
}
func (s *Server) metricsRevokedCert() {
	if s.Metrics != nil {
		s.Metrics.RevokedCert()
	}
}

// Setup builds every listening socket: the management UNIX socket (failing
// if another instance answers a ping on an existing socket file, otherwise
// removing that stale file first), the optional TLS context, the CoT server
// socket, and the optional plaintext monitor socket.
func (s *Server) Setup() error {
	s.started = time.Now()

	mgmtPath := s.cfg.MgmtSocketPath()
	if _, err := os.Stat(mgmtPath); err == nil {
		if conn, err := net.DialTimeout("unix", mgmtPath, time.Second); err == nil {
			_ = conn.SetDeadline(time.Now().Add(time.Second))
			_, _ = conn.Write([]byte(`{"cmd":"ping"}` + "\x00"))
			reply, rerr := bufio.NewReader(conn).ReadBytes(0)
			_ = conn.Close()
			if rerr == nil && json.Valid(reply[:len(reply)-1]) {
				return fmt.Errorf("server: mgmt socket %s is in use by a running instance", mgmtPath)
			}
		}
		if err := os.Remove(mgmtPath); err != nil {
			return errwrap.Wrapf(err, "server: unable to remove stale mgmt socket")
		}
	}
	mgmtLn, err := net.Listen("unix", mgmtPath)
	if err != nil {
		return errwrap.Wrapf(err, "server: unable to bind mgmt socket")
	}
	s.mgmtListener = mgmtLn
	if err := os.Chmod(mgmtPath, 0o600); err != nil {
		return errwrap.Wrapf(err, "server: unable to set mgmt socket mode")
	}
	if s.mgmtFD, err = listenerFD(mgmtLn); err != nil {
		return err
	}

	if s.cfg.SSL.Enabled {
		tlsCfg, err := s.buildTLSConfig()
		if err != nil {
			return err
		}
		s.tlsCfg = tlsCfg
	}

	bindAddr := net.JoinHostPort(s.cfg.Taky.BindIP, strconv.Itoa(s.cfg.CotServer.Port))
	srvLn, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return errwrap.Wrapf(err, "server: unable to bind cot_server.port")
	}
	s.srvListener = srvLn
	if s.srvFD, err = listenerFD(srvLn); err != nil {
		return err
	}
	s.logf("Listening for cot on %s", bindAddr)

	if s.tlsCfg != nil && s.cfg.CotServer.MonIP != "" {
		monAddr := net.JoinHostPort(s.cfg.CotServer.MonIP, strconv.Itoa(s.cfg.CotServer.MonPort))
		monLn, err := net.Listen("tcp", monAddr)
		if err != nil {
			return errwrap.Wrapf(err, "server: unable to bind monitor socket")
		}
		s.monListener = monLn
		if s.monFD, err = listenerFD(monLn); err != nil {
			return err
		}
		s.logf("Monitor listening for tcp on %s", monAddr)
	}

	return nil
}

// listenerFD extracts the raw fd backing ln, for inclusion in the select
// fd sets; *net.TCPListener and *net.UnixListener both implement
// syscall.Conn.
func listenerFD(ln net.Listener) (int, error) {
	sc, ok := ln.(syscall.Conn)
	if !ok {
		return -1, fmt.Errorf("server: listener does not expose a raw fd")
	}
	return rawFD(sc)
}

func clientFD(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1, fmt.Errorf("server: connection does not expose a raw fd")
	}
	return rawFD(sc)
}

func (s *Server) buildTLSConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(s.cfg.SSL.Cert, s.cfg.SSL.Key)
	if err != nil {
		return nil, errwrap.Wrapf(err, "server: unable to load ssl.cert/ssl.key")
	}

	clientAuth := tls.RequestClientCert
	if s.cfg.SSL.ClientCertRequired {
		clientAuth = tls.RequireAndVerifyClientCert
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   clientAuth,
	}

	if s.cfg.SSL.CA != "" {
		pem, err := os.ReadFile(s.cfg.SSL.CA)
		if err != nil {
			return nil, errwrap.Wrapf(err, "server: unable to read ssl.ca")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("server: no certificates found in ssl.ca")
		}
		cfg.ClientCAs = pool
	}

	return cfg, nil
}

// newSession wires a freshly-built *session.Session so its outbound sends
// land in c's buffer, and enables transcript logging if configured.
func (s *Server) newSession(remoteAddr string, monitor bool, c *clientConn) *session.Session {
	sess := session.New(remoteAddr, monitor, func(ev *model.Event) { c.sendEvent(ev) })
	sess.Logf = s.Logf
	if s.cfg.CotServer.LogCot != "" {
		sess.EnableTranscript(s.cfg.CotServer.LogCot, s.transcriptSem)
	}
	return sess
}
