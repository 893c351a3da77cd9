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

package session

import (
	"os"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/taky-project/taky/internal/cot/xmlnode"
	"github.com/taky-project/taky/util/semaphore"
)

// transcript is one session's append-only per-day CoT log. It opens lazily
// on first write and rotates when the wall-clock date changes.
type transcript struct {
	dir  string
	sem  *semaphore.Semaphore
	logf func(format string, v ...interface{})

	date string
	fp   *os.File

	disabled bool
}

// newTranscript builds a transcript writer rooted at dir, bounding open file
// handles across every live session with sem. An empty dir disables
// transcript logging entirely.
func newTranscript(dir string, sem *semaphore.Semaphore, logf func(format string, v ...interface{})) *transcript {
	return &transcript{dir: dir, sem: sem, logf: logf}
}

// EnableTranscript installs transcript logging on s, rooted at dir and
// bounded by sem. Called once per session by the connection layer after
// construction, when a log directory is configured.
func (s *Session) EnableTranscript(dir string, sem *semaphore.Semaphore) {
	if dir == "" {
		return
	}
	s.transcript = newTranscript(dir, sem, s.logf)
}

func (s *Session) logTranscript(elm *xmlnode.Element) {
	if s.transcript == nil {
		return
	}
	body, err := elm.Marshal()
	if err != nil {
		s.logf("session %s: unable to marshal transcript entry: %s", s.RemoteAddr, err)
		return
	}
	s.transcript.write(s.transcriptName(), body)
}

func (s *Session) logTranscriptError(elm *xmlnode.Element, parseErr error) {
	if s.transcript == nil {
		return
	}
	body, err := elm.Marshal()
	if err != nil {
		body = nil
	}
	entry := append([]byte("<!-- unmarshal error: "+parseErr.Error()+" -->\n"), body...)
	s.transcript.write(s.transcriptName(), entry)
}

// write appends body to today's file for name, rotating or opening as
// needed. Any I/O error disables this transcript for the rest of the
// session's lifetime, matching the fail-closed policy: a broken log must
// never take down the connection it is attached to.
func (t *transcript) write(name string, body []byte) {
	if t.disabled {
		return
	}

	today := time.Now().Format("2006-01-02")
	if t.fp == nil || t.date != today {
		if err := t.rotate(name, today); err != nil {
			t.logf("transcript: %s", err)
			t.disabled = true
			return
		}
	}

	if _, err := t.fp.Write(body); err != nil {
		t.logf("transcript: write error: %s", err)
		t.close()
		t.disabled = true
		return
	}
	if _, err := t.fp.Write([]byte("\n")); err != nil {
		t.logf("transcript: write error: %s", err)
		t.close()
		t.disabled = true
	}
}

func (t *transcript) rotate(name, today string) error {
	t.close()

	filename := today + "-" + name + ".cot"
	path, err := securejoin.SecureJoin(t.dir, filename)
	if err != nil {
		return err
	}

	if t.sem != nil {
		if err := t.sem.P(1); err != nil {
			return err
		}
	}

	fp, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		if t.sem != nil {
			t.sem.V(1)
		}
		return err
	}

	t.fp = fp
	t.date = today
	return nil
}

func (t *transcript) close() {
	if t.fp == nil {
		return
	}
	t.fp.Close()
	t.fp = nil
	if t.sem != nil {
		t.sem.V(1)
	}
}

// Close releases the session's transcript file handle, if open.
func (s *Session) Close() {
	if s.transcript != nil {
		s.transcript.close()
	}
}
