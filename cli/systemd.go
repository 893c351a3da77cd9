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

package cli

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/coreos/go-systemd/v22/journal"
)

// journalWriter forwards log.Printf output to the systemd journal, at the
// notice level, when running under systemd. It falls back to being unused
// entirely (callers check journal.StderrIsJournalStream() first) rather than silently
// degrading output.
type journalWriter struct{}

func (journalWriter) Write(p []byte) (int, error) {
	if err := journal.Send(string(p), journal.PriNotice, nil); err != nil {
		return 0, err
	}
	return len(p), nil
}

// notifyReady tells the service manager the broker has finished Setup and
// is ready to accept connections. It is a no-op outside of systemd.
func notifyReady() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
}

// notifyStopping tells the service manager the broker has begun its
// shutdown sequence. It is a no-op outside of systemd.
func notifyStopping() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}

// watchdogPing starts pinging the service manager's watchdog at half its
// configured interval, for as long as ctx is alive. It returns immediately
// if no watchdog interval is configured (the common case outside of
// systemd, or when WatchdogSec isn't set in the unit file).
func watchdogPing(ctx context.Context, logf func(format string, v ...interface{})) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
					logf("systemd: watchdog notify error: %s", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
