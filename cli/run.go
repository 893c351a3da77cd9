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
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/coreos/go-systemd/v22/journal"

	cliUtil "github.com/taky-project/taky/cli/util"
	"github.com/taky-project/taky/internal/config"
	"github.com/taky-project/taky/internal/cot/certdb"
	"github.com/taky-project/taky/internal/cot/persist"
	"github.com/taky-project/taky/internal/cot/server"
	"github.com/taky-project/taky/internal/metrics"
	"github.com/taky-project/taky/util/errwrap"
)

// RunServer loads the broker's configuration and runs it until an interrupt
// or terminate signal arrives. It is what runs when no administrative
// subcommand was given on the command line.
func RunServer(ctx context.Context, data *cliUtil.Data, args *Args) error {
	cliUtil.Hello(data.Program, data.Version, data.Debug) // say hello!
	defer log.Printf("main: goodbye!")

	usingJournal := false
	if ok, _ := journal.StderrIsJournalStream(); ok {
		usingJournal = true
		log.SetOutput(journalWriter{})
		log.SetFlags(0) // the journal already timestamps every entry
	}

	cfg, err := config.Load(args.Config)
	if err != nil {
		return err
	}

	var verbose int32 // toggled at runtime by SIGUSR1 when args.DebugSig is set
	logFlags := log.Flags()
	level := strings.ToLower(args.LogLevel)
	Logf := func(format string, v ...interface{}) {
		if !usingJournal {
			if atomic.LoadInt32(&verbose) != 0 {
				log.SetFlags(logFlags | log.Lshortfile)
			} else {
				log.SetFlags(logFlags)
			}
		}
		log.Printf("server: "+format, v...)
	}
	Logf("log level: %s", level)

	if args.DebugSig {
		usr1 := make(chan os.Signal, 1)
		signal.Notify(usr1, syscall.SIGUSR1)
		go func() {
			for range usr1 {
				on := atomic.AddInt32(&verbose, 1)%2 != 0
				if !on {
					atomic.StoreInt32(&verbose, 0)
				}
				Logf("verbose logging toggled: %v", on)
			}
		}()
	}

	var certDB *certdb.DB
	if cfg.SSL.CertDB != "" {
		certDB, err = certdb.Open(cfg.SSL.CertDB)
		if err != nil {
			return errwrap.Wrapf(err, "main: unable to open certificate database")
		}
	}

	var store persist.Store
	if cfg.ExternalPersistenceEnabled() {
		ns := "taky/" + cfg.Taky.ServerAddress + "/"
		etcdStore, err := persist.NewEtcd([]string{cfg.Taky.Redis}, ns)
		if err != nil {
			return errwrap.Wrapf(err, "main: unable to connect external persistence backend")
		}
		etcdStore.Logf = Logf
		store = etcdStore
	} else {
		store = persist.NewMemory()
	}

	met := &metrics.Metrics{Listen: cfg.Metrics.Listen}
	if err := met.Init(); err != nil {
		return errwrap.Wrapf(err, "main: unable to init metrics")
	}
	if err := met.Start(); err != nil {
		return errwrap.Wrapf(err, "main: unable to start metrics listener")
	}
	Logf("metrics listening on %s", cfg.Metrics.Listen)

	srv := server.New(cfg, store, certDB)
	srv.Logf = Logf
	srv.Metrics = met

	if err := srv.Setup(); err != nil {
		return errwrap.Wrapf(err, "main: unable to set up server")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	notifyReady()
	watchdogPing(ctx, Logf)

	// install the exit signal handler
	wg := &sync.WaitGroup{}
	defer wg.Wait()
	exit := make(chan struct{})
	defer close(exit)
	wg.Add(1)
	go func() {
		defer cancel()
		defer wg.Done()
		signals := make(chan os.Signal, 2)
		signal.Notify(signals, os.Interrupt)
		signal.Notify(signals, syscall.SIGTERM)
		select {
		case sig := <-signals:
			Logf("interrupted by %v", sig)
		case <-exit:
		}
	}()

	var reterr error
	for {
		select {
		case <-ctx.Done():
			Logf("shutting down")
			notifyStopping()
			if err := srv.Shutdown(); err != nil {
				Logf("server shutdown error: %s", err)
				reterr = errwrap.Append(reterr, err)
			}
			if err := met.Stop(context.Background()); err != nil {
				Logf("metrics shutdown error: %s", err)
			}
			return reterr
		default:
		}

		if err := srv.Loop(); err != nil {
			reterr = errwrap.Wrapf(err, "main: server loop error")
			cancel()
		}
	}
}
