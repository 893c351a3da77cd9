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

// Package cli handles all of the core command line parsing. It's the first
// entry point after the real main function: it either starts the broker
// itself, or dials a running broker's management socket for one of the thin
// administrative subcommands.
package cli

import (
	"context"
	"fmt"
	"os"

	cliUtil "github.com/taky-project/taky/cli/util"

	"github.com/alexflint/go-arg"
)

// CLI is the entry point for using taky normally from the command line.
func CLI(ctx context.Context, data *cliUtil.Data) error {
	// test for sanity
	if data == nil {
		return fmt.Errorf("this CLI was not run correctly")
	}
	if data.Program == "" || data.Version == "" {
		return fmt.Errorf("program was not compiled correctly")
	}
	if data.Copying == "" {
		return fmt.Errorf("program copyrights were removed, can't run")
	}

	args := Args{}
	args.version = data.Version // copy this in
	args.description = data.Tagline

	config := arg.Config{
		Program: data.Program,
	}
	parser, err := arg.NewParser(config, &args)
	if err != nil {
		// programming error
		return fmt.Errorf("cli config error: %w", err)
	}
	err = parser.Parse(data.Args[1:]) // args[0] needs to be dropped
	if err == arg.ErrHelp {
		parser.WriteHelp(os.Stdout)
		return nil
	}
	if err == arg.ErrVersion {
		fmt.Printf("%s\n", data.Version) // byon: bring your own newline
		return nil
	}
	if err != nil {
		return cliUtil.CliParseError(err) // consistent errors
	}

	// display the license
	if args.License {
		fmt.Printf("%s", data.Copying) // file comes with a trailing nl
		return nil
	}

	if ok, err := args.Run(ctx, data); err != nil {
		return err
	} else if ok { // did we activate one of the commands?
		return nil
	}

	// print help if no subcommands are set
	parser.WriteHelp(os.Stdout)

	return nil
}

// Args is the CLI parsing structure and type of the parsed result. This
// particular struct is the top-most one.
type Args struct {
	Config   string `arg:"-c,--config" help:"path to the broker's YAML config file"`
	LogLevel string `arg:"-l,--log-level" default:"info" help:"one of: debug, info, warning, error, critical"`
	DebugSig bool   `arg:"-d" help:"install a debug signal handler (SIGUSR1 toggles verbose logging at runtime)"`

	License bool `arg:"--license" help:"display the license and exit"`

	StatusCmd  *StatusArgs  `arg:"subcommand:status" help:"query the running broker's status over the management socket"`
	KickBanCmd *KickBanArgs `arg:"subcommand:kickban" help:"revoke a user's certificate and disconnect their live session"`

	// version is a private handle for our version string.
	version string `arg:"-"` // ignored from parsing

	// description is a private handle for our description string.
	description string `arg:"-"` // ignored from parsing
}

// Version returns the version string. Implementing this signature is part of
// the API for the cli library.
func (obj *Args) Version() string {
	return obj.version
}

// Description returns a description string. Implementing this signature is part
// of the API for the cli library.
func (obj *Args) Description() string {
	return obj.description
}

// Run executes the correct subcommand, or starts the broker itself if no
// administrative subcommand was given. It always returns true: running the
// broker itself counts as the activated command.
func (obj *Args) Run(ctx context.Context, data *cliUtil.Data) (bool, error) {
	if cmd := obj.StatusCmd; cmd != nil {
		return true, cmd.Run(ctx)
	}

	if cmd := obj.KickBanCmd; cmd != nil {
		return true, cmd.Run(ctx)
	}

	if err := RunServer(ctx, data, obj); err != nil {
		return true, err
	}
	return true, nil
}
