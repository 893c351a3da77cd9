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

// Command taky runs the CoT broker: it accepts TLS and plaintext client
// connections, routes Cursor-on-Target events between them, persists state
// for reconnecting clients, and exposes a UNIX socket management endpoint.
package main

import (
	"context"
	"os"

	"github.com/taky-project/taky/cli"
	cliUtil "github.com/taky-project/taky/cli/util"
)

// version and program are set at compile time with -ldflags, eg:
//
//	go build -ldflags "-X main.version=$(git describe --tags) -X main.program=taky"
var (
	version string
	program string
)

const tagline = "taky: a lightweight Cursor-on-Target message broker"

const copying = `taky
Copyright (C) 2024+ the taky-project contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
`

func main() {
	if program == "" {
		program = cliUtil.SafeProgram(os.Args[0])
	}
	if version == "" {
		version = "unknown"
	}

	data := &cliUtil.Data{
		Program: program,
		Version: version,
		Copying: copying,
		Tagline: tagline,
		Args:    os.Args,
	}

	if err := cli.CLI(context.Background(), data); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}
