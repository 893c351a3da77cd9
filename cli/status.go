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
	"encoding/json"
	"fmt"
	"time"

	"github.com/taky-project/taky/internal/cot/mgmt"
	"github.com/taky-project/taky/util/errwrap"
)

// StatusArgs queries a running broker for its current status over the
// management socket.
type StatusArgs struct {
	Config string `arg:"-c,--config" help:"path to the broker's YAML config file"`
}

// Run dials the broker's management socket and prints a human-readable
// rendering of its status.
func (obj *StatusArgs) Run(ctx context.Context) error {
	socketPath, err := mgmtSocketPath(obj.Config)
	if err != nil {
		return err
	}

	raw, err := mgmtCall(ctx, socketPath, mgmt.Request{Cmd: "status"})
	if err != nil {
		return err
	}
	if err := mgmtErr(raw); err != nil {
		return err
	}

	var resp mgmt.StatusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return errwrap.Wrapf(err, "decoding status reply")
	}

	fmt.Printf("taky %s, up %s, %d client(s)\n", resp.Version, time.Duration(resp.Uptime*float64(time.Second)).Round(time.Second), resp.NumClients)
	for _, c := range resp.Clients {
		who := "anonymous"
		if !c.Anonymous {
			who = fmt.Sprintf("%s (%s)", c.Callsign, c.UID)
		}
		fmt.Printf("  %-28s  %-15s  rx=%-6d  connected=%s\n", who, c.IP, c.NumRx, time.Unix(c.Connected, 0).Format(time.RFC3339))
	}

	return nil
}
