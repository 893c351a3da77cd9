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

	"github.com/taky-project/taky/internal/cot/mgmt"
	"github.com/taky-project/taky/util/errwrap"
)

// KickBanArgs revokes every valid certificate belonging to a user and
// disconnects any of their live sessions.
type KickBanArgs struct {
	Config string `arg:"-c,--config" help:"path to the broker's YAML config file"`
	User   string `arg:"positional,required" help:"certificate common name to revoke and disconnect"`
}

// Run dials the broker's management socket and issues the kickban command.
func (obj *KickBanArgs) Run(ctx context.Context) error {
	socketPath, err := mgmtSocketPath(obj.Config)
	if err != nil {
		return err
	}

	raw, err := mgmtCall(ctx, socketPath, mgmt.Request{Cmd: "kickban", User: obj.User})
	if err != nil {
		return err
	}
	if err := mgmtErr(raw); err != nil {
		return err
	}

	var resp mgmt.KickBanResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return errwrap.Wrapf(err, "decoding kickban reply")
	}

	if len(resp.RevokedSerials) == 0 {
		fmt.Printf("no valid certificates found for %q\n", obj.User)
		return nil
	}
	fmt.Printf("revoked %d certificate(s) for %q:\n", len(resp.RevokedSerials), obj.User)
	for _, sn := range resp.RevokedSerials {
		fmt.Printf("  %s\n", sn.String())
	}

	return nil
}
