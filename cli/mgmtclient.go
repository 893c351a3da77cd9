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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/taky-project/taky/internal/config"
	"github.com/taky-project/taky/internal/cot/mgmt"
	"github.com/taky-project/taky/util/errwrap"
)

// mgmtSocketPath resolves the management socket path from the given config
// file, falling back to the compiled-in default when path is empty.
func mgmtSocketPath(path string) (string, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return "", errwrap.Wrapf(err, "loading config")
		}
		cfg = loaded
	}
	return cfg.MgmtSocketPath(), nil
}

// mgmtCall dials the management socket, sends req, and decodes exactly one
// NUL-terminated JSON reply into raw bytes for the caller to unmarshal.
func mgmtCall(ctx context.Context, socketPath string, req mgmt.Request) ([]byte, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, errwrap.Wrapf(err, "connecting to management socket %s", socketPath)
	}
	defer conn.Close()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errwrap.Wrapf(err, "encoding request")
	}
	body = append(body, 0)
	if _, err := conn.Write(body); err != nil {
		return nil, errwrap.Wrapf(err, "writing request")
	}

	reply, err := bufio.NewReader(conn).ReadString(0)
	if err != nil {
		return nil, errwrap.Wrapf(err, "reading reply")
	}
	return []byte(reply[:len(reply)-1]), nil // drop the trailing NUL
}

// mgmtErr decodes raw as an mgmt.ErrorResponse and returns a Go error if it
// carries a non-empty message. It returns nil otherwise, leaving raw
// available for the caller to re-decode into the expected response type.
func mgmtErr(raw []byte) error {
	var e mgmt.ErrorResponse
	if err := json.Unmarshal(raw, &e); err == nil && e.Error != "" {
		return fmt.Errorf("broker: %s", e.Error)
	}
	return nil
}
