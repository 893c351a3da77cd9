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

package mgmt

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MaxRequestLen bounds a single buffered request before its terminating NUL
// arrives, guarding against an unbounded buffer from a misbehaving client.
const MaxRequestLen = 64 * 1024

// Handler decodes NUL-terminated JSON requests from a management connection
// and encodes NUL-terminated JSON responses, in the style
// `{"cmd": "..."}\0`.
type Handler struct {
	Logf    func(format string, v ...interface{})
	Backend Backend

	buf bytes.Buffer
}

func (h *Handler) logf(format string, v ...interface{}) {
	if h.Logf != nil {
		h.Logf(format, v...)
	}
}

// Feed appends newly-received bytes and returns the concatenated, already
// NUL-terminated response bytes for every complete request now available.
// A request buffered past MaxRequestLen without a terminator is a
// connection-fatal protocol error.
func (h *Handler) Feed(data []byte) ([]byte, error) {
	h.buf.Write(data)

	var out bytes.Buffer
	for {
		b := h.buf.Bytes()
		idx := bytes.IndexByte(b, 0)
		if idx < 0 {
			if h.buf.Len() > MaxRequestLen {
				return out.Bytes(), fmt.Errorf("mgmt: request exceeds %d bytes without terminator", MaxRequestLen)
			}
			return out.Bytes(), nil
		}

		msg := make([]byte, idx)
		copy(msg, b[:idx])
		h.buf.Next(idx + 1)

		resp := h.dispatch(msg)
		body, err := json.Marshal(resp)
		if err != nil {
			h.logf("mgmt: unable to marshal response: %s", err)
			continue
		}
		out.Write(body)
		out.WriteByte(0)
	}
}

func (h *Handler) dispatch(msg []byte) interface{} {
	var req Request
	if err := json.Unmarshal(msg, &req); err != nil {
		return ErrorResponse{Error: err.Error()}
	}

	switch req.Cmd {
	case "ping":
		return PongResponse{Pong: "taky"}
	case "status":
		return h.Backend.Status()
	case "purge_persist":
		return PurgeResponse{Purged: h.Backend.PurgePersist()}
	case "kickban":
		serials, err := h.Backend.KickBan(req.User)
		if err != nil {
			return ErrorResponse{Error: err.Error()}
		}
		return KickBanResponse{RevokedSerials: serials}
	default:
		return ErrorResponse{Error: fmt.Sprintf("Invalid cmd: %s", req.Cmd)}
	}
}
