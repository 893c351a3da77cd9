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
	"encoding/json"
	"math/big"
	"testing"
)

type fakeBackend struct {
	status      StatusResponse
	purged      int
	kickbanName string
	kickbanRet  []*big.Int
	kickbanErr  error
}

func (f *fakeBackend) Status() StatusResponse { return f.status }
func (f *fakeBackend) PurgePersist() int       { return f.purged }
func (f *fakeBackend) KickBan(user string) ([]*big.Int, error) {
	f.kickbanName = user
	return f.kickbanRet, f.kickbanErr
}

func decodeFrames(t *testing.T, out []byte) []map[string]interface{} {
	t.Helper()
	var frames []map[string]interface{}
	for _, part := range splitNUL(out) {
		var m map[string]interface{}
		if err := json.Unmarshal(part, &m); err != nil {
			t.Fatalf("bad frame %q: %v", part, err)
		}
		frames = append(frames, m)
	}
	return frames
}

func splitNUL(b []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, c := range b {
		if c == 0 {
			out = append(out, b[start:i])
			start = i + 1
		}
	}
	return out
}

func TestPing(t *testing.T) {
	h := &Handler{Backend: &fakeBackend{}}
	out, err := h.Feed([]byte(`{"cmd":"ping"}` + "\x00"))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	frames := decodeFrames(t, out)
	if len(frames) != 1 || frames[0]["pong"] != "taky" {
		t.Fatalf("unexpected frames: %+v", frames)
	}
}

func TestStatus(t *testing.T) {
	backend := &fakeBackend{status: StatusResponse{Version: "1.0", NumClients: 2}}
	h := &Handler{Backend: backend}
	out, err := h.Feed([]byte(`{"cmd":"status"}` + "\x00"))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	frames := decodeFrames(t, out)
	if frames[0]["num_clients"].(float64) != 2 {
		t.Fatalf("unexpected status frame: %+v", frames[0])
	}
}

func TestPurgePersist(t *testing.T) {
	h := &Handler{Backend: &fakeBackend{purged: 5}}
	out, _ := h.Feed([]byte(`{"cmd":"purge_persist"}` + "\x00"))
	frames := decodeFrames(t, out)
	if frames[0]["purged"].(float64) != 5 {
		t.Fatalf("unexpected purge frame: %+v", frames[0])
	}
}

func TestKickBan(t *testing.T) {
	backend := &fakeBackend{kickbanRet: []*big.Int{big.NewInt(42)}}
	h := &Handler{Backend: backend}
	out, _ := h.Feed([]byte(`{"cmd":"kickban","user":"alice"}` + "\x00"))
	if backend.kickbanName != "alice" {
		t.Fatalf("expected kickban dispatched with user=alice, got %q", backend.kickbanName)
	}
	frames := decodeFrames(t, out)
	serials := frames[0]["revoked_sns"].([]interface{})
	if len(serials) != 1 || serials[0].(float64) != 42 {
		t.Fatalf("unexpected kickban frame: %+v", frames[0])
	}
}

func TestInvalidCommand(t *testing.T) {
	h := &Handler{Backend: &fakeBackend{}}
	out, _ := h.Feed([]byte(`{"cmd":"bogus"}` + "\x00"))
	frames := decodeFrames(t, out)
	if _, ok := frames[0]["error"]; !ok {
		t.Fatalf("expected error frame, got %+v", frames[0])
	}
}

func TestSplitAcrossFeedCalls(t *testing.T) {
	h := &Handler{Backend: &fakeBackend{}}
	first, err := h.Feed([]byte(`{"cmd":"pi`))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(first) != 0 {
		t.Fatalf("expected no output before terminator arrives")
	}
	out, err := h.Feed([]byte(`ng"}` + "\x00"))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	frames := decodeFrames(t, out)
	if frames[0]["pong"] != "taky" {
		t.Fatalf("unexpected frame after split feed: %+v", frames)
	}
}

func TestTwoRequestsInOneFeed(t *testing.T) {
	h := &Handler{Backend: &fakeBackend{}}
	out, err := h.Feed([]byte(`{"cmd":"ping"}` + "\x00" + `{"cmd":"ping"}` + "\x00"))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	frames := decodeFrames(t, out)
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
}
