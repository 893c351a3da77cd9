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

// Package certdb is the flat-file registry of issued certificates, keyed by
// serial number, that backs peer-certificate identity and revocation.
package certdb

import (
	"bufio"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/taky-project/taky/util/errwrap"
)

// Status is a certificate record's lifecycle state.
type Status string

// The two recognized statuses.
const (
	StatusValid   Status = "V"
	StatusRevoked Status = "R"
)

// Record is one line of the certificate database.
type Record struct {
	Status  Status
	Issued  time.Time
	Expires time.Time
	Serial  *big.Int
	Name    string
}

// serialHex renders the serial as a zero-padded 40-hex-digit (160-bit)
// string, matching the on-disk format.
func serialHex(s *big.Int) string {
	return fmt.Sprintf("%040x", s)
}

// DB is the in-memory index of the certificate database file, loaded
// entirely into memory and indexed by serial number. Mutations (Add,
// Revoke) rewrite the backing file atomically.
type DB struct {
	path string

	mu      sync.Mutex
	bySerial map[string]*Record // keyed by serialHex
}

// Open loads path into memory. A missing file is treated as an empty
// database, matching the source behavior.
func Open(path string) (*DB, error) {
	db := &DB{path: path, bySerial: make(map[string]*Record)}
	if err := db.reload(); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *DB) reload() error {
	db.bySerial = make(map[string]*Record)

	f, err := os.Open(db.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errwrap.Wrapf(err, "certdb: unable to open %s", db.path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 5 {
			continue // malformed line, skip
		}
		issued, err := time.Parse(time.RFC3339, fields[1])
		if err != nil {
			continue
		}
		expires, err := time.Parse(time.RFC3339, fields[2])
		if err != nil {
			continue
		}
		serial, ok := new(big.Int).SetString(fields[3], 16)
		if !ok {
			continue
		}
		rec := &Record{
			Status:  Status(fields[0]),
			Issued:  issued,
			Expires: expires,
			Serial:  serial,
			Name:    fields[4],
		}
		db.bySerial[serialHex(serial)] = rec
	}
	return scanner.Err()
}

// write rewrites the backing file atomically: write to a temp file in the
// same directory, then rename over the original.
func (db *DB) write() error {
	dir := filepath.Dir(db.path)
	tmp, err := os.CreateTemp(dir, ".certdb-*")
	if err != nil {
		return errwrap.Wrapf(err, "certdb: unable to create temp file")
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, rec := range db.bySerial {
		line := fmt.Sprintf("%s\t%s\t%s\t%s\t%s\n",
			rec.Status,
			rec.Issued.Format(time.RFC3339),
			rec.Expires.Format(time.RFC3339),
			serialHex(rec.Serial),
			rec.Name,
		)
		if _, err := w.WriteString(line); err != nil {
			tmp.Close()
			return errwrap.Wrapf(err, "certdb: write error")
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return errwrap.Wrapf(err, "certdb: flush error")
	}
	if err := tmp.Close(); err != nil {
		return errwrap.Wrapf(err, "certdb: close error")
	}
	if err := os.Rename(tmp.Name(), db.path); err != nil {
		return errwrap.Wrapf(err, "certdb: rename error")
	}
	return nil
}

// AddCertificate registers cert as a valid record. The certificate must
// carry exactly one CommonName attribute.
func (db *DB) AddCertificate(cert *x509.Certificate) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	numCN := 0
	for _, atv := range cert.Subject.Names {
		if atv.Type.Equal(asn1.ObjectIdentifier{2, 5, 4, 3}) {
			numCN++
		}
	}
	if cert.Subject.CommonName == "" || numCN > 1 {
		return fmt.Errorf("certdb: certificate must have exactly one CommonName")
	}

	rec := &Record{
		Status:  StatusValid,
		Issued:  cert.NotBefore,
		Expires: cert.NotAfter,
		Serial:  cert.SerialNumber,
		Name:    cert.Subject.CommonName,
	}
	db.bySerial[serialHex(rec.Serial)] = rec
	return db.write()
}

// RevokeCertificate marks serial's record as revoked, setting its expiry to
// at, and rewrites the backing file.
func (db *DB) RevokeCertificate(serial *big.Int, at time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	rec, ok := db.bySerial[serialHex(serial)]
	if !ok {
		return fmt.Errorf("certdb: unable to find certificate with serial %s", serialHex(serial))
	}
	rec.Status = StatusRevoked
	rec.Expires = at
	return db.write()
}

// BySerial looks up a record by its serial number.
func (db *DB) BySerial(serial *big.Int) (*Record, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec, ok := db.bySerial[serialHex(serial)]
	return rec, ok
}

// ByName returns every record whose CommonName equals name.
func (db *DB) ByName(name string) []*Record {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []*Record
	for _, rec := range db.bySerial {
		if rec.Name == name {
			out = append(out, rec)
		}
	}
	return out
}
