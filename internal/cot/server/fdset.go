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

package server

import (
	"time"

	errwrap "github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// fdBits builds a *unix.FdSet from an arbitrary collection of file
// descriptors, generalizing the two-fd bitmask construction this codebase's
// own socketset package does for a fixed netlink/pipe pair.
func fdBits(fds []int) *unix.FdSet {
	set := &unix.FdSet{}
	for _, fd := range fds {
		set.Bits[fd/64] |= 1 << uint(fd%64)
	}
	return set
}

func maxFD(fds []int) int {
	m := 0
	for _, fd := range fds {
		if fd > m {
			m = fd
		}
	}
	return m
}

func isSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<uint(fd%64)) != 0
}

// selectReady runs one readiness poll over the read/write/exceptional fd
// sets, with the given timeout, and returns the ready subsets. An EINTR is
// swallowed and reported as "nothing ready", matching the Python reference
// loop's own signal-tolerant select() call.
func selectReady(readFDs, writeFDs, exceptFDs []int, timeout time.Duration) (rd, wr, ex []int, err error) {
	rdSet := fdBits(readFDs)
	wrSet := fdBits(writeFDs)
	exSet := fdBits(exceptFDs)

	all := append(append(append([]int{}, readFDs...), writeFDs...), exceptFDs...)
	nfd := maxFD(all) + 1

	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	_, serr := unix.Select(nfd, rdSet, wrSet, exSet, &tv)
	if serr != nil {
		if serr == unix.EINTR {
			return nil, nil, nil, nil
		}
		return nil, nil, nil, errwrap.Wrapf(serr, "server: select error")
	}

	for _, fd := range readFDs {
		if isSet(rdSet, fd) {
			rd = append(rd, fd)
		}
	}
	for _, fd := range writeFDs {
		if isSet(wrSet, fd) {
			wr = append(wr, fd)
		}
	}
	for _, fd := range exceptFDs {
		if isSet(exSet, fd) {
			ex = append(ex, fd)
		}
	}
	return rd, wr, ex, nil
}
