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

// Package model contains the CoT event data types and their XML marshal and
// unmarshal contracts.
package model

import (
	"fmt"
)

// UnmarshalError is returned when an event or a detail child element cannot
// be parsed. It is event-local: the caller should log and skip the offending
// element rather than tear down the session.
type UnmarshalError struct {
	Context string
	Err     error
}

// Error satisfies the error interface.
func (e *UnmarshalError) Error() string {
	if e.Err == nil {
		return e.Context
	}
	return fmt.Sprintf("%s: %s", e.Context, e.Err)
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e *UnmarshalError) Unwrap() error {
	return e.Err
}

// NewUnmarshalError builds an UnmarshalError scoped to context.
func NewUnmarshalError(context string, err error) *UnmarshalError {
	return &UnmarshalError{Context: context, Err: err}
}
