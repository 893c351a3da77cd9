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

package model

import (
	"fmt"
	"strconv"
)

// UnknownAccuracy is the sentinel circular/linear error value meaning
// "unknown", used when a Point omits ce or le.
const UnknownAccuracy = 9999999.0

// Point is a CoT location: WGS84 coordinates plus height-above-ellipsoid and
// circular/linear error estimates, all in meters.
type Point struct {
	Lat float64
	Lon float64
	Hae float64
	CE  float64
	LE  float64
}

// NewPoint returns a Point with the accuracy fields defaulted to "unknown".
func NewPoint(lat, lon, hae float64) Point {
	return Point{Lat: lat, Lon: lon, Hae: hae, CE: UnknownAccuracy, LE: UnknownAccuracy}
}

// String implements fmt.Stringer.
func (p Point) String() string {
	return fmt.Sprintf("<Point coords=(%.6f, %.6f), hae=%.1f m, ce=%.1f m>", p.Lat, p.Lon, p.Hae, p.CE)
}

// pointFromAttrs builds a Point from the attribute map of a <point> element.
func pointFromAttrs(attrs map[string]string) (Point, error) {
	var p Point
	var err error
	if p.Lat, err = parseFloatAttr(attrs, "lat"); err != nil {
		return p, err
	}
	if p.Lon, err = parseFloatAttr(attrs, "lon"); err != nil {
		return p, err
	}
	if p.Hae, err = parseFloatAttr(attrs, "hae"); err != nil {
		return p, err
	}
	if p.CE, err = parseFloatAttr(attrs, "ce"); err != nil {
		return p, err
	}
	if p.LE, err = parseFloatAttr(attrs, "le"); err != nil {
		return p, err
	}
	return p, nil
}

func parseFloatAttr(attrs map[string]string, key string) (float64, error) {
	v, ok := attrs[key]
	if !ok {
		return 0, NewUnmarshalError("point", fmt.Errorf("missing %s attribute", key))
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, NewUnmarshalError("point", fmt.Errorf("bad %s attribute: %w", key, err))
	}
	return f, nil
}
