// bearing-recorder - record and replay camera sweeps indexed by device bearing
//  Copyright (C) 2020, The Cacophony Project
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
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package orientation

import "math"

// NoBearing marks a sample whose bearing has not been derived yet (or
// cannot be derived from its rotation matrix).
const NoBearing float32 = -1

// Sample is one orientation reading: a unit quaternion (x, y, z, w), the
// row-major rotation matrix it came from (9 or 16 elements) and the bearing
// derived from that matrix.
type Sample struct {
	Timestamp int64
	Q         [4]float32
	R         []float32

	bearing    float32
	bearingSet bool
}

// NewSample returns a sample holding a copy of r.
func NewSample(ts int64, q [4]float32, r []float32) Sample {
	var s Sample
	s.Set(ts, q, r)
	return s
}

// Set replaces every field and invalidates the cached bearing.
func (s *Sample) Set(ts int64, q [4]float32, r []float32) {
	s.Timestamp = ts
	s.Q = q
	if cap(s.R) >= len(r) {
		s.R = s.R[:len(r)]
	} else {
		s.R = make([]float32, len(r))
	}
	copy(s.R, r)
	s.ResetBearing()
}

// SetBearing stores a bearing that was recorded alongside the sample.
func (s *Sample) SetBearing(b float32) {
	s.bearing = b
	s.bearingSet = b >= 0
}

// ResetBearing clears the cached bearing so that the next call to Bearing
// derives it again.
func (s *Sample) ResetBearing() {
	s.bearing = NoBearing
	s.bearingSet = false
}

// HasBearing reports whether a bearing is cached.
func (s *Sample) HasBearing() bool {
	return s.bearingSet
}

// Bearing returns the compass heading in [0, 360), deriving and caching it
// on first use. NoBearing is returned for matrices that are neither 3x3 nor
// 4x4.
func (s *Sample) Bearing() float32 {
	if s.bearingSet {
		return s.bearing
	}
	b, ok := bearingFromMatrix(s.R)
	if !ok {
		return NoBearing
	}
	s.bearing = b
	s.bearingSet = true
	return b
}

// Copy returns a sample that shares no storage with s.
func (s Sample) Copy() Sample {
	c := s
	c.R = append([]float32(nil), s.R...)
	return c
}

// bearingFromMatrix remaps the device axes so that the camera looks along
// the world Y axis (device X stays X, device Y becomes Z) and takes the
// heading of the remapped matrix.
func bearingFromMatrix(r []float32) (float32, bool) {
	var m1, m5 float32
	switch len(r) {
	case 16:
		m1, m5 = -r[2], -r[6]
	case 9:
		m1, m5 = -r[2], r[4]
	default:
		return NoBearing, false
	}
	b := math.Atan2(float64(m1), float64(m5)) * 180 / math.Pi
	if b < 0 {
		b += 360
	}
	f := float32(b)
	if f >= 360 {
		f = 0
	}
	return f, true
}
