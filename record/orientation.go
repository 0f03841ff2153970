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

package record

import (
	"fmt"
	"io"

	"github.com/TheCacophonyProject/bearing-recorder/orientation"
)

// maxMatrix is the largest rotation matrix an orientation record may carry.
const maxMatrix = 16

// Orientation stream versions. Version 2 records end with the bearing.
const (
	OrientationV1 = 1
	OrientationV2 = 2
)

// OrientationHasBearing reports whether records of a stream version carry a
// bearing. Unknown (zero) versions are read as version 1.
func OrientationHasBearing(version int) bool {
	return version >= OrientationV2
}

// OrientationWriter appends orientation records. When withBearing is set
// every record is followed by the sample's bearing.
type OrientationWriter struct {
	writer
	withBearing bool
}

func NewOrientationWriter(w io.Writer, withBearing bool) *OrientationWriter {
	return &OrientationWriter{writer: newWriter(w), withBearing: withBearing}
}

func (ow *OrientationWriter) Write(s orientation.Sample) error {
	if len(s.R) > maxMatrix {
		return fmt.Errorf("rotation matrix too long: %d", len(s.R))
	}
	ow.int64(s.Timestamp)
	for _, q := range s.Q {
		ow.float32(q)
	}
	ow.int32(int32(len(s.R)))
	for _, v := range s.R {
		ow.float32(v)
	}
	if ow.withBearing {
		ow.float32(s.Bearing())
	}
	return ow.flushRecord(nil)
}

// OrientationReader reads orientation records in order.
type OrientationReader struct {
	reader
	withBearing bool
	matrix      [maxMatrix]float32
}

func NewOrientationReader(r io.Reader, withBearing bool) *OrientationReader {
	return &OrientationReader{reader: newReader(r), withBearing: withBearing}
}

// Next returns the next sample. io.EOF marks a clean end of stream.
func (or *OrientationReader) Next() (orientation.Sample, error) {
	var q [4]float32
	ts, err := or.int64(true)
	if err != nil {
		return orientation.Sample{}, err
	}
	for i := range q {
		if q[i], err = or.float32(); err != nil {
			return orientation.Sample{}, err
		}
	}
	n, err := or.int32(false)
	if err != nil {
		return orientation.Sample{}, err
	}
	if n < 0 || n > maxMatrix {
		return orientation.Sample{}, fmt.Errorf("invalid rotation matrix length %d at timestamp %d", n, ts)
	}
	r := or.matrix[:n]
	if err := or.float32s(r); err != nil {
		return orientation.Sample{}, err
	}
	s := orientation.NewSample(ts, q, r)
	if or.withBearing {
		b, err := or.float32()
		if err != nil {
			return orientation.Sample{}, err
		}
		s.SetBearing(b)
	}
	return s, nil
}
