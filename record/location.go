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
	"io"

	"github.com/TheCacophonyProject/bearing-recorder/location"
)

// Location is a timestamped location fix.
type Location struct {
	Timestamp int64
	location.Fix
}

type LocationWriter struct {
	writer
}

func NewLocationWriter(w io.Writer) *LocationWriter {
	return &LocationWriter{newWriter(w)}
}

func (lw *LocationWriter) Write(l Location) error {
	lw.int64(l.Timestamp)
	lw.byte(l.Provider)
	lw.float64(l.Latitude)
	lw.float64(l.Longitude)
	lw.float64(l.Altitude)
	lw.float32(l.Accuracy)
	return lw.flushRecord(nil)
}

type LocationReader struct {
	reader
}

func NewLocationReader(r io.Reader) *LocationReader {
	return &LocationReader{newReader(r)}
}

// Next returns the next fix. io.EOF marks a clean end of stream.
func (lr *LocationReader) Next() (Location, error) {
	var l Location
	var err error
	if l.Timestamp, err = lr.int64(true); err != nil {
		return l, err
	}
	if l.Provider, err = lr.byte(); err != nil {
		return l, err
	}
	if l.Latitude, err = lr.float64(); err != nil {
		return l, err
	}
	if l.Longitude, err = lr.float64(); err != nil {
		return l, err
	}
	if l.Altitude, err = lr.float64(); err != nil {
		return l, err
	}
	l.Accuracy, err = lr.float32()
	return l, err
}
