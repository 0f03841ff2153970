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
)

// SensorValues is the number of values stored with each raw sensor event.
const SensorValues = 5

const maxSensorTypes = 64

// SensorEvent is one raw sensor reading.
type SensorEvent struct {
	Type      int32
	Timestamp int64
	Values    [SensorValues]float32
}

// SensorWriter writes a raw sensor stream: a header listing the recorded
// sensor types followed by events.
type SensorWriter struct {
	writer
}

func NewSensorWriter(w io.Writer, types []int32) (*SensorWriter, error) {
	sw := &SensorWriter{newWriter(w)}
	sw.int32(int32(len(types)))
	for _, t := range types {
		sw.int32(t)
	}
	if err := sw.flushRecord(nil); err != nil {
		return nil, err
	}
	return sw, nil
}

func (sw *SensorWriter) Write(e SensorEvent) error {
	sw.int32(e.Type)
	sw.int64(e.Timestamp)
	for _, v := range e.Values {
		sw.float32(v)
	}
	return sw.flushRecord(nil)
}

type SensorReader struct {
	reader
	types []int32
}

// NewSensorReader reads the stream header.
func NewSensorReader(r io.Reader) (*SensorReader, error) {
	sr := &SensorReader{reader: newReader(r)}
	count, err := sr.int32(true)
	if err != nil {
		return nil, err
	}
	if count < 0 || count > maxSensorTypes {
		return nil, fmt.Errorf("invalid sensor count %d", count)
	}
	sr.types = make([]int32, count)
	for i := range sr.types {
		if sr.types[i], err = sr.int32(false); err != nil {
			return nil, err
		}
	}
	return sr, nil
}

// Types lists the sensors recorded in the stream.
func (sr *SensorReader) Types() []int32 {
	return sr.types
}

// Next returns the next event. io.EOF marks a clean end of stream.
func (sr *SensorReader) Next() (SensorEvent, error) {
	var e SensorEvent
	var err error
	if e.Type, err = sr.int32(true); err != nil {
		return e, err
	}
	if e.Timestamp, err = sr.int64(false); err != nil {
		return e, err
	}
	err = sr.float32s(e.Values[:])
	return e, err
}
