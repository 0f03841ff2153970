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

// Package record reads and writes the sequential session streams: frames,
// orientation, location and raw sensor events. Every stream is a plain
// sequence of big-endian records read strictly forwards.
package record

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
)

const bufferSize = 64 * 1024

var order = binary.BigEndian

// writer accumulates encoded fields in a scratch slice before writing them
// out as one record.
type writer struct {
	w       *bufio.Writer
	scratch []byte
}

func newWriter(w io.Writer) writer {
	return writer{w: bufio.NewWriterSize(w, bufferSize)}
}

func (w *writer) int32(v int32) {
	w.scratch = append(w.scratch, 0, 0, 0, 0)
	order.PutUint32(w.scratch[len(w.scratch)-4:], uint32(v))
}

func (w *writer) int64(v int64) {
	w.scratch = append(w.scratch, 0, 0, 0, 0, 0, 0, 0, 0)
	order.PutUint64(w.scratch[len(w.scratch)-8:], uint64(v))
}

func (w *writer) float32(v float32) {
	w.int32(int32(math.Float32bits(v)))
}

func (w *writer) float64(v float64) {
	w.int64(int64(math.Float64bits(v)))
}

func (w *writer) byte(v byte) {
	w.scratch = append(w.scratch, v)
}

func (w *writer) flushRecord(payload []byte) error {
	if _, err := w.w.Write(w.scratch); err != nil {
		return err
	}
	w.scratch = w.scratch[:0]
	if len(payload) > 0 {
		if _, err := w.w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) Flush() error {
	return w.w.Flush()
}

// reader decodes fields from a buffered stream. The first read of a record
// may return io.EOF; a record cut short returns io.ErrUnexpectedEOF.
type reader struct {
	r       *bufio.Reader
	scratch [8]byte
}

func newReader(r io.Reader) reader {
	return reader{r: bufio.NewReaderSize(r, bufferSize)}
}

func (r *reader) fill(n int, first bool) ([]byte, error) {
	buf := r.scratch[:n]
	if _, err := io.ReadFull(r.r, buf); err != nil {
		if err == io.EOF && !first {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

func (r *reader) int32(first bool) (int32, error) {
	buf, err := r.fill(4, first)
	if err != nil {
		return 0, err
	}
	return int32(order.Uint32(buf)), nil
}

func (r *reader) int64(first bool) (int64, error) {
	buf, err := r.fill(8, first)
	if err != nil {
		return 0, err
	}
	return int64(order.Uint64(buf)), nil
}

func (r *reader) float32() (float32, error) {
	v, err := r.int32(false)
	return math.Float32frombits(uint32(v)), err
}

func (r *reader) float64() (float64, error) {
	v, err := r.int64(false)
	return math.Float64frombits(uint64(v)), err
}

func (r *reader) byte() (byte, error) {
	b, err := r.r.ReadByte()
	if err == io.EOF {
		return 0, io.ErrUnexpectedEOF
	}
	return b, err
}

func (r *reader) float32s(out []float32) error {
	for i := range out {
		v, err := r.float32()
		if err != nil {
			return err
		}
		out[i] = v
	}
	return nil
}
