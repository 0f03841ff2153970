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
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds the size field of a frame record so a corrupt header
// cannot ask for an absurd allocation.
const MaxFrameSize = 64 * 1024 * 1024

// FrameHeader precedes every frame in a sequential store. A zero Size
// marks a tick with no new frame.
type FrameHeader struct {
	Timestamp int64
	Size      int64
}

// FrameWriter appends frame records.
type FrameWriter struct {
	writer
}

func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{newWriter(w)}
}

func (fw *FrameWriter) WriteFrame(ts int64, payload []byte) error {
	fw.int64(ts)
	fw.int64(int64(len(payload)))
	return fw.flushRecord(payload)
}

// WriteEmpty records a tick without a frame.
func (fw *FrameWriter) WriteEmpty(ts int64) error {
	return fw.WriteFrame(ts, nil)
}

// FrameReader reads frame records in order.
type FrameReader struct {
	reader
	pending int64
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{reader: newReader(r)}
}

// Next returns the header of the next record, skipping any payload of the
// current record that was not read. io.EOF marks a clean end of stream.
func (fr *FrameReader) Next() (FrameHeader, error) {
	if err := fr.Skip(); err != nil {
		return FrameHeader{}, err
	}
	ts, err := fr.int64(true)
	if err != nil {
		return FrameHeader{}, err
	}
	size, err := fr.int64(false)
	if err != nil {
		return FrameHeader{}, err
	}
	if size < 0 || size > MaxFrameSize {
		return FrameHeader{}, fmt.Errorf("invalid frame size %d at timestamp %d", size, ts)
	}
	fr.pending = size
	return FrameHeader{Timestamp: ts, Size: size}, nil
}

// ReadPayload reads the current record's payload into buf. It returns the
// number of bytes read, which is less than the record size when buf is too
// small or the stream ends inside the payload; the caller decides what to
// do with a short read.
func (fr *FrameReader) ReadPayload(buf []byte) (int, error) {
	want := fr.pending
	if int64(len(buf)) < want {
		want = int64(len(buf))
	}
	n, err := io.ReadFull(fr.r, buf[:want])
	fr.pending -= int64(n)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		fr.pending = 0
		return n, nil
	}
	return n, err
}

// Skip discards the unread part of the current payload.
func (fr *FrameReader) Skip() error {
	if fr.pending == 0 {
		return nil
	}
	n, err := fr.r.Discard(int(fr.pending))
	fr.pending -= int64(n)
	if errors.Is(err, io.EOF) {
		fr.pending = 0
		return io.ErrUnexpectedEOF
	}
	return err
}
