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

// Package archive exports a bucket store as a single file. Sections use the
// CPTV field encoding: a header section describing the sweep followed by one
// frame section per bucket.
package archive

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"time"

	"github.com/TheCacophonyProject/go-cptv"

	"github.com/TheCacophonyProject/bearing-recorder/headers"
	"github.com/TheCacophonyProject/bearing-recorder/store"
)

const (
	Magic        = "BRGR"
	Version byte = 0x01

	headerSection = 'H'
	frameSection  = 'F'

	// Field keys not defined by CPTV.
	Increment byte = 'i'
	Buckets   byte = 'n'
	Session   byte = 's'
	Bucket    byte = 'k'
)

var ErrBadMagic = errors.New("not a bearing archive")

// Header describes an exported sweep.
type Header struct {
	Created    time.Time
	Brand      string
	Model      string
	DeviceName string
	DeviceID   uint32
	Session    string
	FPS        int
	ResX       int
	ResY       int
	FrameSize  int
	// IncrementTenths is the bucket width in tenths of a degree.
	IncrementTenths int
	Buckets         int
}

// Writer writes an archive. Close flushes it and closes the underlying
// writer.
type Writer struct {
	w *bufio.Writer
	c io.Closer
}

func NewWriter(w io.WriteCloser) *Writer {
	return &Writer{w: bufio.NewWriter(w), c: w}
}

func (w *Writer) WriteHeader(h *headers.HeaderInfo, deviceID int) error {
	fields := cptv.NewFieldWriter()
	fields.Timestamp(cptv.Timestamp, h.Created())
	fields.String(cptv.Model, h.Model())
	fields.String(cptv.Brand, h.Brand())
	fields.Uint8(cptv.FPS, uint8(h.FPS()))
	fields.Uint32(cptv.XResolution, uint32(h.ResX()))
	fields.Uint32(cptv.YResolution, uint32(h.ResY()))
	fields.Uint8(cptv.Compression, 0)
	fields.String(cptv.DeviceName, h.DeviceName())
	fields.Uint32(cptv.DeviceID, uint32(deviceID))
	fields.Uint32(cptv.FrameSize, uint32(h.FrameSize()))
	fields.Uint16(Increment, uint16(math.Round(h.Increment()*10)))
	fields.Uint32(Buckets, uint32(h.Buckets()))
	fields.String(Session, h.Session())

	if _, err := w.w.Write([]byte(Magic)); err != nil {
		return err
	}
	if err := w.w.WriteByte(Version); err != nil {
		return err
	}
	return w.writeSection(headerSection, fields, nil)
}

func (w *Writer) WriteBucket(bucket int, frame []byte) error {
	fields := cptv.NewFieldWriter()
	fields.Uint32(Bucket, uint32(bucket))
	fields.Uint32(cptv.FrameSize, uint32(len(frame)))
	return w.writeSection(frameSection, fields, frame)
}

func (w *Writer) writeSection(section byte, f *cptv.FieldWriter, data []byte) error {
	fieldData, numFields := f.Bytes()
	if _, err := w.w.Write([]byte{section, byte(numFields)}); err != nil {
		return err
	}
	if _, err := w.w.Write(fieldData); err != nil {
		return err
	}
	_, err := w.w.Write(data)
	return err
}

func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		w.c.Close()
		return err
	}
	return w.c.Close()
}

// Export writes the bucket store at storePath to outPath.
func Export(storePath, outPath string, deviceID int) error {
	r, err := store.Open(storePath)
	if err != nil {
		return err
	}
	defer r.Close()

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	w := NewWriter(f)
	if err := w.WriteHeader(r.Header(), deviceID); err != nil {
		w.Close()
		return err
	}
	frame := make([]byte, r.FrameSize())
	for bucket := 0; bucket < r.Buckets(); bucket++ {
		if _, err := r.ReadBucket(bucket, frame); err != nil {
			w.Close()
			return fmt.Errorf("reading bucket %d: %w", bucket, err)
		}
		if err := w.WriteBucket(bucket, frame); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	log.Printf("exported %d buckets to %s", r.Buckets(), outPath)
	return nil
}

// Reader reads an archive's buckets in order.
type Reader struct {
	r      *bufio.Reader
	header Header
}

func NewReader(r io.Reader) (*Reader, error) {
	ar := &Reader{r: bufio.NewReader(r)}
	magic := make([]byte, len(Magic)+1)
	if _, err := io.ReadFull(ar.r, magic); err != nil {
		return nil, err
	}
	if string(magic[:len(Magic)]) != Magic {
		return nil, ErrBadMagic
	}
	if magic[len(Magic)] != Version {
		return nil, fmt.Errorf("unsupported archive version %d", magic[len(Magic)])
	}
	fields, err := ar.readSection(headerSection)
	if err != nil {
		return nil, err
	}
	if err := ar.header.load(fields); err != nil {
		return nil, err
	}
	return ar, nil
}

func (ar *Reader) Header() Header {
	return ar.header
}

// Next reads the next bucket into out, which must hold a full frame. It
// returns io.EOF after the last bucket.
func (ar *Reader) Next(out []byte) (int, error) {
	fields, err := ar.readSection(frameSection)
	if err != nil {
		return 0, err
	}
	bucket, err := fields.Uint32(Bucket)
	if err != nil {
		return 0, fmt.Errorf("bucket index: %w", err)
	}
	size, err := fields.Uint32(cptv.FrameSize)
	if err != nil {
		return 0, fmt.Errorf("frame size: %w", err)
	}
	if int(size) > len(out) {
		return 0, fmt.Errorf("frame of %d bytes does not fit buffer of %d", size, len(out))
	}
	if _, err := io.ReadFull(ar.r, out[:size]); err != nil {
		return 0, unexpected(err)
	}
	return int(bucket), nil
}

func (ar *Reader) readSection(want byte) (cptv.Fields, error) {
	section, err := ar.r.ReadByte()
	if err != nil {
		return nil, err
	}
	if section != want {
		return nil, fmt.Errorf("expected section %q, found %q", want, section)
	}
	count, err := ar.r.ReadByte()
	if err != nil {
		return nil, unexpected(err)
	}
	fields := make(cptv.Fields, count)
	for i := 0; i < int(count); i++ {
		var kv [2]byte
		if _, err := io.ReadFull(ar.r, kv[:]); err != nil {
			return nil, unexpected(err)
		}
		data := make([]byte, kv[0])
		if _, err := io.ReadFull(ar.r, data); err != nil {
			return nil, unexpected(err)
		}
		fields[kv[1]] = data
	}
	return fields, nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (h *Header) load(f cptv.Fields) error {
	var err error
	if h.Created, err = f.Timestamp(cptv.Timestamp); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	h.Brand, _ = f.String(cptv.Brand)
	h.Model, _ = f.String(cptv.Model)
	h.DeviceName, _ = f.String(cptv.DeviceName)
	h.Session, _ = f.String(Session)
	h.DeviceID, _ = f.Uint32(cptv.DeviceID)
	fps, _ := f.Uint8(cptv.FPS)
	h.FPS = int(fps)

	x, err := f.Uint32(cptv.XResolution)
	if err != nil {
		return fmt.Errorf("x resolution: %w", err)
	}
	y, err := f.Uint32(cptv.YResolution)
	if err != nil {
		return fmt.Errorf("y resolution: %w", err)
	}
	size, err := f.Uint32(cptv.FrameSize)
	if err != nil {
		return fmt.Errorf("frame size: %w", err)
	}
	inc, err := f.Uint16(Increment)
	if err != nil {
		return fmt.Errorf("increment: %w", err)
	}
	buckets, err := f.Uint32(Buckets)
	if err != nil {
		return fmt.Errorf("buckets: %w", err)
	}
	h.ResX, h.ResY, h.FrameSize = int(x), int(y), int(size)
	h.IncrementTenths, h.Buckets = int(inc), int(buckets)
	return nil
}
