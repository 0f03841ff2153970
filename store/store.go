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

// Package store holds the bucket indexed frame store written by a bearing
// sweep: one fixed size frame per angular bucket, frame i at byte offset
// i*frameSize, described by a header sidecar.
package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/TheCacophonyProject/bearing-recorder/headers"
)

const headerExt = ".head"

var ErrBucketRange = errors.New("bucket out of range")

// HeaderPath returns the sidecar path for a store.
func HeaderPath(path string) string {
	return path + headerExt
}

func validateHeader(h *headers.HeaderInfo) error {
	if h.FrameSize() <= 0 {
		return errors.New("store frame size must be positive")
	}
	if h.Buckets() <= 0 {
		return errors.New("store bucket count must be positive")
	}
	if h.Increment() <= 0 {
		return errors.New("store increment must be positive")
	}
	return nil
}

// Writer writes frames into a store. Only one writer or set of readers may
// have a store open at a time.
type Writer struct {
	f      *os.File
	header *headers.HeaderInfo
}

// Create makes a new store sized for every bucket in h and writes its
// header sidecar.
func Create(path string, h *headers.HeaderInfo) (*Writer, error) {
	if err := validateHeader(h); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if err := lock(f, unix.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Truncate(int64(h.Buckets()) * int64(h.FrameSize())); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeHeader(path, h); err != nil {
		f.Close()
		return nil, err
	}
	return &Writer{f: f, header: h}, nil
}

func writeHeader(path string, h *headers.HeaderInfo) error {
	tempName := HeaderPath(path) + ".temp"
	f, err := os.Create(tempName)
	if err != nil {
		return err
	}
	if err := headers.WriteHeaderInfo(f, h); err != nil {
		f.Close()
		os.Remove(tempName)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tempName)
		return err
	}
	return os.Rename(tempName, HeaderPath(path))
}

func (w *Writer) Header() *headers.HeaderInfo {
	return w.header
}

func (w *Writer) FrameSize() int {
	return w.header.FrameSize()
}

// WriteBucket writes one frame at the bucket's offset.
func (w *Writer) WriteBucket(bucket int, payload []byte) error {
	if bucket < 0 || bucket >= w.header.Buckets() {
		return fmt.Errorf("%w: %d", ErrBucketRange, bucket)
	}
	if len(payload) != w.header.FrameSize() {
		return fmt.Errorf("frame is %d bytes, store frames are %d", len(payload), w.header.FrameSize())
	}
	_, err := w.f.WriteAt(payload, int64(bucket)*int64(w.header.FrameSize()))
	return err
}

// Sync flushes written frames to disk.
func (w *Writer) Sync() error {
	return w.f.Sync()
}

func (w *Writer) Close() error {
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// Reader gives random access to the frames of a store.
type Reader struct {
	f      *os.File
	header *headers.HeaderInfo
}

// Open opens a store and its header sidecar for reading.
func Open(path string) (*Reader, error) {
	h, err := ReadHeader(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if err := lock(f, unix.LOCK_SH); err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{f: f, header: h}, nil
}

// ReadHeader reads a store's header sidecar.
func ReadHeader(path string) (*headers.HeaderInfo, error) {
	hf, err := os.Open(HeaderPath(path))
	if err != nil {
		return nil, err
	}
	defer hf.Close()
	h, err := headers.ReadHeaderInfo(bufio.NewReader(hf))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", HeaderPath(path), err)
	}
	if err := validateHeader(h); err != nil {
		return nil, err
	}
	return h, nil
}

func (r *Reader) Header() *headers.HeaderInfo {
	return r.header
}

func (r *Reader) FrameSize() int {
	return r.header.FrameSize()
}

func (r *Reader) Buckets() int {
	return r.header.Buckets()
}

// ReadBucket reads the bucket's frame into out, which must hold a full
// frame. If the store ends inside the frame the remainder of out is zeroed;
// the number of bytes actually read is returned.
func (r *Reader) ReadBucket(bucket int, out []byte) (int, error) {
	if bucket < 0 || bucket >= r.header.Buckets() {
		return 0, fmt.Errorf("%w: %d", ErrBucketRange, bucket)
	}
	frame := out[:r.header.FrameSize()]
	n, err := r.f.ReadAt(frame, int64(bucket)*int64(r.header.FrameSize()))
	if err == io.EOF {
		err = nil
	}
	for i := n; i < len(frame); i++ {
		frame[i] = 0
	}
	return n, err
}

func (r *Reader) Close() error {
	return r.f.Close()
}

func lock(f *os.File, how int) error {
	if err := unix.Flock(int(f.Fd()), how|unix.LOCK_NB); err != nil {
		return fmt.Errorf("store %s is in use: %w", f.Name(), err)
	}
	return nil
}
