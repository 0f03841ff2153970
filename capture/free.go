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

package capture

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TheCacophonyProject/bearing-recorder/headers"
	"github.com/TheCacophonyProject/bearing-recorder/location"
	"github.com/TheCacophonyProject/bearing-recorder/metrics"
	"github.com/TheCacophonyProject/bearing-recorder/orientation"
	"github.com/TheCacophonyProject/bearing-recorder/record"
)

type FreeConfig struct {
	OutputDir  string
	Header     *headers.HeaderInfo
	DeviceName string
	// SensorTypes lists the raw sensors recorded; no sensor stream is
	// written when it is empty.
	SensorTypes []int32
	// Location is written as the first location record when set.
	Location location.Fix
	// CanRecord gates StartRecording, normally on the recording window.
	CanRecord func() error
	Queue     QueueOptions
	Metrics   *metrics.Metrics
}

const (
	frameJob = iota
	emptyJob
	orientationJob
	locationJob
	sensorJob
)

type freeJob struct {
	kind    int
	ts      int64
	payload []byte
	sample  orientation.Sample
	fix     record.Location
	event   record.SensorEvent
}

// FreeRecorder writes every frame, orientation sample, location fix and raw
// sensor event to a new recording directory per recording. It implements
// recorder.Recorder so it can sit behind the recording throttle.
type FreeRecorder struct {
	conf    FreeConfig
	metrics *metrics.Metrics

	mu  sync.Mutex
	rec *freeRecording
	err error
}

func NewFreeRecorder(conf FreeConfig) (*FreeRecorder, error) {
	if conf.Header == nil {
		return nil, errors.New("free recording needs a camera header")
	}
	if conf.OutputDir == "" {
		return nil, errors.New("free recording needs an output directory")
	}
	return &FreeRecorder{
		conf:    conf,
		metrics: metrics.OrNew(conf.Metrics),
	}, nil
}

func (fr *FreeRecorder) CheckCanRecord() error {
	if fr.conf.CanRecord == nil {
		return nil
	}
	return fr.conf.CanRecord()
}

// StartRecording opens a new recording directory. It does nothing if a
// recording is already open.
func (fr *FreeRecorder) StartRecording() error {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if fr.rec != nil {
		return nil
	}
	if err := fr.CheckCanRecord(); err != nil {
		return err
	}
	rec, err := newFreeRecording(fr.conf)
	if err != nil {
		return err
	}
	fr.rec = rec
	fr.err = nil
	log.Printf("free recording to %s", rec.dir)
	return nil
}

// StopRecording flushes and closes the current recording.
func (fr *FreeRecorder) StopRecording() error {
	fr.mu.Lock()
	rec := fr.rec
	fr.rec = nil
	fr.mu.Unlock()
	if rec == nil {
		return nil
	}
	err := rec.close()
	if err != nil {
		fr.mu.Lock()
		fr.err = err
		fr.mu.Unlock()
	}
	log.Printf("free recording %s finished: %d frames", rec.dir, rec.frames)
	return err
}

// Dir returns the current recording directory, or "" when not recording.
func (fr *FreeRecorder) Dir() string {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if fr.rec == nil {
		return ""
	}
	return string(fr.rec.dir)
}

// Err returns the error that ended the last recording, if any.
func (fr *FreeRecorder) Err() error {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if fr.rec != nil {
		if err := fr.rec.queue.Err(); err != nil {
			return err
		}
	}
	return fr.err
}

func (fr *FreeRecorder) enqueue(j freeJob) error {
	fr.mu.Lock()
	rec := fr.rec
	fr.mu.Unlock()
	if rec == nil {
		return nil
	}
	err := rec.queue.enqueue(j)
	if err == ErrQueueFull {
		fr.metrics.FramesDropped.Add(1)
		return nil
	}
	return err
}

// WriteFrame queues a frame. A zero length payload records a tick with no
// frame. A write error that ended the recording is returned.
func (fr *FreeRecorder) WriteFrame(ts int64, payload []byte) error {
	fr.metrics.FramesIn.Add(1)
	if len(payload) == 0 {
		return fr.enqueue(freeJob{kind: emptyJob, ts: ts})
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	return fr.enqueue(freeJob{kind: frameJob, ts: ts, payload: buf})
}

func (fr *FreeRecorder) OnOrientationUpdate(s orientation.Sample) {
	s.Bearing()
	if err := fr.enqueue(freeJob{kind: orientationJob, sample: s}); err != nil {
		log.Printf("dropping orientation sample: %v", err)
	}
}

func (fr *FreeRecorder) OnLocation(ts int64, fix location.Fix) error {
	return fr.enqueue(freeJob{kind: locationJob, fix: record.Location{Timestamp: ts, Fix: fix}})
}

func (fr *FreeRecorder) OnSensorEvent(e record.SensorEvent) error {
	return fr.enqueue(freeJob{kind: sensorJob, event: e})
}

type freeRecording struct {
	dir         record.Session
	files       []*os.File
	frameW      *record.FrameWriter
	orientW     *record.OrientationWriter
	locW        *record.LocationWriter
	sensorW     *record.SensorWriter
	queue       *writeQueue[freeJob]
	frames      int
	metrics     *metrics.Metrics
	closeOnce   sync.Once
	closeResult error
}

func newFreeRecording(conf FreeConfig) (rec *freeRecording, err error) {
	id := uuid.New().String()
	name := fmt.Sprintf("%s-%s", time.Now().Format("2006-01-02T15-04-05"), id[:8])
	dir := record.Session(filepath.Join(conf.OutputDir, name))
	if err := os.MkdirAll(string(dir), 0755); err != nil {
		return nil, err
	}

	rec = &freeRecording{dir: dir, metrics: metrics.OrNew(conf.Metrics)}
	defer func() {
		if err != nil {
			rec.closeFiles()
		}
	}()

	header := conf.Header.WithStore(0, 0, id, conf.DeviceName, time.Now()).
		WithOrientationVersion(record.OrientationV2)
	if err := writeFramesHeader(dir.FramesHeader(), header); err != nil {
		return nil, err
	}

	f, err := rec.create(dir.Frames())
	if err != nil {
		return nil, err
	}
	rec.frameW = record.NewFrameWriter(f)
	if f, err = rec.create(dir.Orientation()); err != nil {
		return nil, err
	}
	rec.orientW = record.NewOrientationWriter(f, record.OrientationHasBearing(record.OrientationV2))
	if f, err = rec.create(dir.Location()); err != nil {
		return nil, err
	}
	rec.locW = record.NewLocationWriter(f)
	if len(conf.SensorTypes) > 0 {
		if f, err = rec.create(dir.Sensor()); err != nil {
			return nil, err
		}
		if rec.sensorW, err = record.NewSensorWriter(f, conf.SensorTypes); err != nil {
			return nil, err
		}
	}
	if !conf.Location.IsEmpty() {
		loc := record.Location{Timestamp: time.Now().UnixNano(), Fix: conf.Location}
		if err := rec.locW.Write(loc); err != nil {
			return nil, err
		}
	}

	rec.queue = newWriteQueue("free", conf.Queue, rec.write, nil)
	rec.queue.start()
	return rec, nil
}

func writeFramesHeader(path string, h *headers.HeaderInfo) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := headers.WriteHeaderInfo(f, h); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (rec *freeRecording) create(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	rec.files = append(rec.files, f)
	return f, nil
}

func (rec *freeRecording) write(j freeJob) error {
	switch j.kind {
	case frameJob:
		if err := rec.frameW.WriteFrame(j.ts, j.payload); err != nil {
			return err
		}
		rec.frames++
		rec.metrics.FramesWritten.Add(1)
		return nil
	case emptyJob:
		return rec.frameW.WriteEmpty(j.ts)
	case orientationJob:
		return rec.orientW.Write(j.sample)
	case locationJob:
		return rec.locW.Write(j.fix)
	case sensorJob:
		if rec.sensorW == nil {
			return nil
		}
		return rec.sensorW.Write(j.event)
	}
	return fmt.Errorf("unknown job kind %d", j.kind)
}

// close waits for every queued write, then flushes and closes the streams.
func (rec *freeRecording) close() error {
	rec.closeOnce.Do(func() {
		err := rec.queue.stop()
		// stop only waits out the grace period; the streams can't be
		// flushed until the writer has finished with them
		<-rec.queue.done
		if flushErr := rec.flush(); err == nil {
			err = flushErr
		}
		if closeErr := rec.closeFiles(); err == nil {
			err = closeErr
		}
		rec.closeResult = err
	})
	return rec.closeResult
}

func (rec *freeRecording) flush() error {
	flushers := []interface{ Flush() error }{rec.frameW, rec.orientW, rec.locW}
	if rec.sensorW != nil {
		flushers = append(flushers, rec.sensorW)
	}
	for _, f := range flushers {
		if err := f.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (rec *freeRecording) closeFiles() error {
	var firstErr error
	for _, f := range rec.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	rec.files = nil
	return firstErr
}
