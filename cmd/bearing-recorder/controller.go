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

package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/TheCacophonyProject/event-reporter/eventclient"
	yaml "gopkg.in/yaml.v2"

	"github.com/TheCacophonyProject/bearing-recorder/capture"
	"github.com/TheCacophonyProject/bearing-recorder/coverage"
	"github.com/TheCacophonyProject/bearing-recorder/headers"
	"github.com/TheCacophonyProject/bearing-recorder/loglimiter"
	"github.com/TheCacophonyProject/bearing-recorder/metrics"
	"github.com/TheCacophonyProject/bearing-recorder/orientation"
	"github.com/TheCacophonyProject/bearing-recorder/record"
	"github.com/TheCacophonyProject/bearing-recorder/recorder"
	"github.com/TheCacophonyProject/bearing-recorder/store"
	"github.com/TheCacophonyProject/bearing-recorder/throttle"
)

const checkpointFile = "checkpoint.yaml"

var (
	errNoCamera     = errors.New("no camera connected")
	errNotCapturing = errors.New("no capture in progress")
	errBusy         = errors.New("a capture or free recording is already running")
)

// controller owns the current capture session or free recording and routes
// camera frames and orientation samples to it.
type controller struct {
	conf     *Config
	provider *orientation.Provider
	metrics  *metrics.Metrics
	limiter  *loglimiter.LogLimiter
	addEvent func(eventclient.Event) error

	mu         sync.Mutex
	header     *headers.HeaderInfo
	session    *capture.Session
	store      *store.Writer
	sessionDir string
	free       *capture.FreeRecorder
	freeSink   recorder.Recorder
}

func newController(conf *Config, m *metrics.Metrics) (*controller, error) {
	provider, err := orientation.NewProvider(conf.OrientationBuffer)
	if err != nil {
		return nil, err
	}
	return &controller{
		conf:     conf,
		provider: provider,
		metrics:  metrics.OrNew(m),
		limiter:  loglimiter.New(time.Minute),
		addEvent: eventclient.AddEvent,
	}, nil
}

func (c *controller) setCamera(h *headers.HeaderInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.header = h
}

// clearCamera ends any capture that depended on the camera that went away.
func (c *controller) clearCamera() {
	c.mu.Lock()
	c.header = nil
	c.mu.Unlock()
	if err := c.stop(); err != nil && err != errNotCapturing {
		log.Printf("stopping after camera disconnect: %v", err)
	}
}

func (c *controller) onFrame(ts int64, payload []byte) {
	c.mu.Lock()
	session := c.session
	sink := c.freeSink
	c.mu.Unlock()

	if session != nil {
		session.OnFrame(ts, payload)
	}
	if sink != nil {
		if err := sink.WriteFrame(ts, payload); err != nil {
			c.limiter.PrintfKey("free-write", "free recording write failed: %v", err)
		}
	}
}

func (c *controller) onOrientation(s orientation.Sample) {
	c.provider.Publish(s)
}

// onSensorEvent records raw sensor events of the configured types while a
// free recording runs.
func (c *controller) onSensorEvent(e record.SensorEvent) {
	if !c.recordsSensor(e.Type) {
		return
	}
	c.mu.Lock()
	free := c.free
	c.mu.Unlock()
	if free == nil {
		return
	}
	if err := free.OnSensorEvent(e); err != nil {
		c.limiter.PrintfKey("free-sensor", "free recording sensor write failed: %v", err)
	}
}

func (c *controller) recordsSensor(sensorType int32) bool {
	for _, t := range c.conf.SensorTypes {
		if t == sensorType {
			return true
		}
	}
	return false
}

func (c *controller) busy() bool {
	return c.session != nil || c.freeSink != nil
}

// startCapture begins a sweep with buckets of increment degrees; zero uses
// the configured increment. It returns the session directory.
func (c *controller) startCapture(increment float64) (string, error) {
	if increment == 0 {
		increment = c.conf.Increment
	}
	if err := c.conf.Recorder.CheckCanRecord(); err != nil {
		return "", err
	}
	tracker, err := coverage.New(increment)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.header == nil {
		return "", errNoCamera
	}
	if c.busy() {
		return "", errBusy
	}

	now := time.Now()
	dir := filepath.Join(c.conf.OutputDir, "capture-"+now.Format("20060102-150405"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	header := c.header.WithStore(tracker.Increment(), tracker.Count(), filepath.Base(dir),
		c.conf.Recorder.DeviceName, now)
	w, err := store.Create(record.Session(dir).Frames(), header)
	if err != nil {
		return "", err
	}
	if err := c.startSession(dir, w, nil); err != nil {
		w.Close()
		return "", err
	}
	return dir, nil
}

// resume carries on the sweep checkpointed in dir.
func (c *controller) resume(dir string) error {
	snap, err := capture.ReadCheckpoint(filepath.Join(dir, checkpointFile))
	if err != nil {
		return err
	}
	path := record.Session(dir).Frames()
	header, err := store.ReadHeader(path)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.header == nil {
		return errNoCamera
	}
	if c.busy() {
		return errBusy
	}
	if header.FrameSize() != c.header.FrameSize() {
		return fmt.Errorf("sweep frame size %d does not match camera frame size %d",
			header.FrameSize(), c.header.FrameSize())
	}
	w, err := store.Create(path, header)
	if err != nil {
		return err
	}
	if err := c.startSession(dir, w, &snap); err != nil {
		w.Close()
		return err
	}
	return nil
}

// startSession must be called holding mu.
func (c *controller) startSession(dir string, w *store.Writer, snap *capture.SessionSnapshot) error {
	h := w.Header()
	session, err := capture.NewSession(capture.SessionConfig{
		Increment:         h.Increment(),
		FrameSize:         h.FrameSize(),
		FrameBuffer:       c.conf.FrameBuffer,
		OrientationBuffer: c.conf.OrientationBuffer,
		MatchEpsilon:      c.conf.MatchEpsilon,
		Queue:             c.conf.queueOptions(),
		Metrics:           c.metrics,
	}, w, &captureListener{c: c, dir: dir})
	if err != nil {
		return err
	}
	if snap != nil {
		if err := session.Resume(*snap); err != nil {
			return err
		}
	}
	if err := session.Start(); err != nil {
		return err
	}
	c.session = session
	c.store = w
	c.sessionDir = dir
	c.provider.Subscribe(session)
	return nil
}

// startFreeRecording records every stream to a new directory, subject to the
// recording window and throttle.
func (c *controller) startFreeRecording() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.header == nil {
		return "", errNoCamera
	}
	if c.busy() {
		return "", errBusy
	}

	free, err := capture.NewFreeRecorder(capture.FreeConfig{
		OutputDir:   c.conf.OutputDir,
		Header:      c.header,
		DeviceName:  c.conf.Recorder.DeviceName,
		SensorTypes: c.conf.SensorTypes,
		Location:    c.conf.Recorder.Location,
		CanRecord:   c.conf.Recorder.CheckCanRecord,
		Queue:       c.conf.queueOptions(),
		Metrics:     c.metrics,
	})
	if err != nil {
		return "", err
	}
	var sink recorder.Recorder = free
	if c.conf.Throttler.Activate {
		sink = throttle.NewThrottledRecorder(free, c.conf.Throttler, throttle.Intake{
			FPS:      c.header.FPS(),
			MinSecs:  c.conf.MinSecs,
			Listener: throttle.NewEventReporter(map[string]interface{}{"recorder": "bearing-recorder"}),
			Metrics:  c.metrics,
		})
	}
	if err := sink.CheckCanRecord(); err != nil {
		return "", err
	}
	if err := sink.StartRecording(); err != nil {
		return "", err
	}
	c.free = free
	c.freeSink = sink
	c.provider.Subscribe(free)
	return free.Dir(), nil
}

// stop ends whatever is running. An unfinished sweep is checkpointed so it
// can be resumed.
func (c *controller) stop() error {
	c.mu.Lock()
	session, w, dir := c.session, c.store, c.sessionDir
	free, sink := c.free, c.freeSink
	c.session, c.store, c.sessionDir = nil, nil, ""
	c.free, c.freeSink = nil, nil
	c.mu.Unlock()

	if session == nil && sink == nil {
		return errNotCapturing
	}

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if session != nil {
		c.provider.Unsubscribe(session)
		keep(session.Stop())
		keep(w.Close())
		checkpoint := filepath.Join(dir, checkpointFile)
		if session.IsComplete() {
			os.Remove(checkpoint)
		} else {
			keep(session.SaveCheckpoint(checkpoint))
		}
	}
	if sink != nil {
		c.provider.Unsubscribe(free)
		keep(sink.StopRecording())
	}
	return firstErr
}

// checkpoint saves the running sweep and returns the checkpoint path.
func (c *controller) checkpoint() (string, error) {
	c.mu.Lock()
	session, dir := c.session, c.sessionDir
	c.mu.Unlock()
	if session == nil {
		return "", errNotCapturing
	}
	path := filepath.Join(dir, checkpointFile)
	return path, session.SaveCheckpoint(path)
}

type status struct {
	Camera    string          `yaml:"camera"`
	Capture   *capture.Status `yaml:"capture,omitempty"`
	Directory string          `yaml:"directory,omitempty"`
	Free      string          `yaml:"free-recording,omitempty"`
}

func (c *controller) status() status {
	c.mu.Lock()
	defer c.mu.Unlock()
	var st status
	if c.header != nil {
		st.Camera = fmt.Sprintf("%s %s %dx%d@%dfps", c.header.Brand(), c.header.Model(),
			c.header.ResX(), c.header.ResY(), c.header.FPS())
	}
	if c.session != nil {
		s := c.session.Status()
		st.Capture = &s
		st.Directory = c.sessionDir
	}
	if c.free != nil {
		st.Free = c.free.Dir()
	}
	return st
}

func (c *controller) statusText() (string, error) {
	buf, err := yaml.Marshal(c.status())
	return string(buf), err
}

func (c *controller) reportEvent(eventType string, details map[string]interface{}) {
	event := eventclient.Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Details:   details,
	}
	if err := c.addEvent(event); err != nil {
		log.Printf("could not record %s event: %v", eventType, err)
	}
}

// captureListener ends a sweep once it is complete or has failed.
type captureListener struct {
	c   *controller
	dir string
}

func (l *captureListener) OnTarget(bucket int, bearing float64) {
	l.c.limiter.PrintfKey("target", "next target: bucket %d at %.1f degrees", bucket, bearing)
}

func (l *captureListener) OnComplete() {
	log.Printf("sweep complete: %s", l.dir)
	l.c.reportEvent("bearingSweepComplete", map[string]interface{}{"directory": l.dir})
	go l.c.stop()
}

func (l *captureListener) OnAborted(err error) {
	log.Printf("sweep aborted: %v", err)
	l.c.reportEvent("bearingSweepAborted", map[string]interface{}{
		"directory": l.dir,
		"error":     err.Error(),
	})
	go l.c.stop()
}
