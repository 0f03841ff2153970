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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TheCacophonyProject/bearing-recorder/coverage"
	"github.com/TheCacophonyProject/bearing-recorder/metrics"
	"github.com/TheCacophonyProject/bearing-recorder/orientation"
	"github.com/TheCacophonyProject/bearing-recorder/ringbuffer"
)

const (
	DefaultMatchEpsilon      = 60 * time.Millisecond
	DefaultOrientationBuffer = 256
)

var ErrSessionStarted = errors.New("session already started")

// SessionListener hears about the progress of a sweep. Calls may come from
// the orientation goroutine or the writer goroutine.
type SessionListener interface {
	// OnTarget reports the next bucket to aim for and its start bearing.
	OnTarget(bucket int, bearing float64)
	OnComplete()
	OnAborted(err error)
}

type SessionConfig struct {
	Increment float64
	FrameSize int
	// FrameBuffer is the number of camera frames kept for matching; zero
	// sizes it from free memory.
	FrameBuffer       int
	OrientationBuffer int
	MatchEpsilon      time.Duration
	Queue             QueueOptions
	Metrics           *metrics.Metrics
}

// SessionSnapshot is a resumable checkpoint of a sweep.
type SessionSnapshot struct {
	ID            string            `yaml:"id"`
	Coverage      coverage.Snapshot `yaml:"coverage"`
	FramesWritten uint64            `yaml:"frames-written"`
	FramesDropped uint64            `yaml:"frames-dropped"`
}

// Status summarises a running sweep.
type Status struct {
	ID            string
	Running       bool
	Buckets       int
	Remaining     int
	InFlight      int
	Target        int
	TargetBearing float64
	FramesWritten uint64
	FramesDropped uint64
}

// Session captures one frame per bucket as the camera is swept around. Camera
// frames are buffered by timestamp; each orientation sample is matched to
// the closest buffered frame and, if its bucket still needs a frame, the
// frame is queued for writing. A bucket is only marked filled once its frame
// has been written.
type Session struct {
	conf     SessionConfig
	frames   *ringbuffer.Buffer
	samples  *orientation.RingBuffer
	tracker  *coverage.Tracker
	pipeline *Pipeline
	listener SessionListener
	metrics  *metrics.Metrics

	mu         sync.Mutex
	id         uuid.UUID
	started    bool
	stopped    bool
	inFlight   map[int]bool
	lastTarget int
	written    uint64
	dropped    uint64
	scratch    []byte

	completeOnce sync.Once
	stopOnce     sync.Once
	stopCh       chan struct{}
	watcherDone  chan struct{}
}

func NewSession(conf SessionConfig, store BucketWriter, listener SessionListener) (*Session, error) {
	if conf.MatchEpsilon <= 0 {
		conf.MatchEpsilon = DefaultMatchEpsilon
	}
	if conf.OrientationBuffer <= 0 {
		conf.OrientationBuffer = DefaultOrientationBuffer
	}
	if conf.FrameBuffer <= 0 {
		conf.FrameBuffer = ringbuffer.DefaultCapacity(conf.FrameSize)
	}
	conf.Metrics = metrics.OrNew(conf.Metrics)

	tracker, err := coverage.New(conf.Increment)
	if err != nil {
		return nil, err
	}
	frames, err := ringbuffer.New(conf.FrameBuffer, conf.FrameSize)
	if err != nil {
		return nil, err
	}
	samples, err := orientation.NewRingBuffer(conf.OrientationBuffer)
	if err != nil {
		return nil, err
	}
	pipeline, err := NewPipeline(store, conf.FrameSize, conf.Queue, conf.Metrics)
	if err != nil {
		return nil, err
	}
	if listener == nil {
		listener = nullSessionListener{}
	}

	s := &Session{
		conf:        conf,
		frames:      frames,
		samples:     samples,
		tracker:     tracker,
		pipeline:    pipeline,
		listener:    listener,
		metrics:     conf.Metrics,
		id:          uuid.New(),
		inFlight:    make(map[int]bool),
		lastTarget:  -2,
		scratch:     make([]byte, conf.FrameSize),
		stopCh:      make(chan struct{}),
		watcherDone: make(chan struct{}),
	}
	pipeline.OnWritten(s.onWritten)
	return s, nil
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id.String()
}

func (s *Session) Tracker() *coverage.Tracker {
	return s.tracker
}

// Resume carries on from a checkpoint. It must be called before Start.
func (s *Session) Resume(snap SessionSnapshot) error {
	id, err := uuid.Parse(snap.ID)
	if err != nil {
		return fmt.Errorf("bad session id: %w", err)
	}
	tracker, err := coverage.Restore(snap.Coverage)
	if err != nil {
		return err
	}
	if tracker.Increment() != s.tracker.Increment() {
		return fmt.Errorf("checkpoint increment %.1f does not match session increment %.1f",
			tracker.Increment(), s.tracker.Increment())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrSessionStarted
	}
	s.id = id
	s.tracker = tracker
	s.written = snap.FramesWritten
	s.dropped = snap.FramesDropped
	return nil
}

// Start begins matching and writing.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrSessionStarted
	}
	s.started = true
	s.mu.Unlock()

	s.metrics.BucketsRemaining.Store(int64(len(s.tracker.Remaining())))
	s.pipeline.Start()
	go s.watch()
	log.Printf("capture session %s started: %d buckets of %.1f degrees",
		s.ID(), s.tracker.Count(), s.tracker.Increment())
	return nil
}

// watch aborts the session when the writer fails.
func (s *Session) watch() {
	defer close(s.watcherDone)
	select {
	case <-s.pipeline.Failed():
		err := s.pipeline.Err()
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		log.Printf("capture session %s aborted: %v", s.ID(), err)
		s.listener.OnAborted(err)
	case <-s.stopCh:
	}
}

func (s *Session) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped
}

// OnFrame buffers a camera frame for matching.
func (s *Session) OnFrame(ts int64, payload []byte) {
	if !s.running() {
		return
	}
	s.metrics.FramesIn.Add(1)
	s.frames.Push(ts, payload)
}

// OnOrientationUpdate matches an orientation sample against the buffered
// frames. Samples without a bearing are ignored.
func (s *Session) OnOrientationUpdate(sample orientation.Sample) {
	if !s.running() {
		return
	}
	s.samples.Push(sample)
	bearing := sample.Bearing()
	if bearing < 0 {
		return
	}
	s.tracker.OnBearingSample(float64(bearing), sample.Timestamp, coverage.MatcherFunc(s.match))
	s.notifyTarget()
}

// match queues the frame closest to ts for bucket. It never reports a
// resolution itself: the bucket is resolved by the writer once the frame is
// on disk.
func (s *Session) match(bucket int, bearing float64, ts int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[bucket] {
		return false
	}
	if _, ok := s.frames.FindBest(ts, int64(s.conf.MatchEpsilon), s.scratch); !ok {
		return false
	}
	switch err := s.pipeline.Enqueue(bucket, s.scratch); err {
	case nil:
		s.inFlight[bucket] = true
		s.metrics.FramesMatched.Add(1)
	case ErrQueueFull:
		s.dropped++
	default:
		// the watcher reports write failures
	}
	return false
}

func (s *Session) onWritten(bucket int) {
	resolved := s.tracker.Resolve(bucket)
	s.mu.Lock()
	delete(s.inFlight, bucket)
	if resolved {
		s.written++
	}
	s.mu.Unlock()

	s.metrics.BucketsRemaining.Store(int64(len(s.tracker.Remaining())))
	s.notifyTarget()
	if s.tracker.IsComplete() {
		s.completeOnce.Do(func() {
			log.Printf("capture session %s complete", s.ID())
			s.listener.OnComplete()
		})
	}
}

func (s *Session) notifyTarget() {
	target := s.tracker.Target()
	s.mu.Lock()
	changed := target != s.lastTarget
	s.lastTarget = target
	s.mu.Unlock()
	if changed && target >= 0 {
		s.listener.OnTarget(target, s.tracker.BucketStart(target))
	}
}

// Stop waits for queued frames to be written and returns the write error
// that aborted the session, if any.
func (s *Session) Stop() error {
	s.mu.Lock()
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	err := s.pipeline.Stop()
	if started {
		s.stopOnce.Do(func() { close(s.stopCh) })
		<-s.watcherDone
	}
	return err
}

// Err returns the write error that aborted the session, if any.
func (s *Session) Err() error {
	return s.pipeline.Err()
}

func (s *Session) IsComplete() bool {
	return s.tracker.IsComplete()
}

// Checkpoint returns a snapshot that Resume can continue from. Frames still
// queued are not counted as written, so their buckets will be captured
// again.
func (s *Session) Checkpoint() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionSnapshot{
		ID:            s.id.String(),
		Coverage:      s.tracker.Snapshot(),
		FramesWritten: s.written,
		FramesDropped: s.dropped,
	}
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		ID:            s.id.String(),
		Running:       s.started && !s.stopped,
		Buckets:       s.tracker.Count(),
		Remaining:     len(s.tracker.Remaining()),
		InFlight:      len(s.inFlight),
		Target:        s.tracker.Target(),
		TargetBearing: s.tracker.TargetBearing(),
		FramesWritten: s.written,
		FramesDropped: s.dropped,
	}
}

type nullSessionListener struct{}

func (nullSessionListener) OnTarget(int, float64) {}
func (nullSessionListener) OnComplete()           {}
func (nullSessionListener) OnAborted(error)       {}
