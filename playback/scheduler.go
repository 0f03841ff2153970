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

// Package playback plays a bucket store back as a camera would, showing the
// frame recorded for the current bearing.
package playback

import (
	"errors"
	"fmt"
	"log"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TheCacophonyProject/bearing-recorder/coverage"
	"github.com/TheCacophonyProject/bearing-recorder/loglimiter"
	"github.com/TheCacophonyProject/bearing-recorder/metrics"
	"github.com/TheCacophonyProject/bearing-recorder/orientation"
	"github.com/TheCacophonyProject/bearing-recorder/pacing"
)

// DefaultChangeWait bounds how long an event driven scheduler waits for a
// bearing change before checking again.
const DefaultChangeWait = 300 * time.Millisecond

var (
	ErrNotIdle    = errors.New("scheduler already started")
	ErrNotRunning = errors.New("scheduler not running")
)

type State int32

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// BucketReader gives random access to the frames of a bucket store.
type BucketReader interface {
	ReadBucket(bucket int, out []byte) (int, error)
	FrameSize() int
	Buckets() int
	Close() error
}

// FrameConsumer receives played frames. The payload is only valid for the
// duration of the call.
type FrameConsumer interface {
	OnFrame(payload []byte)
}

type FrameConsumerFunc func(payload []byte)

func (f FrameConsumerFunc) OnFrame(payload []byte) { f(payload) }

type Options struct {
	// Sleeper paces fixed rate playback; the real clock is used when nil.
	Sleeper    *pacing.Sleeper
	ChangeWait time.Duration
	Metrics    *metrics.Metrics
}

// Scheduler delivers the frame for the current bearing to a consumer,
// either whenever the bearing moves into another bucket (event driven) or
// at a fixed rate, repeating the last frame while the bearing stays put.
type Scheduler struct {
	store     BucketReader
	increment int // tenths of a degree
	consumer  FrameConsumer
	policy    pacing.Policy
	sleeper   pacing.Sleeper
	wait      time.Duration
	metrics   *metrics.Metrics
	limiter   *loglimiter.LogLimiter

	state    atomic.Int32
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	changed  chan struct{}

	mu         sync.Mutex
	bearing    int // tenths of a degree, -1 until set
	suspended  bool
	current    int
	frame      []byte
	loaded     bool
	deliveries uint64

	reviewMu sync.Mutex
	review   *review
}

func NewScheduler(store BucketReader, increment float64, consumer FrameConsumer, policy pacing.Policy, opts Options) (*Scheduler, error) {
	inc := int(math.Round(increment * 10))
	if inc <= 0 || inc > 3600 {
		return nil, fmt.Errorf("invalid increment %v", increment)
	}
	if policy.Kind != pacing.EventDriven && policy.Kind != pacing.FixedRate {
		return nil, fmt.Errorf("playback does not support %s pacing", policy.Kind)
	}
	if consumer == nil {
		return nil, errors.New("no frame consumer")
	}
	sleeper := pacing.NewSleeper(nil)
	if opts.Sleeper != nil {
		sleeper = *opts.Sleeper
	}
	if opts.ChangeWait <= 0 {
		opts.ChangeWait = DefaultChangeWait
	}
	return &Scheduler{
		store:     store,
		increment: inc,
		consumer:  consumer,
		policy:    policy,
		sleeper:   sleeper,
		wait:      opts.ChangeWait,
		metrics:   metrics.OrNew(opts.Metrics),
		limiter:   loglimiter.New(time.Minute),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		changed:   make(chan struct{}, 1),
		bearing:   -1,
		current:   -1,
		frame:     make([]byte, store.FrameSize()),
	}, nil
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) Policy() pacing.Policy {
	return s.policy
}

// Increment returns the bucket width in degrees.
func (s *Scheduler) Increment() float64 {
	return float64(s.increment) / 10
}

// SetBearing sets the bearing to play. It may be called from any goroutine.
func (s *Scheduler) SetBearing(bearing float64) {
	s.setBearing(coverage.Tenths(bearing))
}

func (s *Scheduler) setBearing(tenths int) {
	s.mu.Lock()
	s.bearing = tenths
	s.mu.Unlock()
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Bearing returns the current bearing, or -1 when none has been set.
func (s *Scheduler) Bearing() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bearing < 0 {
		return -1
	}
	return float64(s.bearing) / 10
}

// OnOrientationUpdate follows a live orientation source. Samples are
// ignored while a review is driving the bearing.
func (s *Scheduler) OnOrientationUpdate(sample orientation.Sample) {
	b := sample.Bearing()
	if b < 0 {
		return
	}
	s.mu.Lock()
	suspended := s.suspended
	s.mu.Unlock()
	if !suspended {
		s.SetBearing(float64(b))
	}
}

// Deliveries returns the number of frames handed to the consumer.
func (s *Scheduler) Deliveries() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliveries
}

func (s *Scheduler) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// Start runs the scheduler in a new goroutine.
func (s *Scheduler) Start() error {
	if !s.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return ErrNotIdle
	}
	go func() {
		if err := s.run(); err != nil {
			log.Printf("playback stopped: %v", err)
		}
	}()
	return nil
}

// Run plays until Stop is called.
func (s *Scheduler) Run() error {
	if !s.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return ErrNotIdle
	}
	return s.run()
}

func (s *Scheduler) run() error {
	defer s.finish()
	log.Printf("playing %d buckets of %.1f degrees (%s)", s.store.Buckets(), s.Increment(), s.policy)
	if s.policy.Kind == pacing.EventDriven {
		s.runEventDriven()
	} else {
		s.runFixedRate()
	}
	return nil
}

func (s *Scheduler) runEventDriven() {
	for !s.stopped() {
		if s.update() {
			s.deliver()
		}
		timer := time.NewTimer(s.wait)
		select {
		case <-s.changed:
		case <-timer.C:
		case <-s.stopCh:
		}
		timer.Stop()
	}
}

func (s *Scheduler) runFixedRate() {
	period := s.policy.Period()
	interval := pacing.NewInterval(s.sleeper.Clock, period)
	for !s.stopped() {
		s.update()
		if s.hasFrame() {
			s.deliver()
		}
		if period > 0 {
			if !s.sleeper.SleepUntil(interval.Next(), s.stopped) {
				return
			}
		} else {
			runtime.Gosched()
		}
	}
}

// update loads the frame for the current bearing when it has moved into
// another bucket. It reports whether a new frame was loaded.
func (s *Scheduler) update() bool {
	s.mu.Lock()
	bearing := s.bearing
	current := s.current
	s.mu.Unlock()
	if bearing < 0 {
		return false
	}
	bucket := bearing / s.increment
	if bucket == current {
		return false
	}

	// only the run goroutine touches frame
	n, err := s.store.ReadBucket(bucket, s.frame)
	if err != nil {
		s.limiter.PrintfKey("read", "reading bucket %d: %v", bucket, err)
		return false
	}
	s.metrics.BucketLoads.Add(1)
	if n < len(s.frame) {
		s.metrics.ZeroFills.Add(1)
		s.limiter.PrintfKey("zero-fill", "bucket %d is past the end of the store, padded %d bytes",
			bucket, len(s.frame)-n)
	}

	s.mu.Lock()
	s.current = bucket
	s.loaded = true
	s.mu.Unlock()
	return true
}

func (s *Scheduler) hasFrame() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

func (s *Scheduler) deliver() {
	s.consumer.OnFrame(s.frame)
	s.metrics.FramesPlayed.Add(1)
	s.mu.Lock()
	s.deliveries++
	s.mu.Unlock()
}

// CurrentBucket returns the bucket last loaded, or -1.
func (s *Scheduler) CurrentBucket() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Scheduler) finish() {
	s.StopReview()
	if err := s.store.Close(); err != nil {
		log.Printf("closing store: %v", err)
	}
	s.state.Store(int32(Stopped))
	close(s.done)
}

// Stop asks the scheduler to stop. It does not wait; use Wait for that. A
// scheduler that was never started is stopped straight away.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if s.state.CompareAndSwap(int32(Idle), int32(Stopped)) {
		if err := s.store.Close(); err != nil {
			log.Printf("closing store: %v", err)
		}
		close(s.done)
	}
}

// Wait blocks until the scheduler has stopped.
func (s *Scheduler) Wait() {
	<-s.done
}
