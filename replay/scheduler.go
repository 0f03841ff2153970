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

package replay

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TheCacophonyProject/bearing-recorder/loglimiter"
	"github.com/TheCacophonyProject/bearing-recorder/metrics"
	"github.com/TheCacophonyProject/bearing-recorder/pacing"
	"github.com/TheCacophonyProject/bearing-recorder/record"
)

const (
	DefaultBuffers      = 3
	DefaultBufferWait   = 500 * time.Millisecond
	DefaultGrace        = 100 * time.Millisecond
	DefaultPollInterval = 10 * time.Millisecond
)

var ErrStarted = errors.New("replay already started")

// Frame is a replayed frame. Data is only valid until Release is called,
// after which its buffer is reused for a later frame.
type Frame struct {
	Timestamp int64
	// Size is the recorded size, which is larger than len(Data) after a
	// short read.
	Size int64
	Data []byte

	pool     *bufferPool
	released atomic.Bool
}

// Release returns the frame's buffer to the pool. Further calls do nothing.
func (f *Frame) Release() {
	if f.released.CompareAndSwap(false, true) {
		f.pool.put(f.Data[:0])
	}
}

// FrameConsumer receives replayed frames and must release each one.
type FrameConsumer interface {
	OnFrame(f *Frame)
}

type FrameConsumerFunc func(f *Frame)

func (fn FrameConsumerFunc) OnFrame(f *Frame) { fn(f) }

// Listener follows the progress of a replay. OnComplete is called after each
// pass and returns whether another pass may start.
type Listener interface {
	OnStarted()
	OnComplete(iteration int) bool
	OnError(what string, err error)
}

type Options struct {
	// FPS fixes the delivery rate. Zero or negative replays at the recorded
	// rate; values above 1000 are milli-frames per second.
	FPS    int
	Repeat bool

	Buffers      int
	BufferWait   time.Duration
	Grace        time.Duration
	PollInterval time.Duration

	Sleeper *pacing.Sleeper
	Metrics *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.Buffers <= 0 {
		o.Buffers = DefaultBuffers
	}
	if o.BufferWait <= 0 {
		o.BufferWait = DefaultBufferWait
	}
	if o.Grace <= 0 {
		o.Grace = DefaultGrace
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// Scheduler replays a sequential frame recording, keeping any auxiliary
// streams in step with the frames' timestamps.
type Scheduler struct {
	open     Opener
	consumer FrameConsumer
	listener Listener
	streams  []Stream
	opts     Options
	policy   pacing.Policy
	sleeper  pacing.Sleeper
	metrics  *metrics.Metrics
	limiter  *loglimiter.LogLimiter
	pool     *bufferPool

	started    atomic.Bool
	iterations atomic.Int64

	mu       sync.Mutex
	handoffs []*handoff

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error
}

// NewScheduler replays the frames opened by open to consumer. listener may
// be nil.
func NewScheduler(open Opener, consumer FrameConsumer, listener Listener, opts Options, streams ...Stream) (*Scheduler, error) {
	if open == nil {
		return nil, errors.New("no frame stream to replay")
	}
	if consumer == nil {
		return nil, errors.New("no frame consumer")
	}
	opts = opts.withDefaults()
	sleeper := pacing.NewSleeper(nil)
	if opts.Sleeper != nil {
		sleeper = *opts.Sleeper
	}
	return &Scheduler{
		open:     open,
		consumer: consumer,
		listener: listener,
		streams:  streams,
		opts:     opts,
		policy:   pacing.Replay(opts.FPS),
		sleeper:  sleeper,
		metrics:  metrics.OrNew(opts.Metrics),
		limiter:  loglimiter.New(time.Minute),
		pool:     newBufferPool(opts.Buffers),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

func (s *Scheduler) Policy() pacing.Policy {
	return s.policy
}

// Iterations returns the number of completed passes.
func (s *Scheduler) Iterations() int {
	return int(s.iterations.Load())
}

func (s *Scheduler) IsStarted() bool {
	return s.started.Load()
}

// Start runs the replay in the background.
func (s *Scheduler) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	go s.run()
	return nil
}

// Run replays in the calling goroutine until the last pass completes, Stop
// is called or the frame stream fails.
func (s *Scheduler) Run() error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	s.run()
	return s.err
}

// Wait blocks until a started replay has finished and returns its error.
func (s *Scheduler) Wait() error {
	<-s.done
	return s.err
}

// Stop ends the replay, waiting up to the grace period for it to wind down.
// Callbacks that stop the replay should call Stop from another goroutine.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.mu.Lock()
		for _, h := range s.handoffs {
			h.close()
		}
		s.mu.Unlock()
	})
	if !s.started.Load() {
		return
	}
	select {
	case <-s.done:
	case <-time.After(s.opts.Grace):
		log.Printf("replay did not stop within %s", s.opts.Grace)
	}
}

func (s *Scheduler) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *Scheduler) run() {
	defer close(s.done)
	if s.listener != nil {
		s.listener.OnStarted()
	}
	for {
		if err := s.pass(); err != nil {
			s.err = err
			return
		}
		if s.stopped() {
			return
		}
		iteration := int(s.iterations.Add(1))
		s.metrics.ReplayIterations.Add(1)
		again := s.opts.Repeat
		if s.listener != nil && !s.listener.OnComplete(iteration) {
			again = false
		}
		if !again {
			return
		}
	}
}

func (s *Scheduler) reportError(what string, err error) {
	log.Printf("replay %s: %v", what, err)
	if s.listener != nil {
		s.listener.OnError(what, err)
	}
}

// pass replays the recording once. Auxiliary streams are opened afresh and
// everything starts together once each stream has its first record.
func (s *Scheduler) pass() error {
	rc, err := s.open()
	if err != nil {
		err = fmt.Errorf("opening frames: %w", err)
		s.reportError("frames", err)
		return err
	}
	defer rc.Close()
	frames := record.NewFrameReader(rc)

	var latch, aux sync.WaitGroup
	latch.Add(len(s.streams) + 1)
	handoffs := make([]*handoff, len(s.streams))
	for i := range handoffs {
		handoffs[i] = newHandoff()
	}
	s.mu.Lock()
	s.handoffs = handoffs
	if s.stopped() {
		for _, h := range handoffs {
			h.close()
		}
	}
	s.mu.Unlock()

	start := &anchor{}
	for i, stream := range s.streams {
		aux.Add(1)
		go func(stream Stream, h *handoff) {
			defer aux.Done()
			s.runAux(stream, h, start, &latch)
		}(stream, handoffs[i])
	}
	latch.Done()
	latch.Wait()

	err = s.replayFrames(frames, handoffs, start)

	for _, h := range handoffs {
		h.close()
	}
	s.waitAux(&aux)
	return err
}

func (s *Scheduler) waitAux(aux *sync.WaitGroup) {
	finished := make(chan struct{})
	go func() {
		aux.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(s.opts.Grace):
		log.Printf("auxiliary streams still running %s after the frames finished", s.opts.Grace)
	}
}

// anchor pins the first frame timestamp of a pass to the wall clock. Every
// stream in the pass paces against it.
type anchor struct {
	mu       sync.Mutex
	timeline pacing.Timeline
}

func (a *anchor) set(ts int64, wall time.Time) pacing.Timeline {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.timeline.Anchored() {
		a.timeline.Anchor(ts, wall)
	}
	return a.timeline
}

func (a *anchor) get() (pacing.Timeline, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timeline, a.timeline.Anchored()
}

func (s *Scheduler) replayFrames(frames *record.FrameReader, handoffs []*handoff, start *anchor) error {
	var interval *pacing.Interval
	var timeline pacing.Timeline
	if s.policy.Kind == pacing.FixedRate {
		interval = pacing.NewInterval(s.sleeper.Clock, s.policy.Period())
	}

	for !s.stopped() {
		header, err := frames.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			err = fmt.Errorf("reading frames: %w", err)
			s.reportError("frames", err)
			return err
		}
		// The anchor is set before the first publish so auxiliary streams
		// always find it.
		if !timeline.Anchored() {
			timeline = start.set(header.Timestamp, s.sleeper.Now())
		}
		for _, h := range handoffs {
			h.publish(header.Timestamp)
		}
		if header.Size == 0 {
			continue
		}

		buf, ok := s.pool.get(s.opts.BufferWait, s.stopCh)
		if !ok {
			if s.stopped() {
				return nil
			}
			s.metrics.SkippedTicks.Add(1)
			s.limiter.PrintfKey("buffers", "no frame buffer free after %s, skipping frame %d",
				s.opts.BufferWait, header.Timestamp)
			continue
		}
		if int64(cap(buf)) < header.Size {
			buf = make([]byte, header.Size)
		}
		buf = buf[:header.Size]
		n, err := frames.ReadPayload(buf)
		if err != nil {
			s.pool.put(buf[:0])
			err = fmt.Errorf("reading frame %d: %w", header.Timestamp, err)
			s.reportError("frames", err)
			return err
		}
		if int64(n) < header.Size {
			s.limiter.PrintfKey("short", "short read of frame %d: %d of %d bytes",
				header.Timestamp, n, header.Size)
		}

		var deadline time.Time
		if interval != nil {
			deadline = interval.Next()
		} else {
			deadline = timeline.Deadline(header.Timestamp)
		}
		if !s.sleeper.SleepUntil(deadline, s.stopped) {
			s.pool.put(buf[:0])
			return nil
		}

		s.metrics.FramesPlayed.Add(1)
		s.consumer.OnFrame(&Frame{
			Timestamp: header.Timestamp,
			Size:      header.Size,
			Data:      buf[:n],
			pool:      s.pool,
		})
	}
	return nil
}

// runAux delivers the records of one auxiliary stream that fall before the
// latest frame timestamp, each at its recorded offset from the pass anchor.
func (s *Scheduler) runAux(stream Stream, h *handoff, start *anchor, latch *sync.WaitGroup) {
	r, err := stream.open()
	if err != nil {
		latch.Done()
		s.reportError(stream.Name(), err)
		return
	}
	defer r.Close()

	ts, err := r.next()
	latch.Done()
	latch.Wait()
	if err != nil {
		if err != io.EOF {
			s.reportError(stream.Name(), err)
		}
		return
	}

	var timeline pacing.Timeline
	published := int64(math.MinInt64)
	take := func() {
		if p, ok := h.take(); ok {
			published = p
		}
	}
	halted := func() bool {
		take()
		return s.stopped() || h.isClosed()
	}

	for !s.stopped() {
		p, ok := h.poll(s.opts.PollInterval)
		if !ok {
			if h.isClosed() {
				return
			}
			continue
		}
		published = p
		if !timeline.Anchored() {
			if timeline, ok = start.get(); !ok {
				continue
			}
		}

		for ts < published {
			if !s.sleeper.SleepUntil(timeline.Deadline(ts), halted) {
				return
			}
			r.deliver()
			s.metrics.AuxRecords.Add(1)

			ts, err = r.next()
			if err == io.EOF {
				return
			}
			if err != nil {
				s.reportError(stream.Name(), err)
				return
			}
		}
	}
}

// bufferPool hands out a fixed number of frame buffers, grown to fit as
// frames are read.
type bufferPool struct {
	free chan []byte
}

func newBufferPool(n int) *bufferPool {
	p := &bufferPool{free: make(chan []byte, n)}
	for i := 0; i < n; i++ {
		p.free <- nil
	}
	return p
}

func (p *bufferPool) get(wait time.Duration, stop <-chan struct{}) ([]byte, bool) {
	select {
	case b := <-p.free:
		return b, true
	default:
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case b := <-p.free:
		return b, true
	case <-timer.C:
		return nil, false
	case <-stop:
		return nil, false
	}
}

func (p *bufferPool) put(b []byte) {
	select {
	case p.free <- b:
	default:
	}
}
