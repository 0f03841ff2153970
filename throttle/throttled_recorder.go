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


package throttle

import (
	"log"
	"sync"

	"github.com/juju/ratelimit"

	"github.com/TheCacophonyProject/bearing-recorder/metrics"
	"github.com/TheCacophonyProject/bearing-recorder/pacing"
	"github.com/TheCacophonyProject/bearing-recorder/recorder"
)

// Intake describes the frames arriving for a free recording.
type Intake struct {
	// FPS turns the throttle's durations into frame counts.
	FPS int
	// MinSecs is the shortest free recording that will be opened.
	MinSecs  int
	Listener ThrottledEventListener
	// Clock defaults to the real clock.
	Clock   ratelimit.Clock
	Metrics *metrics.Metrics
}

// ThrottledRecorder passes camera frames to a free recording while it has
// tokens, one per frame. When they run out the recording is closed and
// frames are held back until MinSecs worth of frames have refilled, then a
// new recording is opened.
type ThrottledRecorder struct {
	free      recorder.Recorder
	listener  ThrottledEventListener
	metrics   *metrics.Metrics
	tokens    *ratelimit.Bucket
	minFrames int64

	mu   sync.Mutex
	open bool
	held int
}

type ThrottledEventListener interface {
	WhenThrottled()
}

type nullListener struct{}

func (nullListener) WhenThrottled() {}

func NewThrottledRecorder(free recorder.Recorder, conf ThrottlerConfig, intake Intake) *ThrottledRecorder {
	fps := int64(intake.FPS)
	if fps <= 0 {
		fps = 1
	}
	capacity := int64(conf.BucketSize.Seconds()) * fps
	minFrames := int64(intake.MinSecs) * fps
	if minFrames > capacity {
		log.Printf("free recordings need %d frames but the throttle holds %d; nothing will be recorded",
			minFrames, capacity)
	}

	clock := intake.Clock
	if clock == nil {
		clock = pacing.RealClock{}
	}
	listener := intake.Listener
	if listener == nil {
		listener = nullListener{}
	}
	refill := float64(minFrames) / conf.MinRefill.Seconds()
	return &ThrottledRecorder{
		free:      free,
		listener:  listener,
		metrics:   metrics.OrNew(intake.Metrics),
		tokens:    ratelimit.NewBucketWithRateAndClock(refill, capacity, clock),
		minFrames: minFrames,
	}
}

func (t *ThrottledRecorder) CheckCanRecord() error {
	return t.free.CheckCanRecord()
}

// StartRecording opens the free recording if enough frames are available.
// Otherwise the recording opens later, from WriteFrame.
func (t *ThrottledRecorder) StartRecording() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.reopen(); err != nil {
		return err
	}
	if !t.open {
		log.Print("free recording held back by the throttle")
		t.listener.WhenThrottled()
	}
	return nil
}

func (t *ThrottledRecorder) StopRecording() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.close()
}

func (t *ThrottledRecorder) WriteFrame(ts int64, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		if err := t.reopen(); err != nil {
			return err
		}
		if !t.open {
			t.hold()
			return nil
		}
	}
	if t.tokens.TakeAvailable(1) > 0 {
		return t.free.WriteFrame(ts, payload)
	}

	log.Print("free recording throttled")
	t.hold()
	t.listener.WhenThrottled()
	return t.close()
}

// Throttled returns how many frames have been held back.
func (t *ThrottledRecorder) Throttled() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.held
}

func (t *ThrottledRecorder) hold() {
	t.held++
	t.metrics.FramesThrottled.Add(1)
}

func (t *ThrottledRecorder) reopen() error {
	if t.tokens.Available() < t.minFrames {
		return nil
	}
	if err := t.free.StartRecording(); err != nil {
		return err
	}
	t.open = true
	return nil
}

func (t *ThrottledRecorder) close() error {
	if !t.open {
		return nil
	}
	t.open = false
	return t.free.StopRecording()
}
