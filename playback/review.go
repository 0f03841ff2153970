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

package playback

import (
	"errors"
	"time"

	"github.com/TheCacophonyProject/bearing-recorder/coverage"
)

var ErrReviewing = errors.New("review already in progress")

// ReviewListener follows a review sweep. Bearings are in degrees.
type ReviewListener interface {
	OnReviewStart()
	OnReview(bearing float64)
	OnReviewed(bearing float64)
	OnReviewComplete()
}

type review struct {
	start, end float64
	pause      time.Duration
	repeat     bool
	cancel     chan struct{}
	done       chan struct{}
}

// Review sweeps the played bearing from start to end in increment steps,
// holding each step for pause, then (when repeat is set) back again,
// until StopReview or Stop. A range whose end is not after its start wraps
// through north. Live orientation input is ignored while reviewing.
func (s *Scheduler) Review(start, end float64, pause time.Duration, repeat bool, listener ReviewListener) error {
	if s.State() != Running {
		return ErrNotRunning
	}
	s.reviewMu.Lock()
	defer s.reviewMu.Unlock()
	if s.review != nil {
		select {
		case <-s.review.done:
		default:
			return ErrReviewing
		}
	}
	if listener == nil {
		listener = nullReviewListener{}
	}
	r := &review{
		start:  start,
		end:    end,
		pause:  pause,
		repeat: repeat,
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.review = r
	s.mu.Lock()
	s.suspended = true
	s.mu.Unlock()
	go s.runReview(r, listener)
	return nil
}

// Reviewing reports whether a review is in progress.
func (s *Scheduler) Reviewing() bool {
	s.reviewMu.Lock()
	defer s.reviewMu.Unlock()
	if s.review == nil {
		return false
	}
	select {
	case <-s.review.done:
		return false
	default:
		return true
	}
}

// StopReview cancels a review and waits for it to finish.
func (s *Scheduler) StopReview() {
	s.reviewMu.Lock()
	r := s.review
	s.reviewMu.Unlock()
	if r == nil {
		return
	}
	select {
	case <-r.cancel:
	default:
		close(r.cancel)
	}
	<-r.done
}

func (s *Scheduler) runReview(r *review, listener ReviewListener) {
	defer func() {
		s.mu.Lock()
		s.suspended = false
		s.mu.Unlock()
		close(r.done)
	}()

	// work in unwrapped tenths so a range through north is a plain interval
	from := coverage.Tenths(r.start)
	to := coverage.Tenths(r.end)
	if to <= from {
		to += 3600
	}
	cancelled := func() bool {
		select {
		case <-r.cancel:
			return true
		case <-s.stopCh:
			return true
		default:
			return false
		}
	}
	// step shows one bearing and reports false if the review was cancelled
	step := func(tenths int) bool {
		bearing := float64(tenths%3600) / 10
		listener.OnReview(bearing)
		s.setBearing(tenths % 3600)
		if r.pause > 0 {
			timer := time.NewTimer(r.pause)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-r.cancel:
			case <-s.stopCh:
			}
		}
		if cancelled() {
			return false
		}
		listener.OnReviewed(bearing)
		return true
	}

	listener.OnReviewStart()
	defer listener.OnReviewComplete()
	for {
		for b := from; b < to; b += s.increment {
			if !step(b) {
				return
			}
		}
		if !r.repeat {
			return
		}
		for b := to; b >= from; b -= s.increment {
			if !step(b) {
				return
			}
		}
	}
}

type nullReviewListener struct{}

func (nullReviewListener) OnReviewStart()     {}
func (nullReviewListener) OnReview(float64)   {}
func (nullReviewListener) OnReviewed(float64) {}
func (nullReviewListener) OnReviewComplete()  {}
