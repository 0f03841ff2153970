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

// Package pacing holds the deadline based waiting shared by every playback
// loop. Waits sleep coarsely and then yield until the deadline so that
// delivery jitter stays low, and every wait can be abandoned through a stop
// check.
package pacing

import (
	"runtime"
	"time"

	"github.com/juju/ratelimit"
)

const (
	// DefaultSpin is how long before a deadline a Sleeper stops sleeping
	// and starts yielding.
	DefaultSpin = 2 * time.Millisecond

	// maxNap bounds a single sleep so stop checks stay responsive.
	maxNap = 10 * time.Millisecond
)

// RealClock implements ratelimit.Clock in terms of standard time functions.
type RealClock struct{}

// Now implements Clock.Now by calling time.Now.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Sleep implements Clock.Sleep by calling time.Sleep.
func (RealClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// Sleeper waits for deadlines on a clock.
type Sleeper struct {
	Clock ratelimit.Clock
	Spin  time.Duration
}

// NewSleeper returns a Sleeper using clock with the default spin window.
func NewSleeper(clock ratelimit.Clock) Sleeper {
	if clock == nil {
		clock = RealClock{}
	}
	return Sleeper{Clock: clock, Spin: DefaultSpin}
}

// Now returns the sleeper's current time.
func (s Sleeper) Now() time.Time {
	return s.Clock.Now()
}

// SleepUntil blocks until deadline. It returns false without waiting out
// the deadline if stopped (which may be nil) reports true.
func (s Sleeper) SleepUntil(deadline time.Time, stopped func() bool) bool {
	for {
		if stopped != nil && stopped() {
			return false
		}
		remaining := deadline.Sub(s.Clock.Now())
		if remaining <= 0 {
			return true
		}
		if remaining > s.Spin {
			nap := remaining - s.Spin
			if nap > maxNap {
				nap = maxNap
			}
			s.Clock.Sleep(nap)
		} else {
			runtime.Gosched()
		}
	}
}

var defaultSleeper = NewSleeper(RealClock{})

// SleepUntil waits for deadline on the real clock.
func SleepUntil(deadline time.Time, stopped func() bool) bool {
	return defaultSleeper.SleepUntil(deadline, stopped)
}
