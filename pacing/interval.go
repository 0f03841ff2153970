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

package pacing

import (
	"time"

	"github.com/juju/ratelimit"
)

// Interval hands out deadlines one period apart. When the caller falls more
// than a period behind the schedule is re-anchored at the current time
// rather than bursting to catch up.
type Interval struct {
	clock    ratelimit.Clock
	period   time.Duration
	previous time.Time
}

func NewInterval(clock ratelimit.Clock, period time.Duration) *Interval {
	iv := &Interval{clock: clock, period: period}
	iv.Reset()
	return iv
}

// Reset makes the current time the previous deadline.
func (iv *Interval) Reset() {
	iv.previous = iv.clock.Now()
}

func (iv *Interval) Period() time.Duration {
	return iv.period
}

// Next returns the deadline one period after the previous one.
func (iv *Interval) Next() time.Time {
	deadline := iv.previous.Add(iv.period)
	if now := iv.clock.Now(); now.Sub(deadline) > iv.period {
		deadline = now
	}
	iv.previous = deadline
	return deadline
}

// Timeline maps recorded timestamps (nanoseconds) onto wall-clock
// deadlines relative to an anchor, so delays in one delivery are not carried
// into the next.
type Timeline struct {
	anchored bool
	wall     time.Time
	ts       int64
}

// Anchor pins recorded timestamp ts to wall time.
func (tl *Timeline) Anchor(ts int64, wall time.Time) {
	tl.anchored = true
	tl.wall = wall
	tl.ts = ts
}

func (tl *Timeline) Anchored() bool {
	return tl.anchored
}

// Reset forgets the anchor.
func (tl *Timeline) Reset() {
	tl.anchored = false
}

// Deadline returns when the record stamped ts is due.
func (tl *Timeline) Deadline(ts int64) time.Time {
	return tl.wall.Add(time.Duration(ts - tl.ts))
}
