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

package orientation

import (
	"errors"
	"sync"
)

// RingBuffer keeps the most recent orientation samples. Samples are written
// in timestamp order so searches walk from the newest sample backwards and
// give up once they pass the start of the search window.
type RingBuffer struct {
	mu      sync.Mutex
	samples []Sample
	head    int
	tail    int
	length  int
	visited int
}

func NewRingBuffer(capacity int) (*RingBuffer, error) {
	if capacity <= 0 {
		return nil, errors.New("orientation buffer capacity must be positive")
	}
	return &RingBuffer{samples: make([]Sample, capacity)}, nil
}

func (rb *RingBuffer) nextIndexAfter(index int) int {
	return (index + 1) % len(rb.samples)
}

func (rb *RingBuffer) previousIndexBefore(index int) int {
	return (index - 1 + len(rb.samples)) % len(rb.samples)
}

// Push stores a copy of s, evicting the oldest sample when full, and
// returns the remaining capacity.
func (rb *RingBuffer) Push(s Sample) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.length == len(rb.samples) {
		rb.tail = rb.nextIndexAfter(rb.tail)
		rb.length--
	}
	slot := &rb.samples[rb.head]
	slot.Set(s.Timestamp, s.Q, s.R)
	slot.bearing, slot.bearingSet = s.bearing, s.bearingSet
	rb.head = rb.nextIndexAfter(rb.head)
	rb.length++
	return len(rb.samples) - rb.length
}

func (rb *RingBuffer) Pop() (Sample, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.length == 0 {
		return Sample{}, false
	}
	s := rb.samples[rb.tail].Copy()
	rb.tail = rb.nextIndexAfter(rb.tail)
	rb.length--
	return s, true
}

func (rb *RingBuffer) Peek() (Sample, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.length == 0 {
		return Sample{}, false
	}
	return rb.samples[rb.tail].Copy(), true
}

func (rb *RingBuffer) PeekNewest() (Sample, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.length == 0 {
		return Sample{}, false
	}
	return rb.samples[rb.previousIndexBefore(rb.head)].Copy(), true
}

// Find returns the newest sample inside [target-before, target+after].
func (rb *RingBuffer) Find(target, before, after int64) (Sample, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	found := -1
	rb.scanBack(target-before, func(index int) bool {
		if rb.samples[index].Timestamp <= target+after {
			found = index
			return false
		}
		return true
	})
	if found < 0 {
		return Sample{}, false
	}
	return rb.samples[found].Copy(), true
}

// FindClosest returns the sample inside [target-before, target+after] with
// the smallest distance to target.
func (rb *RingBuffer) FindClosest(target, before, after int64) (Sample, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	best := -1
	var bestDiff int64
	rb.scanBack(target-before, func(index int) bool {
		ts := rb.samples[index].Timestamp
		if ts > target+after {
			return true
		}
		diff := ts - target
		if diff < 0 {
			diff = -diff
		}
		if best < 0 || diff < bestDiff {
			best, bestDiff = index, diff
		}
		return true
	})
	if best < 0 {
		return Sample{}, false
	}
	return rb.samples[best].Copy(), true
}

// scanBack visits samples newest first, stopping at the first sample older
// than lowest or when visit returns false.
func (rb *RingBuffer) scanBack(lowest int64, visit func(index int) bool) {
	rb.visited = 0
	index := rb.previousIndexBefore(rb.head)
	for i := 0; i < rb.length; i++ {
		rb.visited++
		if rb.samples[index].Timestamp < lowest {
			return
		}
		if !visit(index) {
			return
		}
		index = rb.previousIndexBefore(index)
	}
}

// Visited returns how many samples the last search looked at.
func (rb *RingBuffer) Visited() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.visited
}

// PopAll drains the buffer, oldest sample first.
func (rb *RingBuffer) PopAll() []Sample {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]Sample, 0, rb.length)
	for rb.length > 0 {
		out = append(out, rb.samples[rb.tail].Copy())
		rb.tail = rb.nextIndexAfter(rb.tail)
		rb.length--
	}
	return out
}

func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.length
}

func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.head, rb.tail, rb.length = 0, 0, 0
}
