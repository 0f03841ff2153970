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

// Package coverage tracks which angular buckets of a full turn still need a
// frame and which bucket the operator should aim for next.
package coverage

import (
	"errors"
	"math"
	"sync"
)

const tenthsPerTurn = 3600

// Matcher captures a frame for a bucket. It reports whether a frame was
// found for the bearing sample.
type Matcher interface {
	Match(bucket int, bearing float64, ts int64) bool
}

// MatcherFunc adapts a function to a Matcher.
type MatcherFunc func(bucket int, bearing float64, ts int64) bool

func (f MatcherFunc) Match(bucket int, bearing float64, ts int64) bool {
	return f(bucket, bearing, ts)
}

// Step is the outcome of one bearing sample.
type Step struct {
	Bucket   int
	Resolved bool
	Target   int // -1 once complete
	Complete bool
}

// Tracker holds the set of unresolved buckets.
type Tracker struct {
	mu        sync.Mutex
	increment int // tenths of a degree
	unfilled  []bool
	remaining int
	current   int
	target    int
	resolved  int
}

// New returns a Tracker for buckets of increment degrees with every bucket
// unresolved.
func New(increment float64) (*Tracker, error) {
	inc, err := incrementTenths(increment)
	if err != nil {
		return nil, err
	}
	n := BucketCount(inc)
	t := &Tracker{
		increment: inc,
		unfilled:  make([]bool, n),
		remaining: n,
	}
	for i := range t.unfilled {
		t.unfilled[i] = true
	}
	return t, nil
}

func incrementTenths(increment float64) (int, error) {
	inc := int(math.Round(increment * 10))
	if inc <= 0 || inc > tenthsPerTurn {
		return 0, errors.New("increment must be between 0.1 and 360 degrees")
	}
	return inc, nil
}

// BucketCount returns the number of buckets for an increment in tenths of a
// degree. A short final bucket is kept when the increment does not divide
// the turn.
func BucketCount(incrementTenths int) int {
	return (tenthsPerTurn + incrementTenths - 1) / incrementTenths
}

// Tenths quantises a bearing to tenths of a degree in [0, 3600).
func Tenths(bearing float64) int {
	t := int(math.Round(bearing*10)) % tenthsPerTurn
	if t < 0 {
		t += tenthsPerTurn
	}
	return t
}

// BucketFor returns the bucket a bearing falls in for an increment given in
// degrees. A bearing on a boundary belongs to the bucket it starts.
func BucketFor(bearing, increment float64) int {
	inc := int(math.Round(increment * 10))
	if inc <= 0 {
		return 0
	}
	return Tenths(bearing) / inc
}

func (t *Tracker) BucketOf(bearing float64) int {
	return Tenths(bearing) / t.increment
}

// Increment returns the bucket width in degrees.
func (t *Tracker) Increment() float64 {
	return float64(t.increment) / 10
}

// Count returns the total number of buckets.
func (t *Tracker) Count() int {
	return len(t.unfilled)
}

// BucketStart returns the first bearing of a bucket.
func (t *Tracker) BucketStart(bucket int) float64 {
	return float64(bucket*t.increment) / 10
}

// OnBearingSample resolves the sample's bucket when it is unresolved and
// the matcher captures a frame for it, then moves the target to the nearest
// unresolved bucket at or ahead of the sample.
func (t *Tracker) OnBearingSample(bearing float64, ts int64, m Matcher) Step {
	bucket := t.BucketOf(bearing)

	t.mu.Lock()
	pending := t.unfilled[bucket]
	t.mu.Unlock()

	// the matcher may block on I/O so it runs outside the lock
	resolved := false
	if pending && m != nil && m.Match(bucket, bearing, ts) {
		resolved = t.Resolve(bucket)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = bucket
	t.target = t.nextFrom(bucket)
	return Step{
		Bucket:   bucket,
		Resolved: resolved,
		Target:   t.target,
		Complete: t.remaining == 0,
	}
}

// Resolve removes a bucket from the unresolved set. It reports false if the
// bucket was already resolved or is out of range.
func (t *Tracker) Resolve(bucket int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if bucket < 0 || bucket >= len(t.unfilled) || !t.unfilled[bucket] {
		return false
	}
	t.unfilled[bucket] = false
	t.remaining--
	t.resolved++
	if t.target == bucket {
		t.target = t.nextFrom(t.current)
	}
	return true
}

func (t *Tracker) IsResolved(bucket int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if bucket < 0 || bucket >= len(t.unfilled) {
		return false
	}
	return !t.unfilled[bucket]
}

func (t *Tracker) IsComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining == 0
}

// Remaining returns the unresolved buckets in ascending order.
func (t *Tracker) Remaining() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remainingLocked()
}

func (t *Tracker) remainingLocked() []int {
	out := make([]int, 0, t.remaining)
	for i, open := range t.unfilled {
		if open {
			out = append(out, i)
		}
	}
	return out
}

// Resolved returns how many buckets have been resolved.
func (t *Tracker) Resolved() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolved
}

// Target returns the bucket to aim for, or -1 once complete.
func (t *Tracker) Target() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target
}

// TargetBearing returns the start bearing of the target bucket, or -1 once
// complete.
func (t *Tracker) TargetBearing() float64 {
	target := t.Target()
	if target < 0 {
		return -1
	}
	return t.BucketStart(target)
}

// NextTarget returns the nearest unresolved bucket at or ahead of bearing.
func (t *Tracker) NextTarget(bearing float64) int {
	bucket := t.BucketOf(bearing)
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextFrom(bucket)
}

// nextFrom walks forward from bucket, wrapping past 360 to 0.
func (t *Tracker) nextFrom(bucket int) int {
	if t.remaining == 0 {
		return -1
	}
	n := len(t.unfilled)
	for i := 0; i < n; i++ {
		b := (bucket + i) % n
		if t.unfilled[b] {
			return b
		}
	}
	return -1
}

// Snapshot is a serializable checkpoint of a Tracker.
type Snapshot struct {
	Increment float64 `yaml:"increment"`
	Unfilled  []int   `yaml:"unfilled"`
	Current   int     `yaml:"current"`
	Target    int     `yaml:"target"`
	Resolved  int     `yaml:"resolved"`
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		Increment: float64(t.increment) / 10,
		Unfilled:  t.remainingLocked(),
		Current:   t.current,
		Target:    t.target,
		Resolved:  t.resolved,
	}
}

// Restore rebuilds a Tracker from a snapshot.
func Restore(s Snapshot) (*Tracker, error) {
	t, err := New(s.Increment)
	if err != nil {
		return nil, err
	}
	n := len(t.unfilled)
	if s.Current < 0 || s.Current >= n {
		return nil, errors.New("snapshot current bucket out of range")
	}
	for i := range t.unfilled {
		t.unfilled[i] = false
	}
	t.remaining = 0
	for _, b := range s.Unfilled {
		if b < 0 || b >= n {
			return nil, errors.New("snapshot bucket out of range")
		}
		if !t.unfilled[b] {
			t.unfilled[b] = true
			t.remaining++
		}
	}
	t.current = s.Current
	t.resolved = s.Resolved
	t.target = t.nextFrom(t.current)
	return t, nil
}
