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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matrix16(r2, r6 float32) []float32 {
	r := make([]float32, 16)
	r[0], r[5], r[10], r[15] = 1, 1, 1, 1
	r[2], r[6] = r2, r6
	return r
}

func TestBearingFrom4x4(t *testing.T) {
	s := NewSample(1, [4]float32{}, matrix16(-1, 0))
	assert.InDelta(t, 90, s.Bearing(), 0.001)

	s.Set(2, [4]float32{}, matrix16(1, 0))
	assert.InDelta(t, 270, s.Bearing(), 0.001)

	s.Set(3, [4]float32{}, matrix16(-0.70710677, -0.70710677))
	assert.InDelta(t, 45, s.Bearing(), 0.001)
}

func TestBearingFrom3x3(t *testing.T) {
	identity := []float32{1, 0, 0, 0, 1, 0, 0, 0, 1}
	s := NewSample(1, [4]float32{0, 0, 0, 1}, identity)
	assert.InDelta(t, 0, s.Bearing(), 0.001)
}

func TestBearingUnsupportedMatrix(t *testing.T) {
	s := NewSample(1, [4]float32{}, []float32{1, 2, 3})
	assert.Equal(t, NoBearing, s.Bearing())
	assert.False(t, s.HasBearing())
}

func TestBearingIsCachedUntilSet(t *testing.T) {
	r := matrix16(-1, 0)
	s := NewSample(1, [4]float32{}, r)
	assert.InDelta(t, 90, s.Bearing(), 0.001)

	// The sample holds its own copy of the matrix.
	r[2] = 1
	assert.InDelta(t, 90, s.Bearing(), 0.001)

	s.R[2] = 1
	assert.InDelta(t, 90, s.Bearing(), 0.001, "cached bearing should survive matrix edits")
	s.ResetBearing()
	assert.InDelta(t, 270, s.Bearing(), 0.001)

	s.Set(2, [4]float32{}, matrix16(-1, 0))
	assert.InDelta(t, 90, s.Bearing(), 0.001)
}

func TestRecordedBearingIsUsed(t *testing.T) {
	s := NewSample(1, [4]float32{}, matrix16(-1, 0))
	s.SetBearing(12.5)
	assert.Equal(t, float32(12.5), s.Bearing())
}

func TestCopyIsIndependent(t *testing.T) {
	s := NewSample(1, [4]float32{1, 2, 3, 4}, matrix16(-1, 0))
	c := s.Copy()
	c.R[0] = 42
	assert.Equal(t, float32(1), s.R[0])
	assert.Equal(t, s.Q, c.Q)
}

func newTestRing(t *testing.T, capacity int, timestamps ...int64) *RingBuffer {
	rb, err := NewRingBuffer(capacity)
	require.NoError(t, err)
	for _, ts := range timestamps {
		rb.Push(NewSample(ts, [4]float32{}, matrix16(-1, 0)))
	}
	return rb
}

func timestampsOf(samples []Sample) []int64 {
	out := make([]int64, len(samples))
	for i, s := range samples {
		out[i] = s.Timestamp
	}
	return out
}

func TestRingFIFO(t *testing.T) {
	rb := newTestRing(t, 4, 1, 2, 3)
	s, ok := rb.Pop()
	assert.True(t, ok)
	assert.Equal(t, int64(1), s.Timestamp)
	assert.Equal(t, []int64{2, 3}, timestampsOf(rb.PopAll()))
	assert.Equal(t, 0, rb.Len())

	_, ok = rb.Pop()
	assert.False(t, ok)
}

func TestRingEvictsOldest(t *testing.T) {
	rb := newTestRing(t, 3, 1, 2, 3, 4, 5)
	oldest, _ := rb.Peek()
	newest, _ := rb.PeekNewest()
	assert.Equal(t, int64(3), oldest.Timestamp)
	assert.Equal(t, int64(5), newest.Timestamp)
	assert.Equal(t, []int64{3, 4, 5}, timestampsOf(rb.PopAll()))
}

func TestRingReturnsCopies(t *testing.T) {
	rb := newTestRing(t, 3, 1)
	s, _ := rb.Peek()
	s.R[0] = 99
	again, _ := rb.Peek()
	assert.Equal(t, float32(1), again.R[0])
}

func hundredSamples(t *testing.T) *RingBuffer {
	var ts []int64
	for i := int64(1); i <= 100; i++ {
		ts = append(ts, i*10)
	}
	return newTestRing(t, 100, ts...)
}

func TestFindReturnsNewestInWindow(t *testing.T) {
	rb := hundredSamples(t)
	s, ok := rb.Find(500, 15, 15)
	assert.True(t, ok)
	assert.Equal(t, int64(510), s.Timestamp)
}

func TestFindStopsBelowWindow(t *testing.T) {
	rb := hundredSamples(t)

	_, ok := rb.Find(905, 2, 2)
	assert.False(t, ok)
	// 1000 down to 910 are above the window, 900 is below it.
	assert.Equal(t, 11, rb.Visited())
}

func TestFindBeforeOldestTerminatesEarly(t *testing.T) {
	rb := hundredSamples(t)

	_, ok := rb.Find(2, 1, 1)
	assert.False(t, ok)
	// every resident sample is above the window, so the walk reaches the
	// oldest sample without finding anything to stop it sooner.
	assert.Equal(t, 100, rb.Visited())

	_, ok = rb.Find(505, 2, 2)
	assert.False(t, ok)
	// 1000 down to 510 are above the window, 500 is below it.
	assert.Equal(t, 51, rb.Visited())
}

func TestFindClosest(t *testing.T) {
	rb := hundredSamples(t)
	s, ok := rb.FindClosest(503, 20, 20)
	assert.True(t, ok)
	assert.Equal(t, int64(500), s.Timestamp)

	s, ok = rb.Find(503, 20, 20)
	assert.True(t, ok)
	assert.Equal(t, int64(520), s.Timestamp)
}

type countingListener struct {
	seen []int64
}

func (l *countingListener) OnOrientationUpdate(s Sample) {
	l.seen = append(l.seen, s.Timestamp)
}

func TestProviderSubscribeUnsubscribe(t *testing.T) {
	p, err := NewProvider(4)
	require.NoError(t, err)

	a, b := new(countingListener), new(countingListener)
	p.Subscribe(a)
	p.Subscribe(a)
	p.Subscribe(b)
	assert.Equal(t, 2, p.Listeners())

	p.Publish(NewSample(1, [4]float32{}, nil))
	assert.True(t, p.Unsubscribe(a))
	assert.False(t, p.Unsubscribe(a))
	p.Publish(NewSample(2, [4]float32{}, nil))

	assert.Equal(t, []int64{1}, a.seen)
	assert.Equal(t, []int64{1, 2}, b.seen)

	assert.Equal(t, []int64{1, 2}, timestampsOf(p.Close()))
	assert.Equal(t, 0, p.Listeners())
}
