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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/bearing-recorder/orientation"
	"github.com/TheCacophonyProject/bearing-recorder/pacing"
)

type reviewRecorder struct {
	mu       sync.Mutex
	started  int
	reviews  []float64
	reviewed []float64
	complete chan struct{}
}

func newReviewRecorder() *reviewRecorder {
	return &reviewRecorder{complete: make(chan struct{}, 1)}
}

func (r *reviewRecorder) OnReviewStart() {
	r.mu.Lock()
	r.started++
	r.mu.Unlock()
}

func (r *reviewRecorder) OnReview(b float64) {
	r.mu.Lock()
	r.reviews = append(r.reviews, b)
	r.mu.Unlock()
}

func (r *reviewRecorder) OnReviewed(b float64) {
	r.mu.Lock()
	r.reviewed = append(r.reviewed, b)
	r.mu.Unlock()
}

func (r *reviewRecorder) OnReviewComplete() {
	r.complete <- struct{}{}
}

func startedScheduler(t *testing.T) *Scheduler {
	s, err := NewScheduler(newFakeStore(36, 1), 10, newFrameCollector(), pacing.Dirty(), Options{})
	require.NoError(t, err)
	require.NoError(t, s.Start())
	return s
}

func TestReviewWrapsThroughNorth(t *testing.T) {
	s := startedScheduler(t)
	defer func() {
		s.Stop()
		s.Wait()
	}()

	rec := newReviewRecorder()
	require.NoError(t, s.Review(350, 20, time.Millisecond, false, rec))
	select {
	case <-rec.complete:
	case <-time.After(2 * time.Second):
		t.Fatal("review did not complete")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.started)
	assert.Equal(t, []float64{350, 0, 10}, rec.reviews)
	assert.Equal(t, []float64{350, 0, 10}, rec.reviewed)
	assert.Eventually(t, func() bool { return !s.Reviewing() }, time.Second, time.Millisecond)
}

func TestReviewRepeatsBackAndForth(t *testing.T) {
	s := startedScheduler(t)
	defer func() {
		s.Stop()
		s.Wait()
	}()

	rec := newReviewRecorder()
	require.NoError(t, s.Review(0, 20, time.Millisecond, true, rec))
	assert.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.reviewed) >= 6
	}, 2*time.Second, time.Millisecond)
	s.StopReview()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []float64{0, 10, 20, 10, 0, 0}, rec.reviewed[:6])
	assert.Len(t, rec.complete, 1)
}

func TestReviewSuspendsOrientation(t *testing.T) {
	s := startedScheduler(t)
	defer func() {
		s.Stop()
		s.Wait()
	}()

	require.NoError(t, s.Review(90, 180, time.Hour, false, nil))
	assert.Eventually(t, func() bool { return s.Bearing() == 90 }, time.Second, time.Millisecond)
	assert.Equal(t, ErrReviewing, s.Review(0, 10, 0, false, nil))

	sample := orientation.NewSample(1, [4]float32{}, nil)
	sample.SetBearing(200)
	s.OnOrientationUpdate(sample)
	assert.Equal(t, 90.0, s.Bearing())

	s.StopReview()
	assert.False(t, s.Reviewing())
	s.OnOrientationUpdate(sample)
	assert.Equal(t, 200.0, s.Bearing())
}

func TestReviewNeedsRunningScheduler(t *testing.T) {
	s, err := NewScheduler(newFakeStore(36, 1), 10, newFrameCollector(), pacing.Dirty(), Options{})
	require.NoError(t, err)
	assert.Equal(t, ErrNotRunning, s.Review(0, 10, 0, false, nil))
}

func TestStopEndsReview(t *testing.T) {
	s := startedScheduler(t)
	rec := newReviewRecorder()
	require.NoError(t, s.Review(0, 350, time.Hour, true, rec))
	s.Stop()
	s.Wait()
	assert.False(t, s.Reviewing())
	assert.Len(t, rec.complete, 1)
}
