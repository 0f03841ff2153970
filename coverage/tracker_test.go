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

package coverage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var always = MatcherFunc(func(int, float64, int64) bool { return true })
var never = MatcherFunc(func(int, float64, int64) bool { return false })

func TestBucketCount(t *testing.T) {
	tr, err := New(10)
	require.NoError(t, err)
	assert.Equal(t, 36, tr.Count())

	tr, err = New(7)
	require.NoError(t, err)
	assert.Equal(t, 52, tr.Count())

	tr, err = New(360)
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Count())
}

func TestInvalidIncrement(t *testing.T) {
	for _, inc := range []float64{0, 0.01, -5, 360.1} {
		_, err := New(inc)
		assert.Error(t, err, "increment %v", inc)
	}
}

func TestBucketOf(t *testing.T) {
	tr, err := New(10)
	require.NoError(t, err)

	assert.Equal(t, 0, tr.BucketOf(0))
	assert.Equal(t, 0, tr.BucketOf(9.94))
	assert.Equal(t, 35, tr.BucketOf(359.9))
	assert.Equal(t, 0, tr.BucketOf(359.96))
	assert.Equal(t, 35, tr.BucketOf(-1))
	assert.Equal(t, 1, tr.BucketOf(370))
}

func TestBoundaryBelongsToBucketItStarts(t *testing.T) {
	tr, err := New(10)
	require.NoError(t, err)

	assert.Equal(t, 1, tr.BucketOf(10))
	assert.Equal(t, 1, tr.BucketOf(9.96))
	assert.Equal(t, 18, tr.BucketOf(180))
	assert.Equal(t, 0, tr.BucketOf(360))
}

func TestSweepCompletes(t *testing.T) {
	tr, err := New(10)
	require.NoError(t, err)

	resolved := map[int]bool{}
	for b := 0.0; b < 360; b += 0.5 {
		step := tr.OnBearingSample(b, int64(b*10), always)
		if step.Resolved {
			assert.False(t, resolved[step.Bucket], "bucket %d resolved twice", step.Bucket)
			resolved[step.Bucket] = true
		}
	}
	assert.Len(t, resolved, 36)
	assert.True(t, tr.IsComplete())
	assert.Equal(t, -1, tr.Target())
	assert.Empty(t, tr.Remaining())
	assert.Equal(t, 36, tr.Resolved())
}

func TestMatcherNotCalledForResolvedBucket(t *testing.T) {
	tr, err := New(10)
	require.NoError(t, err)

	calls := 0
	m := MatcherFunc(func(int, float64, int64) bool {
		calls++
		return true
	})
	tr.OnBearingSample(5, 1, m)
	tr.OnBearingSample(6, 2, m)
	assert.Equal(t, 1, calls)
}

func TestTargetMovesAheadAndWraps(t *testing.T) {
	tr, err := New(90)
	require.NoError(t, err)

	step := tr.OnBearingSample(100, 1, always)
	assert.True(t, step.Resolved)
	assert.Equal(t, 1, step.Bucket)
	assert.Equal(t, 2, step.Target)

	tr.OnBearingSample(200, 2, always)
	step = tr.OnBearingSample(300, 3, always)
	assert.Equal(t, 3, step.Bucket)
	assert.Equal(t, 0, step.Target, "wraps past 360")
	assert.Equal(t, 0.0, tr.TargetBearing())

	step = tr.OnBearingSample(10, 4, always)
	assert.True(t, step.Complete)
	assert.Equal(t, -1, step.Target)
	assert.Equal(t, -1.0, tr.TargetBearing())
}

func TestUnmatchedSampleOnlyMovesTarget(t *testing.T) {
	tr, err := New(10)
	require.NoError(t, err)

	step := tr.OnBearingSample(125, 1, never)
	assert.False(t, step.Resolved)
	assert.Equal(t, 12, step.Bucket)
	assert.Equal(t, 12, step.Target)
	assert.Len(t, tr.Remaining(), 36)
}

func TestResolveOutsideSample(t *testing.T) {
	tr, err := New(10)
	require.NoError(t, err)

	tr.OnBearingSample(50, 1, never)
	assert.Equal(t, 5, tr.Target())
	assert.True(t, tr.Resolve(5))
	assert.False(t, tr.Resolve(5))
	assert.False(t, tr.Resolve(99))
	assert.True(t, tr.IsResolved(5))
	assert.Equal(t, 6, tr.Target())
	assert.Equal(t, 7, tr.NextTarget(70))
}

func TestSnapshotRoundTrip(t *testing.T) {
	tr, err := New(30)
	require.NoError(t, err)
	tr.OnBearingSample(0, 1, always)
	tr.OnBearingSample(45, 2, always)
	tr.OnBearingSample(100, 3, never)

	path := filepath.Join(t.TempDir(), "coverage.yaml")
	require.NoError(t, tr.SaveSnapshot(path))

	restored, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, tr.Snapshot(), restored.Snapshot())
	assert.Equal(t, []int{2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, restored.Remaining())
	assert.Equal(t, 3, restored.Target())
}

func TestRestoreRejectsBadSnapshot(t *testing.T) {
	_, err := Restore(Snapshot{Increment: 10, Unfilled: []int{40}})
	assert.Error(t, err)
	_, err = Restore(Snapshot{Increment: 10, Current: 36})
	assert.Error(t, err)
	_, err = Restore(Snapshot{Increment: 0})
	assert.Error(t, err)
}
