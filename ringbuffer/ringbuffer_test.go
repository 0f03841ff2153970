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

package ringbuffer

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const FIVE_SLOT_BUFFER = 5

func newTestBuffer(t *testing.T, timestamps ...int64) *Buffer {
	b, err := New(FIVE_SLOT_BUFFER, 8)
	require.NoError(t, err)
	for _, ts := range timestamps {
		b.Push(ts, payloadFor(ts))
	}
	return b
}

// payloadFor tags each payload with its timestamp so copies can be checked.
func payloadFor(ts int64) []byte {
	p := make([]byte, 8)
	binary.LittleEndian.PutUint64(p, uint64(ts))
	return p
}

func getId(payload []byte) int64 {
	return int64(binary.LittleEndian.Uint64(payload))
}

func popAll(b *Buffer) []int64 {
	var ids []int64
	out := make([]byte, b.PayloadSize())
	for {
		ts, ok := b.Pop(out)
		if !ok {
			return ids
		}
		ids = append(ids, getId(out))
		if ts != getId(out) {
			panic("payload does not match timestamp")
		}
	}
}

func TestInvalidConstruction(t *testing.T) {
	_, err := New(0, 10)
	assert.Error(t, err)
	_, err = New(10, 0)
	assert.Error(t, err)
}

func TestPushReturnsRemainingCapacity(t *testing.T) {
	b := newTestBuffer(t)
	assert.Equal(t, 4, b.Push(1, payloadFor(1)))
	assert.Equal(t, 3, b.Push(2, payloadFor(2)))
	b.Push(3, payloadFor(3))
	b.Push(4, payloadFor(4))
	assert.Equal(t, 0, b.Push(5, payloadFor(5)))
	assert.Equal(t, 0, b.Push(6, payloadFor(6)))
	assert.Equal(t, FIVE_SLOT_BUFFER, b.Len())
}

func TestPopReturnsPushOrder(t *testing.T) {
	b := newTestBuffer(t, 10, 20, 30, 40)
	assert.Equal(t, []int64{10, 20, 30, 40}, popAll(b))

	_, ok := b.Pop(nil)
	assert.False(t, ok)
}

func TestPushEvictsOldestWhenFull(t *testing.T) {
	b := newTestBuffer(t, 1, 2, 3, 4, 5, 6)
	assert.Equal(t, []int64{2, 3, 4, 5, 6}, popAll(b))
}

func TestBufferLoopsRoundSlots(t *testing.T) {
	b := newTestBuffer(t, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12)
	assert.Equal(t, []int64{8, 9, 10, 11, 12}, popAll(b))

	b.Push(13, payloadFor(13))
	assert.Equal(t, []int64{13}, popAll(b))
}

func TestPeekDoesNotRemove(t *testing.T) {
	b := newTestBuffer(t, 7, 8)
	out := make([]byte, 8)

	ts, ok := b.Peek(out)
	assert.True(t, ok)
	assert.Equal(t, int64(7), ts)
	assert.Equal(t, int64(7), getId(out))
	assert.Equal(t, 2, b.Len())

	newest, ok := b.PeekNewest()
	assert.True(t, ok)
	assert.Equal(t, int64(8), newest)
}

func TestPeekEmpty(t *testing.T) {
	b := newTestBuffer(t)
	_, ok := b.Peek(nil)
	assert.False(t, ok)
	_, ok = b.PeekNewest()
	assert.False(t, ok)
}

func TestFindBestPrefersSmallestDifference(t *testing.T) {
	b := newTestBuffer(t, 100, 105, 200)
	out := make([]byte, 8)

	ts, ok := b.FindBest(103, 10, out)
	assert.True(t, ok)
	assert.Equal(t, int64(105), ts)
	assert.Equal(t, int64(105), getId(out))
	assert.Equal(t, 3, b.Len())
}

func TestFindBestTieGoesToOldest(t *testing.T) {
	b := newTestBuffer(t, 100, 110)
	ts, ok := b.FindBest(105, 10, nil)
	assert.True(t, ok)
	assert.Equal(t, int64(100), ts)
}

func TestFindBestOutsideTolerance(t *testing.T) {
	b := newTestBuffer(t, 100, 105, 200)
	_, ok := b.FindBest(150, 10, nil)
	assert.False(t, ok)
}

func TestFindFirstReturnsOldestMatch(t *testing.T) {
	b := newTestBuffer(t, 100, 105, 200)
	ts, ok := b.FindFirst(103, 10, nil)
	assert.True(t, ok)
	assert.Equal(t, int64(100), ts)

	_, ok = b.FindFirst(300, 10, nil)
	assert.False(t, ok)
}

func TestFindGreaterOrEqual(t *testing.T) {
	b := newTestBuffer(t, 100, 105, 200)
	out := make([]byte, 8)

	ts, ok := b.FindGreaterOrEqual(200, out)
	assert.True(t, ok)
	assert.Equal(t, int64(200), ts)
	assert.Equal(t, int64(200), getId(out))

	_, ok = b.FindGreaterOrEqual(201, out)
	assert.False(t, ok)
}

func TestSearchAfterWrap(t *testing.T) {
	b := newTestBuffer(t, 10, 20, 30, 40, 50, 60, 70)
	_, ok := b.FindBest(20, 5, nil)
	assert.False(t, ok, "evicted sample should not be found")

	ts, ok := b.FindBest(68, 5, nil)
	assert.True(t, ok)
	assert.Equal(t, int64(70), ts)
}

func TestPushPadsShortPayload(t *testing.T) {
	b := newTestBuffer(t, 1)
	b.Pop(nil)
	b.Push(2, []byte{0xff})

	out := make([]byte, 8)
	b.Pop(out)
	assert.Equal(t, []byte{0xff, 0, 0, 0, 0, 0, 0, 0}, out)
}

func TestClear(t *testing.T) {
	b := newTestBuffer(t, 1, 2, 3)
	b.Clear()
	assert.Equal(t, 0, b.Len())
	b.Push(4, payloadFor(4))
	assert.Equal(t, []int64{4}, popAll(b))
}

func TestCapacityFor(t *testing.T) {
	assert.Equal(t, MinCapacity, capacityFor(10, 100))
	assert.Equal(t, 100, capacityFor(100*1000, 1000))
	assert.Equal(t, MaxCapacity, capacityFor(1<<40, 10))
	assert.Equal(t, MinCapacity, capacityFor(1<<20, 0))
}
