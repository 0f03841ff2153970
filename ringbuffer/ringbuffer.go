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
	"errors"
	"sync"
)

// Buffer stores the most recent samples in a loop that overwrites the
// oldest sample when full. Payload slots are allocated once and samples are
// copied in and out; storage is never handed to callers.
type Buffer struct {
	mu          sync.Mutex
	payloadSize int
	timestamps  []int64
	slots       [][]byte
	head        int // next slot to write
	tail        int // oldest unread slot
	length      int
}

// New returns a Buffer holding up to capacity payloads of payloadSize bytes.
func New(capacity, payloadSize int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, errors.New("ring buffer capacity must be positive")
	}
	if payloadSize <= 0 {
		return nil, errors.New("ring buffer payload size must be positive")
	}

	slots := make([][]byte, capacity)
	for i := range slots {
		slots[i] = make([]byte, payloadSize)
	}
	return &Buffer{
		payloadSize: payloadSize,
		timestamps:  make([]int64, capacity),
		slots:       slots,
	}, nil
}

func (b *Buffer) nextIndexAfter(index int) int {
	return (index + 1) % len(b.slots)
}

// Push copies payload into the next slot, evicting the oldest sample if the
// buffer is full. It returns the remaining capacity.
func (b *Buffer) Push(timestamp int64, payload []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.length == len(b.slots) {
		b.tail = b.nextIndexAfter(b.tail)
		b.length--
	}

	slot := b.slots[b.head]
	n := copy(slot, payload)
	for i := n; i < len(slot); i++ {
		slot[i] = 0
	}
	b.timestamps[b.head] = timestamp
	b.head = b.nextIndexAfter(b.head)
	b.length++

	return len(b.slots) - b.length
}

// Pop removes the oldest sample, copying its payload into out (which may be
// nil).
func (b *Buffer) Pop(out []byte) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.length == 0 {
		return 0, false
	}
	ts := b.read(b.tail, out)
	b.tail = b.nextIndexAfter(b.tail)
	b.length--
	return ts, true
}

// Peek copies the oldest sample without removing it.
func (b *Buffer) Peek(out []byte) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.length == 0 {
		return 0, false
	}
	return b.read(b.tail, out), true
}

// PeekNewest returns the timestamp of the most recently pushed sample.
func (b *Buffer) PeekNewest() (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.length == 0 {
		return 0, false
	}
	return b.timestamps[b.newestIndex()], true
}

// FindBest returns the sample closest to target within epsilon. Ties go to
// the oldest candidate.
func (b *Buffer) FindBest(target, epsilon int64, out []byte) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	best := -1
	var bestDiff int64
	b.scan(func(index int) bool {
		diff := absDiff(b.timestamps[index], target)
		if diff > epsilon {
			return true
		}
		if best < 0 || diff < bestDiff {
			best, bestDiff = index, diff
			if diff == 0 {
				return false
			}
		}
		return true
	})
	if best < 0 {
		return 0, false
	}
	return b.read(best, out), true
}

// FindFirst returns the oldest sample within epsilon of target.
func (b *Buffer) FindFirst(target, epsilon int64, out []byte) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	found := -1
	b.scan(func(index int) bool {
		if absDiff(b.timestamps[index], target) <= epsilon {
			found = index
			return false
		}
		return true
	})
	if found < 0 {
		return 0, false
	}
	return b.read(found, out), true
}

// FindGreaterOrEqual returns the newest sample if it was taken at or after
// target.
func (b *Buffer) FindGreaterOrEqual(target int64, out []byte) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.length == 0 {
		return 0, false
	}
	newest := b.newestIndex()
	if b.timestamps[newest] < target {
		return 0, false
	}
	return b.read(newest, out), true
}

// Len returns the number of stored samples.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length
}

// Cap returns the number of slots.
func (b *Buffer) Cap() int {
	return len(b.slots)
}

// PayloadSize returns the size of every slot.
func (b *Buffer) PayloadSize() int {
	return b.payloadSize
}

// Clear discards all samples.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head, b.tail, b.length = 0, 0, 0
}

func (b *Buffer) newestIndex() int {
	return (b.head - 1 + len(b.slots)) % len(b.slots)
}

// scan visits stored samples oldest first until visit returns false.
func (b *Buffer) scan(visit func(index int) bool) {
	index := b.tail
	for i := 0; i < b.length; i++ {
		if !visit(index) {
			return
		}
		index = b.nextIndexAfter(index)
	}
}

func (b *Buffer) read(index int, out []byte) int64 {
	if out != nil {
		copy(out, b.slots[index])
	}
	return b.timestamps[index]
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
