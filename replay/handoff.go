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

package replay

import (
	"sync"
	"time"
)

// handoff passes the primary stream's latest timestamp to one auxiliary
// stream. It holds a single value; publishing overwrites an unread value.
type handoff struct {
	mu     sync.Mutex
	ts     int64
	has    bool
	notify chan struct{}

	closed    chan struct{}
	closeOnce sync.Once
}

func newHandoff() *handoff {
	return &handoff{
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (h *handoff) publish(ts int64) {
	h.mu.Lock()
	h.ts = ts
	h.has = true
	h.mu.Unlock()
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// take returns the unread value, if any, without waiting.
func (h *handoff) take() (int64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.has {
		return 0, false
	}
	h.has = false
	return h.ts, true
}

// poll waits up to wait for a value.
func (h *handoff) poll(wait time.Duration) (int64, bool) {
	if ts, ok := h.take(); ok {
		return ts, true
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-h.notify:
	case <-timer.C:
	case <-h.closed:
	}
	return h.take()
}

func (h *handoff) close() {
	h.closeOnce.Do(func() { close(h.closed) })
}

func (h *handoff) isClosed() bool {
	select {
	case <-h.closed:
		return true
	default:
		return false
	}
}
