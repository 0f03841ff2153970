// bearing-recorder - record and replay camera sweeps indexed by device bearing
// Copyright (C) 2019, The Cacophony Project
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

package loglimiter

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// New returns a new LogLimiter with the configured minimum log interval.
func New(interval time.Duration) *LogLimiter {
	return &LogLimiter{
		interval: interval,
		nowFunc:  time.Now,
		entries:  make(map[string]*entry),
	}
}

// LogLimiter suppresses log messages that repeat within an interval. Plain
// messages are keyed by their text; messages logged with PrintfKey share a
// key so that messages with changing details (offsets, timestamps) are
// limited together. It is safe for concurrent use.
type LogLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	nowFunc  func() time.Time
	entries  map[string]*entry
}

type entry struct {
	last       time.Time
	suppressed int
}

func (limiter *LogLimiter) Printf(format string, v ...interface{}) {
	limiter.Print(fmt.Sprintf(format, v...))
}

func (limiter *LogLimiter) Print(s string) {
	limiter.print(s, s)
}

// PrintfKey logs a message unless another message with the same key was
// logged within the interval.
func (limiter *LogLimiter) PrintfKey(key, format string, v ...interface{}) {
	limiter.print(key, fmt.Sprintf(format, v...))
}

// Suppressed returns how many messages for key are currently held back.
func (limiter *LogLimiter) Suppressed(key string) int {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if e, ok := limiter.entries[key]; ok {
		return e.suppressed
	}
	return 0
}

func (limiter *LogLimiter) print(key, s string) {
	limiter.mu.Lock()
	now := limiter.nowFunc()
	e, ok := limiter.entries[key]
	if ok && now.Sub(e.last) < limiter.interval {
		e.suppressed++
		limiter.mu.Unlock()
		return
	}
	if !ok {
		e = new(entry)
		limiter.entries[key] = e
	}
	suppressed := e.suppressed
	e.last = now
	e.suppressed = 0
	limiter.expire(now)
	limiter.mu.Unlock()

	if suppressed > 0 {
		log.Printf("%s (%d similar suppressed)", s, suppressed)
	} else {
		log.Print(s)
	}
}

// expire drops keys that have been quiet for a while so one-off messages
// don't accumulate.
func (limiter *LogLimiter) expire(now time.Time) {
	for key, e := range limiter.entries {
		if e.suppressed == 0 && now.Sub(e.last) > 10*limiter.interval {
			delete(limiter.entries, key)
		}
	}
}
