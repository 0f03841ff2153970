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

// Package capture turns live camera frames and orientation samples into
// recordings: bearing indexed sweeps written to a bucket store, and free
// sequential recordings used for replay.
package capture

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/TheCacophonyProject/bearing-recorder/loglimiter"
)

const (
	DefaultQueueSize      = 32
	DefaultEnqueueRetries = 3
	DefaultEnqueueBackoff = 2 * time.Millisecond
	DefaultGrace          = 60 * time.Millisecond
)

var (
	ErrQueueFull = errors.New("write queue full")
	ErrStopped   = errors.New("stopped")
)

// QueueOptions tune the bounded queue between the capture goroutines and
// the single writer goroutine.
type QueueOptions struct {
	QueueSize      int
	EnqueueRetries int
	EnqueueBackoff time.Duration
	// Grace bounds how long Stop waits for queued writes.
	Grace time.Duration
}

func (o QueueOptions) withDefaults() QueueOptions {
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.EnqueueRetries <= 0 {
		o.EnqueueRetries = DefaultEnqueueRetries
	}
	if o.EnqueueBackoff <= 0 {
		o.EnqueueBackoff = DefaultEnqueueBackoff
	}
	if o.Grace <= 0 {
		o.Grace = DefaultGrace
	}
	return o
}

type envelope[J any] struct {
	job    J
	poison bool
}

// writeQueue feeds jobs to one writer goroutine. The first write error is
// fatal: it is kept, Failed is closed and later jobs are discarded.
type writeQueue[J any] struct {
	name    string
	opts    QueueOptions
	write   func(J) error
	discard func(J)
	jobs    chan envelope[J]
	// slots bounds queued jobs to QueueSize, leaving the last channel slot
	// for the poison job.
	slots   chan struct{}
	limiter *loglimiter.LogLimiter

	// mu is held for reading while enqueueing so that Stop cannot slip a
	// poison job in ahead of a send in progress.
	mu      sync.RWMutex
	started bool
	stopped bool

	errMu    sync.Mutex
	err      error
	failed   chan struct{}
	failOnce sync.Once
	done     chan struct{}
}

func newWriteQueue[J any](name string, opts QueueOptions, write func(J) error, discard func(J)) *writeQueue[J] {
	opts = opts.withDefaults()
	return &writeQueue[J]{
		name:    name,
		opts:    opts,
		write:   write,
		discard: discard,
		jobs:    make(chan envelope[J], opts.QueueSize+1),
		slots:   make(chan struct{}, opts.QueueSize),
		limiter: loglimiter.New(time.Minute),
		failed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (q *writeQueue[J]) start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.started = true
	go q.run()
}

func (q *writeQueue[J]) enqueue(j J) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return ErrStopped
	}
	if err := q.Err(); err != nil {
		return err
	}
	e := envelope[J]{job: j}
	for attempt := 0; attempt < q.opts.EnqueueRetries; attempt++ {
		select {
		case q.slots <- struct{}{}:
			q.jobs <- e
			return nil
		default:
		}
		time.Sleep(q.opts.EnqueueBackoff)
	}
	q.limiter.PrintfKey(q.name+"-full", "%s queue full, dropping write", q.name)
	return ErrQueueFull
}

func (q *writeQueue[J]) run() {
	defer close(q.done)
	for e := range q.jobs {
		if e.poison {
			q.drain()
			return
		}
		<-q.slots
		q.handle(e.job)
	}
}

// drain writes whatever was queued ahead of a late enqueue after the poison
// job.
func (q *writeQueue[J]) drain() {
	for {
		select {
		case e := <-q.jobs:
			if !e.poison {
				<-q.slots
				q.handle(e.job)
			}
		default:
			return
		}
	}
}

func (q *writeQueue[J]) handle(j J) {
	if q.Err() != nil {
		if q.discard != nil {
			q.discard(j)
		}
		return
	}
	if err := q.write(j); err != nil {
		q.fail(fmt.Errorf("%s write failed: %w", q.name, err))
	}
}

func (q *writeQueue[J]) fail(err error) {
	q.failOnce.Do(func() {
		log.Print(err)
		q.errMu.Lock()
		q.err = err
		q.errMu.Unlock()
		close(q.failed)
	})
}

// Err returns the fatal write error, if any.
func (q *writeQueue[J]) Err() error {
	q.errMu.Lock()
	defer q.errMu.Unlock()
	return q.err
}

// stop lets the writer finish queued jobs, waiting at most the grace
// period. It is safe to call more than once.
func (q *writeQueue[J]) stop() error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return q.Err()
	}
	q.stopped = true
	started := q.started
	q.mu.Unlock()

	if !started {
		return q.Err()
	}
	grace := time.NewTimer(q.opts.Grace)
	defer grace.Stop()
	select {
	case q.jobs <- envelope[J]{poison: true}:
	case <-grace.C:
		log.Printf("%s writer still busy after %s", q.name, q.opts.Grace)
		return q.Err()
	}
	select {
	case <-q.done:
	case <-grace.C:
		log.Printf("%s writer still busy after %s", q.name, q.opts.Grace)
	}
	return q.Err()
}
