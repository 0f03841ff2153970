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

package capture

import (
	"fmt"
	"sync"

	"github.com/TheCacophonyProject/bearing-recorder/metrics"
)

// BucketWriter stores one frame per bucket.
type BucketWriter interface {
	WriteBucket(bucket int, payload []byte) error
}

type bucketJob struct {
	bucket  int
	payload []byte
}

// Pipeline copies matched frames onto a bounded queue and writes them to a
// bucket store from a single goroutine.
type Pipeline struct {
	store     BucketWriter
	frameSize int
	queue     *writeQueue[bucketJob]
	metrics   *metrics.Metrics

	// spent recycles payload buffers between the writer and Enqueue.
	spent chan []byte

	hookMu    sync.Mutex
	onWritten func(bucket int)
}

func NewPipeline(store BucketWriter, frameSize int, opts QueueOptions, m *metrics.Metrics) (*Pipeline, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("invalid frame size %d", frameSize)
	}
	opts = opts.withDefaults()
	p := &Pipeline{
		store:     store,
		frameSize: frameSize,
		metrics:   metrics.OrNew(m),
		spent:     make(chan []byte, opts.QueueSize+1),
	}
	p.queue = newWriteQueue("bucket", opts, p.write, p.recycle)
	return p, nil
}

// OnWritten sets a hook called by the writer goroutine after each frame has
// been written to the store.
func (p *Pipeline) OnWritten(hook func(bucket int)) {
	p.hookMu.Lock()
	defer p.hookMu.Unlock()
	p.onWritten = hook
}

// Start launches the writer goroutine.
func (p *Pipeline) Start() {
	p.queue.start()
}

// Enqueue queues a copy of payload for bucket. ErrQueueFull means the frame
// was dropped; ErrStopped or a write error mean the pipeline is finished.
func (p *Pipeline) Enqueue(bucket int, payload []byte) error {
	buf := p.buffer()
	copy(buf, payload)
	err := p.queue.enqueue(bucketJob{bucket: bucket, payload: buf})
	if err != nil {
		p.recycle(bucketJob{payload: buf})
		if err == ErrQueueFull {
			p.metrics.FramesDropped.Add(1)
		}
	}
	return err
}

func (p *Pipeline) buffer() []byte {
	select {
	case buf := <-p.spent:
		return buf
	default:
		return make([]byte, p.frameSize)
	}
}

func (p *Pipeline) recycle(j bucketJob) {
	select {
	case p.spent <- j.payload:
	default:
	}
}

func (p *Pipeline) write(j bucketJob) error {
	defer p.recycle(j)
	if err := p.store.WriteBucket(j.bucket, j.payload); err != nil {
		p.metrics.WriteErrors.Add(1)
		return err
	}
	p.metrics.FramesWritten.Add(1)

	p.hookMu.Lock()
	hook := p.onWritten
	p.hookMu.Unlock()
	if hook != nil {
		hook(j.bucket)
	}
	return nil
}

// Failed is closed when a write fails.
func (p *Pipeline) Failed() <-chan struct{} {
	return p.queue.failed
}

// Err returns the write error that stopped the pipeline, if any.
func (p *Pipeline) Err() error {
	return p.queue.Err()
}

// Stop drains the queue and returns the write error, if any.
func (p *Pipeline) Stop() error {
	return p.queue.stop()
}
