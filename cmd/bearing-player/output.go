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

package main

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/TheCacophonyProject/bearing-recorder/headers"
	"github.com/TheCacophonyProject/bearing-recorder/loglimiter"
	"github.com/TheCacophonyProject/bearing-recorder/replay"
)

// frameOutput sends a camera header followed by fixed size frames, as a
// camera service does.
type frameOutput struct {
	mu        sync.Mutex
	w         io.Writer
	frameSize int
	padding   []byte
	frames    uint64
	limiter   *loglimiter.LogLimiter
}

func dialFrameOutput(path string) (*net.UnixConn, error) {
	return net.DialUnix("unix", nil, &net.UnixAddr{
		Net:  "unix",
		Name: path,
	})
}

func newFrameOutput(w io.Writer, h *headers.HeaderInfo) (*frameOutput, error) {
	if err := headers.WriteHeaderInfo(w, h); err != nil {
		return nil, err
	}
	return &frameOutput{
		w:         w,
		frameSize: h.FrameSize(),
		padding:   make([]byte, h.FrameSize()),
		limiter:   loglimiter.New(time.Minute),
	}, nil
}

// OnFrame writes a frame, zero padding it to the frame size.
func (o *frameOutput) OnFrame(payload []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(payload) > o.frameSize {
		payload = payload[:o.frameSize]
	}
	if _, err := o.w.Write(payload); err != nil {
		o.limiter.PrintfKey("write", "frame output write failed: %v", err)
		return
	}
	if pad := o.frameSize - len(payload); pad > 0 {
		if _, err := o.w.Write(o.padding[:pad]); err != nil {
			o.limiter.PrintfKey("write", "frame output write failed: %v", err)
			return
		}
	}
	o.frames++
}

func (o *frameOutput) onReplayFrame(f *replay.Frame) {
	o.OnFrame(f.Data)
	f.Release()
}

func (o *frameOutput) count() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.frames
}
