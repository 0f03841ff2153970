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
	"bufio"
	"bytes"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/bearing-recorder/headers"
	"github.com/TheCacophonyProject/bearing-recorder/location"
	"github.com/TheCacophonyProject/bearing-recorder/orientation"
	"github.com/TheCacophonyProject/bearing-recorder/record"
	"github.com/TheCacophonyProject/bearing-recorder/store"
)

const msec = int64(time.Millisecond)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) frames(t *testing.T) [][]byte {
	b.mu.Lock()
	data := append([]byte(nil), b.buf.Bytes()...)
	b.mu.Unlock()

	r := bufio.NewReader(bytes.NewReader(data))
	h, err := headers.ReadHeaderInfo(r)
	require.NoError(t, err)
	var frames [][]byte
	for {
		frame := make([]byte, h.FrameSize())
		if _, err := io.ReadFull(r, frame); err != nil {
			return frames
		}
		frames = append(frames, frame)
	}
}

func camera() *headers.HeaderInfo {
	return headers.NewHeaderInfo(2, 1, 9, 2, "acme", "cam")
}

// makeSweep stores {bucket, 0xaa} in each of four buckets.
func makeSweep(t *testing.T, dir string) {
	h := camera().WithStore(90, 4, "capture-1", "hilltop", time.Now())
	w, err := store.Create(record.Session(dir).Frames(), h)
	require.NoError(t, err)
	for b := 0; b < 4; b++ {
		require.NoError(t, w.WriteBucket(b, []byte{byte(b), 0xaa}))
	}
	require.NoError(t, w.Close())
}

func sample(ts int64, bearing float32) orientation.Sample {
	s := orientation.NewSample(ts, [4]float32{0, 0, 0, 1}, nil)
	s.SetBearing(bearing)
	return s
}

// makeRecording writes a free recording with frames every 20ms and the
// camera turning to 180 degrees after the first frame.
func makeRecording(t *testing.T, dir string, frames int) {
	rec := record.Session(dir)

	hf, err := os.Create(rec.FramesHeader())
	require.NoError(t, err)
	require.NoError(t, headers.WriteHeaderInfo(hf, camera().WithOrientationVersion(record.OrientationV2)))
	require.NoError(t, hf.Close())

	ff, err := os.Create(rec.Frames())
	require.NoError(t, err)
	fw := record.NewFrameWriter(ff)
	for i := 0; i < frames; i++ {
		require.NoError(t, fw.WriteFrame(int64(i)*20*msec, []byte{byte(i), 0xbb}))
	}
	require.NoError(t, fw.Flush())
	require.NoError(t, ff.Close())

	of, err := os.Create(rec.Orientation())
	require.NoError(t, err)
	ow := record.NewOrientationWriter(of, true)
	require.NoError(t, ow.Write(sample(0, 0)))
	require.NoError(t, ow.Write(sample(10*msec, 180)))
	require.NoError(t, ow.Flush())
	require.NoError(t, of.Close())

	lf, err := os.Create(rec.Location())
	require.NoError(t, err)
	lw := record.NewLocationWriter(lf)
	require.NoError(t, lw.Write(record.Location{Timestamp: 0, Fix: location.Fix{
		Provider: location.Network, Latitude: -43.5, Longitude: 172.6,
	}}))
	require.NoError(t, lw.Flush())
	require.NoError(t, lf.Close())
}

func TestPlaysSweepByBearing(t *testing.T) {
	dir := t.TempDir()
	makeSweep(t, dir)
	conf, err := ParseConfig([]byte("sweep: " + dir))
	require.NoError(t, err)

	out := &syncBuffer{}
	p, err := newPlayer(conf, out, nil)
	require.NoError(t, err)
	require.NoError(t, p.start())

	require.NoError(t, p.setBearing(185))
	assert.Eventually(t, func() bool {
		frames := out.frames(t)
		return len(frames) > 0 && bytes.Equal(frames[len(frames)-1], []byte{2, 0xaa})
	}, 2*time.Second, time.Millisecond)
	assert.Error(t, p.setBearing(360))

	st := p.status()
	assert.Equal(t, 185.0, st.Bearing)
	assert.Equal(t, 2, st.Bucket)

	p.stop()
	require.NoError(t, p.wait())
}

func TestLiveOrientationMovesBearing(t *testing.T) {
	dir := t.TempDir()
	makeSweep(t, dir)
	conf, err := ParseConfig([]byte("sweep: " + dir))
	require.NoError(t, err)

	p, err := newPlayer(conf, &syncBuffer{}, nil)
	require.NoError(t, err)
	require.NoError(t, p.start())
	defer func() {
		p.stop()
		p.wait()
	}()

	p.onOrientation(sample(1, 275))
	assert.Eventually(t, func() bool { return p.status().Bucket == 3 }, 2*time.Second, time.Millisecond)
}

func TestRecordingDrivesSweep(t *testing.T) {
	sweepDir := t.TempDir()
	makeSweep(t, sweepDir)
	recDir := t.TempDir()
	makeRecording(t, recDir, 4)
	conf, err := ParseConfig([]byte("sweep: " + sweepDir + "\nrecording: " + recDir))
	require.NoError(t, err)

	out := &syncBuffer{}
	p, err := newPlayer(conf, out, nil)
	require.NoError(t, err)
	require.NoError(t, p.start())

	assert.Eventually(t, func() bool { return p.status().Bearing == 180 }, 2*time.Second, time.Millisecond)
	assert.Eventually(t, func() bool {
		frames := out.frames(t)
		return len(frames) > 0 && bytes.Equal(frames[len(frames)-1], []byte{2, 0xaa})
	}, 2*time.Second, time.Millisecond)

	p.stop()
	require.NoError(t, p.wait())
}

func TestReplaysRecording(t *testing.T) {
	dir := t.TempDir()
	makeRecording(t, dir, 3)
	conf, err := ParseConfig([]byte("mode: replay\nrecording: " + dir))
	require.NoError(t, err)

	out := &syncBuffer{}
	p, err := newPlayer(conf, out, nil)
	require.NoError(t, err)
	require.NoError(t, p.start())
	require.NoError(t, p.wait())

	assert.Equal(t, [][]byte{{0, 0xbb}, {1, 0xbb}, {2, 0xbb}}, out.frames(t))
	st := p.status()
	assert.Equal(t, 1, st.Iterations)
	assert.Equal(t, uint64(3), st.Frames)
	assert.Equal(t, errNoSweep, p.setBearing(10))
	assert.Equal(t, errNoSweep, p.review(0, 90, time.Millisecond, false))
}

func TestOutputPadsShortFrames(t *testing.T) {
	out := &syncBuffer{}
	o, err := newFrameOutput(out, camera())
	require.NoError(t, err)
	o.OnFrame([]byte{7})
	o.OnFrame([]byte{1, 2, 3})
	assert.Equal(t, [][]byte{{7, 0}, {1, 2}}, out.frames(t))
	assert.EqualValues(t, 2, o.count())
}
