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
	"bufio"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/bearing-recorder/headers"
	"github.com/TheCacophonyProject/bearing-recorder/location"
	"github.com/TheCacophonyProject/bearing-recorder/record"
	"github.com/TheCacophonyProject/bearing-recorder/recorder"
)

var _ recorder.Recorder = (*FreeRecorder)(nil)

func newTestFreeRecorder(t *testing.T) *FreeRecorder {
	fr, err := NewFreeRecorder(FreeConfig{
		OutputDir:   t.TempDir(),
		Header:      headers.NewHeaderInfo(2, 1, 9, 2, "acme", "cam"),
		DeviceName:  "hilltop",
		SensorTypes: []int32{1, 4},
		Location:    location.Fix{Provider: location.Network, Latitude: -43.5, Longitude: 172.6},
	})
	require.NoError(t, err)
	return fr
}

func TestFreeRecording(t *testing.T) {
	fr := newTestFreeRecorder(t)
	require.NoError(t, fr.StartRecording())
	dir := record.Session(fr.Dir())
	require.NotEmpty(t, dir)

	require.NoError(t, fr.WriteFrame(10, []byte{1, 2}))
	require.NoError(t, fr.WriteFrame(20, nil))
	require.NoError(t, fr.WriteFrame(30, []byte{3, 4}))
	fr.OnOrientationUpdate(bearingSample(15, 90))
	require.NoError(t, fr.OnLocation(25, location.Fix{Provider: location.GPS, Latitude: -43.6, Longitude: 172.7, Accuracy: 3}))
	require.NoError(t, fr.OnSensorEvent(record.SensorEvent{Type: 4, Timestamp: 12, Values: [5]float32{1, 2, 3}}))
	require.NoError(t, fr.StopRecording())
	assert.Empty(t, fr.Dir())

	hf, err := os.Open(dir.FramesHeader())
	require.NoError(t, err)
	defer hf.Close()
	h, err := headers.ReadHeaderInfo(bufio.NewReader(hf))
	require.NoError(t, err)
	assert.Equal(t, 2, h.FrameSize())
	assert.Equal(t, "hilltop", h.DeviceName())
	assert.NotEmpty(t, h.Session())
	assert.Equal(t, record.OrientationV2, h.OrientationVersion())

	ff, err := os.Open(dir.Frames())
	require.NoError(t, err)
	defer ff.Close()
	frames := record.NewFrameReader(ff)
	var sizes []int64
	for {
		hdr, err := frames.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, hdr.Size)
	}
	assert.Equal(t, []int64{2, 0, 2}, sizes)

	of, err := os.Open(dir.Orientation())
	require.NoError(t, err)
	defer of.Close()
	sample, err := record.NewOrientationReader(of, record.OrientationHasBearing(h.OrientationVersion())).Next()
	require.NoError(t, err)
	assert.Equal(t, int64(15), sample.Timestamp)
	assert.Equal(t, float32(90), sample.Bearing())

	lf, err := os.Open(dir.Location())
	require.NoError(t, err)
	defer lf.Close()
	locs := record.NewLocationReader(lf)
	first, err := locs.Next()
	require.NoError(t, err)
	assert.Equal(t, location.Network, first.Provider)
	second, err := locs.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(25), second.Timestamp)
	assert.True(t, second.IsGPS())

	sf, err := os.Open(dir.Sensor())
	require.NoError(t, err)
	defer sf.Close()
	sensors, err := record.NewSensorReader(sf)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 4}, sensors.Types())
	e, err := sensors.Next()
	require.NoError(t, err)
	assert.Equal(t, int32(4), e.Type)
	assert.Equal(t, float32(3), e.Values[2])
}

func TestFreeRecorderIgnoresWritesWhenStopped(t *testing.T) {
	fr := newTestFreeRecorder(t)
	assert.NoError(t, fr.WriteFrame(1, []byte{1, 1}))
	assert.NoError(t, fr.StopRecording())
}

func TestFreeRecorderHonoursWindow(t *testing.T) {
	fr := newTestFreeRecorder(t)
	fr.conf.CanRecord = func() error { return recorder.ErrOutsideWindow }
	assert.Equal(t, recorder.ErrOutsideWindow, fr.StartRecording())
	assert.Empty(t, fr.Dir())
}
