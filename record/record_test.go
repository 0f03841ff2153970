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

package record

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/bearing-recorder/location"
	"github.com/TheCacophonyProject/bearing-recorder/orientation"
)

func TestFrameStream(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	require.NoError(t, fw.WriteFrame(100, []byte{1, 2, 3}))
	require.NoError(t, fw.WriteEmpty(200))
	require.NoError(t, fw.WriteFrame(300, []byte{4, 5}))
	require.NoError(t, fw.Flush())

	// 8 byte timestamp + 8 byte size per record.
	assert.Equal(t, 16*3+5, buf.Len())
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 100}, buf.Bytes()[:8])

	fr := NewFrameReader(&buf)
	h, err := fr.Next()
	require.NoError(t, err)
	assert.Equal(t, FrameHeader{Timestamp: 100, Size: 3}, h)
	payload := make([]byte, 3)
	n, err := fr.ReadPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{1, 2, 3}, payload)

	h, err = fr.Next()
	require.NoError(t, err)
	assert.Equal(t, FrameHeader{Timestamp: 200, Size: 0}, h)

	// Unread payloads are skipped.
	h, err = fr.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(300), h.Timestamp)

	_, err = fr.Next()
	assert.Equal(t, io.EOF, err)
}

func TestFrameShortRead(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	require.NoError(t, fw.WriteFrame(1, []byte{1, 2, 3, 4}))
	require.NoError(t, fw.Flush())
	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-2])

	fr := NewFrameReader(truncated)
	h, err := fr.Next()
	require.NoError(t, err)
	payload := make([]byte, h.Size)
	n, err := fr.ReadPayload(payload)
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{1, 2, 0, 0}, payload)

	_, err = fr.Next()
	assert.Equal(t, io.EOF, err)
}

func TestFrameTruncatedHeader(t *testing.T) {
	fr := NewFrameReader(bytes.NewReader([]byte{0, 0, 0, 0, 0, 0, 0, 1, 0, 0}))
	_, err := fr.Next()
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestFrameInvalidSize(t *testing.T) {
	fr := NewFrameReader(bytes.NewReader([]byte{
		0, 0, 0, 0, 0, 0, 0, 1,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	}))
	_, err := fr.Next()
	assert.Error(t, err)
}

func TestOrientationStream(t *testing.T) {
	r := make([]float32, 16)
	r[2] = -1
	s := orientation.NewSample(42, [4]float32{0.1, 0.2, 0.3, 0.9}, r)

	for _, withBearing := range []bool{false, true} {
		var buf bytes.Buffer
		ow := NewOrientationWriter(&buf, withBearing)
		require.NoError(t, ow.Write(s))
		require.NoError(t, ow.Flush())

		expectedLen := 8 + 16 + 4 + 64
		if withBearing {
			expectedLen += 4
		}
		assert.Equal(t, expectedLen, buf.Len())

		or := NewOrientationReader(&buf, withBearing)
		got, err := or.Next()
		require.NoError(t, err)
		assert.Equal(t, s.Timestamp, got.Timestamp)
		assert.Equal(t, s.Q, got.Q)
		assert.Equal(t, s.R, got.R)
		assert.Equal(t, withBearing, got.HasBearing())
		assert.InDelta(t, 90, got.Bearing(), 0.001)

		_, err = or.Next()
		assert.Equal(t, io.EOF, err)
	}
}

func TestOrientationRejectsBadMatrixLength(t *testing.T) {
	var buf bytes.Buffer
	ow := NewOrientationWriter(&buf, false)
	assert.Error(t, ow.Write(orientation.NewSample(1, [4]float32{}, make([]float32, 17))))
}

func TestLocationStream(t *testing.T) {
	l := Location{
		Timestamp: 77,
		Fix: location.Fix{
			Provider:  location.GPS,
			Latitude:  -43.5,
			Longitude: 172.6,
			Altitude:  12,
			Accuracy:  4.5,
		},
	}
	var buf bytes.Buffer
	lw := NewLocationWriter(&buf)
	require.NoError(t, lw.Write(l))
	require.NoError(t, lw.Flush())
	assert.Equal(t, 8+1+24+4, buf.Len())

	lr := NewLocationReader(&buf)
	got, err := lr.Next()
	require.NoError(t, err)
	assert.Equal(t, l, got)
	_, err = lr.Next()
	assert.Equal(t, io.EOF, err)
}

func TestSensorStream(t *testing.T) {
	var buf bytes.Buffer
	sw, err := NewSensorWriter(&buf, []int32{1, 4})
	require.NoError(t, err)
	e := SensorEvent{Type: 4, Timestamp: 9, Values: [SensorValues]float32{1, 2, 3, 4, 5}}
	require.NoError(t, sw.Write(e))
	require.NoError(t, sw.Flush())

	sr, err := NewSensorReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 4}, sr.Types())
	got, err := sr.Next()
	require.NoError(t, err)
	assert.Equal(t, e, got)
	_, err = sr.Next()
	assert.Equal(t, io.EOF, err)
}
