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

package headers

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v1"
)

// Header keys. Camera services send the first six; bucket store sidecars
// add the rest.
const (
	XResolution = "ResX"
	YResolution = "ResY"
	FPS         = "FPS"
	FrameSize   = "FrameSize"
	Brand       = "Brand"
	Model       = "Model"
	Increment   = "Increment"
	Buckets     = "Buckets"
	Session     = "Session"
	DeviceName  = "DeviceName"
	Created     = "Created"

	// OrientationVersion is the record version of a free recording's
	// orientation stream.
	OrientationVersion = "OrientationVersion"
)

// HeaderInfo describes a frame source: the camera at the other end of a
// frame socket, or the camera and sweep that produced a bucket store.
type HeaderInfo struct {
	resX       int
	resY       int
	fps        int
	framesize  int
	brand      string
	model      string
	increment  float64
	buckets    int
	session    string
	deviceName string
	created    time.Time

	orientationVersion int
}

func NewHeaderInfo(resX, resY, fps, frameSize int, brand, model string) *HeaderInfo {
	return &HeaderInfo{
		resX:      resX,
		resY:      resY,
		fps:       fps,
		framesize: frameSize,
		brand:     brand,
		model:     model,
	}
}

// WithStore returns a copy of h describing a bucket store.
func (h *HeaderInfo) WithStore(increment float64, buckets int, session, deviceName string, created time.Time) *HeaderInfo {
	c := *h
	c.increment = increment
	c.buckets = buckets
	c.session = session
	c.deviceName = deviceName
	c.created = created
	return &c
}

// WithOrientationVersion returns a copy of h for a recording whose
// orientation stream has the given record version.
func (h *HeaderInfo) WithOrientationVersion(version int) *HeaderInfo {
	c := *h
	c.orientationVersion = version
	return &c
}

func (h *HeaderInfo) ResX() int          { return h.resX }
func (h *HeaderInfo) ResY() int          { return h.resY }
func (h *HeaderInfo) FPS() int           { return h.fps }
func (h *HeaderInfo) FrameSize() int     { return h.framesize }
func (h *HeaderInfo) Brand() string      { return h.brand }
func (h *HeaderInfo) Model() string      { return h.model }
func (h *HeaderInfo) Increment() float64 { return h.increment }
func (h *HeaderInfo) Buckets() int       { return h.buckets }
func (h *HeaderInfo) Session() string    { return h.session }
func (h *HeaderInfo) DeviceName() string { return h.deviceName }
func (h *HeaderInfo) Created() time.Time { return h.created }

// OrientationVersion is zero when the header does not describe a recording
// with an orientation stream.
func (h *HeaderInfo) OrientationVersion() int { return h.orientationVersion }

// ReadHeaderInfo reads YAML header lines up to the first blank line.
func ReadHeaderInfo(reader *bufio.Reader) (*HeaderInfo, error) {
	var buf bytes.Buffer
	for {
		line, err := reader.ReadString(byte('\n'))
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(line) == "" {
			break
		}
		buf.WriteString(line)
	}
	h := make(map[string]interface{})
	err := yaml.Unmarshal(buf.Bytes(), &h)
	if err != nil {
		return nil, err
	}

	info := &HeaderInfo{
		resX:       toInt(h[XResolution]),
		resY:       toInt(h[YResolution]),
		fps:        toInt(h[FPS]),
		framesize:  toInt(h[FrameSize]),
		brand:      toStr(h[Brand]),
		model:      toStr(h[Model]),
		increment:  toFloat(h[Increment]),
		buckets:    toInt(h[Buckets]),
		session:    toStr(h[Session]),
		deviceName: toStr(h[DeviceName]),
		created:    toTime(h[Created]),

		orientationVersion: toInt(h[OrientationVersion]),
	}
	if info.framesize <= 0 {
		return nil, errors.New("header is missing a frame size")
	}
	return info, nil
}

// WriteHeaderInfo writes h in the form read by ReadHeaderInfo. Unset
// fields are left out.
func WriteHeaderInfo(w io.Writer, h *HeaderInfo) error {
	fields := map[string]interface{}{
		XResolution: h.resX,
		YResolution: h.resY,
		FPS:         h.fps,
		FrameSize:   h.framesize,
	}
	if h.brand != "" {
		fields[Brand] = h.brand
	}
	if h.model != "" {
		fields[Model] = h.model
	}
	if h.increment > 0 {
		fields[Increment] = h.increment
	}
	if h.buckets > 0 {
		fields[Buckets] = h.buckets
	}
	if h.session != "" {
		fields[Session] = h.session
	}
	if h.deviceName != "" {
		fields[DeviceName] = h.deviceName
	}
	if !h.created.IsZero() {
		fields[Created] = h.created.UTC().Format(time.RFC3339Nano)
	}
	if h.orientationVersion > 0 {
		fields[OrientationVersion] = h.orientationVersion
	}
	out, err := yaml.Marshal(fields)
	if err != nil {
		return err
	}
	_, err = w.Write(append(out, '\n'))
	return err
}

func toInt(v interface{}) int {
	out, ok := v.(int)
	if !ok {
		return 0
	}
	return out
}

func toFloat(v interface{}) float64 {
	switch out := v.(type) {
	case float64:
		return out
	case int:
		return float64(out)
	}
	return 0
}

func toStr(v interface{}) string {
	switch out := v.(type) {
	case string:
		return out
	case int:
		// Numeric device names come back as numbers.
		return strings.TrimSpace(yamlScalar(out))
	}
	return ""
}

func toTime(v interface{}) time.Time {
	switch out := v.(type) {
	case time.Time:
		return out
	case string:
		t, err := time.Parse(time.RFC3339Nano, out)
		if err == nil {
			return t
		}
	}
	return time.Time{}
}

func yamlScalar(v interface{}) string {
	out, err := yaml.Marshal(v)
	if err != nil {
		return ""
	}
	return string(out)
}
