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

import "path/filepath"

// File names of the streams that make up a free recording directory. The
// frame stream's header sidecar is FramesFile + ".head".
const (
	FramesFile      = "frames.rec"
	OrientationFile = "orientation.rec"
	LocationFile    = "location.rec"
	SensorFile      = "sensor.rec"
)

// Session locates the streams of one free recording.
type Session string

func (s Session) Frames() string       { return filepath.Join(string(s), FramesFile) }
func (s Session) FramesHeader() string { return filepath.Join(string(s), FramesFile+".head") }
func (s Session) Orientation() string  { return filepath.Join(string(s), OrientationFile) }
func (s Session) Location() string     { return filepath.Join(string(s), LocationFile) }
func (s Session) Sensor() string       { return filepath.Join(string(s), SensorFile) }
