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

package recorder

import "errors"

// ErrNotRecording is returned when frames arrive outside a recording.
var ErrNotRecording = errors.New("not recording")

// Recorder receives camera frames. Payloads are only valid for the duration
// of the WriteFrame call.
type Recorder interface {
	StopRecording() error
	StartRecording() error
	WriteFrame(ts int64, payload []byte) error
	CheckCanRecord() error
}

type NoWriteRecorder struct {
}

func (*NoWriteRecorder) StopRecording() error           { return nil }
func (*NoWriteRecorder) StartRecording() error          { return nil }
func (*NoWriteRecorder) WriteFrame(int64, []byte) error { return nil }
func (*NoWriteRecorder) CheckCanRecord() error          { return nil }
