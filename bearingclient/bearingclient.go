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

// Package bearingclient calls the recorder and player D-Bus services.
package bearingclient

import (
	"time"

	"github.com/godbus/dbus"
)

const (
	recorderPath = "/org/cacophony/bearingrecorder"
	recorderDest = "org.cacophony.bearingrecorder"
	playerPath   = "/org/cacophony/bearingplayer"
	playerDest   = "org.cacophony.bearingplayer"
)

func getDbusObj(dest, path string) (dbus.BusObject, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	obj := conn.Object(dest, dbus.ObjectPath(path))
	return obj, nil
}

func callRecorder(method string, out interface{}, args ...interface{}) error {
	obj, err := getDbusObj(recorderDest, recorderPath)
	if err != nil {
		return err
	}
	call := obj.Call(recorderDest+"."+method, 0, args...)
	if out == nil {
		return call.Store()
	}
	return call.Store(out)
}

func callPlayer(method string, out interface{}, args ...interface{}) error {
	obj, err := getDbusObj(playerDest, playerPath)
	if err != nil {
		return err
	}
	call := obj.Call(playerDest+"."+method, 0, args...)
	if out == nil {
		return call.Store()
	}
	return call.Store(out)
}

// StartCapture starts a sweep and returns its directory. Zero uses the
// recorder's configured increment.
func StartCapture(increment float64) (string, error) {
	var dir string
	err := callRecorder("StartCapture", &dir, increment)
	return dir, err
}

func StartFreeRecording() (string, error) {
	var dir string
	err := callRecorder("StartFreeRecording", &dir)
	return dir, err
}

func StopCapture() error {
	return callRecorder("StopCapture", nil)
}

func Checkpoint() (string, error) {
	var path string
	err := callRecorder("Checkpoint", &path)
	return path, err
}

func Resume(dir string) error {
	return callRecorder("Resume", nil, dir)
}

func RecorderStatus() (string, error) {
	var status string
	err := callRecorder("Status", &status)
	return status, err
}

func SetBearing(bearing float64) error {
	return callPlayer("SetBearing", nil, bearing)
}

func Review(start, end float64, pause time.Duration, repeat bool) error {
	return callPlayer("Review", nil, start, end, int32(pause/time.Millisecond), repeat)
}

func StopPlayback() error {
	return callPlayer("Stop", nil)
}

func PlayerStatus() (string, error) {
	var status string
	err := callPlayer("Status", &status)
	return status, err
}
