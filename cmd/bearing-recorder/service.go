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
	"errors"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
)

const (
	dbusName = "org.cacophony.bearingrecorder"
	dbusPath = "/org/cacophony/bearingrecorder"
)

type service struct {
	c *controller
}

func startService(c *controller) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	s := &service{c: c}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// StartCapture begins a sweep and returns its directory. An increment of 0
// uses the configured increment.
func (s *service) StartCapture(increment float64) (string, *dbus.Error) {
	dir, err := s.c.startCapture(increment)
	if err != nil {
		return "", makeDbusError("StartCapture", err)
	}
	return dir, nil
}

// StartFreeRecording records every stream until StopCapture.
func (s *service) StartFreeRecording() (string, *dbus.Error) {
	dir, err := s.c.startFreeRecording()
	if err != nil {
		return "", makeDbusError("StartFreeRecording", err)
	}
	return dir, nil
}

func (s *service) StopCapture() *dbus.Error {
	if err := s.c.stop(); err != nil {
		return makeDbusError("StopCapture", err)
	}
	return nil
}

// Checkpoint saves the running sweep so it can be resumed and returns the
// checkpoint's path.
func (s *service) Checkpoint() (string, *dbus.Error) {
	path, err := s.c.checkpoint()
	if err != nil {
		return "", makeDbusError("Checkpoint", err)
	}
	return path, nil
}

// Resume carries on the sweep in dir from its last checkpoint.
func (s *service) Resume(dir string) *dbus.Error {
	if err := s.c.resume(dir); err != nil {
		return makeDbusError("Resume", err)
	}
	return nil
}

// Status returns a YAML summary of the recorder.
func (s *service) Status() (string, *dbus.Error) {
	text, err := s.c.statusText()
	if err != nil {
		return "", makeDbusError("Status", err)
	}
	return text, nil
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + "." + name,
		Body: []interface{}{err.Error()},
	}
}
