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
	"time"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
)

const (
	dbusName = "org.cacophony.bearingplayer"
	dbusPath = "/org/cacophony/bearingplayer"
)

type service struct {
	p *player
}

func startService(p *player) error {
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

	s := &service{p: p}
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

func (s *service) SetBearing(bearing float64) *dbus.Error {
	if err := s.p.setBearing(bearing); err != nil {
		return makeDbusError("SetBearing", err)
	}
	return nil
}

// Review steps through the sweep from start to end, holding each bucket for
// pauseMs milliseconds.
func (s *service) Review(start, end float64, pauseMs int32, repeat bool) *dbus.Error {
	pause := time.Duration(pauseMs) * time.Millisecond
	if err := s.p.review(start, end, pause, repeat); err != nil {
		return makeDbusError("Review", err)
	}
	return nil
}

func (s *service) Stop() *dbus.Error {
	s.p.stop()
	return nil
}

// Status returns a YAML summary of playback.
func (s *service) Status() (string, *dbus.Error) {
	text, err := s.p.statusText()
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
