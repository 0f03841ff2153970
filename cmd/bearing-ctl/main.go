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
	"fmt"
	"log"
	"strconv"
	"time"

	arg "github.com/alexflint/go-arg"

	"github.com/TheCacophonyProject/bearing-recorder/bearingclient"
)

var version = "<not set>"

type Args struct {
	Command string   `arg:"positional,required" help:"capture, free, stop, checkpoint, resume, status, bearing, review, halt or player-status"`
	Values  []string `arg:"positional" help:"command arguments"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	arg.MustParse(&args)
	return args
}

// client is the set of D-Bus calls the commands use.
type client interface {
	StartCapture(increment float64) (string, error)
	StartFreeRecording() (string, error)
	StopCapture() error
	Checkpoint() (string, error)
	Resume(dir string) error
	RecorderStatus() (string, error)
	SetBearing(bearing float64) error
	Review(start, end float64, pause time.Duration, repeat bool) error
	StopPlayback() error
	PlayerStatus() (string, error)
}

type dbusClient struct{}

func (dbusClient) StartCapture(increment float64) (string, error) {
	return bearingclient.StartCapture(increment)
}
func (dbusClient) StartFreeRecording() (string, error) { return bearingclient.StartFreeRecording() }
func (dbusClient) StopCapture() error                  { return bearingclient.StopCapture() }
func (dbusClient) Checkpoint() (string, error)         { return bearingclient.Checkpoint() }
func (dbusClient) Resume(dir string) error             { return bearingclient.Resume(dir) }
func (dbusClient) RecorderStatus() (string, error)     { return bearingclient.RecorderStatus() }
func (dbusClient) SetBearing(bearing float64) error    { return bearingclient.SetBearing(bearing) }
func (dbusClient) Review(start, end float64, pause time.Duration, repeat bool) error {
	return bearingclient.Review(start, end, pause, repeat)
}
func (dbusClient) StopPlayback() error           { return bearingclient.StopPlayback() }
func (dbusClient) PlayerStatus() (string, error) { return bearingclient.PlayerStatus() }

var errUsage = errors.New("wrong number of arguments")

func main() {
	log.SetFlags(0)
	out, err := run(procArgs(), dbusClient{})
	if err != nil {
		log.Fatal(err)
	}
	if out != "" {
		fmt.Println(out)
	}
}

func run(args Args, c client) (string, error) {
	v := args.Values
	switch args.Command {
	case "capture":
		increment := 0.0
		if len(v) > 1 {
			return "", errUsage
		}
		if len(v) == 1 {
			var err error
			if increment, err = strconv.ParseFloat(v[0], 64); err != nil {
				return "", fmt.Errorf("bad increment %q: %v", v[0], err)
			}
		}
		return c.StartCapture(increment)
	case "free":
		return c.StartFreeRecording()
	case "stop":
		return "", c.StopCapture()
	case "checkpoint":
		return c.Checkpoint()
	case "resume":
		if len(v) != 1 {
			return "", errUsage
		}
		return "", c.Resume(v[0])
	case "status":
		return c.RecorderStatus()
	case "bearing":
		if len(v) != 1 {
			return "", errUsage
		}
		bearing, err := strconv.ParseFloat(v[0], 64)
		if err != nil {
			return "", fmt.Errorf("bad bearing %q: %v", v[0], err)
		}
		return "", c.SetBearing(bearing)
	case "review":
		return "", review(v, c)
	case "halt":
		return "", c.StopPlayback()
	case "player-status":
		return c.PlayerStatus()
	}
	return "", fmt.Errorf("unknown command %q", args.Command)
}

// review takes start and end bearings, an optional pause and an optional
// "repeat".
func review(v []string, c client) error {
	if len(v) < 2 || len(v) > 4 {
		return errUsage
	}
	start, err := strconv.ParseFloat(v[0], 64)
	if err != nil {
		return fmt.Errorf("bad start %q: %v", v[0], err)
	}
	end, err := strconv.ParseFloat(v[1], 64)
	if err != nil {
		return fmt.Errorf("bad end %q: %v", v[1], err)
	}
	var pause time.Duration
	repeat := false
	for _, s := range v[2:] {
		if s == "repeat" {
			repeat = true
			continue
		}
		if pause, err = time.ParseDuration(s); err != nil {
			return fmt.Errorf("bad pause %q: %v", s, err)
		}
	}
	return c.Review(start, end, pause, repeat)
}
