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
	"log"
	"path/filepath"

	goconfig "github.com/TheCacophonyProject/go-config"
	arg "github.com/alexflint/go-arg"

	"github.com/TheCacophonyProject/bearing-recorder/archive"
	"github.com/TheCacophonyProject/bearing-recorder/metrics"
	"github.com/TheCacophonyProject/bearing-recorder/record"
)

const archiveName = "sweep.brgr"

var version = "<not set>"

type Args struct {
	ConfigFile string `arg:"-c,--config" help:"path to configuration file"`
	ConfigDir  string `arg:"-d,--config-dir" help:"path to device configuration directory"`
	Export     string `arg:"-e,--export" help:"export the sweep in this directory to an archive and exit"`
	Timestamps bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.ConfigFile = "/etc/bearing-recorder.yaml"
	args.ConfigDir = goconfig.DefaultConfigDir
	arg.MustParse(&args)
	return args
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	args := procArgs()
	if !args.Timestamps {
		log.SetFlags(0) // Removes default timestamp flag
	}

	log.Printf("running version: %s", version)
	conf, err := ParseConfigFiles(args.ConfigFile, args.ConfigDir)
	if err != nil {
		return err
	}
	logConfig(conf)

	if args.Export != "" {
		out := filepath.Join(args.Export, archiveName)
		return archive.Export(record.Session(args.Export).Frames(), out, conf.Recorder.DeviceID)
	}

	m := metrics.New()
	if conf.MetricsAddr != "" {
		go func() {
			log.Printf("serving metrics on %s", conf.MetricsAddr)
			if err := m.StartServer(conf.MetricsAddr); err != nil {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
	}

	c, err := newController(conf, m)
	if err != nil {
		return err
	}

	log.Println("starting d-bus service")
	if err := startService(c); err != nil {
		return err
	}

	if conf.OrientationInput != "" {
		go func() {
			err := listenOrientation(conf.OrientationInput, c)
			log.Printf("orientation input stopped: %v", err)
		}()
	}
	if conf.SensorInput != "" && len(conf.SensorTypes) > 0 {
		go func() {
			err := listenSensors(conf.SensorInput, c)
			log.Printf("sensor input stopped: %v", err)
		}()
	}
	return listenFrames(conf.FrameInput, c)
}

func logConfig(conf *Config) {
	log.Printf("device name: %s", conf.Recorder.DeviceName)
	log.Printf("frame input: %s", conf.FrameInput)
	log.Printf("orientation input: %s", conf.OrientationInput)
	log.Printf("output dir: %s", conf.OutputDir)
	log.Printf("increment: %.1f degrees", conf.Increment)
	log.Printf("match epsilon: %s", conf.MatchEpsilon)
	log.Printf("frame buffer: %d, orientation buffer: %d, queue: %d",
		conf.FrameBuffer, conf.OrientationBuffer, conf.QueueSize)
	log.Printf("throttler: %+v", conf.Throttler)
	if len(conf.SensorTypes) > 0 {
		log.Printf("raw sensor input: %s, types: %v", conf.SensorInput, conf.SensorTypes)
	}
	if conf.Recorder.Window.NoWindow {
		log.Print("no recording window")
	} else {
		log.Printf("recording window: next start %s, next end %s",
			conf.Recorder.Window.NextStart().Format("15:04"),
			conf.Recorder.Window.NextEnd().Format("15:04"))
	}
}
