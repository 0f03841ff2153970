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
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/coreos/go-systemd/daemon"

	"github.com/TheCacophonyProject/bearing-recorder/metrics"
	"github.com/TheCacophonyProject/bearing-recorder/record"
)

const watchdogInterval = 5 * time.Second

var version = "<not set>"

type Args struct {
	ConfigFile string `arg:"-c,--config" help:"path to configuration file"`
	Timestamps bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.ConfigFile = "/etc/bearing-player.yaml"
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
	conf, err := ParseConfigFile(args.ConfigFile)
	if err != nil {
		return err
	}
	logConfig(conf)

	m := metrics.New()
	if conf.MetricsAddr != "" {
		go func() {
			log.Printf("serving metrics on %s", conf.MetricsAddr)
			if err := m.StartServer(conf.MetricsAddr); err != nil {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
	}

	log.Print("dialing frame output socket")
	conn, err := dialFrameOutput(conf.FrameOutput)
	if err != nil {
		return err
	}
	defer conn.Close()

	p, err := newPlayer(conf, conn, m)
	if err != nil {
		return err
	}

	log.Println("starting d-bus service")
	if err := startService(p); err != nil {
		return err
	}
	if conf.OrientationInput != "" {
		go func() {
			err := listenOrientation(conf.OrientationInput, p)
			log.Printf("orientation input stopped: %v", err)
		}()
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		log.Print("stopping")
		p.stop()
	}()
	go func() {
		for range time.Tick(watchdogInterval) {
			daemon.SdNotify(false, "WATCHDOG=1")
		}
	}()

	if err := p.start(); err != nil {
		return err
	}
	return p.wait()
}

func logConfig(conf *Config) {
	log.Printf("mode: %s", conf.policy)
	if conf.Sweep != "" {
		log.Printf("sweep: %s", conf.Sweep)
	}
	if conf.Recording != "" {
		log.Printf("recording: %s (repeat: %t)", conf.Recording, conf.Repeat)
	}
	log.Printf("frame output: %s", conf.FrameOutput)
	log.Printf("orientation input: %s", conf.OrientationInput)
}

// listenOrientation reads live orientation records from one producer at a
// time.
func listenOrientation(path string, p *player) error {
	os.Remove(path)
	listener, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	defer listener.Close()
	for {
		conn, err := listener.Accept()
		if err != nil {
			return err
		}
		r := record.NewOrientationReader(conn, false)
		for {
			s, err := r.Next()
			if err != nil {
				log.Printf("orientation connection ended with: %v", err)
				break
			}
			p.onOrientation(s)
		}
		conn.Close()
	}
}
