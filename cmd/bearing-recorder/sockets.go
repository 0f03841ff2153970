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
	"bufio"
	"io"
	"log"
	"net"
	"os"
	"time"

	"github.com/coreos/go-systemd/daemon"

	"github.com/TheCacophonyProject/bearing-recorder/headers"
	"github.com/TheCacophonyProject/bearing-recorder/record"
)

const (
	frameLogIntervalFirstMin = 15
	frameLogInterval         = 60 * 5
	secsPerSdNotify          = 5
)

// listenFrames accepts one camera connection at a time.
func listenFrames(path string, c *controller) error {
	for {
		os.Remove(path)
		listener, err := net.Listen("unix", path)
		if err != nil {
			return err
		}
		log.Print("waiting for camera connection")

		conn, err := listener.Accept()
		if err != nil {
			log.Printf("socket accept failed: %v", err)
			listener.Close()
			continue
		}

		// Prevent concurrent connections.
		listener.Close()

		err = handleFrames(conn, c)
		log.Printf("camera connection ended with: %v", err)
	}
}

func handleFrames(conn net.Conn, c *controller) error {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	header, err := headers.ReadHeaderInfo(reader)
	if err != nil {
		return err
	}
	log.Printf("connection from %s %s (%dx%d@%dfps)",
		header.Brand(), header.Model(), header.ResX(), header.ResY(), header.FPS())

	c.setCamera(header)
	defer c.clearCamera()

	fps := header.FPS()
	if fps <= 0 {
		fps = 1
	}
	frame := make([]byte, header.FrameSize())
	totalFrames := 0
	notifyCount := 0
	for {
		if _, err := io.ReadFull(reader, frame); err != nil {
			return err
		}
		c.onFrame(time.Now().UnixNano(), frame)

		totalFrames++
		if totalFrames%(frameLogIntervalFirstMin*fps) == 0 &&
			totalFrames <= 60*fps || totalFrames%(frameLogInterval*fps) == 0 {
			log.Printf("%d frames for this connection", totalFrames)
		}
		if notifyCount++; notifyCount >= secsPerSdNotify*fps {
			daemon.SdNotify(false, "WATCHDOG=1")
			notifyCount = 0
		}
	}
}

// listenOrientation reads orientation records from one producer at a time.
func listenOrientation(path string, c *controller) error {
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
		log.Print("orientation producer connected")
		err = handleOrientation(conn, c)
		log.Printf("orientation connection ended with: %v", err)
	}
}

func handleOrientation(conn net.Conn, c *controller) error {
	defer conn.Close()
	r := record.NewOrientationReader(conn, false)
	for {
		s, err := r.Next()
		if err != nil {
			return err
		}
		c.onOrientation(s)
	}
}

// listenSensors reads raw sensor streams from one producer at a time.
func listenSensors(path string, c *controller) error {
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
		log.Print("sensor producer connected")
		err = handleSensors(conn, c)
		log.Printf("sensor connection ended with: %v", err)
	}
}

func handleSensors(conn net.Conn, c *controller) error {
	defer conn.Close()
	r, err := record.NewSensorReader(conn)
	if err != nil {
		return err
	}
	log.Printf("sensor producer sends types %v", r.Types())
	for {
		e, err := r.Next()
		if err != nil {
			return err
		}
		c.onSensorEvent(e)
	}
}
