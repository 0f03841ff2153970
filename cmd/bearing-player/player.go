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
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/TheCacophonyProject/bearing-recorder/headers"
	"github.com/TheCacophonyProject/bearing-recorder/metrics"
	"github.com/TheCacophonyProject/bearing-recorder/orientation"
	"github.com/TheCacophonyProject/bearing-recorder/playback"
	"github.com/TheCacophonyProject/bearing-recorder/record"
	"github.com/TheCacophonyProject/bearing-recorder/replay"
	"github.com/TheCacophonyProject/bearing-recorder/store"
)

const orientationHistory = 64

var errNoSweep = errors.New("not playing a sweep")

// player plays a sweep by bearing or replays a free recording, writing
// frames to the output.
type player struct {
	conf     *Config
	out      *frameOutput
	metrics  *metrics.Metrics
	provider *orientation.Provider
	streams  *streamLog

	// bucket plays a sweep; driver replays a recording, either to the
	// output or only to move the bearing.
	bucket *playback.Scheduler
	driver *replay.Scheduler
}

func outputHeader(conf *Config) (*headers.HeaderInfo, error) {
	if !conf.replaying() {
		return store.ReadHeader(record.Session(conf.Sweep).Frames())
	}
	return recordingHeader(conf.Recording)
}

func recordingHeader(dir string) (*headers.HeaderInfo, error) {
	f, err := os.Open(record.Session(dir).FramesHeader())
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return headers.ReadHeaderInfo(bufio.NewReader(f))
}

func newPlayer(conf *Config, w io.Writer, m *metrics.Metrics) (*player, error) {
	h, err := outputHeader(conf)
	if err != nil {
		return nil, err
	}
	out, err := newFrameOutput(w, h)
	if err != nil {
		return nil, err
	}
	provider, err := orientation.NewProvider(orientationHistory)
	if err != nil {
		return nil, err
	}
	p := &player{
		conf:     conf,
		out:      out,
		metrics:  metrics.OrNew(m),
		provider: provider,
		streams:  &streamLog{},
	}

	if conf.replaying() {
		p.driver, err = p.newReplay(conf.FPS, replay.FrameConsumerFunc(out.onReplayFrame))
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	st, err := store.Open(record.Session(conf.Sweep).Frames())
	if err != nil {
		return nil, err
	}
	p.bucket, err = playback.NewScheduler(st, h.Increment(), out, conf.policy, playback.Options{
		ChangeWait: conf.ChangeWait,
		Metrics:    p.metrics,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	provider.Subscribe(p.bucket)

	if conf.Recording != "" {
		discard := replay.FrameConsumerFunc(func(f *replay.Frame) { f.Release() })
		p.driver, err = p.newReplay(0, discard)
		if err != nil {
			st.Close()
			return nil, err
		}
	}
	return p, nil
}

func (p *player) newReplay(fps int, consumer replay.FrameConsumer) (*replay.Scheduler, error) {
	rec := record.Session(p.conf.Recording)
	h, err := recordingHeader(p.conf.Recording)
	if err != nil {
		return nil, err
	}
	streams := []replay.Stream{
		replay.NewOrientationStream(replay.FileOpener(rec.Orientation()), h.OrientationVersion(), p.provider),
	}
	if fileExists(rec.Location()) {
		streams = append(streams, replay.NewLocationStream(replay.FileOpener(rec.Location()), p.streams))
	}
	if fileExists(rec.Sensor()) {
		streams = append(streams, replay.NewSensorStream(replay.FileOpener(rec.Sensor()), p.streams))
	}
	return replay.NewScheduler(replay.FileOpener(rec.Frames()), consumer, p, replay.Options{
		FPS:        fps,
		Repeat:     p.conf.Repeat,
		BufferWait: p.conf.BufferWait,
		Metrics:    p.metrics,
	}, streams...)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (p *player) start() error {
	if p.bucket != nil {
		if err := p.bucket.Start(); err != nil {
			return err
		}
	}
	if p.driver != nil {
		return p.driver.Start()
	}
	return nil
}

// wait blocks until playback ends: when Stop is called for a sweep, or
// when a replay finishes.
func (p *player) wait() error {
	if p.bucket != nil {
		p.bucket.Wait()
		if p.driver != nil {
			p.driver.Stop()
		}
		return nil
	}
	return p.driver.Wait()
}

func (p *player) stop() {
	if p.bucket != nil {
		p.bucket.Stop()
	}
	if p.driver != nil {
		p.driver.Stop()
	}
}

func (p *player) setBearing(bearing float64) error {
	if p.bucket == nil {
		return errNoSweep
	}
	if bearing < 0 || bearing >= 360 {
		return fmt.Errorf("bearing %.1f is outside [0, 360)", bearing)
	}
	p.bucket.SetBearing(bearing)
	return nil
}

func (p *player) review(start, end float64, pause time.Duration, repeat bool) error {
	if p.bucket == nil {
		return errNoSweep
	}
	return p.bucket.Review(start, end, pause, repeat, nil)
}

func (p *player) onOrientation(s orientation.Sample) {
	p.provider.Publish(s)
}

// OnStarted, OnComplete and OnError follow the replay.

func (p *player) OnStarted() {
	log.Printf("replaying %s", p.conf.Recording)
}

func (p *player) OnComplete(iteration int) bool {
	log.Printf("replay pass %d complete", iteration)
	return true
}

func (p *player) OnError(what string, err error) {
	log.Printf("replay of %s stream failed: %v", what, err)
}

type status struct {
	Mode       string  `yaml:"mode"`
	Frames     uint64  `yaml:"frames"`
	Bearing    float64 `yaml:"bearing,omitempty"`
	Bucket     int     `yaml:"bucket,omitempty"`
	Reviewing  bool    `yaml:"reviewing,omitempty"`
	Iterations int     `yaml:"iterations,omitempty"`
	Location   string  `yaml:"location,omitempty"`
	Sensor     int     `yaml:"sensor-events,omitempty"`
}

func (p *player) status() status {
	st := status{
		Mode:   p.conf.policy.String(),
		Frames: p.out.count(),
	}
	if p.bucket != nil {
		st.Bearing = p.bucket.Bearing()
		st.Bucket = p.bucket.CurrentBucket()
		st.Reviewing = p.bucket.Reviewing()
	}
	if p.driver != nil {
		st.Iterations = p.driver.Iterations()
	}
	st.Location, st.Sensor = p.streams.summary()
	return st
}

func (p *player) statusText() (string, error) {
	buf, err := yaml.Marshal(p.status())
	return string(buf), err
}

// streamLog keeps the latest replayed location and counts sensor events.
type streamLog struct {
	mu       sync.Mutex
	location *record.Location
	sensor   int
}

func (l *streamLog) OnLocation(loc record.Location) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.location = &loc
}

func (l *streamLog) OnSensorEvent(record.SensorEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sensor++
}

func (l *streamLog) summary() (string, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.location == nil {
		return "", l.sensor
	}
	return fmt.Sprintf("%.5f,%.5f", l.location.Latitude, l.location.Longitude), l.sensor
}
