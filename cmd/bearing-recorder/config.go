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
	"io/ioutil"
	"os"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	yaml "gopkg.in/yaml.v2"

	"github.com/TheCacophonyProject/bearing-recorder/capture"
	"github.com/TheCacophonyProject/bearing-recorder/recorder"
	"github.com/TheCacophonyProject/bearing-recorder/throttle"
)

type Config struct {
	FrameInput        string        `yaml:"frame-input"`
	OrientationInput  string        `yaml:"orientation-input"`
	SensorInput       string        `yaml:"sensor-input"`
	OutputDir         string        `yaml:"output-dir"`
	Increment         float64       `yaml:"increment"`
	MatchEpsilon      time.Duration `yaml:"match-epsilon"`
	FrameBuffer       int           `yaml:"frame-buffer"`
	OrientationBuffer int           `yaml:"orientation-buffer"`
	QueueSize         int           `yaml:"queue-size"`
	SensorTypes       []int32       `yaml:"sensor-types"`
	MetricsAddr       string        `yaml:"metrics-address"`
	// MinSecs is the shortest free recording the throttle will start.
	MinSecs   int                      `yaml:"min-secs"`
	Throttler throttle.ThrottlerConfig `yaml:"throttler"`

	Recorder recorder.RecorderConfig `yaml:"-"`
}

var defaultConfig = Config{
	FrameInput:        "/var/run/lepton-frames",
	OrientationInput:  "/var/run/bearing-orientation",
	SensorInput:       "/var/run/bearing-sensors",
	OutputDir:         "/var/spool/bearing",
	Increment:         1,
	MatchEpsilon:      capture.DefaultMatchEpsilon,
	FrameBuffer:       64,
	OrientationBuffer: capture.DefaultOrientationBuffer,
	QueueSize:         capture.DefaultQueueSize,
	MetricsAddr:       ":2112",
	MinSecs:           10,
	Throttler:         throttle.DefaultThrottlerConfig(),
}

func (conf *Config) Validate() error {
	if conf.FrameInput == "" {
		return errors.New("frame-input must be set")
	}
	if conf.OutputDir == "" {
		return errors.New("output-dir must be set")
	}
	if conf.Increment <= 0 || conf.Increment > 360 {
		return fmt.Errorf("increment %.1f is outside (0, 360]", conf.Increment)
	}
	if conf.MatchEpsilon <= 0 {
		return errors.New("match-epsilon must be positive")
	}
	if conf.FrameBuffer < 0 || conf.OrientationBuffer < 0 || conf.QueueSize < 0 {
		return errors.New("buffer and queue sizes can't be negative")
	}
	if conf.MinSecs < 0 {
		return errors.New("min-secs can't be negative")
	}
	if conf.Throttler.Activate && (conf.Throttler.BucketSize <= 0 || conf.Throttler.MinRefill <= 0) {
		return errors.New("throttler bucket-size and min-refill must be positive")
	}
	return nil
}

// ParseConfigFiles reads the recorder's settings from filename, which may be
// missing, and the device settings from configDir.
func ParseConfigFiles(filename, configDir string) (*Config, error) {
	buf, err := ioutil.ReadFile(filename)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	conf, err := ParseConfig(buf)
	if err != nil {
		return nil, err
	}

	configRW, err := goconfig.New(configDir)
	if err != nil {
		return nil, err
	}
	recorderConfig, err := recorder.NewConfig(configRW)
	if err != nil {
		return nil, err
	}
	conf.Recorder = *recorderConfig
	return conf, nil
}

func ParseConfig(buf []byte) (*Config, error) {
	conf := defaultConfig
	conf.SensorTypes = nil
	if err := yaml.Unmarshal(buf, &conf); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (conf *Config) queueOptions() capture.QueueOptions {
	return capture.QueueOptions{QueueSize: conf.QueueSize}
}
