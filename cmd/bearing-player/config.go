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
	"io/ioutil"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/TheCacophonyProject/bearing-recorder/pacing"
	"github.com/TheCacophonyProject/bearing-recorder/playback"
	"github.com/TheCacophonyProject/bearing-recorder/replay"
)

type Config struct {
	// Mode is dirty, continuous or replay.
	Mode string `yaml:"mode"`
	FPS  int    `yaml:"fps"`
	// Sweep is the capture directory played in dirty and continuous modes.
	Sweep string `yaml:"sweep"`
	// Recording is the free recording replayed in replay mode. In the other
	// modes its orientation stream, when set, drives the bearing.
	Recording        string        `yaml:"recording"`
	Repeat           bool          `yaml:"repeat"`
	OrientationInput string        `yaml:"orientation-input"`
	FrameOutput      string        `yaml:"frame-output"`
	ChangeWait       time.Duration `yaml:"change-wait"`
	BufferWait       time.Duration `yaml:"buffer-wait"`
	MetricsAddr      string        `yaml:"metrics-address"`

	policy pacing.Policy
}

var defaultConfig = Config{
	Mode:        "dirty",
	FrameOutput: "/var/run/bearing-frames",
	ChangeWait:  playback.DefaultChangeWait,
	BufferWait:  replay.DefaultBufferWait,
	MetricsAddr: ":2113",
}

func (conf *Config) Validate() error {
	policy, err := pacing.ParseMode(conf.Mode, conf.FPS)
	if err != nil {
		return err
	}
	conf.policy = policy
	if conf.replaying() {
		if conf.Recording == "" {
			return errors.New("replay mode needs a recording")
		}
	} else if conf.Sweep == "" {
		return errors.New("sweep must be set to play a capture")
	}
	if conf.FrameOutput == "" {
		return errors.New("frame-output must be set")
	}
	if conf.ChangeWait <= 0 || conf.BufferWait <= 0 {
		return errors.New("change-wait and buffer-wait must be positive")
	}
	return nil
}

// replaying reports whether the whole recording is replayed rather than a
// sweep played by bearing.
func (conf *Config) replaying() bool {
	return conf.Mode == "replay" || conf.Mode == "recorded-rate"
}

func ParseConfigFile(filename string) (*Config, error) {
	buf, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseConfig(buf)
}

func ParseConfig(buf []byte) (*Config, error) {
	conf := defaultConfig
	if err := yaml.Unmarshal(buf, &conf); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}
