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

package location

import (
	"errors"
	"io/ioutil"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"
)

const (
	defaultConfig = "/etc/cacophony/location.yaml"
	maxLatitude   = 90
	maxLongitude  = 180

	defaultAccuracy = 10
)

// Provider tags stored with every location record.
const (
	GPS     byte = 'G'
	Network byte = 'N'
)

// Fix is a single location reading.
type Fix struct {
	Provider  byte
	Latitude  float64
	Longitude float64
	Altitude  float64
	Accuracy  float32
}

func (f Fix) IsGPS() bool {
	return f.Provider == GPS
}

func (f Fix) IsEmpty() bool {
	return f.Latitude == 0 && f.Longitude == 0
}

func (f Fix) Validate() error {
	if f.Latitude < -maxLatitude || f.Latitude > maxLatitude {
		return errors.New("latitude outside of normal range")
	}
	if f.Longitude < -maxLongitude || f.Longitude > maxLongitude {
		return errors.New("longitude outside of normal range")
	}
	if f.Accuracy < 0 {
		return errors.New("accuracy cannot be negative")
	}
	return nil
}

// LocationConfig is the fixed device location maintained by the
// management interface. It is recorded as a network fix when no GPS is
// attached.
type LocationConfig struct {
	Latitude     float64   `yaml:"latitude"`
	Longitude    float64   `yaml:"longitude"`
	LocTimestamp time.Time `yaml:"timestamp"`
	Altitude     float64   `yaml:"altitude"`
	Accuracy     float32   `yaml:"accuracy"`
}

func DefaultLocationFile() string {
	return defaultConfig
}

// ParseConfigFile reads a location file. A missing file gives an empty
// configuration.
func ParseConfigFile(filename string) (*LocationConfig, error) {
	conf := new(LocationConfig)
	buf, err := ioutil.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return conf, nil
		}
		return nil, err
	}
	if err := conf.ParseConfig(buf); err != nil {
		return nil, err
	}
	return conf, nil
}

func (conf *LocationConfig) ParseConfig(buf []byte) error {
	if err := yaml.Unmarshal(buf, conf); err != nil {
		return err
	}
	if conf.Accuracy == 0 {
		conf.Accuracy = defaultAccuracy
	}
	return conf.Fix().Validate()
}

func (conf *LocationConfig) IsLocationEmpty() bool {
	return conf.Latitude == 0 && conf.Longitude == 0
}

// Fix converts the configured location into a network fix.
func (conf *LocationConfig) Fix() Fix {
	return Fix{
		Provider:  Network,
		Latitude:  conf.Latitude,
		Longitude: conf.Longitude,
		Altitude:  conf.Altitude,
		Accuracy:  conf.Accuracy,
	}
}
