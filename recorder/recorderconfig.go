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

package recorder

import (
	"errors"
	"time"

	config "github.com/TheCacophonyProject/go-config"
	"github.com/TheCacophonyProject/window"

	"github.com/TheCacophonyProject/bearing-recorder/location"
)

// ErrOutsideWindow is returned by CheckCanRecord outside the recording
// window.
var ErrOutsideWindow = errors.New("outside recording window")

// RecorderConfig holds the device wide settings shared by the recorder and
// player daemons.
type RecorderConfig struct {
	DeviceID   int
	DeviceName string
	Window     window.Window
	Location   location.Fix
}

func NewConfig(conf *config.Config) (*RecorderConfig, error) {
	var deviceConfig config.Device
	if err := conf.Unmarshal(config.DeviceKey, &deviceConfig); err != nil {
		return nil, err
	}
	windowLocationConfig := config.DefaultWindowLocation()
	if err := conf.Unmarshal(config.LocationKey, &windowLocationConfig); err != nil {
		return nil, err
	}
	windowsConfig := config.DefaultWindows()
	if err := conf.Unmarshal(config.WindowsKey, &windowsConfig); err != nil {
		return nil, err
	}

	w, err := window.New(
		windowsConfig.StartRecording,
		windowsConfig.StopRecording,
		float64(windowLocationConfig.Latitude),
		float64(windowLocationConfig.Longitude))
	if err != nil {
		return nil, err
	}

	recorderConfig := RecorderConfig{
		DeviceID:   deviceConfig.ID,
		DeviceName: deviceConfig.Name,
		Window:     *w,
		Location: location.Fix{
			Provider:  location.Network,
			Latitude:  float64(windowLocationConfig.Latitude),
			Longitude: float64(windowLocationConfig.Longitude),
		},
	}

	if err := recorderConfig.validate(); err != nil {
		return nil, err
	}
	return &recorderConfig, nil
}

func (conf *RecorderConfig) validate() error {
	return conf.Location.Validate()
}

// CheckCanRecord reports ErrOutsideWindow when the recording window is
// closed.
func (conf *RecorderConfig) CheckCanRecord() error {
	if conf.Window.NoWindow || conf.Window.Active() {
		return nil
	}
	return ErrOutsideWindow
}

// UntilNextWindow returns how long until the window next opens, zero if it
// is open now.
func (conf *RecorderConfig) UntilNextWindow() time.Duration {
	if conf.CheckCanRecord() == nil {
		return 0
	}
	return time.Until(conf.Window.NextStart())
}
