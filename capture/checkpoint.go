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

package capture

import (
	"io/ioutil"
	"os"

	yaml "gopkg.in/yaml.v2"
)

// SaveCheckpoint writes the session's checkpoint to path.
func (s *Session) SaveCheckpoint(path string) error {
	return WriteCheckpoint(path, s.Checkpoint())
}

func WriteCheckpoint(path string, snap SessionSnapshot) error {
	buf, err := yaml.Marshal(&snap)
	if err != nil {
		return err
	}
	tempName := path + ".temp"
	if err := ioutil.WriteFile(tempName, buf, 0644); err != nil {
		return err
	}
	if err := os.Rename(tempName, path); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func ReadCheckpoint(path string) (SessionSnapshot, error) {
	var snap SessionSnapshot
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return snap, err
	}
	err = yaml.Unmarshal(buf, &snap)
	return snap, err
}
