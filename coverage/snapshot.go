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

package coverage

import (
	"io/ioutil"
	"os"

	yaml "gopkg.in/yaml.v2"
)

// SaveSnapshot writes the tracker's checkpoint to path, replacing any
// previous checkpoint only once the new one is complete.
func (t *Tracker) SaveSnapshot(path string) error {
	return WriteSnapshot(path, t.Snapshot())
}

// WriteSnapshot writes a snapshot to path as YAML.
func WriteSnapshot(path string, s Snapshot) error {
	buf, err := yaml.Marshal(&s)
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

// ReadSnapshot reads a snapshot written by WriteSnapshot.
func ReadSnapshot(path string) (Snapshot, error) {
	var s Snapshot
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return s, err
	}
	err = yaml.Unmarshal(buf, &s)
	return s, err
}

// LoadSnapshot restores a Tracker from a checkpoint file.
func LoadSnapshot(path string) (*Tracker, error) {
	s, err := ReadSnapshot(path)
	if err != nil {
		return nil, err
	}
	return Restore(s)
}
