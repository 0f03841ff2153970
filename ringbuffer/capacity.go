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

package ringbuffer

import "golang.org/x/sys/unix"

const (
	MinCapacity = 8
	MaxCapacity = 1024

	// Only a fraction of free memory is handed to a single buffer.
	memoryShare = 4
)

// DefaultCapacity sizes a buffer from the memory currently free on the
// device, clamped to [MinCapacity, MaxCapacity].
func DefaultCapacity(payloadSize int) int {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return MinCapacity
	}
	free := uint64(info.Freeram) * uint64(info.Unit)
	return capacityFor(free/memoryShare, payloadSize)
}

func capacityFor(available uint64, payloadSize int) int {
	if payloadSize <= 0 {
		return MinCapacity
	}
	n := available / uint64(payloadSize)
	if n < MinCapacity {
		return MinCapacity
	}
	if n > MaxCapacity {
		return MaxCapacity
	}
	return int(n)
}
