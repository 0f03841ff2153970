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

package pacing

import (
	"fmt"
	"time"
)

// DefaultFPS is used when a fixed rate is requested with a negative frame
// rate.
const DefaultFPS = 30

type Kind int

const (
	// EventDriven delivers only when the input changes.
	EventDriven Kind = iota
	// FixedRate delivers at a configured frame rate.
	FixedRate
	// RecordedRate reproduces the recorded gaps between records.
	RecordedRate
)

func (k Kind) String() string {
	switch k {
	case EventDriven:
		return "event-driven"
	case FixedRate:
		return "fixed-rate"
	case RecordedRate:
		return "recorded-rate"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Policy selects how a playback loop paces its deliveries.
type Policy struct {
	Kind Kind
	FPS  int
}

// Period returns the time between deliveries for a fixed rate policy, or
// zero when deliveries are unpaced.
func (p Policy) Period() time.Duration {
	if p.Kind != FixedRate || p.FPS <= 0 {
		return 0
	}
	return time.Second / time.Duration(p.FPS)
}

func (p Policy) String() string {
	if p.Kind == FixedRate {
		return fmt.Sprintf("%s@%dfps", p.Kind, p.FPS)
	}
	return p.Kind.String()
}

// NormalizeFPS rescales frame rates given in milli-frames per second, as
// some camera APIs report them.
func NormalizeFPS(fps int) int {
	if fps > 1000 {
		return fps / 1000
	}
	return fps
}

// Dirty returns the event-driven policy.
func Dirty() Policy {
	return Policy{Kind: EventDriven}
}

// Continuous returns a fixed rate policy. A negative fps falls back to
// DefaultFPS and zero means unpaced.
func Continuous(fps int) Policy {
	fps = NormalizeFPS(fps)
	if fps < 0 {
		fps = DefaultFPS
	}
	return Policy{Kind: FixedRate, FPS: fps}
}

// Replay returns the policy for a multi-stream replay: a fixed rate when fps
// is positive, the recorded rate otherwise.
func Replay(fps int) Policy {
	fps = NormalizeFPS(fps)
	if fps <= 0 {
		return Policy{Kind: RecordedRate}
	}
	return Policy{Kind: FixedRate, FPS: fps}
}

// ParseMode maps a configured playback mode to a policy.
func ParseMode(mode string, fps int) (Policy, error) {
	switch mode {
	case "dirty", "event-driven":
		return Dirty(), nil
	case "continuous", "fixed-rate":
		return Continuous(fps), nil
	case "replay", "recorded-rate":
		return Replay(fps), nil
	}
	return Policy{}, fmt.Errorf("unknown playback mode %q", mode)
}
