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

package replay

import (
	"fmt"
	"io"
	"os"

	"github.com/TheCacophonyProject/bearing-recorder/orientation"
	"github.com/TheCacophonyProject/bearing-recorder/record"
)

// Opener opens a recorded stream from the start. It is called once per
// pass.
type Opener func() (io.ReadCloser, error)

// FileOpener opens path.
func FileOpener(path string) Opener {
	return func() (io.ReadCloser, error) {
		return os.Open(path)
	}
}

// Stream is an auxiliary recorded stream replayed alongside the frames.
type Stream interface {
	Name() string
	open() (auxReader, error)
}

// auxReader reads one record ahead: next loads a record and returns its
// timestamp, deliver hands the loaded record to the stream's consumers.
type auxReader interface {
	next() (int64, error)
	deliver()
	Close() error
}

// OrientationConsumer receives replayed orientation samples. An
// orientation.Provider is one.
type OrientationConsumer interface {
	OnOrientationUpdate(s orientation.Sample)
}

// LocationConsumer receives replayed location fixes.
type LocationConsumer interface {
	OnLocation(l record.Location)
}

// SensorObserver receives replayed raw sensor events.
type SensorObserver interface {
	OnSensorEvent(e record.SensorEvent)
}

type orientationStream struct {
	opener   Opener
	version  int
	consumer OrientationConsumer
}

// NewOrientationStream replays an orientation stream of the given record
// version to consumer, which is normally an orientation.Provider.
func NewOrientationStream(open Opener, version int, consumer OrientationConsumer) Stream {
	return &orientationStream{opener: open, version: version, consumer: consumer}
}

func (s *orientationStream) Name() string { return "orientation" }

func (s *orientationStream) open() (auxReader, error) {
	rc, err := s.opener()
	if err != nil {
		return nil, err
	}
	return &orientationReader{
		Closer:   rc,
		r:        record.NewOrientationReader(rc, record.OrientationHasBearing(s.version)),
		consumer: s.consumer,
	}, nil
}

type orientationReader struct {
	io.Closer
	r        *record.OrientationReader
	consumer OrientationConsumer
	current  orientation.Sample
}

func (o *orientationReader) next() (int64, error) {
	s, err := o.r.Next()
	if err != nil {
		return 0, err
	}
	o.current = s
	return s.Timestamp, nil
}

func (o *orientationReader) deliver() {
	o.consumer.OnOrientationUpdate(o.current)
}

type locationStream struct {
	opener   Opener
	consumer LocationConsumer
}

func NewLocationStream(open Opener, consumer LocationConsumer) Stream {
	return &locationStream{opener: open, consumer: consumer}
}

func (s *locationStream) Name() string { return "location" }

func (s *locationStream) open() (auxReader, error) {
	rc, err := s.opener()
	if err != nil {
		return nil, err
	}
	return &locationReader{Closer: rc, r: record.NewLocationReader(rc), consumer: s.consumer}, nil
}

type locationReader struct {
	io.Closer
	r        *record.LocationReader
	consumer LocationConsumer
	current  record.Location
}

func (l *locationReader) next() (int64, error) {
	loc, err := l.r.Next()
	if err != nil {
		return 0, err
	}
	l.current = loc
	return loc.Timestamp, nil
}

func (l *locationReader) deliver() {
	l.consumer.OnLocation(l.current)
}

type sensorStream struct {
	opener    Opener
	observers []SensorObserver
}

// NewSensorStream replays a raw sensor stream to every observer.
func NewSensorStream(open Opener, observers ...SensorObserver) Stream {
	return &sensorStream{opener: open, observers: observers}
}

func (s *sensorStream) Name() string { return "sensor" }

func (s *sensorStream) open() (auxReader, error) {
	rc, err := s.opener()
	if err != nil {
		return nil, err
	}
	r, err := record.NewSensorReader(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("reading sensor header: %w", err)
	}
	return &sensorReader{Closer: rc, r: r, observers: s.observers}, nil
}

type sensorReader struct {
	io.Closer
	r         *record.SensorReader
	observers []SensorObserver
	current   record.SensorEvent
}

func (s *sensorReader) next() (int64, error) {
	e, err := s.r.Next()
	if err != nil {
		return 0, err
	}
	s.current = e
	return e.Timestamp, nil
}

func (s *sensorReader) deliver() {
	for _, o := range s.observers {
		o.OnSensorEvent(s.current)
	}
}
