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

package throttle

import (
	"log"
	"time"

	"github.com/TheCacophonyProject/event-reporter/eventclient"
)

// EventReporter queues a throttle event with the device's event reporter
// each time recording is throttled.
type EventReporter struct {
	Details map[string]interface{}
	// addEvent is swapped out in tests.
	addEvent func(eventclient.Event) error
}

func NewEventReporter(details map[string]interface{}) *EventReporter {
	return &EventReporter{
		Details:  details,
		addEvent: eventclient.AddEvent,
	}
}

func (er *EventReporter) WhenThrottled() {
	event := eventclient.Event{
		Timestamp: time.Now(),
		Type:      "throttle",
		Details:   er.Details,
	}
	if err := er.addEvent(event); err != nil {
		log.Printf("could not record throttle event: %v", err)
	}
}
