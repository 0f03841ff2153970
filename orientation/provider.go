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

package orientation

import "sync"

// Listener receives orientation samples from a Provider. Implementations
// must be comparable (normally a pointer) so they can be unsubscribed.
type Listener interface {
	OnOrientationUpdate(s Sample)
}

// Provider fans orientation samples out to the listeners registered with
// it and remembers recent samples. A listener is held only between
// Subscribe and Unsubscribe.
type Provider struct {
	mu        sync.Mutex
	listeners []Listener
	history   *RingBuffer
}

func NewProvider(historySize int) (*Provider, error) {
	history, err := NewRingBuffer(historySize)
	if err != nil {
		return nil, err
	}
	return &Provider{history: history}, nil
}

// Subscribe registers l. Registering the same listener twice has no effect.
func (p *Provider) Subscribe(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.listeners {
		if existing == l {
			return
		}
	}
	p.listeners = append(p.listeners, l)
}

// Unsubscribe removes l and reports whether it was registered.
func (p *Provider) Unsubscribe(l Listener) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.listeners {
		if existing == l {
			p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Provider) Listeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

// Publish records s and hands a copy to every listener registered when the
// call started. Listeners are called on the publishing goroutine.
func (p *Provider) Publish(s Sample) {
	p.history.Push(s)

	p.mu.Lock()
	listeners := make([]Listener, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	for _, l := range listeners {
		l.OnOrientationUpdate(s.Copy())
	}
}

// OnOrientationUpdate lets a Provider be fed by another provider or by a
// replayed orientation stream.
func (p *Provider) OnOrientationUpdate(s Sample) {
	p.Publish(s)
}

// History gives access to recently published samples.
func (p *Provider) History() *RingBuffer {
	return p.history
}

// Close drops every listener and drains the history, oldest first.
func (p *Provider) Close() []Sample {
	p.mu.Lock()
	p.listeners = nil
	p.mu.Unlock()
	return p.history.PopAll()
}
