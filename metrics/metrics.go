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

// Package metrics keeps the recorder and player counters and exposes them
// for scraping.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds counters shared by the capture, playback and replay
// components. The zero value is not usable, use New.
type Metrics struct {
	// Capture
	FramesIn         atomic.Uint64
	FramesMatched    atomic.Uint64
	FramesWritten    atomic.Uint64
	FramesDropped    atomic.Uint64
	FramesThrottled  atomic.Uint64
	WriteErrors      atomic.Uint64
	BucketsRemaining atomic.Int64

	// Playback
	FramesPlayed atomic.Uint64
	BucketLoads  atomic.Uint64
	ZeroFills    atomic.Uint64

	// Replay
	ReplayIterations atomic.Uint64
	AuxRecords       atomic.Uint64
	SkippedTicks     atomic.Uint64

	registry *prometheus.Registry
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.register()
	return m
}

// OrNew returns m, or a private Metrics when m is nil, so components can be
// built without a metrics endpoint.
func OrNew(m *Metrics) *Metrics {
	if m == nil {
		return New()
	}
	return m
}

type gauge struct {
	name  string
	help  string
	value func() float64
}

func counter(c *atomic.Uint64) func() float64 {
	return func() float64 { return float64(c.Load()) }
}

func (m *Metrics) register() {
	gauges := []gauge{
		{"bearing_frames_in_total", "Camera frames received", counter(&m.FramesIn)},
		{"bearing_frames_matched_total", "Frames matched to an unfilled bucket", counter(&m.FramesMatched)},
		{"bearing_frames_written_total", "Frames written to a store", counter(&m.FramesWritten)},
		{"bearing_frames_dropped_total", "Frames dropped because the write queue was full", counter(&m.FramesDropped)},
		{"bearing_frames_throttled_total", "Frames held back by the recording throttle", counter(&m.FramesThrottled)},
		{"bearing_write_errors_total", "Store write failures", counter(&m.WriteErrors)},
		{"bearing_buckets_remaining", "Buckets still to fill in the current sweep",
			func() float64 { return float64(m.BucketsRemaining.Load()) }},
		{"bearing_frames_played_total", "Frames delivered by playback", counter(&m.FramesPlayed)},
		{"bearing_bucket_loads_total", "Bucket frames loaded from a store", counter(&m.BucketLoads)},
		{"bearing_zero_fills_total", "Bucket reads that ran past the end of a store", counter(&m.ZeroFills)},
		{"bearing_replay_iterations_total", "Completed replay passes", counter(&m.ReplayIterations)},
		{"bearing_aux_records_total", "Auxiliary stream records delivered by replay", counter(&m.AuxRecords)},
		{"bearing_skipped_ticks_total", "Replay ticks skipped waiting for a buffer", counter(&m.SkippedTicks)},
	}
	for _, g := range gauges {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			g.value,
		))
	}
}

// Registry returns the registry the counters are exposed through.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on addr. It blocks.
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
