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


package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	calls []string
	args  []interface{}
}

func (f *fakeClient) record(name string, args ...interface{}) {
	f.calls = append(f.calls, name)
	f.args = append(f.args, args...)
}

func (f *fakeClient) StartCapture(increment float64) (string, error) {
	f.record("StartCapture", increment)
	return "/var/spool/bearing/capture-1", nil
}
func (f *fakeClient) StartFreeRecording() (string, error) {
	f.record("StartFreeRecording")
	return "/var/spool/bearing/free-1", nil
}
func (f *fakeClient) StopCapture() error { f.record("StopCapture"); return nil }
func (f *fakeClient) Checkpoint() (string, error) {
	f.record("Checkpoint")
	return "checkpoint.yaml", nil
}
func (f *fakeClient) Resume(dir string) error { f.record("Resume", dir); return nil }
func (f *fakeClient) RecorderStatus() (string, error) {
	f.record("RecorderStatus")
	return "state: idle", nil
}
func (f *fakeClient) SetBearing(bearing float64) error { f.record("SetBearing", bearing); return nil }
func (f *fakeClient) Review(start, end float64, pause time.Duration, repeat bool) error {
	f.record("Review", start, end, pause, repeat)
	return nil
}
func (f *fakeClient) StopPlayback() error { f.record("StopPlayback"); return nil }
func (f *fakeClient) PlayerStatus() (string, error) {
	f.record("PlayerStatus")
	return "bearing: 90", nil
}

func TestCaptureDefaultsIncrement(t *testing.T) {
	c := new(fakeClient)
	out, err := run(Args{Command: "capture"}, c)
	require.NoError(t, err)
	assert.Equal(t, "/var/spool/bearing/capture-1", out)
	assert.Equal(t, []interface{}{0.0}, c.args)

	c = new(fakeClient)
	_, err = run(Args{Command: "capture", Values: []string{"2.5"}}, c)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{2.5}, c.args)
}

func TestBadArguments(t *testing.T) {
	c := new(fakeClient)
	_, err := run(Args{Command: "capture", Values: []string{"x"}}, c)
	assert.Error(t, err)
	_, err = run(Args{Command: "resume"}, c)
	assert.Equal(t, errUsage, err)
	_, err = run(Args{Command: "bearing", Values: []string{"north"}}, c)
	assert.Error(t, err)
	_, err = run(Args{Command: "review", Values: []string{"10"}}, c)
	assert.Equal(t, errUsage, err)
	_, err = run(Args{Command: "spin"}, c)
	assert.Error(t, err)
	assert.Empty(t, c.calls)
}

func TestReview(t *testing.T) {
	c := new(fakeClient)
	_, err := run(Args{Command: "review", Values: []string{"350", "20", "2s", "repeat"}}, c)
	require.NoError(t, err)
	assert.Equal(t, []string{"Review"}, c.calls)
	assert.Equal(t, []interface{}{350.0, 20.0, 2 * time.Second, true}, c.args)

	c = new(fakeClient)
	_, err = run(Args{Command: "review", Values: []string{"0", "90"}}, c)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{0.0, 90.0, time.Duration(0), false}, c.args)
}

func TestCommandsDispatch(t *testing.T) {
	cases := map[string]string{
		"free":          "StartFreeRecording",
		"stop":          "StopCapture",
		"checkpoint":    "Checkpoint",
		"status":        "RecorderStatus",
		"halt":          "StopPlayback",
		"player-status": "PlayerStatus",
	}
	for command, call := range cases {
		c := new(fakeClient)
		_, err := run(Args{Command: command}, c)
		require.NoError(t, err, command)
		assert.Equal(t, []string{call}, c.calls, command)
	}

	c := new(fakeClient)
	_, err := run(Args{Command: "resume", Values: []string{"/tmp/capture-1"}}, c)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"/tmp/capture-1"}, c.args)

	c = new(fakeClient)
	_, err = run(Args{Command: "bearing", Values: []string{"270"}}, c)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{270.0}, c.args)
}
