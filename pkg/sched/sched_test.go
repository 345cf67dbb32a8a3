// Copyright 2024 The Shadow-Go Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sched

import (
	"context"
	"sync"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/shadowsim/shadow-go/pkg/event"
	"github.com/shadowsim/shadow-go/pkg/sentry/kernel"
	"github.com/shadowsim/shadow-go/pkg/shadowtime"
	"github.com/shadowsim/shadow-go/pkg/shim"
)

func newHost(id event.HostID) *kernel.Host {
	return kernel.NewHost(id, kernel.Params{Name: "h", Epoch: shadowtime.DefaultEpochOffset})
}

// TestRunDrainsAllEventsInOrder pushes a handful of events at increasing
// times on a single host and checks the scheduler runs every one, in Time
// order, to completion.
func TestRunDrainsAllEventsInOrder(t *testing.T) {
	h := newHost(1)

	var mu sync.Mutex
	var seen []shadowtime.SimTime
	record := func(tm shadowtime.SimTime) event.TaskFunc {
		return func() {
			mu.Lock()
			seen = append(seen, tm)
			mu.Unlock()
		}
	}

	times := []shadowtime.SimTime{10, 5, 20, 1}
	for _, tm := range times {
		h.Events.Push(tm, h.ID, h.ID, record(tm))
	}

	s := New([]*kernel.Host{h}, shadowtime.Millisecond)
	s.SetWorkers(1)
	assert.NilError(t, s.Run(context.Background()))

	assert.Equal(t, len(seen), len(times))
	assert.DeepEqual(t, seen, []shadowtime.SimTime{1, 5, 10, 20})
	assert.Assert(t, s.Rounds() > 0)
}

// TestRunHonorsEndTime checks that an event scheduled at or after the
// configured end time is never run.
func TestRunHonorsEndTime(t *testing.T) {
	h := newHost(1)

	ran := make(chan shadowtime.SimTime, 2)
	h.Events.Push(5, h.ID, h.ID, event.TaskFunc(func() { ran <- 5 }))
	h.Events.Push(50, h.ID, h.ID, event.TaskFunc(func() { ran <- 50 }))

	s := New([]*kernel.Host{h}, shadowtime.Millisecond)
	s.SetEndTime(10)
	assert.NilError(t, s.Run(context.Background()))

	close(ran)
	var got []shadowtime.SimTime
	for v := range ran {
		got = append(got, v)
	}
	assert.DeepEqual(t, got, []shadowtime.SimTime{5})

	// the held-back event is still queued for a later run.
	e, ok := h.Events.Peek()
	assert.Assert(t, ok)
	assert.Equal(t, e.Time, shadowtime.SimTime(50))
}

// TestRunProcessesMultipleHostsConcurrently exercises the shared
// ready-queue worker pool across several hosts at once.
func TestRunProcessesMultipleHostsConcurrently(t *testing.T) {
	const numHosts = 4
	hosts := make([]*kernel.Host, numHosts)
	var mu sync.Mutex
	ranHosts := map[event.HostID]bool{}

	for i := 0; i < numHosts; i++ {
		h := newHost(event.HostID(i + 1))
		hosts[i] = h
		h.Events.Push(shadowtime.SimTime(i), h.ID, h.ID, event.TaskFunc(func(id event.HostID) func() {
			return func() {
				mu.Lock()
				ranHosts[id] = true
				mu.Unlock()
			}
		}(h.ID)))
	}

	s := New(hosts, shadowtime.Millisecond)
	s.SetWorkers(2)
	assert.NilError(t, s.Run(context.Background()))

	assert.Equal(t, len(ranHosts), numHosts)
}

// TestSetShimHostPublishesEmulatedTime checks that advancing a host's time
// during a round updates its registered ShimShmemHost, the fast-path
// clock-read wiring pkg/shim depends on.
func TestSetShimHostPublishesEmulatedTime(t *testing.T) {
	h := newHost(1)
	h.Events.Push(2*shadowtime.Second, h.ID, h.ID, event.TaskFunc(func() {}))

	sh := shim.NewShimShmemHost()
	s := New([]*kernel.Host{h}, shadowtime.Millisecond)
	s.SetShimHost(h.ID, sh)
	assert.NilError(t, s.Run(context.Background()))

	wantEmu := shadowtime.ToEmuTime(2*shadowtime.Second, h.Epoch)
	sec, _, ok := shim.FastPathClockGettime(shim.ClockRealtime, sh)
	assert.Assert(t, ok)
	wantSec, _ := wantEmu.Unix()
	assert.Equal(t, sec, wantSec)
}

// TestEarliestPendingEmptyQueues checks Run returns immediately, with zero
// rounds, when every host starts out with an empty queue.
func TestEarliestPendingEmptyQueues(t *testing.T) {
	h := newHost(1)
	s := New([]*kernel.Host{h}, shadowtime.Millisecond)
	assert.NilError(t, s.Run(context.Background()))
	assert.Equal(t, s.Rounds(), 0)
}
