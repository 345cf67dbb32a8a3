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

// Package sched implements the simulation's round-barrier scheduler
// (spec.md §3, C6; SPEC_FULL §2, grounded on
// shd-scheduler-policy-global-single.c and shd-worker.h): a fixed pool of
// worker goroutines drains a shared queue of ready hosts, each host
// processing every one of its own pending events whose time falls within
// the current round's [start, start+minPathLatency) window, with an
// errgroup barrier between rounds so no host can observe an event from a
// later round before every host has caught up to this one.
package sched

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/shadowsim/shadow-go/pkg/event"
	"github.com/shadowsim/shadow-go/pkg/sentry/kernel"
	"github.com/shadowsim/shadow-go/pkg/shadowtime"
	"github.com/shadowsim/shadow-go/pkg/shim"
)

// Scheduler drives a fixed set of hosts to completion (or to a configured
// end time), processing each host's event queue independently except for
// the per-round barrier.
type Scheduler struct {
	hosts          []*kernel.Host
	shimHosts      map[event.HostID]*shim.ShimShmemHost
	minPathLatency shadowtime.SimTime
	endTime        shadowtime.SimTime
	workers        int

	// rounds counts completed round barriers, for diagnostics and tests.
	rounds int
}

// New returns a Scheduler over hosts, with the given minimum path latency
// bounding every round's window (spec.md §3: "the round barrier only
// advances as far as the smallest configured link latency, since a packet
// sent this round could not arrive at its destination host sooner than
// that"). By default the scheduler runs until every host's queue is empty
// and uses GOMAXPROCS workers.
func New(hosts []*kernel.Host, minPathLatency shadowtime.SimTime) *Scheduler {
	return &Scheduler{
		hosts:          hosts,
		shimHosts:      make(map[event.HostID]*shim.ShimShmemHost),
		minPathLatency: minPathLatency,
		endTime:        shadowtime.Invalid,
		workers:        runtime.GOMAXPROCS(0),
	}
}

// SetShimHost registers the shared-memory view a host's managed threads
// read their fast-path time from; the scheduler publishes the host's
// emulated time into it every time it advances that host's clock.
func (s *Scheduler) SetShimHost(id event.HostID, h *shim.ShimShmemHost) {
	s.shimHosts[id] = h
}

// SetEndTime bounds the simulation to stop once no pending event remains
// before t, rather than running until every queue drains naturally.
func (s *Scheduler) SetEndTime(t shadowtime.SimTime) { s.endTime = t }

// SetWorkers overrides the worker pool size (default GOMAXPROCS). n <= 0
// is ignored.
func (s *Scheduler) SetWorkers(n int) {
	if n > 0 {
		s.workers = n
	}
}

// Rounds reports how many round barriers have completed so far.
func (s *Scheduler) Rounds() int { return s.rounds }

// Run drives the simulation to completion: repeatedly finds the earliest
// pending event across every host, opens a round window of width
// minPathLatency starting there, and lets the worker pool drain every
// host's events inside that window before starting the next round. It
// returns when no host has any pending event left before EndTime (or at
// all, if EndTime was never set), or when ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		start, ok := s.earliestPending()
		if !ok {
			return nil
		}
		if s.endTime.IsValid() && start >= s.endTime {
			return nil
		}
		width := s.minPathLatency
		if width == 0 {
			width = 1
		}
		roundEnd := start.Add(width)
		if s.endTime.IsValid() && roundEnd > s.endTime {
			roundEnd = s.endTime
		}
		if err := s.runRound(ctx, roundEnd); err != nil {
			return err
		}
		s.rounds++
	}
}

// earliestPending returns the smallest pending-event time across every
// host, and false if no host has anything queued.
func (s *Scheduler) earliestPending() (shadowtime.SimTime, bool) {
	var earliest shadowtime.SimTime = shadowtime.Invalid
	found := false
	for _, h := range s.hosts {
		h.Lock()
		e, ok := h.Events.Peek()
		h.Unlock()
		if ok && (!found || e.Time < earliest) {
			earliest = e.Time
			found = true
		}
	}
	return earliest, found
}

// runRound hands every host to the shared ready queue and lets up to
// s.workers goroutines drain it; a worker that empties its current host
// early pulls the next one off the queue rather than sitting idle, the
// "work-stealing" property SPEC_FULL names (a shared queue drained by a
// fixed pool, the idiomatic Go rendition of the original's per-worker
// steal queues).
func (s *Scheduler) runRound(ctx context.Context, roundEnd shadowtime.SimTime) error {
	ready := make(chan *kernel.Host, len(s.hosts))
	for _, h := range s.hosts {
		ready <- h
	}
	close(ready)

	workers := s.workers
	if workers > len(s.hosts) {
		workers = len(s.hosts)
	}
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for h := range ready {
				if err := s.runHost(gctx, h, roundEnd); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// runHost pops and runs every one of h's events with Time < roundEnd, in
// order, advancing h's clock (and published shim time) before each one.
// It never holds h's lock across a Task.Run call, since a resumed thread's
// Runner.Resume may itself enqueue new events on this same host (spec.md
// §3's host-lock invariant).
func (s *Scheduler) runHost(ctx context.Context, h *kernel.Host, roundEnd shadowtime.SimTime) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		h.Lock()
		ev, ok := h.Events.PopBeforeTime(roundEnd)
		if ok {
			h.AdvanceTime(ev.Time)
			if sh, ok := s.shimHosts[h.ID]; ok {
				sh.SetEmulatedTime(shadowtime.ToEmuTime(ev.Time, h.Epoch))
			}
		}
		h.Unlock()

		if !ok {
			return nil
		}
		ev.Task.Run()
	}
}
