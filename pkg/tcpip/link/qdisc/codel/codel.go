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

// Package codel implements the CoDel active queue management algorithm
// (RFC 8289) used on the router's link queues (spec.md §4.6). The "Flow
// Queue" variant (RFC 8290) is not implemented, matching the original's
// shd-router-queue-codel.c.
package codel

import (
	"container/list"
	"math"

	"github.com/shadowsim/shadow-go/pkg/shadowtime"
)

const (
	// targetDelay is the target minimum standing queue delay. The RFC
	// recommends 5ms; Shadow doubles it to 10ms.
	targetDelay = 10 * shadowtime.Millisecond
	// interval is the window over which delay is evaluated, and the
	// cooldown before re-entering drop mode.
	interval = 100 * shadowtime.Millisecond
	// mtu is the packet-length threshold below which a queue is
	// considered drained even if sojourn time is still measured high,
	// matching the original's CONFIG_MTU guard.
	mtu = 1500
)

// Packet is the minimal shape CoDel needs from a queued packet: its wire
// length, for the totalSize/MTU comparison.
type Packet interface {
	Length() int
}

// mode is whether the queue is storing (forwarding) or occasionally
// dropping packets to signal congestion back to the sender.
type mode int

const (
	modeStore mode = iota
	modeDrop
)

type entry struct {
	packet   Packet
	enqueued shadowtime.SimTime
}

// Queue is a single CoDel-managed link queue. Not safe for concurrent
// use; callers serialize access the same way the event loop serializes
// everything else host-side.
type Queue struct {
	entries   *list.List
	totalSize uint64

	mode             mode
	intervalExpireTS shadowtime.SimTime
	nextDropTS       shadowtime.SimTime
	dropCount        uint32
	dropCountLast    uint32
}

// New returns an empty CoDel queue in storing mode.
func New() *Queue {
	return &Queue{entries: list.New(), mode: modeStore}
}

// Len returns the number of packets currently queued.
func (q *Queue) Len() int { return q.entries.Len() }

// Enqueue appends a packet to the tail of the queue. The original enforces
// a hard LIMIT (recommended 1000 packets in real routers); Shadow leaves
// it unbounded, so Enqueue here never rejects a packet.
func (q *Queue) Enqueue(now shadowtime.SimTime, p Packet) {
	q.entries.PushBack(&entry{packet: p, enqueued: now})
	q.totalSize += uint64(p.Length())
}

func (q *Queue) popHelper(now shadowtime.SimTime) (Packet, bool) {
	front := q.entries.Front()
	if front == nil {
		q.intervalExpireTS = 0
		return nil, false
	}
	e := q.entries.Remove(front).(*entry)
	q.totalSize -= uint64(e.packet.Length())

	sojourn := now - e.enqueued
	if sojourn < targetDelay || q.totalSize < mtu {
		q.intervalExpireTS = 0
		return e.packet, false
	}

	if q.intervalExpireTS == 0 {
		q.intervalExpireTS = now + interval
		return e.packet, false
	}
	return e.packet, now >= q.intervalExpireTS
}

// controlLaw computes the next drop deadline: interval scaled by
// 1/sqrt(dropCount), so drops accelerate while the queue stays congested.
func controlLaw(count uint32, ts shadowtime.SimTime) shadowtime.SimTime {
	result := float64(ts) + float64(interval)/math.Sqrt(float64(count))
	return shadowtime.SimTime(math.Round(result))
}

// Dequeue removes and returns the next packet to forward, or nil if the
// queue is empty. Dropped packets are silently discarded; Dequeue keeps
// pulling until it has one to return or the queue drains.
func (q *Queue) Dequeue(now shadowtime.SimTime) Packet {
	packet, okToDrop := q.popHelper(now)
	if packet == nil {
		q.mode = modeStore
		return nil
	}

	if q.mode == modeDrop {
		if !okToDrop {
			q.mode = modeStore
		}
		for now >= q.nextDropTS && q.mode == modeDrop {
			q.dropCount++
			packet, okToDrop = q.popHelper(now)
			if packet == nil {
				q.mode = modeStore
				return nil
			}
			if okToDrop {
				q.nextDropTS = controlLaw(q.dropCount, q.nextDropTS)
			} else {
				q.mode = modeStore
			}
		}
		return packet
	}

	if okToDrop {
		// entering drop mode: this packet itself is dropped, and we pull
		// the next one to return, as the original does.
		packet, _ = q.popHelper(now)
		q.mode = modeDrop

		delta := q.dropCount - q.dropCountLast
		q.dropCount = 1
		droppingRecently := now < q.nextDropTS+16*interval
		if droppingRecently && delta > 1 {
			q.dropCount = delta
		}
		q.nextDropTS = controlLaw(q.dropCount, now)
		q.dropCountLast = q.dropCount
	}

	return packet
}

// Peek returns the head-of-queue packet without removing it, or nil if
// the queue is empty.
func (q *Queue) Peek() Packet {
	front := q.entries.Front()
	if front == nil {
		return nil
	}
	return front.Value.(*entry).packet
}
