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

// Package link models the egress side of a simulated network interface
// (spec.md §4.6, C8): a CoDel-managed packet queue draining at the
// interface's configured bandwidth, after which a packet is delivered to
// its destination after the path's latency.
package link

import (
	"github.com/shadowsim/shadow-go/pkg/shadowtime"
	"github.com/shadowsim/shadow-go/pkg/tcpip/link/qdisc/codel"
)

// Interface is one host's outbound network interface: a bandwidth limit
// and a CoDel AQM queue in front of it. Packets enqueued faster than the
// interface drains them experience CoDel's sojourn-time-based dropping.
type Interface struct {
	BandwidthBytesPerSecond uint64
	Queue                   *codel.Queue

	// drainsUntil tracks the simulated time up to which this interface is
	// already busy transmitting previously enqueued packets, so
	// back-to-back sends serialize realistically instead of all departing
	// at once.
	drainsUntil shadowtime.SimTime
}

// NewInterface returns an interface with the given bandwidth cap and an
// empty CoDel queue.
func NewInterface(bandwidthBytesPerSecond uint64) *Interface {
	return &Interface{BandwidthBytesPerSecond: bandwidthBytesPerSecond, Queue: codel.New()}
}

// Send enqueues pkt for transmission at now, then immediately dequeues
// whatever CoDel allows through (this interface is polled synchronously
// per send rather than run as its own background drain loop, since the
// event-driven simulator has no notion of idle background work). It
// returns the packet to actually transmit (nil if CoDel dropped
// everything) and the simulated time it clears the interface.
func (i *Interface) Send(now shadowtime.SimTime, pkt codel.Packet) (codel.Packet, shadowtime.SimTime) {
	i.Queue.Enqueue(now, pkt)
	sent := i.Queue.Dequeue(now)
	if sent == nil {
		return nil, now
	}
	if i.drainsUntil < now {
		i.drainsUntil = now
	}
	var txTime shadowtime.SimTime
	if i.BandwidthBytesPerSecond > 0 {
		txTime = shadowtime.SimTime(uint64(sent.Length()) * uint64(shadowtime.Second) / i.BandwidthBytesPerSecond)
	}
	i.drainsUntil += txTime
	return sent, i.drainsUntil
}

// Path is a point-to-point link between two hosts. It carries only the
// one-way latency; the hosts' egress Interfaces are not part of it.
type Path struct {
	LatencyNs shadowtime.SimTime
}
