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

// Package congestion implements the pluggable TCP congestion-control
// strategies (spec.md §4.5, C7): AIMD, Reno, and Cubic, each exposing the
// same four-hook Controller interface the original's TCPCongHooks struct
// defines.
package congestion

// State is the congestion state machine's current phase.
type State int

const (
	SlowStart State = iota
	Avoidance
	FastRetransmit
	FastRecovery
)

func (s State) String() string {
	switch s {
	case SlowStart:
		return "slow-start"
	case Avoidance:
		return "avoidance"
	case FastRetransmit:
		return "fast-retransmit"
	case FastRecovery:
		return "fast-recovery"
	default:
		return "unknown"
	}
}

// Controller is the hook set a congestion-control strategy implements,
// mirroring TCPCongHooks: on_ack, on_duplicate_ack, on_timeout, ssthresh.
type Controller interface {
	// OnAck is invoked for every new cumulative ACK, with the number of
	// newly-acknowledged bytes and the sender's current bytes-in-flight
	// (after accounting for the ack).
	OnAck(bytesAcked, inFlight uint32)
	// OnDuplicateAck is invoked for each duplicate ACK received.
	OnDuplicateAck()
	// OnTimeout is invoked when the retransmission timer fires.
	OnTimeout()
	// Cwnd returns the current congestion window, in bytes.
	Cwnd() uint32
	// Ssthresh returns the current slow-start threshold, in bytes.
	Ssthresh() uint32
	// State returns the controller's current phase, for observability.
	State() State
}

// dupAckThreshold is the classic fast-retransmit trigger: 3 duplicate ACKs.
const dupAckThreshold = 3
