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

package congestion

// AIMD is the baseline additive-increase/multiplicative-decrease
// controller: slow-start doubles cwnd per RTT (one MSS per acked segment)
// until ssthresh, then avoidance adds one MSS per RTT; a timeout sets
// ssthresh to half of cwnd (at least two MSS) and resets cwnd to one MSS.
// Grounded on shd-tcp-aimd.h's cwnd/ssthresh pair, generalized to the
// Controller interface's four hooks.
type AIMD struct {
	mss         uint32
	cwnd        uint32
	ssthresh    uint32
	state       State
	ackedThisRTT uint32
}

// NewAIMD returns an AIMD controller starting in slow-start with the given
// MSS and initial cwnd/ssthresh (in bytes).
func NewAIMD(mss, initialCwnd, initialSsthresh uint32) *AIMD {
	return &AIMD{mss: mss, cwnd: initialCwnd, ssthresh: initialSsthresh, state: SlowStart}
}

// OnAck implements Controller.
func (a *AIMD) OnAck(bytesAcked, inFlight uint32) {
	if a.cwnd < a.ssthresh {
		a.state = SlowStart
		a.cwnd += bytesAcked
		return
	}
	a.state = Avoidance
	// Linear increase: one MSS per cwnd-worth of bytes acked (i.e. one MSS
	// per RTT if every segment in the window is acked).
	a.ackedThisRTT += bytesAcked
	if a.ackedThisRTT >= a.cwnd {
		a.ackedThisRTT -= a.cwnd
		a.cwnd += a.mss
	}
}

// OnDuplicateAck implements Controller. Plain AIMD has no fast-retransmit
// behavior; loss is only recognized through OnTimeout.
func (a *AIMD) OnDuplicateAck() {}

// OnTimeout implements Controller: halve ssthresh and reset cwnd to one
// MSS, re-entering slow-start, the standard RTO response.
func (a *AIMD) OnTimeout() {
	a.ssthresh = max32(a.cwnd/2, 2*a.mss)
	a.cwnd = a.mss
	a.state = SlowStart
	a.ackedThisRTT = 0
}

// Cwnd implements Controller.
func (a *AIMD) Cwnd() uint32 { return a.cwnd }

// Ssthresh implements Controller.
func (a *AIMD) Ssthresh() uint32 { return a.ssthresh }

// State implements Controller.
func (a *AIMD) State() State { return a.state }

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
