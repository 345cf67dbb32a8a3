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

// dupAcksForFastRetransmit is the classic threshold (shd-tcp-cong-reno.c).
const dupAcksForFastRetransmit = 3

// Reno adds fast-retransmit/fast-recovery to AIMD: on the third duplicate
// ACK, halve cwnd and enter FastRecovery, inflating cwnd by one MSS per
// further duplicate ACK (so the sender keeps sending new data while the
// loss is outstanding); a new ACK that covers the loss deflates back to
// ssthresh and returns to Avoidance. Grounded on shd-tcp-cong-reno.c's
// tcp_cong_reno_duplicateAck/timeout hooks layered over Reno's cwnd/ssthresh
// state (shd-tcp-reno.h).
type Reno struct {
	AIMD
	dupAcks int
}

// NewReno returns a Reno controller starting in slow-start.
func NewReno(mss, initialCwnd, initialSsthresh uint32) *Reno {
	return &Reno{AIMD: AIMD{mss: mss, cwnd: initialCwnd, ssthresh: initialSsthresh, state: SlowStart}}
}

// OnAck implements Controller: a new ACK received while in FastRecovery
// means the retransmission was accepted, so cwnd deflates back to
// ssthresh and normal avoidance resumes.
func (r *Reno) OnAck(bytesAcked, inFlight uint32) {
	if r.state == FastRecovery {
		r.cwnd = r.ssthresh
		r.state = Avoidance
		r.dupAcks = 0
	}
	r.dupAcks = 0
	r.AIMD.OnAck(bytesAcked, inFlight)
}

// OnDuplicateAck implements Controller.
func (r *Reno) OnDuplicateAck() {
	r.dupAcks++
	switch {
	case r.dupAcks == dupAcksForFastRetransmit && r.state != FastRecovery:
		r.ssthresh = max32(r.cwnd/2, 2*r.mss)
		r.cwnd = r.ssthresh + dupAcksForFastRetransmit*r.mss
		// FastRetransmit holds only inside this call: the deferred
		// assignment below moves the state to FastRecovery before
		// OnDuplicateAck returns, so callers observe FastRecovery.
		r.state = FastRetransmit
		defer func() { r.state = FastRecovery }()
	case r.state == FastRecovery:
		r.cwnd += r.mss
	}
}

// OnTimeout implements Controller.
func (r *Reno) OnTimeout() {
	r.AIMD.OnTimeout()
	r.dupAcks = 0
}
