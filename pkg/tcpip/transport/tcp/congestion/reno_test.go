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

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestRenoEntersFastRecoveryOnThirdDuplicateAck(t *testing.T) {
	r := NewReno(testMSS, 20*testMSS, 64*testMSS)
	r.OnDuplicateAck()
	r.OnDuplicateAck()
	assert.Equal(t, r.State(), SlowStart)

	r.OnDuplicateAck()
	assert.Equal(t, r.State(), FastRecovery)
	assert.Assert(t, r.Ssthresh() >= 2*testMSS)
}

func TestRenoInflatesCwndPerExtraDuplicateAckInFastRecovery(t *testing.T) {
	r := NewReno(testMSS, 20*testMSS, 64*testMSS)
	r.OnDuplicateAck()
	r.OnDuplicateAck()
	r.OnDuplicateAck()
	before := r.Cwnd()

	r.OnDuplicateAck()
	assert.Equal(t, r.Cwnd(), before+testMSS)
}

func TestRenoDeflatesToSsthreshOnRecoveringAck(t *testing.T) {
	r := NewReno(testMSS, 20*testMSS, 64*testMSS)
	r.OnDuplicateAck()
	r.OnDuplicateAck()
	r.OnDuplicateAck()
	ssthresh := r.Ssthresh()

	r.OnAck(testMSS, 0)
	assert.Equal(t, r.Cwnd(), ssthresh)
	assert.Equal(t, r.State(), Avoidance)
}

func TestRenoOnTimeoutResetsDupAckCounter(t *testing.T) {
	r := NewReno(testMSS, 20*testMSS, 64*testMSS)
	r.OnDuplicateAck()
	r.OnDuplicateAck()
	r.OnTimeout()

	// a subsequent single duplicate ack must not immediately trigger
	// fast-retransmit since the counter was reset by the timeout.
	r.OnDuplicateAck()
	assert.Equal(t, r.State(), SlowStart)
}

func TestRenoCwndAndSsthreshInvariantsHoldAcrossSequence(t *testing.T) {
	r := NewReno(testMSS, 10*testMSS, 64*testMSS)
	ops := []func(){
		func() { r.OnAck(testMSS, 0) },
		func() { r.OnDuplicateAck() },
		func() { r.OnTimeout() },
	}
	for i := 0; i < 60; i++ {
		ops[i%len(ops)]()
		assert.Assert(t, r.Cwnd() >= testMSS)
		assert.Assert(t, r.Ssthresh() >= 2*testMSS)
	}
}
