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

const testMSS = 1460

func TestAIMDSlowStartDoublesPerRTT(t *testing.T) {
	a := NewAIMD(testMSS, 4*testMSS, 64*testMSS)
	before := a.Cwnd()
	a.OnAck(4*testMSS, 0) // every segment in the window acked
	assert.Equal(t, a.Cwnd(), before+4*testMSS)
	assert.Equal(t, a.State(), SlowStart)
}

func TestAIMDAvoidanceAddsOneMSSPerWindow(t *testing.T) {
	a := NewAIMD(testMSS, 64*testMSS, 4*testMSS) // cwnd already above ssthresh
	before := a.Cwnd()
	a.OnAck(uint32(before), 0) // one full window's worth of acks
	assert.Equal(t, a.Cwnd(), before+testMSS)
	assert.Equal(t, a.State(), Avoidance)
}

// TestAIMDOnTimeoutHalvesAndResetsToSlowStart is spec.md §8's invariant:
// cwnd >= MSS and ssthresh >= 2*MSS always hold.
func TestAIMDOnTimeoutHalvesAndResetsToSlowStart(t *testing.T) {
	a := NewAIMD(testMSS, 20*testMSS, 64*testMSS)
	a.OnTimeout()

	assert.Equal(t, a.Cwnd(), uint32(testMSS))
	assert.Assert(t, a.Ssthresh() >= 2*testMSS)
	assert.Equal(t, a.State(), SlowStart)
}

func TestAIMDOnTimeoutSsthreshFloorsAtTwoMSS(t *testing.T) {
	a := NewAIMD(testMSS, 3*testMSS, 64*testMSS) // cwnd/2 < 2*MSS
	a.OnTimeout()
	assert.Equal(t, a.Ssthresh(), uint32(2*testMSS))
}

func TestAIMDCwndNeverBelowMSSAcrossRandomAckTimeoutSequence(t *testing.T) {
	a := NewAIMD(testMSS, 4*testMSS, 8*testMSS)
	for i := 0; i < 50; i++ {
		if i%7 == 0 {
			a.OnTimeout()
		} else {
			a.OnAck(testMSS, 0)
		}
		assert.Assert(t, a.Cwnd() >= testMSS)
		assert.Assert(t, a.Ssthresh() >= 2*testMSS)
	}
}

func TestAIMDOnDuplicateAckIsNoop(t *testing.T) {
	a := NewAIMD(testMSS, 4*testMSS, 64*testMSS)
	before := a.Cwnd()
	a.OnDuplicateAck()
	assert.Equal(t, a.Cwnd(), before)
}
