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

package tcp

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestScoreboardUpdateMergesOverlappingBlocks(t *testing.T) {
	s := newScoreboard()
	s.update([]sackBlock{{Start: 100, End: 200}})
	s.update([]sackBlock{{Start: 150, End: 300}})

	assert.Equal(t, len(s.sacked), 1)
	assert.Equal(t, s.sacked[0], sackBlock{Start: 100, End: 300})
}

func TestScoreboardUpdateKeepsDisjointBlocksSeparate(t *testing.T) {
	s := newScoreboard()
	s.update([]sackBlock{{Start: 100, End: 200}, {Start: 500, End: 600}})
	assert.Equal(t, len(s.sacked), 2)
}

func TestScoreboardUpdateCapsAtMaxSackBlocks(t *testing.T) {
	s := newScoreboard()
	s.update([]sackBlock{
		{Start: 0, End: 10},
		{Start: 100, End: 110},
		{Start: 200, End: 210},
		{Start: 300, End: 310},
	})
	assert.Assert(t, len(s.sacked) <= maxSackBlocks)
}

// TestRemoveAckedBlocksNeverLeavesScoreboardBelowCumulativeAck is spec.md
// §8's invariant: the SACK scoreboard never reports a block that lies below
// the cumulative ACK.
func TestRemoveAckedBlocksNeverLeavesScoreboardBelowCumulativeAck(t *testing.T) {
	s := newScoreboard()
	s.update([]sackBlock{{Start: 100, End: 200}, {Start: 250, End: 300}})

	s.removeAckedBlocks(150)

	for _, b := range s.sacked {
		assert.Assert(t, b.Start >= 150)
	}
}

func TestRemoveAckedBlocksTrimsPartiallyCoveredBlock(t *testing.T) {
	s := newScoreboard()
	s.update([]sackBlock{{Start: 100, End: 200}})

	s.removeAckedBlocks(150)

	assert.Equal(t, len(s.sacked), 1)
	assert.Equal(t, s.sacked[0], sackBlock{Start: 150, End: 200})
}

func TestRemoveAckedBlocksDropsFullyCoveredBlock(t *testing.T) {
	s := newScoreboard()
	s.update([]sackBlock{{Start: 100, End: 200}})

	s.removeAckedBlocks(200)

	assert.Equal(t, len(s.sacked), 0)
}

func TestIsLostBelowHighestSackedAndUncovered(t *testing.T) {
	s := newScoreboard()
	s.update([]sackBlock{{Start: 300, End: 400}})

	assert.Assert(t, s.isLost(100, s.highestSacked()))
	assert.Assert(t, !s.isLost(350, s.highestSacked())) // covered by the sacked run
	assert.Assert(t, !s.isLost(500, s.highestSacked())) // at/above highest sacked
}

func TestIsLostFalseWhenScoreboardEmpty(t *testing.T) {
	s := newScoreboard()
	assert.Assert(t, !s.isLost(100, 0))
}

// TestNextRetransmitNeverResendsBelowHighestRetransmit is spec.md §8's
// invariant: retransmit never resends a segment whose sequence has already
// advanced past highestRetransmit (which removeAckedBlocks keeps pinned at
// or above the cumulative ACK -- so this also verifies "never below
// snd_una" transitively).
func TestNextRetransmitNeverResendsBelowHighestRetransmit(t *testing.T) {
	s := newScoreboard()
	s.update([]sackBlock{{Start: 300, End: 400}})

	queue := []*segment{
		{Seq: 100, Payload: make([]byte, 100)},
		{Seq: 200, Payload: make([]byte, 100)},
	}

	seg := s.nextRetransmit(queue)
	assert.Assert(t, seg != nil)
	assert.Equal(t, seg.Seq, uint32(100))
	firstHighWaterMark := s.highestRetransmit

	// a second call never returns the segment just retransmitted: every
	// subsequent candidate's sequence is at or past the prior high-water
	// mark.
	seg2 := s.nextRetransmit(queue)
	if seg2 != nil {
		assert.Assert(t, seg2.Seq >= firstHighWaterMark)
	}
}

func TestClearResetsScoreboard(t *testing.T) {
	s := newScoreboard()
	s.update([]sackBlock{{Start: 100, End: 200}})
	s.highestRetransmit = 50

	s.clear()

	assert.Assert(t, s.empty())
	assert.Equal(t, s.highestRetransmit, uint32(0))
}

func TestEmptyReportsNoSackedBlocks(t *testing.T) {
	s := newScoreboard()
	assert.Assert(t, s.empty())
	s.update([]sackBlock{{Start: 1, End: 2}})
	assert.Assert(t, !s.empty())
}
