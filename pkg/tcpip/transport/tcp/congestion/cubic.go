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

import "math"

const (
	// cubicBeta is the multiplicative window reduction on loss.
	cubicBeta = 0.7
	// cubicC scales the window growth curve's steepness.
	cubicC = 0.4
)

// Cubic grows cwnd along a cubic function of time-since-last-loss rather
// than AIMD's linear RTT-counted increase: concave as cwnd approaches the
// pre-loss window W_max, then convex beyond it, so the window converges
// on W_max quickly and probes gently past it. shd-tcp-cubic.h only
// declares the opaque constructor (cubic_new(cwnd, ssthresh)); the growth
// function itself follows the standard W_max/K formulation the original
// describes. Falls back to Reno's dup-ack fast-retransmit/fast-recovery
// bookkeeping, since Cubic only replaces the avoidance-phase growth law.
type Cubic struct {
	Reno

	wMax         float64 // cwnd (in segments) at last loss
	k            float64 // avoidance progress (in elapsed's units) to reach wMax again
	epochStart   float64 // nonzero once an avoidance epoch has begun; a flag, not a time
	originPoint  float64
	elapsed      float64 // avoidance progress across OnAck calls, in cwnd-worths of acked bytes
}

// NewCubic returns a Cubic controller starting in slow-start.
func NewCubic(mss, initialCwnd, initialSsthresh uint32) *Cubic {
	return &Cubic{Reno: Reno{AIMD: AIMD{mss: mss, cwnd: initialCwnd, ssthresh: initialSsthresh, state: SlowStart}}}
}

// OnAck implements Controller. Slow-start and fast-recovery deflation are
// delegated to Reno; the avoidance-phase growth law is cubic's own.
func (c *Cubic) OnAck(bytesAcked, inFlight uint32) {
	if c.cwnd < c.ssthresh || c.state == FastRecovery {
		c.Reno.OnAck(bytesAcked, inFlight)
		if c.state == Avoidance {
			c.resetEpoch()
		}
		return
	}
	c.state = Avoidance
	if c.epochStart == 0 {
		c.resetEpoch()
	}
	c.dupAcks = 0

	// Advance elapsed avoidance time in proportion to bytes acked relative
	// to a full window, the usual substitute for a wall-clock RTT tick in
	// a byte-counted simulator.
	if c.cwnd > 0 {
		c.elapsed += float64(bytesAcked) / float64(c.cwnd)
	}
	t := c.elapsed
	target := c.originPoint + cubicC*math.Pow(t-c.k, 3)

	segMSS := float64(c.mss)
	targetBytes := target * segMSS
	if targetBytes < float64(c.cwnd) {
		// Concave region hasn't caught back up yet; hold steady rather
		// than shrink, mirroring RFC 8312's floor-at-current-window rule.
		targetBytes = float64(c.cwnd)
	}
	// Bound the per-ack growth so a single huge ack can't jump the window
	// past what the cubic curve allows for the elapsed time.
	maxStep := segMSS
	if targetBytes > float64(c.cwnd)+maxStep {
		targetBytes = float64(c.cwnd) + maxStep
	}
	c.cwnd = uint32(targetBytes)
}

// OnDuplicateAck implements Controller: reuses Reno's threshold-triggered
// fast-retransmit, but records wMax/K for the next avoidance epoch instead
// of Reno's additive-increase resumption.
func (c *Cubic) OnDuplicateAck() {
	before := c.state
	c.Reno.OnDuplicateAck()
	if before != FastRecovery && c.state == FastRecovery {
		c.recordLoss()
	}
}

// OnTimeout implements Controller.
func (c *Cubic) OnTimeout() {
	c.recordLoss()
	c.Reno.OnTimeout()
	c.epochStart = 0
}

func (c *Cubic) recordLoss() {
	c.wMax = float64(c.cwnd) / float64(c.mss)
	c.k = math.Cbrt(c.wMax * (1 - cubicBeta) / cubicC)
}

func (c *Cubic) resetEpoch() {
	c.epochStart = 1 // any nonzero sentinel; absolute time isn't tracked
	c.elapsed = 0
	if c.wMax == 0 {
		c.wMax = float64(c.cwnd) / float64(c.mss)
		c.k = 0
	}
	c.originPoint = c.wMax
}
