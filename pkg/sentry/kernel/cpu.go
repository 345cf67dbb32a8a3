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

package kernel

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/shadowsim/shadow-go/pkg/shadowtime"
)

func defaultTimeNow() time.Time { return time.Now() }

// CPU is a host's CPU delay-accounting model (SPEC_FULL §2, grounded on
// shd-cpu.c): it converts a native wall-clock delay a syscall actually took
// into simulated CPU-busy time, at a configurable frequency ratio, and
// tracks whether a thread has built up enough un-drained delay that it
// should be considered CPU-blocked (unable to make further syscalls) until
// simulated time catches up.
type CPU struct {
	frequencyRatio float64
	threshold      shadowtime.SimTime // SIMTIME_INVALID disables the concept of blocking on CPU
	precision      shadowtime.SimTime // SIMTIME_INVALID disables rounding

	now              shadowtime.SimTime
	timeCPUAvailable shadowtime.SimTime

	// limiter additionally caps the *rate* at which a host's interfaces can
	// drain CPU-delay-free syscalls, modeling the bw_down/bw_up interface
	// caps from HostParameters; only AllowBytes consults it, CPU delay
	// accounting itself does not.
	limiter *rate.Limiter
}

// NewCPU returns a CPU model for a host whose emulated frequency is
// freqKHz, relative to the raw (host machine) frequency rawFreqKHz. A
// thresholdUs of 0 disables CPU blocking entirely; a precisionUs of 0
// disables delay rounding.
func NewCPU(freqKHz, rawFreqKHz uint64, thresholdUs, precisionUs uint64) *CPU {
	c := &CPU{}
	if rawFreqKHz == 0 {
		c.frequencyRatio = 1.0
	} else {
		c.frequencyRatio = float64(rawFreqKHz) / float64(freqKHz)
	}
	if thresholdUs > 0 {
		c.threshold = shadowtime.SimTime(thresholdUs) * shadowtime.Microsecond
	} else {
		c.threshold = shadowtime.Invalid
	}
	if precisionUs > 0 {
		c.precision = shadowtime.SimTime(precisionUs) * shadowtime.Microsecond
	} else {
		c.precision = shadowtime.Invalid
	}
	return c
}

// SetBandwidthLimit installs a token-bucket limiter modeling an interface
// bandwidth cap of bytesPerSecond, with a burst of burstBytes.
func (c *CPU) SetBandwidthLimit(bytesPerSecond int, burstBytes int) {
	c.limiter = rate.NewLimiter(rate.Limit(bytesPerSecond), burstBytes)
}

// AllowBytes reports whether n bytes may be sent/received right now under
// the configured bandwidth limiter (no-op, always true, if none was set).
func (c *CPU) AllowBytes(n int) bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.AllowN(timeNow(), n)
}

// timeNow exists solely so AllowBytes can call rate.Limiter.AllowN, which
// wants a real wall-clock instant for its internal token bucket; the
// bandwidth limiter polices real CPU time spent servicing the host's
// sockets, not simulated network time, so std time.Now is correct here
// (unlike everywhere else in this module, which uses shadowtime.SimTime).
var timeNow = defaultTimeNow

// GetDelay returns the currently built-up, not-yet-elapsed CPU delay if it
// exceeds the blocking threshold, and 0 otherwise; with no threshold
// configured it returns the built-up delay as is.
func (c *CPU) GetDelay() shadowtime.SimTime {
	if c.timeCPUAvailable < c.now {
		return 0
	}
	built := c.timeCPUAvailable - c.now
	if c.threshold.IsValid() && built > c.threshold {
		return built
	}
	if !c.threshold.IsValid() {
		return built
	}
	return 0
}

// IsBlocked reports whether the CPU has built up enough delay to be
// considered blocked, per cpu_isBlocked.
func (c *CPU) IsBlocked() bool {
	if !c.threshold.IsValid() {
		return false
	}
	return c.GetDelay() > 0
}

// UpdateTime advances the CPU's notion of "now". timeCPUAvailable only
// moves forward, never backward, so delay added earlier is preserved.
func (c *CPU) UpdateTime(now shadowtime.SimTime) {
	c.now = now
	if c.timeCPUAvailable < now {
		c.timeCPUAvailable = now
	}
}

// AddDelay charges delay (in real wall-clock-equivalent nanoseconds) against
// the CPU, after converting it through the frequency ratio and rounding to
// the configured precision -- exactly cpu_addDelay's algorithm.
func (c *CPU) AddDelay(delay shadowtime.SimTime) {
	adjusted := shadowtime.SimTime(c.frequencyRatio * float64(delay))
	if c.precision.IsValid() {
		remainder := adjusted % c.precision
		adjusted -= remainder
		if remainder >= c.precision/2 {
			adjusted += c.precision
		}
	}
	c.timeCPUAvailable += adjusted
}
