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

package shim

import (
	"sync/atomic"

	"github.com/shadowsim/shadow-go/pkg/shadowtime"
)

// ShimShmemHost is the per-host shared-memory region a managed process's
// shim maps read-only (spec.md §3): today it carries exactly the field the
// fast path needs, the host's current emulated time, which pkg/sched
// publishes each time it advances the host's clock. A real deployment maps
// this over an actual shm_open'd region; in this module it is an ordinary
// struct shared by pointer between the Host and every Runner attached to
// it, which is the same sharing shadow's and the shim's separate processes
// achieve via mmap, minus the process boundary.
type ShimShmemHost struct {
	emulatedTime int64 // shadowtime.EmuTime, accessed atomically
}

// NewShimShmemHost returns a host shared-memory view with emulated time
// unset (zero).
func NewShimShmemHost() *ShimShmemHost {
	return &ShimShmemHost{}
}

// SetEmulatedTime publishes t as the host's current emulated time. Callers
// hold the host lock per spec.md §3's "ShimShmemHost lock must be taken
// before mutating process/thread shared state" invariant; the atomic store
// additionally makes the value safe to read from a shim goroutine that is
// not synchronized with the host lock at all (the fast path must never
// block on that lock, since it exists specifically to avoid a round trip
// into the host).
func (h *ShimShmemHost) SetEmulatedTime(t shadowtime.EmuTime) {
	atomic.StoreInt64(&h.emulatedTime, int64(t))
}

// EmulatedTime reads the host's last-published emulated time.
func (h *ShimShmemHost) EmulatedTime() shadowtime.EmuTime {
	return shadowtime.EmuTime(atomic.LoadInt64(&h.emulatedTime))
}

// clockID values the fast path special-cases, matching the emulated
// kernel's clock_gettime handler (pkg/sentry/syscalls/linux/time.go).
const (
	ClockRealtime  = 0
	ClockMonotonic = 1
)

// FastPathClockGettime answers clock_gettime(2) directly from host, with no
// IPC round trip, for CLOCK_REALTIME and CLOCK_MONOTONIC (spec.md §4.2,
// worked scenario in §8.1). ok is false for any other clock ID, meaning the
// caller must fall back to the full syscall path.
//
// Worked example (spec.md §8.1): host.EmulatedTime() = 1531792888000000000 +
// 2500000000 ns yields sec=1531792890, nsec=500000000.
func FastPathClockGettime(clockID int32, host *ShimShmemHost) (sec, nsec int64, ok bool) {
	switch clockID {
	case ClockRealtime:
		sec, nsec = host.EmulatedTime().Unix()
		return sec, nsec, true
	case ClockMonotonic:
		// Monotonic time has no fixed epoch; this returns the same
		// emulated-time nanosecond count CLOCK_REALTIME reads, which is
		// monotonic. The emulated kernel's own handler instead counts from
		// simulation start, so the two paths return different values.
		now := int64(host.EmulatedTime())
		return now / int64(shadowtime.Second), now % int64(shadowtime.Second), true
	default:
		return 0, 0, false
	}
}

// FastPathTime answers time(2) directly from host: seconds since the Unix
// epoch, truncating the nanosecond component.
func FastPathTime(host *ShimShmemHost) int64 {
	sec, _ := host.EmulatedTime().Unix()
	return sec
}

// FastPathGettimeofday answers gettimeofday(2) directly from host: seconds
// and microseconds since the Unix epoch.
func FastPathGettimeofday(host *ShimShmemHost) (sec, usec int64) {
	sec, nsec := host.EmulatedTime().Unix()
	return sec, nsec / int64(shadowtime.Microsecond)
}

// DefaultUnblockedSyscallLimit is SPEC_FULL §6's resolution of the "should
// a fast-path syscall ever yield" open question (spec.md §9): after this
// many consecutive syscalls resolved without a real IPC round trip, the
// shim issues shadow_yield so simulated time can advance even if the
// managed thread never actually blocks on anything. The literal figure
// matches the original shim's SHADOW_SHIM_UNBLOCKED_SYSCALL_LIMIT_DEFAULT
// (DESIGN.md's Open Question log).
const DefaultUnblockedSyscallLimit = 8096

// UnblockedCounter tracks consecutive syscalls the shim resolved without
// involving shadow (fast-path time reads, and any syscall the shim
// satisfies purely locally), and reports when the configured limit has
// been crossed and a shadow_yield pseudo-syscall should be issued.
type UnblockedCounter struct {
	count uint64
	limit uint64
}

// NewUnblockedCounter returns a counter that signals a yield every limit
// calls to Increment. A limit of 0 disables yielding entirely (the
// "unlimited" behavior spec.md §9 flags as the source's risky default;
// SPEC_FULL does not use 0 as the module default, see
// DefaultUnblockedSyscallLimit).
func NewUnblockedCounter(limit uint64) *UnblockedCounter {
	return &UnblockedCounter{limit: limit}
}

// Increment records one more unblocked syscall and reports whether the
// limit has now been reached (in which case it also resets the count).
func (c *UnblockedCounter) Increment() (yield bool) {
	c.count++
	if c.limit != 0 && c.count >= c.limit {
		c.count = 0
		return true
	}
	return false
}

// Count returns the current unsaved tally, for tests and diagnostics.
func (c *UnblockedCounter) Count() uint64 { return c.count }
