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

package linux

import (
	"github.com/shadowsim/shadow-go/pkg/sentry/kernel"
	"github.com/shadowsim/shadow-go/pkg/shadowtime"
)

const (
	clockRealtime  = 0
	clockMonotonic = 1
)

// ClockGettime implements clock_gettime(2). Most callers hit this through
// the shim's shared-memory fast path (spec.md §4.2); this handler is the
// fallback for whichever clock IDs the shim doesn't special-case.
func ClockGettime(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	clockID := int32(args[0])
	addr := args[1]

	host := t.Process.Host
	now := host.Now()

	var sec, nsec int64
	switch clockID {
	case clockRealtime:
		emu := shadowtime.ToEmuTime(now, host.Epoch)
		sec, nsec = emu.Unix()
	case clockMonotonic:
		sec = int64(now / shadowtime.Second)
		nsec = int64(now % shadowtime.Second)
	default:
		return kernel.DoneWith(errnoRetval(errEINVAL))
	}

	var buf [16]byte
	putLeUint64(buf[0:8], uint64(sec))
	putLeUint64(buf[8:16], uint64(nsec))
	if err := t.Runner.WritePtr(addr, buf[:]); err != nil {
		return kernel.DoneWith(errnoRetval(errEFAULT))
	}
	return kernel.DoneWith(0)
}

// Nanosleep implements nanosleep(2): blocks the calling thread until the
// requested virtual duration elapses, purely via the host's event clock. If
// a signal interrupts the sleep early, the unslept remainder is written back
// through rem (spec.md §8 scenario 5: a 5s sleep cut short at 2s reports
// rem = {3, 0}).
func Nanosleep(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	reqAddr := args[0]
	remAddr := args[1]

	var buf [16]byte
	if err := t.Runner.ReadPtr(reqAddr, buf[:]); err != nil {
		return kernel.DoneWith(errnoRetval(errEFAULT))
	}
	sec := leUint64(buf[0:8])
	nsec := leUint64(buf[8:16])
	dur := shadowtime.SimTime(sec)*shadowtime.Second + shadowtime.SimTime(nsec)*shadowtime.Nanosecond

	host := t.Process.Host
	deadline := host.Now().Add(dur)
	cond := &kernel.SysCallCondition{Timeout: deadline}
	cond.Retry = func(timedOut bool) kernel.SyscallControl {
		if ctrl, interrupted := checkInterrupted(t); interrupted {
			if remAddr != 0 {
				writeRemaining(t, remAddr, deadline, host.Now())
			}
			return ctrl
		}
		return kernel.DoneWith(0)
	}
	host.Block(t, cond)
	return kernel.BlockOn(cond)
}

// writeRemaining writes the unslept portion of a nanosleep's requested
// duration to rem as a struct timespec, clamping to zero rather than
// underflowing if the deadline has already passed.
func writeRemaining(t *kernel.Thread, remAddr uintptr, deadline, now shadowtime.SimTime) {
	var left shadowtime.SimTime
	if deadline > now {
		left = deadline - now
	}
	var buf [16]byte
	putLeUint64(buf[0:8], uint64(left/shadowtime.Second))
	putLeUint64(buf[8:16], uint64(left%shadowtime.Second))
	_ = t.Runner.WritePtr(remAddr, buf[:])
}
