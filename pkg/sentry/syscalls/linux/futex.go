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
	futexWait = 0
	futexWake = 1
	futexOpMask = 0x7f
)

// Futex implements futex(2)'s WAIT/WAKE operations (spec.md §4.7). WAIT
// atomically checks *addr == expected under the host lock then blocks;
// WAKE wakes up to val waiters.
func Futex(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	addr := uint64(args[0])
	op := int32(args[1]) & futexOpMask
	val := uint32(args[2])
	timeoutPtr := args[3]

	switch op {
	case futexWait:
		var buf [4]byte
		if err := t.Runner.ReadPtr(uintptr(addr), buf[:]); err != nil {
			return kernel.DoneWith(errnoRetval(errEFAULT))
		}
		current := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
		if current != val {
			return kernel.DoneWith(errnoRetval(errEAGAIN))
		}
		cond := &kernel.SysCallCondition{
			Trigger: kernel.Trigger{Kind: kernel.TriggerFutex, FutexAddr: addr},
			Timeout: shadowtime.Invalid,
		}
		cond.Retry = func(timedOut bool) kernel.SyscallControl {
			if timedOut {
				return kernel.DoneWith(errnoRetval(errETIMEDOUT))
			}
			if ctrl, interrupted := checkInterrupted(t); interrupted {
				return ctrl
			}
			return kernel.DoneWith(0)
		}
		if timeoutPtr != 0 {
			var tsBuf [16]byte
			if err := t.Runner.ReadPtr(timeoutPtr, tsBuf[:]); err == nil {
				sec := leUint64(tsBuf[0:8])
				nsec := leUint64(tsBuf[8:16])
				rel := shadowtime.SimTime(sec)*shadowtime.Second + shadowtime.SimTime(nsec)*shadowtime.Nanosecond
				cond.Timeout = t.Process.Host.Now().Add(rel)
			}
		}
		t.Process.Host.Block(t, cond)
		return kernel.BlockOn(cond)
	case futexWake:
		woken := t.Process.Host.WakeFutex(addr, int(val))
		return kernel.DoneWith(int64(woken))
	default:
		return kernel.DoneWith(errnoRetval(errENOSYS))
	}
}
