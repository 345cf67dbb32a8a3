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

// Package tsc emulates the x86 RDTSC/RDTSCP instructions (spec.md §4.8,
// C11) from simulated time, the way the shim's SIGSEGV handler does after
// PR_SET_TSC/PR_TSC_SIGSEGV forces every such instruction to fault.
package tsc

import (
	"github.com/shadowsim/shadow-go/pkg/sentry/arch"
	"github.com/shadowsim/shadow-go/pkg/shadowtime"
)

// Tsc converts simulated nanoseconds to a synthetic cycle count at a fixed
// emulated CPU frequency.
type Tsc struct {
	HzFreq uint64
}

// New returns a Tsc emulating a CPU running at hz cycles per second.
func New(hz uint64) Tsc {
	return Tsc{HzFreq: hz}
}

// Cycles converts a simulated-time instant to the cycle count RDTSC should
// report at that instant: cycles = ns * freq_hz / 1e9.
func (t Tsc) Cycles(now shadowtime.SimTime) uint64 {
	return uint64(now) * t.HzFreq / uint64(shadowtime.Second)
}

// EmulateRdtsc writes EDX:EAX with the cycle count for now and advances rip
// by the 2-byte encoding length of the RDTSC instruction.
func (t Tsc) EmulateRdtsc(regs *arch.Regs, now shadowtime.SimTime) {
	cycles := t.Cycles(now)
	regs.Rax = cycles & 0xffffffff
	regs.Rdx = cycles >> 32
	regs.Rip += 2
}

// cpuID is the synthetic processor identifier RDTSCP additionally reports
// in ECX. A constant is sufficient: Shadow does not migrate threads
// between physical CPUs.
const cpuID = 0

// EmulateRdtscp writes EDX:EAX with the cycle count, ECX with a synthetic
// processor id, and advances rip by RDTSCP's 3-byte encoding length.
func (t Tsc) EmulateRdtscp(regs *arch.Regs, now shadowtime.SimTime) (ecx uint32) {
	cycles := t.Cycles(now)
	regs.Rax = cycles & 0xffffffff
	regs.Rdx = cycles >> 32
	regs.Rip += 3
	return cpuID
}

// IsRdtsc reports whether the two bytes at insn encode RDTSC (0F 31).
func IsRdtsc(insn []byte) bool {
	return len(insn) >= 2 && insn[0] == 0x0f && insn[1] == 0x31
}

// IsRdtscp reports whether the three bytes at insn encode RDTSCP
// (0F 01 F9).
func IsRdtscp(insn []byte) bool {
	return len(insn) >= 3 && insn[0] == 0x0f && insn[1] == 0x01 && insn[2] == 0xf9
}
