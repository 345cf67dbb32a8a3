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
	"github.com/shadowsim/shadow-go/pkg/abi/linux"
	"github.com/shadowsim/shadow-go/pkg/seccomp"
)

// TextRange is the [Start, End) byte range of the shim library's own .text
// segment, captured once at load time. Any syscall whose faulting
// instruction pointer falls in this range is allowed to execute natively
// rather than trapped -- this is what lets the shim itself issue real
// syscalls (e.g. writing to its own log file) without recursing into the trap-to-IPC path (spec.md
// §4.2, §9).
//
// A BPF program evaluated by the kernel's seccomp filter cannot itself
// inspect the instruction pointer (seccomp_data carries the syscall number
// and architecture and arguments, not RIP); the real shim resolves this by
// checking the faulting RIP in its own SIGSYS handler before deciding
// whether to convert the trap into an IPC request. Contains reflects that:
// it is consulted by the trap handler, not baked into the BPF program
// BuildAllowlist assembles.
type TextRange struct {
	Start, End uintptr
}

// Contains reports whether rip falls within the shim's own text segment.
func (r TextRange) Contains(rip uintptr) bool {
	return rip >= r.Start && rip < r.End
}

// BuildAllowlist assembles the seccomp RuleSet for the shim's filter
// (spec.md §4.2): SYS_rt_sigreturn is allowed unconditionally (a signal
// handler's return path must never itself be trapped, or signal delivery
// could never complete), and every other syscall number is left for the
// trap action so the caller's program-wide default (SECCOMP_RET_TRAP)
// picks it up. The .text-range allowance is a second, RIP-keyed check
// layered on top by ShouldTrap -- it isn't expressible as a BPF rule at
// all, so it isn't part of the assembled program.
func BuildAllowlist() []seccomp.RuleSet {
	return []seccomp.RuleSet{
		{
			Rules:  seccomp.SyscallRules{linux.SYS_RT_SIGRETURN: nil},
			Action: linux.SECCOMP_RET_ALLOW,
		},
	}
}

// ShouldTrap decides, for a single trapped syscall, whether the shim
// should convert it into an IPC request (true) or let it run natively
// because its faulting RIP lies within the shim's own text segment
// (false). SYS_RT_SIGRETURN never traps here either, matching
// BuildAllowlist's BPF rule that already allows it before a SIGSYS would
// fire; ShouldTrap exists for the RIP check BPF itself cannot perform.
func ShouldTrap(sysno uintptr, rip uintptr, text TextRange) bool {
	if sysno == linux.SYS_RT_SIGRETURN {
		return false
	}
	return !text.Contains(rip)
}
