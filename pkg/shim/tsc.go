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
	"github.com/shadowsim/shadow-go/pkg/sentry/arch"
	"github.com/shadowsim/shadow-go/pkg/sentry/platform/tsc"
	"github.com/shadowsim/shadow-go/pkg/shadowtime"
)

// HandleSIGSEGV emulates a trapped RDTSC/RDTSCP instruction in place
// (spec.md §4.2): when PR_SET_TSC has forced every such instruction to
// fault, the shim's SIGSEGV handler reads the two or three faulting
// instruction bytes, checks which one it was, and if so writes
// EDX:EAX(:ECX) from the emulated TSC and advances RIP past it -- all
// without ever reaching shadow. handled is false for any other faulting
// instruction, meaning the signal was not one the shim emulates and should
// be delivered to the managed process's own SIGSEGV disposition instead.
func HandleSIGSEGV(insn []byte, regs *arch.Regs, t tsc.Tsc, now shadowtime.SimTime) (handled bool) {
	switch {
	case tsc.IsRdtscp(insn):
		t.EmulateRdtscp(regs, now)
		return true
	case tsc.IsRdtsc(insn):
		t.EmulateRdtsc(regs, now)
		return true
	default:
		return false
	}
}
