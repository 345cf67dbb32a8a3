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

// Package arch provides the architecture-dependent register view shared by
// the shim's trap handlers and the syscall dispatcher: reading the syscall
// number and six argument registers out of a trapped ucontext, and writing
// the return value and advanced instruction pointer back in.
package arch

import "fmt"

// Arch identifies an instruction set. Shadow only emulates amd64, but the
// type exists (as it does in the teacher) so a second implementation isn't
// a breaking change.
type Arch int

const (
	AMD64 Arch = iota
)

func (a Arch) String() string {
	switch a {
	case AMD64:
		return "amd64"
	default:
		return fmt.Sprintf("Arch(%d)", a)
	}
}

// Regs is the subset of general-purpose amd64 registers the core touches:
// the six syscall argument registers (per the SysV syscall ABI: rdi, rsi,
// rdx, r10, r8, r9), the syscall-number/return register rax, and rip.
type Regs struct {
	Rax    uint64
	Rdi    uint64
	Rsi    uint64
	Rdx    uint64
	R10    uint64
	R8     uint64
	R9     uint64
	Rip    uint64
	FsBase uint64
}

// Context64 is the architecture context for one thread: its last-trapped
// register snapshot.
type Context64 struct {
	Regs Regs
}

// Arch implements the architecture identity.
func (c *Context64) Arch() Arch { return AMD64 }

// SyscallNo returns the trapped syscall number (rax at trap time).
func (c *Context64) SyscallNo() uintptr { return uintptr(c.Regs.Rax) }

// SyscallArgument is one argument to a syscall, addressable either as an
// integer or as a guest pointer (the two interpretations syscalls need).
type SyscallArgument struct {
	Value uintptr
}

// Int returns the argument as a signed 32-bit integer, the representation
// most syscalls expect for flags/counts.
func (a SyscallArgument) Int() int32 { return int32(a.Value) }

// Int64 returns the argument sign-extended as a 64-bit integer.
func (a SyscallArgument) Int64() int64 { return int64(a.Value) }

// Uint returns the argument as an unsigned word.
func (a SyscallArgument) Uint() uintptr { return a.Value }

// Pointer returns the argument as a guest address.
func (a SyscallArgument) Pointer() uintptr { return a.Value }

// SyscallArguments is the fixed six-argument syscall calling convention.
type SyscallArguments [6]SyscallArgument

// FromRegs extracts the six syscall arguments from a trapped register set,
// following the amd64 syscall ABI argument-register order.
func FromRegs(r Regs) SyscallArguments {
	return SyscallArguments{
		{Value: uintptr(r.Rdi)},
		{Value: uintptr(r.Rsi)},
		{Value: uintptr(r.Rdx)},
		{Value: uintptr(r.R10)},
		{Value: uintptr(r.R8)},
		{Value: uintptr(r.R9)},
	}
}

// Return returns the current syscall return-value register.
func (c *Context64) Return() uintptr { return uintptr(c.Regs.Rax) }

// SetReturn sets the syscall return-value register.
func (c *Context64) SetReturn(v uintptr) { c.Regs.Rax = uint64(v) }

// IP returns the current instruction pointer.
func (c *Context64) IP() uintptr { return uintptr(c.Regs.Rip) }

// SetIP sets the current instruction pointer.
func (c *Context64) SetIP(v uintptr) { c.Regs.Rip = uint64(v) }

// AdvanceIP moves RIP forward by n bytes, used after emulating an
// instruction in place (RDTSC/RDTSCP) rather than trapping a full syscall.
func (c *Context64) AdvanceIP(n uintptr) { c.Regs.Rip += uint64(n) }
