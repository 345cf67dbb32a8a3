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

// Package linux is the numbered amd64 syscall table the emulator dispatches
// trapped syscalls through (spec.md §4.3, C5). Each handler has the
// kernel.Handler signature and returns a kernel.SyscallControl; the
// dispatcher's job (Lookup below) is purely the sysno -> handler mapping,
// matching the teacher's pkg/sentry/syscalls/linux/linux64.go table.
package linux

import (
	"github.com/shadowsim/shadow-go/pkg/abi/linux"
	"github.com/shadowsim/shadow-go/pkg/sentry/kernel"
)

// Table maps a syscall number to its handler. Unmapped numbers fall back to
// NotSupported (-ENOSYS) rather than panicking on an unknown entry. The
// table is a map keyed by syscall number, not the teacher's literal array.
type Table struct {
	handlers map[uintptr]kernel.Handler
}

// New returns the fully populated syscall table.
func New() *Table {
	t := &Table{handlers: make(map[uintptr]kernel.Handler)}
	t.register()
	return t
}

func (t *Table) add(sysno uintptr, h kernel.Handler) {
	t.handlers[sysno] = h
}

// Lookup returns the handler for sysno, or NotSupported if none is
// registered.
func (t *Table) Lookup(sysno uintptr) kernel.Handler {
	if h, ok := t.handlers[sysno]; ok {
		return h
	}
	return NotSupported
}

func (t *Table) register() {
	// Signals (spec.md §4.4).
	t.add(linux.SYS_RT_SIGACTION, RtSigaction)
	t.add(linux.SYS_RT_SIGPROCMASK, RtSigprocmask)
	t.add(linux.SYS_SIGALTSTACK, Sigaltstack)
	t.add(linux.SYS_KILL, Kill)
	t.add(linux.SYS_TKILL, Tkill)
	t.add(linux.SYS_TGKILL, Tgkill)

	// Futex / timerfd (spec.md §4.7).
	t.add(linux.SYS_FUTEX, Futex)
	t.add(linux.SYS_TIMERFD_CREATE, TimerfdCreate)
	t.add(linux.SYS_TIMERFD_SETTIME, TimerfdSettime)
	t.add(linux.SYS_TIMERFD_GETTIME, TimerfdGettime)

	// Sockets (spec.md §4.5).
	t.add(linux.SYS_SOCKET, Socket)
	t.add(linux.SYS_BIND, Bind)
	t.add(linux.SYS_LISTEN, Listen)
	t.add(linux.SYS_CONNECT, Connect)
	t.add(linux.SYS_ACCEPT, Accept)
	t.add(linux.SYS_ACCEPT4, Accept4)
	t.add(linux.SYS_CLOSE, Close)

	// Time.
	t.add(linux.SYS_CLOCK_GETTIME, ClockGettime)
	t.add(linux.SYS_NANOSLEEP, Nanosleep)

	// Data plane and process identity (spec.md §8 scenario 2 exercises
	// getpid specifically).
	t.add(linux.SYS_READ, Read)
	t.add(linux.SYS_WRITE, Write)
	t.add(linux.SYS_GETPID, Getpid)
	t.add(linux.SYS_GETTID, Gettid)
	t.add(linux.SYS_EXIT, Exit)
	t.add(linux.SYS_EXIT_GROUP, Exit)

	// clone(2): Clone checks its flags but returns -ENOSYS for every
	// combination, the ordinary-thread one included (see clone.go).
	t.add(linux.SYS_CLONE, Clone)

	// Shadow pseudo-syscalls (spec.md §6). Only shadow_yield is registered:
	// the IPC/shared-memory bootstrap block handoff the other three
	// pseudo-syscalls perform in the original is done here via environment
	// variables instead (pkg/shim.ConfigFromEnv), so they fall through to
	// NotSupported.
	t.add(linux.SYS_SHADOW_YIELD, ShadowYield)
}

// NotSupported is the default handler for any syscall number this module
// does not implement.
func NotSupported(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	return kernel.DoneWith(errnoRetval(errENOSYS))
}
