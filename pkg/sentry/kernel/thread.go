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
	"github.com/shadowsim/shadow-go/pkg/ipc"
	"github.com/shadowsim/shadow-go/pkg/sentry/arch"
	"github.com/shadowsim/shadow-go/pkg/sentry/kernel/futex"
	"github.com/shadowsim/shadow-go/pkg/sigset"
)

// ThreadID is dense per-host, like a Linux tid.
type ThreadID uint32

// Runner is the capability interface spec.md §9 asks for in place of the
// source's two parallel ptrace/preload Thread implementations: run,
// resume, deliver a reply, handle process exit, get the exit code, check liveness, read/write guest
// memory, and issue a syscall natively on the managed process's behalf.
// pkg/shim provides the in-process (seccomp+signal) implementation; a
// ptrace-based implementation can satisfy the same interface without
// touching the scheduler or syscall table.
type Runner interface {
	Run(pluginPath string, argv, envv []string, workingDir string) error
	Resume() *SysCallCondition
	// DeliverReply sends retval back to a thread whose syscall was
	// resolved asynchronously (a previously BLOCK-ed SysCallCondition
	// fired); the caller follows with Resume to let the thread continue.
	DeliverReply(retval int64)
	HandleProcessExit()
	ReturnCode() (int, bool)
	IsRunning() bool
	ReadPtr(addr uintptr, out []byte) error
	WritePtr(addr uintptr, in []byte) error
	NativeSyscall(no uintptr, args arch.SyscallArguments) int64
}

// sigaltstackRecord mirrors struct sigaltstack (ss_sp, ss_flags, ss_size).
type sigaltstackRecord struct {
	Addr  uintptr
	Flags int32
	Size  uintptr
}

// Thread is one schedulable thread of control within a Process (spec.md
// §3). Its register-level state lives behind Runner; Thread itself owns
// the kernel-side bookkeeping: signal masks, the altstack, the
// clear_child_tid address, and whatever it is currently blocked on.
type Thread struct {
	ID      ThreadID
	Process *Process

	Runner Runner
	Ctx    arch.Context64

	blockedSignals sigset.Set
	pending        sigset.Set
	altstack       sigaltstackRecord

	clearChildTID uintptr

	condition *SysCallCondition

	// FutexWord is this thread's identity in the host futex table; it is
	// opaque to pkg/sentry/kernel/futex to avoid an import cycle.
	FutexWord futex.ThreadID

	// Cell is the IPC mailbox shared with this thread's managed process.
	Cell *ipc.Cell
}

// NewThread returns a thread attached to process, with every signal
// unblocked and no altstack installed.
func NewThread(id ThreadID, p *Process, r Runner) *Thread {
	return &Thread{
		ID:        id,
		Process:   p,
		Runner:    r,
		FutexWord: futex.ThreadID(id) | futex.ThreadID(p.ID)<<32,
	}
}

// BlockedSignals returns the thread's current signal mask.
func (t *Thread) BlockedSignals() sigset.Set { return t.blockedSignals }

// SetBlockedSignals installs a new signal mask. Shim-reserved signals
// (SIGSYS, SIGSEGV) cannot be blocked by managed code; callers are
// expected to have already stripped them via the rt_sigprocmask handler,
// but SetBlockedSignals defensively clears them here too.
func (t *Thread) SetBlockedSignals(s sigset.Set) {
	for signo := 1; signo <= sigset.MaxSignal; signo++ {
		if sigset.IsMember(s, signo) && sigset.IsShimReserved(signo) {
			s = sigset.Delete(s, signo)
		}
	}
	t.blockedSignals = s
}

// PendingSignals returns the thread-directed pending set (spec.md §3: each
// thread additionally has its own pending-signal set, checked alongside the
// process-wide one).
func (t *Thread) PendingSignals() sigset.Set { return t.pending }

// RaisePending adds signo to this thread's pending set.
func (t *Thread) RaisePending(signo int) {
	t.pending = sigset.Add(t.pending, signo)
}

// ClearPending removes signo from this thread's pending set.
func (t *Thread) ClearPending(signo int) {
	t.pending = sigset.Delete(t.pending, signo)
}

// DeliverableSignals returns the pending signals (thread-scope union
// process-scope) that are not currently blocked -- the set the dispatcher
// must consider delivering before resuming the thread, or instead of
// completing a blocking syscall (spec.md §4.4, §8 scenario 5).
func (t *Thread) DeliverableSignals() sigset.Set {
	all := sigset.Or(t.pending, t.Process.PendingSignals())
	return sigset.And(all, sigset.Not(t.blockedSignals))
}

// Altstack returns the registered alternate signal stack, if any.
func (t *Thread) Altstack() (addr uintptr, flags int32, size uintptr) {
	return t.altstack.Addr, t.altstack.Flags, t.altstack.Size
}

// SetAltstack installs a new alternate signal stack.
func (t *Thread) SetAltstack(addr uintptr, flags int32, size uintptr) {
	t.altstack = sigaltstackRecord{Addr: addr, Flags: flags, Size: size}
}

// ClearChildTID returns the address set by set_tid_address/clone's CTID
// flag, zero if none.
func (t *Thread) ClearChildTID() uintptr { return t.clearChildTID }

// SetClearChildTID records the address the kernel must zero and futex-wake
// on thread exit.
func (t *Thread) SetClearChildTID(addr uintptr) { t.clearChildTID = addr }

// Condition returns what the thread is currently blocked on, or nil if it
// is runnable.
func (t *Thread) Condition() *SysCallCondition { return t.condition }

// block installs cond as the thread's active condition. Host.Block is the
// only caller; it is responsible for registering listeners on cond's
// trigger before calling this.
func (t *Thread) block(cond *SysCallCondition) {
	t.condition = cond
}

// unblock clears the thread's active condition, making it eligible to be
// resumed again.
func (t *Thread) unblock() {
	t.condition = nil
}
