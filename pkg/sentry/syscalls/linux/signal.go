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
	"github.com/shadowsim/shadow-go/pkg/sigset"
)

const sigactionStructSize = 8

// readSigAction and writeSigAction move the rt_sigaction(2) new/old
// userspace structs through guest memory via t.Runner.ReadPtr/WritePtr, as
// the 32-byte record decodeSigAction/encodeSigAction convert.
func readSigAction(t *kernel.Thread, addr uintptr) (sigset.SigAction, bool) {
	if addr == 0 {
		return sigset.SigAction{}, false
	}
	// Guest memory access goes through the Runner; decoding the wire
	// layout of `struct kernel_sigaction` is the same 32-byte record on
	// every supported libc, so a fixed-size buffer suffices.
	var buf [32]byte
	if err := t.Runner.ReadPtr(addr, buf[:]); err != nil {
		return sigset.SigAction{}, false
	}
	return decodeSigAction(buf), true
}

func writeSigAction(t *kernel.Thread, addr uintptr, act sigset.SigAction) {
	if addr == 0 {
		return
	}
	buf := encodeSigAction(act)
	_ = t.Runner.WritePtr(addr, buf[:])
}

func decodeSigAction(buf [32]byte) sigset.SigAction {
	handler := leUint64(buf[0:8])
	flags := leUint64(buf[8:16])
	restorer := leUint64(buf[16:24])
	mask := leUint64(buf[24:32])
	act := sigset.SigAction{Handler: uintptr(handler), Flags: flags, Restorer: uintptr(restorer), Mask: sigset.Set(mask)}
	switch handler {
	case 0: // SIG_DFL
		act.Action = sigset.ActionDefault
	case 1: // SIG_IGN
		act.Action = sigset.ActionIgnore
	default:
		act.Action = sigset.ActionHandle
	}
	return act
}

func encodeSigAction(act sigset.SigAction) [32]byte {
	var buf [32]byte
	var handler uint64
	switch act.Action {
	case sigset.ActionDefault:
		handler = 0
	case sigset.ActionIgnore:
		handler = 1
	default:
		handler = uint64(act.Handler)
	}
	putLeUint64(buf[0:8], handler)
	putLeUint64(buf[8:16], act.Flags)
	putLeUint64(buf[16:24], uint64(act.Restorer))
	putLeUint64(buf[24:32], uint64(act.Mask))
	return buf
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func putLeUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}

// RtSigaction implements rt_sigaction(2) (spec.md §4.4): sz must be 8,
// SIGKILL/SIGSTOP are rejected with EINVAL, and the shim's reserved signals
// cannot have their disposition changed.
func RtSigaction(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	signo := int(int32(args[0]))
	newAddr := args[1]
	oldAddr := args[2]
	sz := args[3]

	if sz != sigactionStructSize {
		return kernel.DoneWith(errnoRetval(errEINVAL))
	}
	if !sigset.Valid(signo) {
		return kernel.DoneWith(errnoRetval(errEINVAL))
	}
	if signo == sigKILL || signo == sigSTOP {
		return kernel.DoneWith(errnoRetval(errEINVAL))
	}

	old := t.Process.Actions.Get(signo)
	if newAddr != 0 {
		if sigset.IsShimReserved(signo) {
			return kernel.DoneWith(errnoRetval(errEINVAL))
		}
		newAct, ok := readSigAction(t, newAddr)
		if !ok {
			return kernel.DoneWith(errnoRetval(errEFAULT))
		}
		t.Process.Actions.Set(signo, newAct)
	}
	if oldAddr != 0 {
		writeSigAction(t, oldAddr, old)
	}
	return kernel.DoneWith(0)
}

// RtSigprocmask implements rt_sigprocmask(2).
func RtSigprocmask(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	how := sigset.How(int32(args[0]))
	setAddr := args[1]
	oldAddr := args[2]
	sz := args[3]

	if sz != sigactionStructSize {
		return kernel.DoneWith(errnoRetval(errEINVAL))
	}

	old := t.BlockedSignals()
	if setAddr != 0 {
		var buf [8]byte
		if err := t.Runner.ReadPtr(setAddr, buf[:]); err != nil {
			return kernel.DoneWith(errnoRetval(errEFAULT))
		}
		delta := sigset.Set(leUint64(buf[:]))
		newMask, err := sigset.Apply(how, old, delta)
		if err != nil {
			return kernel.DoneWith(errnoRetval(errEINVAL))
		}
		t.SetBlockedSignals(newMask)
	}
	if oldAddr != 0 {
		var buf [8]byte
		putLeUint64(buf[:], uint64(old))
		_ = t.Runner.WritePtr(oldAddr, buf[:])
	}
	return kernel.DoneWith(0)
}

// Sigaltstack implements sigaltstack(2): rejects changes while SS_ONSTACK
// is set, and only recognizes the SS_DISABLE/SS_AUTODISARM flags.
func Sigaltstack(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	ssAddr := args[0]
	oldAddr := args[1]

	oldAddrVal, oldFlags, oldSize := t.Altstack()
	if ssAddr != 0 {
		if oldFlags&ssOnStack != 0 {
			return kernel.DoneWith(errnoRetval(errEPERM))
		}
		var buf [24]byte
		if err := t.Runner.ReadPtr(ssAddr, buf[:]); err != nil {
			return kernel.DoneWith(errnoRetval(errEFAULT))
		}
		addr := leUint64(buf[0:8])
		flags := int32(leUint64(buf[8:16]))
		size := leUint64(buf[16:24])
		if flags&^(ssDisable|ssAutodisarm) != 0 {
			return kernel.DoneWith(errnoRetval(errEINVAL))
		}
		t.SetAltstack(uintptr(addr), flags, uintptr(size))
	}
	if oldAddr != 0 {
		var buf [24]byte
		putLeUint64(buf[0:8], uint64(oldAddrVal))
		putLeUint64(buf[8:16], uint64(uint32(oldFlags)))
		putLeUint64(buf[16:24], uint64(oldSize))
		_ = t.Runner.WritePtr(oldAddr, buf[:])
	}
	return kernel.DoneWith(0)
}

const (
	sigKILL       = 9
	sigSTOP       = 19
	ssOnStack     = 1
	ssDisable     = 2
	ssAutodisarm  = 0x80000000
)

// raiseOnProcess and raiseOnThread mark signo pending on their target
// (process- or thread-scope, per POSIX: kill is process-directed,
// tkill/tgkill thread-directed), then
// wakes a blocked thread that becomes eligible to receive it, matching
// spec.md §4.4's wake logic and the IGN-coalescing rule.
func raiseOnProcess(p *kernel.Process, signo int) {
	act := p.Actions.Get(signo)
	if isIgnored(act, signo) {
		return
	}
	p.RaisePending(signo)
	wakeEligible(p, signo)
}

func raiseOnThread(t *kernel.Thread, signo int) {
	act := t.Process.Actions.Get(signo)
	if isIgnored(act, signo) {
		return
	}
	t.RaisePending(signo)
	wakeThreadIfEligible(t, signo)
}

func isIgnored(act sigset.SigAction, signo int) bool {
	if act.Action == sigset.ActionIgnore {
		return true
	}
	if act.Action == sigset.ActionDefault && sigset.DefaultAction(signo) == sigset.DispositionIgnore {
		return true
	}
	return false
}

// wakeEligible wakes the first blocked thread in p able to receive signo.
func wakeEligible(p *kernel.Process, signo int) {
	for _, th := range p.Threads() {
		if th.Condition() == nil {
			continue
		}
		if !sigset.IsMember(th.BlockedSignals(), signo) {
			wakeThreadIfEligible(th, signo)
			return
		}
	}
}

func wakeThreadIfEligible(t *kernel.Thread, signo int) {
	if t.Condition() == nil {
		return
	}
	if sigset.IsMember(t.BlockedSignals(), signo) {
		return
	}
	t.Process.Host.Interrupt(t)
}

// Kill implements kill(2): pid <= -1 is normalized to the positive group
// id (each emulated process is its own group, so -pid and pid resolve to
// the same process here).
func Kill(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	pid := int32(args[0])
	signo := int(int32(args[1]))
	if pid < 0 {
		pid = -pid
	}
	if !sigset.Valid(signo) {
		return kernel.DoneWith(errnoRetval(errEINVAL))
	}
	target, ok := t.Process.Host.Process(kernelProcessID(pid))
	if !ok {
		return kernel.DoneWith(errnoRetval(errESRCH))
	}
	if signo >= sigset.RealtimeBase {
		return kernel.DoneWith(errnoRetval(errENOSYS))
	}
	if signo != 0 {
		raiseOnProcess(target, signo)
	}
	return kernel.DoneWith(0)
}

// Tkill implements tkill(2).
func Tkill(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	tid := int32(args[0])
	signo := int(int32(args[1]))
	return tkillOn(t, t.Process, tid, signo)
}

// Tgkill implements tgkill(2), additionally verifying the target thread's
// process id equals tgid.
func Tgkill(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	tgid := int32(args[0])
	tid := int32(args[1])
	signo := int(int32(args[2]))
	proc, ok := t.Process.Host.Process(kernelProcessID(tgid))
	if !ok {
		return kernel.DoneWith(errnoRetval(errESRCH))
	}
	return tkillOn(t, proc, tid, signo)
}

func tkillOn(t *kernel.Thread, proc *kernel.Process, tid int32, signo int) kernel.SyscallControl {
	if !sigset.Valid(signo) {
		return kernel.DoneWith(errnoRetval(errEINVAL))
	}
	target, ok := proc.Thread(kernelThreadID(tid))
	if !ok {
		return kernel.DoneWith(errnoRetval(errESRCH))
	}
	if signo >= sigset.RealtimeBase {
		return kernel.DoneWith(errnoRetval(errENOSYS))
	}
	if signo != 0 {
		raiseOnThread(target, signo)
	}
	return kernel.DoneWith(0)
}

func kernelProcessID(pid int32) kernel.ProcessID { return kernel.ProcessID(pid) }
func kernelThreadID(tid int32) kernel.ThreadID    { return kernel.ThreadID(tid) }
