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
	"github.com/shadowsim/shadow-go/pkg/tcpip/transport/tcp"
)

// readWriteBufLimit caps how much of a guest read(2)/write(2) this module
// copies in one call; a managed program asking for more than this just
// gets a short read/write, which is always legal per read(2)/write(2).
const readWriteBufLimit = 1 << 20

// Read implements read(2) against a TCP socket descriptor. Other
// descriptor kinds (pipes, socketpairs) are Non-goals this port does not
// build a byte-stream buffer for; they fall through to -ENOSYS.
func Read(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	fd := int32(args[0])
	bufAddr := args[1]
	count := args[2]
	if count > readWriteBufLimit {
		count = readWriteBufLimit
	}
	d, ep, ok := endpointOf(t, fd)
	if !ok {
		return kernel.DoneWith(errnoRetval(errEBADF))
	}

	buf := make([]byte, count)
	n, _ := ep.Read(buf)
	if n > 0 {
		if err := t.Runner.WritePtr(bufAddr, buf[:n]); err != nil {
			return kernel.DoneWith(errnoRetval(errEFAULT))
		}
		return kernel.DoneWith(int64(n))
	}
	if ep.State() == tcp.Closed {
		return kernel.DoneWith(0) // EOF
	}

	cond := &kernel.SysCallCondition{
		Trigger: kernel.Trigger{Kind: kernel.TriggerDescriptor, Handle: d.Handle, Mask: kernel.StatusReadable},
		Timeout: shadowtime.Invalid,
	}
	cond.Retry = func(timedOut bool) kernel.SyscallControl {
		if ctrl, interrupted := checkInterrupted(t); interrupted {
			return ctrl
		}
		return Read(t, args)
	}
	t.Process.Host.Block(t, cond)
	return kernel.BlockOn(cond)
}

// Write implements write(2) against a TCP socket descriptor.
func Write(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	fd := int32(args[0])
	bufAddr := args[1]
	count := args[2]
	if count > readWriteBufLimit {
		count = readWriteBufLimit
	}
	d, ep, ok := endpointOf(t, fd)
	if !ok {
		return kernel.DoneWith(errnoRetval(errEBADF))
	}

	buf := make([]byte, count)
	if err := t.Runner.ReadPtr(bufAddr, buf); err != nil {
		return kernel.DoneWith(errnoRetval(errEFAULT))
	}
	n, _ := ep.Write(buf)
	if n > 0 {
		return kernel.DoneWith(int64(n))
	}

	cond := &kernel.SysCallCondition{
		Trigger: kernel.Trigger{Kind: kernel.TriggerDescriptor, Handle: d.Handle, Mask: kernel.StatusWritable},
		Timeout: shadowtime.Invalid,
	}
	cond.Retry = func(timedOut bool) kernel.SyscallControl {
		if ctrl, interrupted := checkInterrupted(t); interrupted {
			return ctrl
		}
		return Write(t, args)
	}
	t.Process.Host.Block(t, cond)
	return kernel.BlockOn(cond)
}

// Getpid implements getpid(2): scenario 2 in spec.md §8 is this exact
// syscall, expecting the process's dense id handed back as RAX verbatim.
func Getpid(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	return kernel.DoneWith(int64(t.Process.ID))
}

// Gettid implements gettid(2).
func Gettid(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	return kernel.DoneWith(int64(t.ID))
}

// Exit implements exit(2): the calling thread is done. The process-wide
// exit (exit_group in a real kernel) is approximated here by marking the
// whole process exited on any thread's exit, since this module does not
// model a process with multiple still-running threads surviving one
// thread's exit(2) (only exit_group has that distinction on Linux, and
// managed programs overwhelmingly call the libc wrapper, which uses
// exit_group).
func Exit(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	code := int(int32(args[0]))
	t.Process.MarkExited(code)
	return kernel.DoneWith(0)
}
