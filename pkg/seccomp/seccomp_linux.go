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

//go:build linux
// +build linux

package seccomp

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/shadowsim/shadow-go/pkg/abi/linux"
)

// SetFilterInChild installs instrs as the calling thread's seccomp filter
// via PR_SET_SECCOMP. It must be called with PR_SET_NO_NEW_PRIVS already
// set (or running as root). It copies instrs into a freshly allocated
// sock_filter array before the prctl call.
func SetFilterInChild(instrs []linux.BPFInstruction) unix.Errno {
	filters := make([]unix.SockFilter, len(instrs))
	for i, ins := range instrs {
		filters[i] = unix.SockFilter{Code: ins.OpCode, Jt: ins.JumpTrue, Jf: ins.JumpFail, K: ins.K}
	}
	prog := unix.SockFprog{
		Len:    uint16(len(filters)),
		Filter: &filters[0],
	}
	_, _, errno := unix.RawSyscall(unix.SYS_PRCTL, unix.PR_SET_SECCOMP, unix.SECCOMP_MODE_FILTER, uintptr(unsafe.Pointer(&prog)))
	return errno
}

// SetNoNewPrivs sets PR_SET_NO_NEW_PRIVS, allowing an unprivileged process
// to install a seccomp filter.
func SetNoNewPrivs() unix.Errno {
	_, _, errno := unix.RawSyscall(unix.SYS_PRCTL, unix.PR_SET_NO_NEW_PRIVS, 1, 0)
	return errno
}
