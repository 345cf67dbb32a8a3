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

// Package linux holds the subset of Linux ABI constants the emulated kernel
// actually consults: amd64 syscall numbers for the calls the dispatcher
// implements, the seccomp BPF action/instruction types, and the
// shadow_set_* pseudo-syscall numbers from spec.md §6.
package linux

// BPFAction is a seccomp filter return value (SECCOMP_RET_*).
type BPFAction uint32

const (
	SECCOMP_RET_KILL_PROCESS BPFAction = 0x80000000
	SECCOMP_RET_KILL_THREAD  BPFAction = 0x00000000
	SECCOMP_RET_TRAP         BPFAction = 0x00030000
	SECCOMP_RET_ERRNO        BPFAction = 0x00050000
	SECCOMP_RET_TRACE        BPFAction = 0x7ff00000
	SECCOMP_RET_ALLOW        BPFAction = 0x7fff0000
)

// BPFInstruction mirrors struct sock_filter (linux/filter.h): a single BPF
// bytecode instruction as consumed by PR_SET_SECCOMP / seccomp(2).
type BPFInstruction struct {
	OpCode   uint16
	JumpTrue uint8
	JumpFail uint8
	K        uint32
}

// Well-known amd64 syscall numbers referenced by the syscall table, the
// ptrace stub bootstrap, and the seccomp allowlist. Not exhaustive -- only
// the numbers the core actually names.
const (
	SYS_READ          = 0
	SYS_WRITE         = 1
	SYS_CLOSE         = 3
	SYS_MMAP          = 9
	SYS_MUNMAP        = 11
	SYS_RT_SIGACTION  = 13
	SYS_RT_SIGPROCMASK = 14
	SYS_RT_SIGRETURN  = 15
	SYS_IOCTL         = 16
	SYS_PIPE          = 22
	SYS_SCHED_YIELD   = 24
	SYS_NANOSLEEP     = 35
	SYS_GETPID        = 39
	SYS_SOCKET        = 41
	SYS_CONNECT       = 42
	SYS_ACCEPT        = 43
	SYS_SENDTO        = 44
	SYS_RECVFROM      = 45
	SYS_BIND          = 49
	SYS_LISTEN        = 50
	SYS_CLONE         = 56
	SYS_EXIT          = 60
	SYS_WAIT4         = 61
	SYS_KILL          = 62
	SYS_GETTID        = 186
	SYS_EXIT_GROUP    = 231
	SYS_GETPPID       = 110
	SYS_SIGALTSTACK   = 131
	SYS_PRCTL         = 157
	SYS_SETSID        = 112
	SYS_GETTIMEOFDAY  = 96
	SYS_TIME          = 201
	SYS_CLOCK_GETTIME = 228
	SYS_TGKILL        = 234
	SYS_TKILL         = 200
	SYS_SET_TID_ADDRESS = 218
	SYS_FUTEX           = 202
	SYS_TIMERFD_CREATE  = 283
	SYS_TIMERFD_SETTIME = 286
	SYS_TIMERFD_GETTIME = 287
	SYS_EPOLL_CREATE1   = 291
	SYS_ACCEPT4         = 288
	SYS_RSEQ            = 334

	// Shadow pseudo-syscalls, numbers 1000-1003 (spec.md §6), plus
	// shadow_yield at 1004.
	SYS_SHADOW_SET_PTRACE_ALLOW_NATIVE_SYSCALLS = 1000
	SYS_SHADOW_GET_IPC_BLK                       = 1001
	SYS_SHADOW_GET_SHM_BLK                       = 1002
	SYS_SHADOW_HOSTNAME_TO_ADDR_IPV4             = 1003
	SYS_SHADOW_YIELD                             = 1004
)

// clone(2) flags the clone handler inspects (spec.md §9 Open Question).
const (
	CLONE_VM             = 0x00000100
	CLONE_FS             = 0x00000200
	CLONE_FILES          = 0x00000400
	CLONE_SIGHAND        = 0x00000800
	CLONE_PTRACE         = 0x00002000
	CLONE_THREAD         = 0x00010000
	CLONE_PARENT_SETTID  = 0x00100000
	CLONE_CHILD_CLEARTID = 0x00200000
	CLONE_CHILD_SETTID   = 0x01000000
	CLONE_IO             = 0x80000000
	CLONE_UNTRACED       = 0x00800000
)

// sigaltstack(2) flags (spec.md §4.4).
const (
	SS_ONSTACK   = 1
	SS_DISABLE   = 2
	SS_AUTODISARM = 1 << 31
)

// timerfd_settime(2) flags.
const (
	TFD_TIMER_ABSTIME = 1 << 0
)

// rt_sigprocmask(2) how values.
const (
	SIG_BLOCK   = 0
	SIG_UNBLOCK = 1
	SIG_SETMASK = 2
)
