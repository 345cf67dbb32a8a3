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

package ipc

import "github.com/shadowsim/shadow-go/pkg/sentry/arch"

// EventID enumerates the messages that cross an IPC cell, mirroring the
// original ShimEventID enum (spec.md §4.3, §5).
type EventID int

const (
	EventNull EventID = iota
	EventStart
	EventStop
	EventSyscall
	EventSyscallComplete
	EventSyscallDoNative
	EventShmemComplete
	EventWriteReq
	EventBlock
	EventProcessDeath
)

// ShimEvent is the single-slot message carried by a Cell in either
// direction. Only the fields relevant to EventID are populated.
type ShimEvent struct {
	ID EventID

	// EventSyscall
	SyscallNo   uintptr
	SyscallArgs arch.SyscallArguments

	// EventSyscallComplete
	Retval      int64
	Restartable bool

	// EventShmemComplete / EventWriteReq
	Block ShMem
	N     uint64
}
