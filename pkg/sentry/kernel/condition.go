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

import "github.com/shadowsim/shadow-go/pkg/shadowtime"

// TriggerKind tags which variant of SysCallCondition.Trigger is active.
type TriggerKind int

const (
	TriggerNone TriggerKind = iota
	TriggerDescriptor
	TriggerFutex
)

// Trigger is the wait predicate a SysCallCondition resolves against: either
// a descriptor's status bits entering a requested mask, or a futex address
// being woken. File-backed triggers (TriggerFile in the original design)
// collapse into TriggerDescriptor here, since every waitable object in this
// module -- sockets, pipes, timers -- is represented by a Descriptor.
type Trigger struct {
	Kind TriggerKind

	// Descriptor fields, valid when Kind == TriggerDescriptor.
	Handle Handle
	Mask   StatusBits

	// Futex fields, valid when Kind == TriggerFutex.
	FutexAddr uint64
}

// SysCallCondition is what a thread is suspended on (spec.md §3). A thread
// holds at most one at a time; Host.Block installs it, and whichever of
// Descriptor.Listen / futex.Table.Wait / the timer queue fires it clears it
// and re-enqueues a resume event for the owning thread.
type SysCallCondition struct {
	Trigger Trigger
	Timeout shadowtime.SimTime // shadowtime.Invalid means no timeout

	// Retry re-invokes the handler that produced this condition, with its
	// original arguments closed over. It is how the handler is "re-entered
	// with the same arguments" once the condition fires (spec.md §4.3),
	// without needing the kernel package to know anything about the
	// syscall table that constructed the condition.
	Retry func(timedOut bool) SyscallControl

	cancelDescriptor func()
	notifyCh         chan struct{}
}

// HasTimeout reports whether the condition carries a deadline.
func (c *SysCallCondition) HasTimeout() bool {
	return c.Timeout.IsValid()
}
