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

import "github.com/shadowsim/shadow-go/pkg/sentry/kernel"

// ShadowYield implements the shadow_yield pseudo-syscall (spec.md §6,
// SPEC_FULL §2): the shim issues this once its local unblocked-syscall
// counter (pkg/shim's UnblockedCounter) crosses
// DefaultUnblockedSyscallLimit, so a managed thread stuck resolving
// everything on the fast path still gives the scheduler a chance to run
// other hosts' events. The condition carries no wait trigger and a
// zero-delay timeout, so Host.Block schedules an immediate retry rather
// than suspending the thread indefinitely -- the round trip itself is the
// point, not any real wait.
func ShadowYield(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	host := t.Process.Host
	cond := &kernel.SysCallCondition{Timeout: host.Now()}
	cond.Retry = func(timedOut bool) kernel.SyscallControl {
		return kernel.DoneWith(0)
	}
	host.Block(t, cond)
	return kernel.BlockOn(cond)
}
