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
	"github.com/shadowsim/shadow-go/pkg/abi/linux"
	"github.com/shadowsim/shadow-go/pkg/sentry/kernel"
)

// cloneThreadFlags is the flag set Clone recognizes, once
// CLONE_PARENT_SETTID/CLONE_CHILD_SETTID/CLONE_CHILD_CLEARTID
// (cloneSetTidMask) are masked off, as an ordinary pthread_create-style
// same-process thread. Nothing acts on the masked-off set-tid flags.
const cloneThreadFlags = linux.CLONE_VM | linux.CLONE_FS | linux.CLONE_FILES | linux.CLONE_SIGHAND | linux.CLONE_THREAD

const cloneSetTidMask = linux.CLONE_PARENT_SETTID | linux.CLONE_CHILD_SETTID | linux.CLONE_CHILD_CLEARTID

// Clone implements clone(2). This port has no machinery for spawning a
// second native OS thread inside an already-running managed process (that
// lives in pkg/shim.Runner.Run, invoked only at process start), so even the
// one flag combination it recognizes as "an ordinary thread" cannot
// actually be carried out here; every call returns -ENOSYS. The masking
// logic is still implemented, matching spec.md §9's resolution of the
// unknown-flag-combination question, so that a future Runner capable of
// spawning threads mid-run has the validation it needs already in place.
func Clone(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	flags := uint64(args[0]) &^ cloneSetTidMask
	if flags != cloneThreadFlags {
		return kernel.DoneWith(errnoRetval(errENOSYS))
	}
	return kernel.DoneWith(errnoRetval(errENOSYS))
}
