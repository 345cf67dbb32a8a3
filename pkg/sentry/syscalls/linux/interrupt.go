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

// checkInterrupted reports whether t has a deliverable (unblocked,
// non-ignored) signal pending, and if so consumes the lowest-numbered one
// and returns the -EINTR a blocking syscall's Retry must reply with
// (spec.md §4.3, §4.4, §8 scenario 5: "pending-signal set loses SIGINT
// because the handler (default TERM) is dispatched").
func checkInterrupted(t *kernel.Thread) (kernel.SyscallControl, bool) {
	deliverable := t.DeliverableSignals()
	if sigset.IsEmpty(deliverable) {
		return kernel.SyscallControl{}, false
	}
	signo := sigset.Lowest(deliverable)
	t.ClearPending(signo)
	t.Process.ClearPending(signo)
	return kernel.DoneWith(errnoRetval(errEINTR)), true
}
