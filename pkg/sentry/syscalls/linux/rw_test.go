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
	"testing"

	"gotest.tools/v3/assert"

	"github.com/shadowsim/shadow-go/pkg/sentry/kernel"
)

// TestGetpidReturnsProcessID is spec.md §8 scenario 2's getpid half: the
// syscall returns the calling process's dense id verbatim, no IPC needed
// beyond the one round trip the dispatcher itself already performs.
func TestGetpidReturnsProcessID(t *testing.T) {
	_, th, _ := newTestThread()
	ctrl := Getpid(th, [6]uintptr{})
	assert.Equal(t, ctrl.Kind, kernel.Done)
	assert.Equal(t, ctrl.Retval, int64(th.Process.ID))
}

func TestGettidReturnsThreadID(t *testing.T) {
	_, th, _ := newTestThread()
	ctrl := Gettid(th, [6]uintptr{})
	assert.Equal(t, ctrl.Retval, int64(th.ID))
}

func TestExitMarksProcessExited(t *testing.T) {
	_, th, _ := newTestThread()
	ctrl := Exit(th, [6]uintptr{7})
	assert.Equal(t, ctrl.Retval, int64(0))
	exited, code := th.Process.Exited()
	assert.Assert(t, exited)
	assert.Equal(t, code, 7)
}

func TestReadOnBadFdIsEbadf(t *testing.T) {
	_, th, _ := newTestThread()
	ctrl := Read(th, [6]uintptr{99, 0, 16})
	assert.Equal(t, ctrl.Retval, errnoRetval(errEBADF))
}

func TestWriteOnBadFdIsEbadf(t *testing.T) {
	_, th, _ := newTestThread()
	ctrl := Write(th, [6]uintptr{99, 0, 16})
	assert.Equal(t, ctrl.Retval, errnoRetval(errEBADF))
}

func TestCloneUnknownFlagsIsEnosys(t *testing.T) {
	_, th, _ := newTestThread()
	ctrl := Clone(th, [6]uintptr{0x7fffffff})
	assert.Equal(t, ctrl.Retval, errnoRetval(errENOSYS))
}
