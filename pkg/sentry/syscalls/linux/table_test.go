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

	"github.com/shadowsim/shadow-go/pkg/abi/linux"
	"github.com/shadowsim/shadow-go/pkg/sentry/kernel"
)

func TestLookupReturnsRegisteredHandler(t *testing.T) {
	tbl := New()
	h := tbl.Lookup(linux.SYS_FUTEX)
	assert.Assert(t, h != nil)

	ctrl := h(nil, [6]uintptr{0, 99 /* unknown op */})
	assert.Equal(t, ctrl.Kind, kernel.Done)
	assert.Equal(t, ctrl.Retval, errnoRetval(errENOSYS))
}

func TestLookupFallsBackToNotSupported(t *testing.T) {
	tbl := New()
	ctrl := tbl.Lookup(0xffffff)(nil, [6]uintptr{})
	assert.Equal(t, ctrl.Kind, kernel.Done)
	assert.Equal(t, ctrl.Retval, errnoRetval(errENOSYS))
}

func TestShadowYieldIsTheOnlyRegisteredPseudoSyscall(t *testing.T) {
	tbl := New()
	h := tbl.Lookup(linux.SYS_SHADOW_YIELD)
	assert.Assert(t, h != nil)
}
