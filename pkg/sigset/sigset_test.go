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

package sigset

import (
	"testing"

	"gotest.tools/v3/assert"
)

// TestSigsetAlgebra checks every identity spec.md §8 names verbatim.
func TestSigsetAlgebra(t *testing.T) {
	s := Add(Add(Empty, 2), 17)

	assert.Equal(t, Or(s, Empty), s)
	assert.Equal(t, And(s, Full), s)
	assert.Equal(t, Not(Not(s)), s)
	assert.Assert(t, IsMember(Add(s, 5), 5))
	assert.Assert(t, !IsMember(Delete(s, 2), 2))
	assert.Equal(t, Lowest(Empty), 0)
}

func TestLowestReturnsSmallestPending(t *testing.T) {
	s := Add(Add(Add(Empty, 17), 2), 9)
	assert.Equal(t, Lowest(s), 2)
}

func TestIsEmpty(t *testing.T) {
	assert.Assert(t, IsEmpty(Empty))
	assert.Assert(t, !IsEmpty(Add(Empty, 1)))
}

func TestAddDeleteRoundTrip(t *testing.T) {
	for signo := MinSignal; signo <= MaxSignal; signo++ {
		s := Add(Empty, signo)
		assert.Assert(t, IsMember(s, signo))
		s = Delete(s, signo)
		assert.Assert(t, !IsMember(s, signo))
		assert.Equal(t, s, Empty)
	}
}

func TestActionTableSetGetRoundTrip(t *testing.T) {
	table := NewActionTable()
	old := table.Set(2, SigAction{Action: ActionHandle, Handler: 0x4000, Flags: SA_RESTART})
	assert.Equal(t, old.Action, ActionDefault)

	got := table.Get(2)
	assert.Equal(t, got.Action, ActionHandle)
	assert.Equal(t, got.Handler, uintptr(0x4000))
}

// TestActionTableSigactionRestoreRoundTrip is spec.md §8's round-trip
// property: sigaction(s, new, &old); sigaction(s, &old, nullptr) restores
// the table bit-for-bit.
func TestActionTableSigactionRestoreRoundTrip(t *testing.T) {
	table := NewActionTable()
	before := table.Get(10)

	old := table.Set(10, SigAction{Action: ActionIgnore})
	assert.Equal(t, old, before)

	table.Set(10, old)
	assert.Equal(t, table.Get(10), before)
}

func TestActionTableCloneIsIndependent(t *testing.T) {
	table := NewActionTable()
	table.Set(3, SigAction{Action: ActionIgnore})

	clone := table.Clone()
	clone.Set(3, SigAction{Action: ActionHandle, Handler: 0x1})

	assert.Equal(t, table.Get(3).Action, ActionIgnore)
	assert.Equal(t, clone.Get(3).Action, ActionHandle)
}

func TestIsShimReserved(t *testing.T) {
	assert.Assert(t, IsShimReserved(31)) // SIGSYS
	assert.Assert(t, IsShimReserved(11)) // SIGSEGV
	assert.Assert(t, !IsShimReserved(2)) // SIGINT
}

func TestApplyRtSigprocmask(t *testing.T) {
	current := Add(Empty, 1)
	delta := Add(Empty, 2)

	blocked, err := Apply(Block, current, delta)
	assert.NilError(t, err)
	assert.Assert(t, IsMember(blocked, 1))
	assert.Assert(t, IsMember(blocked, 2))

	unblocked, err := Apply(Unblock, blocked, delta)
	assert.NilError(t, err)
	assert.Assert(t, IsMember(unblocked, 1))
	assert.Assert(t, !IsMember(unblocked, 2))

	set, err := Apply(SetMask, current, delta)
	assert.NilError(t, err)
	assert.Equal(t, set, delta)

	_, err = Apply(How(99), current, delta)
	assert.ErrorContains(t, err, "invalid how")
}

func TestDefaultActionKnownAndRealtimeSignals(t *testing.T) {
	assert.Equal(t, DefaultAction(2), DispositionTerm)   // SIGINT
	assert.Equal(t, DefaultAction(17), DispositionIgnore) // SIGCHLD
	assert.Equal(t, DefaultAction(19), DispositionStop)   // SIGSTOP
	// Realtime signals default to Term per POSIX (spec.md §4.4).
	assert.Equal(t, DefaultAction(40), DispositionTerm)
}
