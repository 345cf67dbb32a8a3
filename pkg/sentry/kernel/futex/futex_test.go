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

package futex

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestWakeReturnsEmptyOnUnknownAddr(t *testing.T) {
	tbl := NewTable()
	woken := tbl.Wake(0x1000, 1)
	assert.Assert(t, woken == nil)
}

// TestWakeTransitionsExactlyN is spec.md §8's futex invariant: after
// wake(addr, n) returns k, exactly k waiters transitioned out of Waiting.
func TestWakeTransitionsExactlyN(t *testing.T) {
	tbl := NewTable()
	tbl.Wait(0x2000, 1)
	tbl.Wait(0x2000, 2)
	tbl.Wait(0x2000, 3)

	woken := tbl.Wake(0x2000, 2)
	assert.Equal(t, len(woken), 2)
	assert.DeepEqual(t, woken, []ThreadID{1, 2})

	// the third waiter is still registered and can still be woken later.
	woken2 := tbl.Wake(0x2000, 5)
	assert.Equal(t, len(woken2), 1)
	assert.Equal(t, woken2[0], ThreadID(3))
}

func TestWakeRemovesEmptyFutexFromTable(t *testing.T) {
	tbl := NewTable()
	tbl.Wait(0x3000, 1)
	tbl.Wake(0x3000, 1)

	// a second wake on the same now-empty addr must find nothing.
	woken := tbl.Wake(0x3000, 1)
	assert.Assert(t, woken == nil)
}

func TestWakeCapsAtN(t *testing.T) {
	tbl := NewTable()
	for i := ThreadID(1); i <= 5; i++ {
		tbl.Wait(0x4000, i)
	}
	woken := tbl.Wake(0x4000, 3)
	assert.Equal(t, len(woken), 3)
}

func TestTimeoutRemovesWaitingThread(t *testing.T) {
	tbl := NewTable()
	tbl.Wait(0x5000, 1)

	ok := tbl.Timeout(0x5000, 1)
	assert.Assert(t, ok)

	// already removed; a second timeout call finds nothing.
	ok = tbl.Timeout(0x5000, 1)
	assert.Assert(t, !ok)
}

func TestTimeoutLosesRaceToWake(t *testing.T) {
	tbl := NewTable()
	tbl.Wait(0x6000, 1)

	woken := tbl.Wake(0x6000, 1)
	assert.Equal(t, len(woken), 1)

	// the waiter was already removed from the table by Wake, so a
	// subsequent Timeout against the same (addr, thread) reports false:
	// the wakeup took precedence.
	ok := tbl.Timeout(0x6000, 1)
	assert.Assert(t, !ok)
}

func TestCancelRemovesWaiterSilently(t *testing.T) {
	tbl := NewTable()
	tbl.Wait(0x7000, 1)
	tbl.Wait(0x7000, 2)

	tbl.Cancel(0x7000, 1)

	woken := tbl.Wake(0x7000, 5)
	assert.DeepEqual(t, woken, []ThreadID{2})
}

func TestCancelOnUnknownAddrIsNoop(t *testing.T) {
	tbl := NewTable()
	tbl.Cancel(0x8000, 1) // must not panic
}

func TestMultipleFutexesAreIndependent(t *testing.T) {
	tbl := NewTable()
	tbl.Wait(0x9000, 1)
	tbl.Wait(0xA000, 2)

	woken := tbl.Wake(0x9000, 5)
	assert.DeepEqual(t, woken, []ThreadID{1})

	// waiter on the other address is untouched.
	woken2 := tbl.Wake(0xA000, 5)
	assert.DeepEqual(t, woken2, []ThreadID{2})
}
