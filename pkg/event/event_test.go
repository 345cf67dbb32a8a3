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

package event

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/shadowsim/shadow-go/pkg/shadowtime"
)

func TestLessOrdersByTimeThenHostThenSeq(t *testing.T) {
	a := Event{Time: 10, DstHost: 1, SrcHost: 1, SrcSeq: 0}
	b := Event{Time: 20, DstHost: 0, SrcHost: 0, SrcSeq: 0}
	assert.Assert(t, Less(a, b))
	assert.Assert(t, !Less(b, a))

	c := Event{Time: 10, DstHost: 0, SrcHost: 1, SrcSeq: 0}
	assert.Assert(t, Less(c, a))

	d := Event{Time: 10, DstHost: 1, SrcHost: 0, SrcSeq: 0}
	e := Event{Time: 10, DstHost: 1, SrcHost: 1, SrcSeq: 0}
	assert.Assert(t, Less(d, e))

	f := Event{Time: 10, DstHost: 1, SrcHost: 1, SrcSeq: 1}
	assert.Assert(t, Less(a, f))
}

// TestPopOrderMatchesStrictTotalOrder is spec.md §8's event-order
// invariant, exercised through the actual Queue rather than Less alone.
func TestPopOrderMatchesStrictTotalOrder(t *testing.T) {
	q := NewQueue()
	q.Push(5, 0, 0, TaskFunc(func() {}))
	q.Push(1, 0, 0, TaskFunc(func() {}))
	q.Push(1, 0, 0, TaskFunc(func() {})) // same time, later SrcSeq breaks the tie
	q.Push(3, 0, 0, TaskFunc(func() {}))

	var times []int
	var prev Event
	havePrev := false
	for q.Len() > 0 {
		ev, ok := q.Pop()
		assert.Assert(t, ok)
		if havePrev {
			assert.Assert(t, Less(prev, ev))
		}
		prev, havePrev = ev, true
		times = append(times, int(ev.Time))
	}
	assert.DeepEqual(t, times, []int{1, 1, 3, 5})
}

func TestPushAssignsMonotoneSrcSeq(t *testing.T) {
	q := NewQueue()
	e0 := q.Push(0, 0, 0, TaskFunc(func() {}))
	e1 := q.Push(0, 0, 0, TaskFunc(func() {}))
	assert.Assert(t, e1.SrcSeq > e0.SrcSeq)
}

func TestPopBeforeTimeHoldsEventsAtOrAfterDeadline(t *testing.T) {
	q := NewQueue()
	q.Push(5, 0, 0, TaskFunc(func() {}))
	q.Push(10, 0, 0, TaskFunc(func() {}))

	ev, ok := q.PopBeforeTime(10)
	assert.Assert(t, ok)
	assert.Equal(t, ev.Time, shadowtime.SimTime(5))

	_, ok = q.PopBeforeTime(10)
	assert.Assert(t, !ok) // the Time==10 event is held for a later round

	assert.Equal(t, q.Len(), 1)
}

func TestPeekDoesNotRemove(t *testing.T) {
	q := NewQueue()
	q.Push(1, 0, 0, TaskFunc(func() {}))
	_, ok := q.Peek()
	assert.Assert(t, ok)
	assert.Equal(t, q.Len(), 1)
}

func TestTaskFuncRuns(t *testing.T) {
	ran := false
	TaskFunc(func() { ran = true }).Run()
	assert.Assert(t, ran)
}
