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

// Package event defines the simulation's event record and its strict total
// order, and a per-host ordered queue built on a B-tree so the scheduler can
// both pop-in-order and bound a round by a time window.
package event

import (
	"github.com/google/btree"

	"github.com/shadowsim/shadow-go/pkg/shadowtime"
)

// HostID densely identifies a host within the simulation.
type HostID uint32

// Task is the unit of work an Event carries. Run executes the task against
// whatever context the scheduler has made active (the destination host);
// implementations live in pkg/sentry/kernel (thread resume), pkg/tcpip
// (packet delivery), and pkg/sentry/kernel/timerfd (timer expiry).
type Task interface {
	Run()
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func()

// Run implements Task.
func (f TaskFunc) Run() { f() }

// Event is a single scheduled unit of work. Its zero value is not valid;
// construct via Queue.Push, which assigns SrcSeq.
type Event struct {
	Time    shadowtime.SimTime
	DstHost HostID
	SrcHost HostID
	SrcSeq  uint64
	Task    Task
}

// Less implements the strict total order from spec.md §3: compare by
// (Time, DstHost, SrcHost, SrcSeq). Two distinct events pushed through Queue
// never compare equal, because SrcSeq is assigned from a per-source-host
// monotone counter.
func Less(a, b Event) bool {
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	if a.DstHost != b.DstHost {
		return a.DstHost < b.DstHost
	}
	if a.SrcHost != b.SrcHost {
		return a.SrcHost < b.SrcHost
	}
	return a.SrcSeq < b.SrcSeq
}

// item wraps an Event for btree.Item, since Event itself (containing an
// interface field) is not comparable and we want Less to stay a free
// function usable independently in tests.
type item struct{ e Event }

func (i item) Less(than btree.Item) bool {
	return Less(i.e, than.(item).e)
}

// Queue is a per-host ordered set of pending events, backed by a B-tree for
// O(log n) insert/pop and efficient "everything before time T" iteration
// (used by the scheduler's round barrier to hold events past the current
// round's window without a second data structure).
type Queue struct {
	tree    *btree.BTree
	nextSeq uint64
}

// btreeDegree is the branching factor handed to btree.New. 32 keeps tree
// height low for the tens-of-thousands of in-flight events a busy host can
// carry, at a modest per-node memory cost.
const btreeDegree = 32

// NewQueue returns an empty event queue for one host.
func NewQueue() *Queue {
	return &Queue{tree: btree.New(btreeDegree)}
}

// Push enqueues task to run at t, assigning the next monotone SrcSeq from
// this queue's own counter (callers pass the queue's owning host as src for
// events it originates).
func (q *Queue) Push(t shadowtime.SimTime, dst, src HostID, task Task) Event {
	seq := q.nextSeq
	q.nextSeq++
	e := Event{Time: t, DstHost: dst, SrcHost: src, SrcSeq: seq, Task: task}
	q.tree.ReplaceOrInsert(item{e})
	return e
}

// PushEvent inserts an already-constructed event (used when relaying an
// event produced by another host's queue, so its SrcSeq must be preserved).
func (q *Queue) PushEvent(e Event) {
	q.tree.ReplaceOrInsert(item{e})
}

// Len returns the number of pending events.
func (q *Queue) Len() int { return q.tree.Len() }

// Peek returns the earliest event without removing it, and whether one
// exists.
func (q *Queue) Peek() (Event, bool) {
	min := q.tree.Min()
	if min == nil {
		return Event{}, false
	}
	return min.(item).e, true
}

// pop removes and returns the earliest pending event, and whether one
// existed. PopBeforeTime and Pop are built on it.
func (q *Queue) pop() (Event, bool) {
	min := q.tree.DeleteMin()
	if min == nil {
		return Event{}, false
	}
	return min.(item).e, true
}

// PopBeforeTime removes and returns the earliest pending event if its Time
// is strictly less than deadline. This is the scheduler's round-barrier
// primitive: events at or after deadline are left in the queue for a later
// round.
func (q *Queue) PopBeforeTime(deadline shadowtime.SimTime) (Event, bool) {
	e, ok := q.Peek()
	if !ok || e.Time >= deadline {
		return Event{}, false
	}
	return q.pop()
}

// Pop removes and returns the earliest pending event, regardless of time.
func (q *Queue) Pop() (Event, bool) {
	return q.pop()
}
