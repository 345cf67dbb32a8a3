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

// Package futex implements the futex wait/wake table keyed by guest
// address (spec.md §3, §4.7, C10): futex_wait atomically checks the word
// value under the host lock and registers the caller as a waiter; futex_wake
// wakes at most n of them.
package futex

import "sync"

// WaiterState is the state of one thread registered on a futex, mirroring
// FutexState from the original futex.h.
type WaiterState int

const (
	StateNone WaiterState = iota
	StateWaiting
	StateTimedOut
	StateWokeUp
)

// ThreadID identifies a waiting thread. The futex table does not otherwise
// depend on the kernel package, so it takes an opaque comparable ID rather
// than a *kernel.Thread, avoiding an import cycle (kernel.Host holds a
// *futex.Table).
type ThreadID uint64

type waiter struct {
	thread ThreadID
	state  WaiterState
}

// Futex is one guest address's wait queue.
type Futex struct {
	addr    uint64
	waiters []waiter
}

// Addr returns the guest address this futex is keyed by.
func (f *Futex) Addr() uint64 { return f.addr }

// IsEmpty reports whether no threads are registered.
func (f *Futex) IsEmpty() bool { return len(f.waiters) == 0 }

// Table is the guest_addr -> Futex map for one host (spec.md §3).
type Table struct {
	mu      sync.Mutex
	futexes map[uint64]*Futex
}

// NewTable returns an empty futex table.
func NewTable() *Table {
	return &Table{futexes: make(map[uint64]*Futex)}
}

// Wait registers thread as waiting on the futex at addr. The caller must
// have already verified, under the host lock, that *addr == expected before
// calling Wait (spec.md §4.7: "atomically checks *addr == expected under
// the host lock, then registers the caller as a waiter returning BLOCK").
// Table.Wait itself trusts that check rather than re-reading guest memory,
// since guest memory access is the caller's (the syscall handler's)
// responsibility, not the table's.
func (t *Table) Wait(addr uint64, thread ThreadID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.futexes[addr]
	if !ok {
		f = &Futex{addr: addr}
		t.futexes[addr] = f
	}
	f.waiters = append(f.waiters, waiter{thread: thread, state: StateWaiting})
}

// Wake wakes at most n threads waiting on addr, transitioning each to
// StateWokeUp, and returns the IDs of the threads woken. If the futex has no more
// waiters afterward, it is removed from the table.
func (t *Table) Wake(addr uint64, n int) (woken []ThreadID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.futexes[addr]
	if !ok {
		return nil
	}
	remaining := f.waiters[:0]
	for _, w := range f.waiters {
		if w.state == StateWaiting && len(woken) < n {
			woken = append(woken, w.thread)
			continue
		}
		remaining = append(remaining, w)
	}
	f.waiters = remaining
	if f.IsEmpty() {
		delete(t.futexes, addr)
	}
	return woken
}

// Timeout transitions thread's registration on addr to StateTimedOut and
// removes it from the wait queue, returning true if it was found still
// waiting (false if it had already been woken, in which case the wakeup
// takes precedence and no timeout should be reported).
func (t *Table) Timeout(addr uint64, thread ThreadID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.futexes[addr]
	if !ok {
		return false
	}
	for i, w := range f.waiters {
		if w.thread == thread {
			if w.state != StateWaiting {
				return false
			}
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			if f.IsEmpty() {
				delete(t.futexes, addr)
			}
			return true
		}
	}
	return false
}

// Cancel removes thread's registration on addr without marking a timeout or
// wakeup, used when a blocked syscall is abandoned for another reason (e.g.
// signal delivery).
func (t *Table) Cancel(addr uint64, thread ThreadID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.futexes[addr]
	if !ok {
		return
	}
	for i, w := range f.waiters {
		if w.thread == thread {
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			break
		}
	}
	if f.IsEmpty() {
		delete(t.futexes, addr)
	}
}
