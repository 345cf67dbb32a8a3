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

package shim

import "sync/atomic"

// InterpGuard is the per-thread disable_interp counter (spec.md §4.2): any
// shim-internal code that must call the real kernel first increments it,
// then decrements on exit, which prevents a shim-internal syscall (e.g.
// logging from within a trap handler) from recursing back into the trap
// conversion path.
type InterpGuard struct {
	depth int32
}

// Enter increments the guard, disabling interposition for the calling
// goroutine until a matching Exit.
func (g *InterpGuard) Enter() { atomic.AddInt32(&g.depth, 1) }

// Exit decrements the guard.
func (g *InterpGuard) Exit() { atomic.AddInt32(&g.depth, -1) }

// Disabled reports whether interposition is currently suppressed.
func (g *InterpGuard) Disabled() bool { return atomic.LoadInt32(&g.depth) > 0 }

// TLSSlots is the shim's fixed-slot thread-local storage allocator (spec.md
// §4.2): the shim cannot rely on libc TLS, which itself makes syscalls
// during lazy initialization, so it reserves a small, statically-sized
// table of named slots instead. Each goroutine that stands in for a
// managed thread gets its own *TLSSlots (there is no real `__thread`
// storage class to borrow in Go, so a per-thread struct pointer plays the
// same role: fixed capacity, no allocation on the syscall-trap hot path
// beyond the one-time NewTLSSlots call).
type TLSSlots struct {
	guard     InterpGuard
	unblocked *UnblockedCounter
	slots     [maxTLSSlots]uintptr
}

// maxTLSSlots bounds the fixed slot table, matching the small, enumerable
// set of things the real shim's TLS block actually holds (the
// disable_interp depth, the unblocked-syscall counter, a couple of
// scratch words used while formatting a log line without recursing).
const maxTLSSlots = 8

// NewTLSSlots returns a fresh per-thread TLS block with the given
// shadow_yield threshold.
func NewTLSSlots(unblockedLimit uint64) *TLSSlots {
	return &TLSSlots{unblocked: NewUnblockedCounter(unblockedLimit)}
}

// Guard returns this thread's disable_interp counter.
func (s *TLSSlots) Guard() *InterpGuard { return &s.guard }

// Unblocked returns this thread's unblocked-syscall counter.
func (s *TLSSlots) Unblocked() *UnblockedCounter { return s.unblocked }

// Slot reads a fixed scratch slot by index (0-based, panics out of range
// the same way an out-of-bounds __thread array access would be a build-time
// error rather than a runtime one -- this module keeps the same "caller
// must stay in range" contract).
func (s *TLSSlots) Slot(i int) uintptr { return s.slots[i] }

// SetSlot writes a fixed scratch slot by index.
func (s *TLSSlots) SetSlot(i int, v uintptr) { s.slots[i] = v }
