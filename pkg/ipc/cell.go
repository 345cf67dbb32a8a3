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

package ipc

import "sync/atomic"

// Cell is the one-per-(host-thread, managed-thread) mailbox from spec.md
// §3/§4.1: two event slots (plugin->shadow, shadow->plugin), two
// spinning-semaphore-guarded alternating channels, and an atomic
// plugin-died flag.
//
// The alternating protocol is: send_to_shadow may only be called when
// recv_from_shadow's semaphore has already been consumed on this slot (and
// symmetrically for the other direction). Cell does not itself enforce that
// invariant -- it is a property of how the shim and the dispatcher drive
// it, matching the real implementation, which likewise relies on caller
// discipline rather than an internal state machine.
type Cell struct {
	toShadow   ShimEvent
	toShadowSem *BinarySpinningSem

	toPlugin   ShimEvent
	toPluginSem *BinarySpinningSem

	pluginDied int32
}

// NewCell returns a fresh, empty Cell with the given semaphore spin budget.
func NewCell(spinMax int) *Cell {
	return &Cell{
		toShadowSem: NewBinarySpinningSem(spinMax),
		toPluginSem: NewBinarySpinningSem(spinMax),
	}
}

// SendToShadow posts e on the plugin->shadow slot.
func (c *Cell) SendToShadow(e ShimEvent) {
	c.toShadow = e
	c.toShadowSem.Post()
}

// SendToPlugin posts e on the shadow->plugin slot.
func (c *Cell) SendToPlugin(e ShimEvent) {
	c.toPlugin = e
	c.toPluginSem.Post()
}

// RecvFromPlugin blocks until a plugin->shadow message is posted.
func (c *Cell) RecvFromPlugin() ShimEvent {
	c.toShadowSem.Wait(true)
	if atomic.LoadInt32(&c.pluginDied) != 0 {
		return ShimEvent{ID: EventProcessDeath}
	}
	return c.toShadow
}

// TryRecvFromPlugin returns (event, true) if a message is ready, or
// (ShimEvent{}, false) if it would block (EAGAIN in spec.md's terms).
func (c *Cell) TryRecvFromPlugin() (ShimEvent, bool) {
	if atomic.LoadInt32(&c.pluginDied) != 0 {
		return ShimEvent{ID: EventProcessDeath}, true
	}
	if err := c.toShadowSem.TryWait(); err != nil {
		return ShimEvent{}, false
	}
	return c.toShadow, true
}

// RecvFromShadow blocks until a shadow->plugin message is posted. spin
// selects whether the wait spin-polls first, matching
// shimevent_recvEventFromShadow(data, e, spin).
func (c *Cell) RecvFromShadow(spin bool) ShimEvent {
	c.toPluginSem.Wait(spin)
	return c.toPlugin
}

// TryRecvFromShadow is the non-blocking counterpart of RecvFromShadow.
func (c *Cell) TryRecvFromShadow() (ShimEvent, bool) {
	if err := c.toPluginSem.TryWait(); err != nil {
		return ShimEvent{}, false
	}
	return c.toPlugin, true
}

// MarkPluginExited marks the cell's owning plugin as dead and wakes any
// shadow worker blocked in RecvFromPlugin, which will observe a synthetic
// EventProcessDeath (spec.md §4.1, §5). Thread-safe; callable regardless of
// what the last operation on the cell was.
func (c *Cell) MarkPluginExited() {
	atomic.StoreInt32(&c.pluginDied, 1)
	c.toShadowSem.Post()
}

// PluginDied reports whether MarkPluginExited has been called.
func (c *Cell) PluginDied() bool {
	return atomic.LoadInt32(&c.pluginDied) != 0
}
