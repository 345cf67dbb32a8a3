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

// Package timerfd implements the simulated timerfd descriptor from
// spec.md §4.7 (C10): arming schedules an event at the target virtual
// time; the descriptor becomes readable when it fires, and reads return an
// 8-byte expiration count.
package timerfd

import (
	"sync"

	"github.com/shadowsim/shadow-go/pkg/shadowtime"
)

// Spec mirrors struct itimerspec: an initial expiration plus a repeat
// interval (zero interval means "fire once").
type Spec struct {
	Value    shadowtime.SimTime // relative delay, or absolute EmuTime if Abstime
	Interval shadowtime.SimTime
	Abstime  bool
}

// Timer is one timerfd's arm state and accumulated (unread) expiration
// count.
type Timer struct {
	mu         sync.Mutex
	spec       Spec
	nextExpiry shadowtime.SimTime
	expirations uint64
	armed      bool

	// onReadable is invoked (outside the lock) whenever Fire causes the
	// descriptor to transition to readable, letting the owning Descriptor
	// propagate the status-bit change.
	onReadable func()
}

// New returns a disarmed timer.
func New(onReadable func()) *Timer {
	return &Timer{onReadable: onReadable}
}

// SetTime arms (or disarms, if both Value and Interval are zero) the timer.
// now is the simulation's current time, used to resolve a relative Value
// into an absolute next-expiry instant; epoch resolves an absolute Abstime
// spec into simulated time. Returns the previous Spec, for the
// timerfd_settime "old" outparam.
func (t *Timer) SetTime(now shadowtime.SimTime, epoch shadowtime.EpochOffset, spec Spec) Spec {
	t.mu.Lock()
	defer t.mu.Unlock()
	old := t.spec
	t.spec = spec
	if spec.Value == 0 && spec.Interval == 0 {
		t.armed = false
		return old
	}
	if spec.Abstime {
		// Value is an absolute EmuTime; convert back to SimTime by
		// subtracting the epoch.
		abs := shadowtime.SimTime(uint64(spec.Value) - uint64(epoch))
		t.nextExpiry = abs
	} else {
		t.nextExpiry = now.Add(spec.Value)
	}
	t.armed = true
	return old
}

// NextExpiry returns the next absolute SimTime this timer should fire at,
// and whether it is currently armed. The scheduler uses this to schedule
// the firing event.
func (t *Timer) NextExpiry() (shadowtime.SimTime, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextExpiry, t.armed
}

// Fire is invoked by the scheduled event at t.nextExpiry: it increments the
// expiration count, rearms for the next interval (if periodic), and
// notifies onReadable.
func (t *Timer) Fire(now shadowtime.SimTime) (rearm bool, next shadowtime.SimTime) {
	t.mu.Lock()
	t.expirations++
	if t.spec.Interval > 0 {
		t.nextExpiry = now.Add(t.spec.Interval)
		rearm = true
		next = t.nextExpiry
	} else {
		t.armed = false
	}
	t.mu.Unlock()
	if t.onReadable != nil {
		t.onReadable()
	}
	return rearm, next
}

// ReadExpirations returns and clears the accumulated expiration count, the
// value a read(2) of the timerfd returns as an 8-byte integer. Returns
// ok=false if there have been no expirations yet (EAGAIN in non-blocking
// mode).
func (t *Timer) ReadExpirations() (count uint64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.expirations == 0 {
		return 0, false
	}
	count = t.expirations
	t.expirations = 0
	return count, true
}
