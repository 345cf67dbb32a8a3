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

// Package kernel implements the per-host emulated kernel state: hosts,
// processes, threads, the descriptor arena, and the blocking/wakeup
// machinery a syscall handler uses to suspend a thread on a
// SysCallCondition and have it resumed when that condition fires (spec.md
// §3, §4.3, C5/C6/C9).
package kernel

import (
	"math/rand"
	"sync"

	"github.com/shadowsim/shadow-go/pkg/event"
	"github.com/shadowsim/shadow-go/pkg/sentry/kernel/futex"
	"github.com/shadowsim/shadow-go/pkg/shadowtime"
)

// Params configures a new Host, mirroring the fields of HostParameters
// (SPEC_FULL §2) that the kernel package itself consumes; the rest
// (bandwidth, pcap, qdisc mode) are not part of Params.
type Params struct {
	Name           string
	Seed           uint32
	CPUFrequencyKHz    uint64
	RawCPUFrequencyKHz uint64
	CPUThresholdUs     uint64
	CPUPrecisionUs     uint64
	Epoch          shadowtime.EpochOffset
}

// Host is one simulated machine (spec.md §3): its event queue, its CPU
// delay model, its descriptor arena, its set of processes, and the lock
// that must be held while any of that state is mutated ("activating a host
// acquires its lock and installs it as the active thread-local context").
type Host struct {
	ID   event.HostID
	Name string

	mu sync.Mutex

	Events  *event.Queue
	CPU     *CPU
	Futexes *futex.Table
	Epoch   shadowtime.EpochOffset

	now shadowtime.SimTime

	descriptors map[Handle]*Descriptor
	nextHandle  Handle

	processes map[ProcessID]*Process
	nextPID   ProcessID

	rng *rand.Rand
}

// NewHost constructs a host with an empty event queue, process set, and
// descriptor arena, seeded per params.
func NewHost(id event.HostID, params Params) *Host {
	return &Host{
		ID:          id,
		Name:        params.Name,
		Events:      event.NewQueue(),
		CPU:         NewCPU(params.CPUFrequencyKHz, params.RawCPUFrequencyKHz, params.CPUThresholdUs, params.CPUPrecisionUs),
		Futexes:     futex.NewTable(),
		Epoch:       params.Epoch,
		descriptors: make(map[Handle]*Descriptor),
		nextHandle:  1,
		processes:   make(map[ProcessID]*Process),
		nextPID:     1,
		rng:         rand.New(rand.NewSource(int64(params.Seed))),
	}
}

// Lock acquires the host lock. Per spec.md §3's invariant, it must never be
// held across a control transfer to a managed thread (i.e. never across a
// Runner.Resume call); callers unlock before resuming and re-lock after.
func (h *Host) Lock() { h.mu.Lock() }

// Unlock releases the host lock.
func (h *Host) Unlock() { h.mu.Unlock() }

// Now returns the host's current simulated time.
func (h *Host) Now() shadowtime.SimTime { return h.now }

// AdvanceTime sets the host's current time and updates its CPU model's
// notion of "now" to match. The scheduler calls this once per popped event,
// before running the event's task.
func (h *Host) AdvanceTime(t shadowtime.SimTime) {
	h.now = t
	h.CPU.UpdateTime(t)
}

// Rand returns the host's private random stream.
func (h *Host) Rand() *rand.Rand { return h.rng }

// NewDescriptor allocates a fresh Handle in the host's descriptor arena and
// returns the new (initially active) Descriptor.
func (h *Host) NewDescriptor(kind DescriptorKind) *Descriptor {
	handle := h.nextHandle
	h.nextHandle++
	d := NewDescriptor(handle, kind)
	h.descriptors[handle] = d
	return d
}

// Descriptor resolves a Handle to its Descriptor.
func (h *Host) Descriptor(handle Handle) (*Descriptor, bool) {
	d, ok := h.descriptors[handle]
	return d, ok
}

// CloseDescriptor marks handle's descriptor closed and removes it from the
// arena. Existing *Descriptor pointers held by conditions remain valid
// (Go's GC keeps the value alive), they simply observe StatusClosed.
func (h *Host) CloseDescriptor(handle Handle) {
	if d, ok := h.descriptors[handle]; ok {
		d.Close()
		delete(h.descriptors, handle)
	}
}

// NewProcess allocates a process with a fresh dense ProcessID.
func (h *Host) NewProcess() *Process {
	id := h.nextPID
	h.nextPID++
	p := NewProcess(id, h)
	h.processes[id] = p
	return p
}

// Process looks up a process by ID.
func (h *Host) Process(id ProcessID) (*Process, bool) {
	p, ok := h.processes[id]
	return p, ok
}

// Processes returns every live process on the host.
func (h *Host) Processes() []*Process {
	out := make([]*Process, 0, len(h.processes))
	for _, p := range h.processes {
		out = append(out, p)
	}
	return out
}

// RemoveProcess drops a process from the host once it has fully exited.
func (h *Host) RemoveProcess(id ProcessID) {
	delete(h.processes, id)
}

// resumeTask is the event.Task that re-enters a blocked thread's Resume
// once its condition has fired.
type resumeTask struct {
	host   *Host
	thread *Thread
}

// Run implements event.Task. It is invoked by the scheduler worker with the
// host already made active, but deliberately does NOT hold h.mu across the
// Runner.Resume call (spec.md §3, §5's shared-memory discipline).
func (r resumeTask) Run() {
	r.host.resume(r.thread)
}

// resume transfers control to thread.Runner, then, if it blocks again,
// installs the new condition.
func (h *Host) resume(t *Thread) {
	t.unblock()
	cond := t.Runner.Resume()
	if cond != nil {
		h.Block(t, cond)
	}
}

// ScheduleResume enqueues a resume event for thread at time `at` -- used
// both for the initial Run() and for re-entry after a condition fires.
func (h *Host) ScheduleResume(t *Thread, at shadowtime.SimTime) {
	h.Events.Push(at, h.ID, h.ID, resumeTask{host: h, thread: t})
}

// retryTask re-invokes the handler that blocked thread via cond.Retry, once
// cond's trigger has fired (spec.md §4.3: "the handler is re-entered with
// the same arguments").
type retryTask struct {
	host      *Host
	thread    *Thread
	condition *SysCallCondition
	timedOut  bool
}

// Run implements event.Task.
func (r retryTask) Run() {
	r.host.retry(r.thread, r.condition, r.timedOut)
}

// retry re-invokes cond.Retry and acts on its result: DONE delivers the
// value and resumes native execution; BLOCK installs the new condition
// (e.g. a second short sleep after a signal-interrupted one); NATIVE is not
// expected from a retried blocking handler and is treated as a transient
// EINTR, since only the shim's own trap path issues genuine native
// passthrough.
func (h *Host) retry(t *Thread, cond *SysCallCondition, timedOut bool) {
	if cond.Retry == nil {
		h.resume(t)
		return
	}
	ctrl := cond.Retry(timedOut)
	switch ctrl.Kind {
	case Done:
		t.Runner.DeliverReply(ctrl.Retval)
		h.resume(t)
	case Block:
		h.Block(t, ctrl.Condition)
	default:
		t.Runner.DeliverReply(errnoEINTR)
		h.resume(t)
	}
}

// errnoEINTR is -EINTR, used by retry's NATIVE fallback case above.
const errnoEINTR = -4

// scheduleRetry enqueues a retry event for thread at time `at`, reporting
// whether this firing was caused by the condition's timeout (rather than
// its trigger actually resolving).
func (h *Host) scheduleRetry(t *Thread, cond *SysCallCondition, at shadowtime.SimTime, timedOut bool) {
	h.Events.Push(at, h.ID, h.ID, retryTask{host: h, thread: t, condition: cond, timedOut: timedOut})
}

// Interrupt delivers an already-pending, unblocked signal to a blocked
// thread: it cancels whatever cond's trigger was waiting on and retries the
// handler, which is expected to observe the pending signal (via
// Thread.DeliverableSignals) and return Done(-EINTR) instead of blocking
// again, per spec.md §4.3's signal-driven wake rule.
func (h *Host) Interrupt(t *Thread) {
	cond := t.Condition()
	if cond == nil {
		return
	}
	if cond.Trigger.Kind == TriggerFutex {
		h.Futexes.Cancel(cond.Trigger.FutexAddr, t.FutexWord)
	}
	if cond.cancelDescriptor != nil {
		cond.cancelDescriptor()
	}
	t.unblock()
	h.scheduleRetry(t, cond, h.now, false)
}

// Block suspends thread on cond: it registers the appropriate listener
// (descriptor status bits or a futex wait) and, if cond carries a timeout,
// schedules a timeout event. Exactly one of the listener firing or the
// timeout firing will re-enqueue a resume event for thread; whichever
// happens first cancels the other.
func (h *Host) Block(t *Thread, cond *SysCallCondition) {
	t.block(cond)

	var settled bool
	wake := func() {
		if settled || t.Condition() != cond {
			return
		}
		settled = true
		if cond.cancelDescriptor != nil {
			cond.cancelDescriptor()
		}
		t.unblock()
		h.scheduleRetry(t, cond, h.now, false)
	}
	timeout := func() {
		if settled || t.Condition() != cond {
			return
		}
		if cond.Trigger.Kind == TriggerFutex {
			if !h.Futexes.Timeout(cond.Trigger.FutexAddr, t.FutexWord) {
				return // already woken concurrently; the wake wins
			}
		}
		settled = true
		if cond.cancelDescriptor != nil {
			cond.cancelDescriptor()
		}
		t.unblock()
		h.scheduleRetry(t, cond, h.now, true)
	}

	switch cond.Trigger.Kind {
	case TriggerDescriptor:
		if d, ok := h.Descriptor(cond.Trigger.Handle); ok {
			if d.StatusBits()&cond.Trigger.Mask != 0 {
				// Already satisfied; resume on the next tick rather than
				// recursing synchronously.
				h.Events.Push(h.now, h.ID, h.ID, event.TaskFunc(wake))
				return
			}
			ch, cancel := d.Listen(cond.Trigger.Mask)
			cond.cancelDescriptor = cancel
			cond.notifyCh = ch
			go h.waitOnChannel(cond, ch, wake)
		}
	case TriggerFutex:
		h.Futexes.Wait(cond.Trigger.FutexAddr, t.FutexWord)
	}

	if cond.HasTimeout() {
		h.Events.Push(cond.Timeout, h.ID, h.ID, event.TaskFunc(timeout))
	}
}

// waitOnChannel bridges a Descriptor listener channel (a real Go channel,
// since Descriptor.Listen is also used from outside the event loop, e.g. by
// the router delivering a packet) back into the deterministic event
// timeline: it blocks a throwaway goroutine until notified, then schedules
// the wake as an ordinary event at the host's current time.
func (h *Host) waitOnChannel(cond *SysCallCondition, ch chan struct{}, fire func()) {
	<-ch
	h.mu.Lock()
	h.Events.Push(h.now, h.ID, h.ID, event.TaskFunc(fire))
	h.mu.Unlock()
}

// resolveFutexThread decodes the (pid, tid) pair packed into a
// futex.ThreadID by NewThread and looks up the live *Thread, if any.
func (h *Host) resolveFutexThread(id futex.ThreadID) (*Thread, bool) {
	pid := ProcessID(id >> 32)
	tid := ThreadID(id & 0xffffffff)
	p, ok := h.Process(pid)
	if !ok {
		return nil, false
	}
	return p.Thread(tid)
}

// WakeFutex wakes up to n threads waiting on addr and schedules their
// resume. It is the kernel-side half of futex_wake; the caller (the
// futex_wake syscall handler) must already hold the host lock. Returns the
// number of threads actually woken, the value futex_wake(2) returns.
func (h *Host) WakeFutex(addr uint64, n int) int {
	woken := h.Futexes.Wake(addr, n)
	for _, id := range woken {
		t, ok := h.resolveFutexThread(id)
		if !ok {
			continue
		}
		cond := t.Condition()
		t.unblock()
		h.scheduleRetry(t, cond, h.now, false)
	}
	return len(woken)
}
