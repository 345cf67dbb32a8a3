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

package kernel

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/shadowsim/shadow-go/pkg/sentry/arch"
	"github.com/shadowsim/shadow-go/pkg/shadowtime"
)

// fakeRunner is a minimal Runner stub driven directly by tests: Resume
// returns whatever condition (if any) was queued for it, and DeliverReply
// records the value it was handed.
type fakeRunner struct {
	resumeConditions []*SysCallCondition
	lastReply        int64
	replied          bool
}

func (r *fakeRunner) Run(string, []string, []string, string) error { return nil }
func (r *fakeRunner) Resume() *SysCallCondition {
	if len(r.resumeConditions) == 0 {
		return nil
	}
	c := r.resumeConditions[0]
	r.resumeConditions = r.resumeConditions[1:]
	return c
}
func (r *fakeRunner) DeliverReply(retval int64) { r.lastReply = retval; r.replied = true }
func (r *fakeRunner) HandleProcessExit()        {}
func (r *fakeRunner) ReturnCode() (int, bool)   { return 0, false }
func (r *fakeRunner) IsRunning() bool           { return true }
func (r *fakeRunner) ReadPtr(uintptr, []byte) error  { return nil }
func (r *fakeRunner) WritePtr(uintptr, []byte) error { return nil }
func (r *fakeRunner) NativeSyscall(uintptr, arch.SyscallArguments) int64 { return 0 }

func newTestHost() *Host {
	return NewHost(0, Params{Name: "h0", CPUFrequencyKHz: 1000, RawCPUFrequencyKHz: 1000})
}

func TestNewHostAllocatesDenseHandlesAndPIDs(t *testing.T) {
	h := newTestHost()
	d1 := h.NewDescriptor(DescriptorPipe)
	d2 := h.NewDescriptor(DescriptorPipe)
	assert.Assert(t, d2.Handle > d1.Handle)

	p1 := h.NewProcess()
	p2 := h.NewProcess()
	assert.Assert(t, p2.ID > p1.ID)
}

func TestHostDescriptorLookupAndClose(t *testing.T) {
	h := newTestHost()
	d := h.NewDescriptor(DescriptorPipe)

	got, ok := h.Descriptor(d.Handle)
	assert.Assert(t, ok)
	assert.Equal(t, got, d)

	h.CloseDescriptor(d.Handle)
	_, ok = h.Descriptor(d.Handle)
	assert.Assert(t, !ok)
	assert.Assert(t, d.StatusBits()&StatusClosed != 0)
}

func TestHostProcessLookupAndRemove(t *testing.T) {
	h := newTestHost()
	p := h.NewProcess()

	got, ok := h.Process(p.ID)
	assert.Assert(t, ok)
	assert.Equal(t, got, p)
	assert.Equal(t, len(h.Processes()), 1)

	h.RemoveProcess(p.ID)
	_, ok = h.Process(p.ID)
	assert.Assert(t, !ok)
}

func TestAdvanceTimeUpdatesNowAndCPU(t *testing.T) {
	h := newTestHost()
	h.AdvanceTime(500 * shadowtime.Millisecond)
	assert.Equal(t, h.Now(), 500*shadowtime.Millisecond)
}

// TestWakeFutexResolvesOwningThreadAndSchedulesRetry is spec.md §8's futex
// invariant, exercised through the full Host plumbing: after WakeFutex(addr,
// n) returns k, exactly k of the registered threads have their retry
// re-enqueued.
func TestWakeFutexResolvesOwningThreadAndSchedulesRetry(t *testing.T) {
	h := newTestHost()
	p := h.NewProcess()
	runner := &fakeRunner{}
	th := NewThread(1, p, runner)
	p.AddThread(th)

	cond := &SysCallCondition{Trigger: Trigger{Kind: TriggerFutex, FutexAddr: 0x1000}, Timeout: shadowtime.Invalid}
	th.block(cond)
	h.Futexes.Wait(0x1000, th.FutexWord)

	n := h.WakeFutex(0x1000, 1)
	assert.Equal(t, n, 1)
	assert.Assert(t, th.Condition() == nil) // unblocked by the wake

	// the retry event should now be sitting in the host's queue.
	assert.Assert(t, h.Events.Len() > 0)
}

func TestWakeFutexOnUnknownAddrReturnsZero(t *testing.T) {
	h := newTestHost()
	assert.Equal(t, h.WakeFutex(0xdead, 5), 0)
}
