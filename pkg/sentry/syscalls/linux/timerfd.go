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

package linux

import (
	"github.com/shadowsim/shadow-go/pkg/sentry/kernel"
	"github.com/shadowsim/shadow-go/pkg/sentry/kernel/timerfd"
	"github.com/shadowsim/shadow-go/pkg/shadowtime"
)

const tfdTimerAbstime = 1 << 0

// TimerfdCreate implements timerfd_create(2): allocates a Descriptor of
// kind Timer backed by a timerfd.Timer, initially disarmed.
func TimerfdCreate(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	host := t.Process.Host
	d := host.NewDescriptor(kernel.DescriptorTimer)
	d.Impl = timerfd.New(func() {
		d.SetStatusBits(kernel.StatusReadable)
	})
	fd := t.Process.AddFD(d.Handle)
	return kernel.DoneWith(int64(fd))
}

func timerOf(t *kernel.Thread, fd int32) (*kernel.Descriptor, *timerfd.Timer, bool) {
	h, ok := t.Process.Lookup(int(fd))
	if !ok {
		return nil, nil, false
	}
	d, ok := t.Process.Host.Descriptor(h)
	if !ok || d.Kind != kernel.DescriptorTimer {
		return nil, nil, false
	}
	tm, ok := d.Impl.(*timerfd.Timer)
	return d, tm, ok
}

// TimerfdSettime implements timerfd_settime(2): arms/disarms the timer and
// schedules its expiry event at the resolved absolute SimTime.
func TimerfdSettime(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	fd := int32(args[0])
	flags := int32(args[1])
	newAddr := args[2]
	oldAddr := args[3]

	_, tm, ok := timerOf(t, fd)
	if !ok {
		return kernel.DoneWith(errnoRetval(errEBADF))
	}

	var buf [32]byte
	if err := t.Runner.ReadPtr(newAddr, buf[:]); err != nil {
		return kernel.DoneWith(errnoRetval(errEFAULT))
	}
	newSpec := timerfd.Spec{
		Interval: simTimeFromTimespec(buf[0:16]),
		Value:    simTimeFromTimespec(buf[16:32]),
		Abstime:  flags&tfdTimerAbstime != 0,
	}

	host := t.Process.Host
	old := tm.SetTime(host.Now(), host.Epoch, newSpec)

	if next, armed := tm.NextExpiry(); armed {
		host.Events.Push(next, host.ID, host.ID, timerFireTask{host, tm})
	}

	if oldAddr != 0 {
		outBuf := timespecFromSpec(old)
		_ = t.Runner.WritePtr(oldAddr, outBuf[:])
	}
	return kernel.DoneWith(0)
}

// TimerfdGettime implements timerfd_gettime(2).
func TimerfdGettime(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	fd := int32(args[0])
	curAddr := args[1]

	_, tm, ok := timerOf(t, fd)
	if !ok {
		return kernel.DoneWith(errnoRetval(errEBADF))
	}
	next, armed := tm.NextExpiry()
	spec := timerfd.Spec{}
	if armed {
		now := t.Process.Host.Now()
		if next > now {
			spec.Value = next - now
		}
	}
	if curAddr != 0 {
		buf := timespecFromSpec(spec)
		_ = t.Runner.WritePtr(curAddr, buf[:])
	}
	return kernel.DoneWith(0)
}

func simTimeFromTimespec(b []byte) shadowtime.SimTime {
	sec := leUint64(b[0:8])
	nsec := leUint64(b[8:16])
	return shadowtime.SimTime(sec)*shadowtime.Second + shadowtime.SimTime(nsec)*shadowtime.Nanosecond
}

func timespecFromSpec(spec timerfd.Spec) [32]byte {
	var buf [32]byte
	putLeUint64(buf[0:8], uint64(spec.Interval/shadowtime.Second))
	putLeUint64(buf[8:16], uint64(spec.Interval%shadowtime.Second))
	putLeUint64(buf[16:24], uint64(spec.Value/shadowtime.Second))
	putLeUint64(buf[24:32], uint64(spec.Value%shadowtime.Second))
	return buf
}

// timerFireTask is the event.Task scheduled at a timer's next expiry.
type timerFireTask struct {
	host  *kernel.Host
	timer *timerfd.Timer
}

// Run implements event.Task: fires the timer, then reschedules itself if
// the timer rearmed for a periodic interval.
func (f timerFireTask) Run() {
	rearm, next := f.timer.Fire(f.host.Now())
	if rearm {
		f.host.Events.Push(next, f.host.ID, f.host.ID, f)
	}
}
