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

package timerfd

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/shadowsim/shadow-go/pkg/shadowtime"
)

func TestSetTimeRelativeArmsFromNow(t *testing.T) {
	tm := New(nil)
	old := tm.SetTime(100, 0, Spec{Value: 50 * shadowtime.Millisecond})
	assert.Equal(t, old, Spec{})

	next, armed := tm.NextExpiry()
	assert.Assert(t, armed)
	assert.Equal(t, next, shadowtime.SimTime(100+50*shadowtime.Millisecond))
}

func TestSetTimeZeroValueDisarms(t *testing.T) {
	tm := New(nil)
	tm.SetTime(0, 0, Spec{Value: 10})
	tm.SetTime(0, 0, Spec{})

	_, armed := tm.NextExpiry()
	assert.Assert(t, !armed)
}

func TestSetTimeAbstimeResolvesAgainstEpoch(t *testing.T) {
	tm := New(nil)
	const epoch shadowtime.EpochOffset = 1000
	tm.SetTime(0, epoch, Spec{Value: 1500, Abstime: true})

	next, armed := tm.NextExpiry()
	assert.Assert(t, armed)
	assert.Equal(t, next, shadowtime.SimTime(500))
}

func TestSetTimeReturnsPreviousSpec(t *testing.T) {
	tm := New(nil)
	tm.SetTime(0, 0, Spec{Value: 5})
	old := tm.SetTime(0, 0, Spec{Value: 9})
	assert.Equal(t, old, Spec{Value: 5})
}

func TestFireOneShotDisarmsAfterFiring(t *testing.T) {
	tm := New(nil)
	tm.SetTime(0, 0, Spec{Value: 10})

	rearm, _ := tm.Fire(10)
	assert.Assert(t, !rearm)

	_, armed := tm.NextExpiry()
	assert.Assert(t, !armed)
}

func TestFirePeriodicRearmsAtInterval(t *testing.T) {
	tm := New(nil)
	tm.SetTime(0, 0, Spec{Value: 10, Interval: 5})

	rearm, next := tm.Fire(10)
	assert.Assert(t, rearm)
	assert.Equal(t, next, shadowtime.SimTime(15))

	got, armed := tm.NextExpiry()
	assert.Assert(t, armed)
	assert.Equal(t, got, shadowtime.SimTime(15))
}

func TestFireInvokesOnReadable(t *testing.T) {
	calls := 0
	tm := New(func() { calls++ })
	tm.SetTime(0, 0, Spec{Value: 1})
	tm.Fire(1)
	assert.Equal(t, calls, 1)
}

func TestReadExpirationsClearsCount(t *testing.T) {
	tm := New(nil)
	tm.SetTime(0, 0, Spec{Value: 1, Interval: 1})
	tm.Fire(1)
	tm.Fire(2)
	tm.Fire(3)

	count, ok := tm.ReadExpirations()
	assert.Assert(t, ok)
	assert.Equal(t, count, uint64(3))

	_, ok = tm.ReadExpirations()
	assert.Assert(t, !ok)
}

func TestReadExpirationsEmptyReturnsFalse(t *testing.T) {
	tm := New(nil)
	_, ok := tm.ReadExpirations()
	assert.Assert(t, !ok)
}
