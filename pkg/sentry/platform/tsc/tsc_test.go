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

package tsc

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/shadowsim/shadow-go/pkg/sentry/arch"
	"github.com/shadowsim/shadow-go/pkg/shadowtime"
)

// TestCyclesMatchesFrequencyMath is spec.md §8's TSC invariant:
// cycles = ns * freq_hz / 1e9.
func TestCyclesMatchesFrequencyMath(t *testing.T) {
	tsc := New(3_000_000_000) // 3 GHz
	got := tsc.Cycles(1 * shadowtime.Second)
	assert.Equal(t, got, uint64(3_000_000_000))
}

func TestCyclesAtZeroTime(t *testing.T) {
	tsc := New(2_000_000_000)
	assert.Equal(t, tsc.Cycles(0), uint64(0))
}

func TestCyclesScalesLinearlyBelowOneSecond(t *testing.T) {
	tsc := New(1_000_000_000) // 1 GHz
	got := tsc.Cycles(500 * shadowtime.Millisecond)
	assert.Equal(t, got, uint64(500_000_000))
}

func TestEmulateRdtscSplitsCyclesAndAdvancesRip(t *testing.T) {
	tsc := New(1 << 33) // large enough to exercise the high dword
	regs := &arch.Regs{Rip: 0x1000}
	now := 1 * shadowtime.Second

	tsc.EmulateRdtsc(regs, now)

	cycles := tsc.Cycles(now)
	assert.Equal(t, regs.Rax, cycles&0xffffffff)
	assert.Equal(t, regs.Rdx, cycles>>32)
	assert.Equal(t, regs.Rip, uint64(0x1002))
}

func TestEmulateRdtscpAdvancesRipByThreeAndReportsCPU(t *testing.T) {
	tsc := New(2_000_000_000)
	regs := &arch.Regs{Rip: 0x2000}

	ecx := tsc.EmulateRdtscp(regs, 1*shadowtime.Second)

	assert.Equal(t, regs.Rip, uint64(0x2003))
	assert.Equal(t, ecx, uint32(0))
}

func TestIsRdtscMatchesEncoding(t *testing.T) {
	assert.Assert(t, IsRdtsc([]byte{0x0f, 0x31}))
	assert.Assert(t, !IsRdtsc([]byte{0x0f, 0x32}))
	assert.Assert(t, !IsRdtsc([]byte{0x0f}))
}

func TestIsRdtscpMatchesEncoding(t *testing.T) {
	assert.Assert(t, IsRdtscp([]byte{0x0f, 0x01, 0xf9}))
	assert.Assert(t, !IsRdtscp([]byte{0x0f, 0x01, 0xf8}))
	assert.Assert(t, !IsRdtscp([]byte{0x0f, 0x01}))
}
