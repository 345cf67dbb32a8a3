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

package seccomp

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/shadowsim/shadow-go/pkg/abi/linux"
)

func TestRuleMatchEmptyRuleMatchesAnyArgs(t *testing.T) {
	var r Rule
	assert.Assert(t, r.match([6]uint64{1, 2, 3, 4, 5, 6}))
}

func TestRuleMatchEqualTo(t *testing.T) {
	r := Rule{EqualTo(42)}
	assert.Assert(t, r.match([6]uint64{42}))
	assert.Assert(t, !r.match([6]uint64{43}))
}

func TestRuleMatchAnySkipsCheckingThatArg(t *testing.T) {
	r := Rule{MatchAny{}, EqualTo(7)}
	assert.Assert(t, r.match([6]uint64{999, 7}))
}

func TestEvaluatorAllowsNamedSyscallWithNoRules(t *testing.T) {
	rules := []RuleSet{{Rules: SyscallRules{1: nil}, Action: linux.SECCOMP_RET_ALLOW}}
	e := NewEvaluator(rules, linux.SECCOMP_RET_TRAP, linux.SECCOMP_RET_TRAP)
	assert.Equal(t, e.Eval(1, [6]uint64{}), linux.SECCOMP_RET_ALLOW)
}

func TestEvaluatorFallsBackToDefaultForUnnamedSyscall(t *testing.T) {
	rules := []RuleSet{{Rules: SyscallRules{1: nil}, Action: linux.SECCOMP_RET_ALLOW}}
	e := NewEvaluator(rules, linux.SECCOMP_RET_TRAP, linux.SECCOMP_RET_ERRNO)
	assert.Equal(t, e.Eval(2, [6]uint64{}), linux.SECCOMP_RET_ERRNO)
}

// TestEvaluatorTrapsOnNamedSyscallWhoseRulesAllFail matches gVisor's
// per-ruleset trap semantics: a syscall with a RuleSet but no matching Rule
// gets trapAction, not defaultAction.
func TestEvaluatorTrapsOnNamedSyscallWhoseRulesAllFail(t *testing.T) {
	rules := []RuleSet{{
		Rules:  SyscallRules{3: {{EqualTo(5)}}},
		Action: linux.SECCOMP_RET_ALLOW,
	}}
	e := NewEvaluator(rules, linux.SECCOMP_RET_TRAP, linux.SECCOMP_RET_ERRNO)
	assert.Equal(t, e.Eval(3, [6]uint64{6}), linux.SECCOMP_RET_TRAP)
}

func TestEvaluatorFirstMatchingRuleSetWins(t *testing.T) {
	rules := []RuleSet{
		{Rules: SyscallRules{1: nil}, Action: linux.SECCOMP_RET_ALLOW},
		{Rules: SyscallRules{1: nil}, Action: linux.SECCOMP_RET_ERRNO},
	}
	e := NewEvaluator(rules, linux.SECCOMP_RET_TRAP, linux.SECCOMP_RET_TRAP)
	assert.Equal(t, e.Eval(1, [6]uint64{}), linux.SECCOMP_RET_ALLOW)
}

func TestBuildProgramEndsWithDefaultActionReturn(t *testing.T) {
	rules := []RuleSet{{Rules: SyscallRules{1: nil}, Action: linux.SECCOMP_RET_ALLOW}}
	prog, err := BuildProgram(rules, linux.SECCOMP_RET_TRAP, linux.SECCOMP_RET_ERRNO)
	assert.NilError(t, err)
	assert.Assert(t, len(prog) >= 2)

	last := prog[len(prog)-1]
	assert.Equal(t, last.K, uint32(linux.SECCOMP_RET_ERRNO))
}

func TestBuildProgramDedupesRepeatedSyscallAcrossRuleSets(t *testing.T) {
	rules := []RuleSet{
		{Rules: SyscallRules{1: nil}, Action: linux.SECCOMP_RET_ALLOW},
		{Rules: SyscallRules{1: nil}, Action: linux.SECCOMP_RET_ERRNO},
	}
	prog, err := BuildProgram(rules, linux.SECCOMP_RET_TRAP, linux.SECCOMP_RET_TRAP)
	assert.NilError(t, err)

	// one jump+return pair for syscall 1 (first rule set wins), plus the
	// load instruction and the trailing default-action return.
	assert.Equal(t, len(prog), 4)
}
