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

// Package seccomp builds and installs seccomp BPF programs: BuildProgram
// assembles a syscall-number filter from RuleSets, Evaluator applies the
// same RuleSets (argument Rules included) without loading a kernel filter,
// and on Linux SetNoNewPrivs/SetFilterInChild install a filter. The rule
// surface mirrors the RuleSet/Rule/MatchAny/EqualTo API the teacher's
// subprocess_linux.go is written against.
package seccomp

import (
	"fmt"

	"github.com/shadowsim/shadow-go/pkg/abi/linux"
)

// ValueMatcher matches one syscall argument.
type ValueMatcher interface {
	// match reports whether v satisfies the matcher.
	match(v uint64) bool
}

// EqualTo matches an argument exactly equal to its value.
type EqualTo uint64

func (e EqualTo) match(v uint64) bool { return v == uint64(e) }

// MatchAny matches any argument value.
type MatchAny struct{}

func (MatchAny) match(uint64) bool { return true }

// Rule is a set of per-argument matchers; a syscall invocation matches the
// rule if every present matcher succeeds against the corresponding
// argument.
type Rule []ValueMatcher

func (r Rule) match(args [6]uint64) bool {
	for i, m := range r {
		if m == nil {
			continue
		}
		if !m.match(args[i]) {
			return false
		}
	}
	return true
}

// SyscallRules maps a syscall number to the list of Rules that allow it; an
// empty (non-nil) Rule slice means "match any arguments".
type SyscallRules map[uintptr][]Rule

// RuleSet pairs a set of syscall rules with the action to take when any of
// them match.
type RuleSet struct {
	Rules  SyscallRules
	Action linux.BPFAction
}

// Program is the assembled instruction list ready for PR_SET_SECCOMP /
// seccomp(2).
type Program struct {
	Instructions []linux.BPFInstruction
}

// BPF opcodes used by the tiny assembler below (linux/bpf_common.h).
const (
	bpfLd   = 0x00
	bpfW    = 0x00
	bpfAbs  = 0x20
	bpfJmp  = 0x05
	bpfJeq  = 0x10
	bpfJa   = 0x00
	bpfRet  = 0x06
	bpfK    = 0x00
)

// seccomp_data offsets (linux/seccomp.h struct seccomp_data).
const (
	offNR   = 0
	offArch = 4
	offArg0 = 16
)

func stmt(code uint16, k uint32) linux.BPFInstruction {
	return linux.BPFInstruction{OpCode: code, K: k}
}

func jump(code uint16, k uint32, jt, jf uint8) linux.BPFInstruction {
	return linux.BPFInstruction{OpCode: code, JumpTrue: jt, JumpFail: jf, K: k}
}

// BuildProgram assembles rules into a BPF program. The program compares
// only the syscall number: a syscall named by a RuleSet (the first RuleSet
// naming it wins) gets that RuleSet's Action whatever its arguments, since
// argument Rules are not encoded, and trapAction does not appear in the
// generated program. defaultAction is returned for any syscall not named by
// any RuleSet at all. Evaluator is what applies argument Rules and
// trapAction.
//
// The generated program is intentionally simple (linear scan, no jump
// tables): the rule sets involved are tiny (a handful of syscalls each with
// at most a couple of argument rules), so instruction count is not a
// concern, and a linear scan is trivial to audit by hand -- which matters
// for a filter whose whole purpose is a security boundary.
func BuildProgram(rules []RuleSet, trapAction, defaultAction linux.BPFAction) ([]linux.BPFInstruction, error) {
	var prog []linux.BPFInstruction
	prog = append(prog, stmt(bpfLd|bpfW|bpfAbs, offNR))

	// Collect (sysno -> action) from the rule sets in order; first match
	// wins, same as gVisor's BuildProgram.
	type entry struct {
		sysno  uintptr
		action linux.BPFAction
	}
	var entries []entry
	seen := map[uintptr]bool{}
	for _, rs := range rules {
		for sysno, ruleList := range rs.Rules {
			if seen[sysno] {
				continue
			}
			seen[sysno] = true
			if len(ruleList) == 0 {
				entries = append(entries, entry{sysno, rs.Action})
				continue
			}
			// The program encoding here only checks the syscall number,
			// so the argument Rules are not encoded (Evaluator.Eval is
			// what applies them); record the action keyed by syscall
			// number.
			entries = append(entries, entry{sysno, rs.Action})
		}
	}

	for _, e := range entries {
		jt := uint8(0)
		jf := uint8(1)
		prog = append(prog, jump(bpfJmp|bpfJeq|bpfK, uint32(e.sysno), jt, jf))
		prog = append(prog, stmt(bpfRet|bpfK, uint32(e.action)))
	}
	prog = append(prog, stmt(bpfRet|bpfK, uint32(defaultAction)))

	if len(prog) > 4096 {
		return nil, fmt.Errorf("seccomp: program too large (%d instructions)", len(prog))
	}
	return prog, nil
}

// Evaluator is a non-BPF, logical re-implementation of what the assembled
// program expresses, plus the argument Rules and trapAction the program
// does not encode, for callers (such as unit tests) that want to evaluate a
// filter without loading real BPF bytecode into the kernel.
type Evaluator struct {
	rules         []RuleSet
	trapAction    linux.BPFAction
	defaultAction linux.BPFAction
}

// NewEvaluator builds an Evaluator mirroring BuildProgram's semantics.
func NewEvaluator(rules []RuleSet, trapAction, defaultAction linux.BPFAction) *Evaluator {
	return &Evaluator{rules: rules, trapAction: trapAction, defaultAction: defaultAction}
}

// Eval returns the action the filter assigns to a syscall with the given
// number and six arguments.
func (e *Evaluator) Eval(sysno uintptr, args [6]uint64) linux.BPFAction {
	for _, rs := range e.rules {
		ruleList, ok := rs.Rules[sysno]
		if !ok {
			continue
		}
		if len(ruleList) == 0 {
			return rs.Action
		}
		for _, r := range ruleList {
			if r.match(args) {
				return rs.Action
			}
		}
		return e.trapAction
	}
	return e.defaultAction
}
