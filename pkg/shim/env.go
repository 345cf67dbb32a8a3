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

// Package shim implements the in-managed-process half of the syscall
// interposition channel (spec.md §4.2, C4): environment-driven
// bootstrapping, the shared-memory fast path for time-reading syscalls, the
// disable_interp recursion guard, the seccomp text-range allowlist
// technique, RDTSC/RDTSCP emulation, and the Cell-driven Runner that closes
// the loop with pkg/sentry/kernel's dispatcher.
//
// Real ELF loading, ptrace attach, and an actual installed seccomp-bpf
// filter are out of scope (spec.md §1 non-goals: the ELF/TLS dynamic
// loader is an external collaborator, and this module does not fork real
// managed binaries). This package models the logical behavior the shim
// exhibits -- the fast path, the yield threshold, the trap-to-IPC
// conversion, the RIP-range allowlist decision -- in a form testable
// without a kernel seccomp filter actually installed.
package shim

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shadowsim/shadow-go/pkg/ipc"
	"github.com/shadowsim/shadow-go/pkg/log"
)

// InterposeMethod is SHADOW_INTERPOSE_METHOD (spec.md §6).
type InterposeMethod int

const (
	Preload InterposeMethod = iota
	Ptrace
)

func (m InterposeMethod) String() string {
	switch m {
	case Preload:
		return "PRELOAD"
	case Ptrace:
		return "PTRACE"
	default:
		return fmt.Sprintf("InterposeMethod(%d)", m)
	}
}

// Environment variable names the shim reads at load time (spec.md §6).
const (
	EnvSpawned            = "SHADOW_SPAWNED"
	EnvInterposeMethod     = "SHADOW_INTERPOSE_METHOD"
	EnvLogStartTime        = "SHADOW_LOG_START_TIME"
	EnvLogFile             = "SHADOW_LOG_FILE"
	EnvLogLevel            = "SHADOW_LOG_LEVEL"
	EnvPID                 = "SHADOW_PID"
	EnvIPCBlock            = "SHADOW_IPC_BLK"
	EnvSHMBlock            = "SHADOW_SHM_BLK"
	EnvTSCHz               = "SHADOW_TSC_HZ"
	EnvUseSeccomp          = "SHADOW_USE_SECCOMP"
	EnvDisableShimSyscall  = "SHADOW_DISABLE_SHIM_SYSCALL"
)

// Config is the shim's bootstrap configuration, parsed once per load from
// the environment variables the parent shadow process sets before exec'ing
// the managed binary (spec.md §4.2, §6).
type Config struct {
	Spawned bool

	InterposeMethod InterposeMethod

	LogStartTimeUs int64
	LogFile        string
	LogLevel       log.Level

	ParentPID int

	IPCBlock ipc.ShMem
	SHMBlock ipc.ShMem

	TSCHz uint64

	UseSeccomp         bool
	DisableShimSyscall bool
}

// environMap turns an environ slice (os.Environ or a test-supplied slice)
// into the key/value map ConfigFromEnv reads.
func environMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

// ConfigFromEnv parses environ (typically os.Environ()) into a Config,
// mirroring the shim's one-time startup read (spec.md §4.2). Absence of
// SHADOW_SPAWNED is not an error -- it simply means the process is not
// running under Shadow, and Spawned will be false; every other field is
// only meaningful when Spawned is true.
func ConfigFromEnv(environ []string) (Config, error) {
	env := environMap(environ)
	var cfg Config
	if _, ok := env[EnvSpawned]; ok {
		cfg.Spawned = true
	}
	if !cfg.Spawned {
		return cfg, nil
	}

	switch env[EnvInterposeMethod] {
	case "", "PRELOAD":
		cfg.InterposeMethod = Preload
	case "PTRACE":
		cfg.InterposeMethod = Ptrace
	default:
		return Config{}, fmt.Errorf("shim: unrecognized %s=%q", EnvInterposeMethod, env[EnvInterposeMethod])
	}

	if v, ok := env[EnvLogStartTime]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("shim: %s: %w", EnvLogStartTime, err)
		}
		cfg.LogStartTimeUs = n
	}
	cfg.LogFile = env[EnvLogFile]
	if v, ok := env[EnvLogLevel]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("shim: %s: %w", EnvLogLevel, err)
		}
		cfg.LogLevel = log.ParseLevel(n)
	}

	if v, ok := env[EnvPID]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("shim: %s: %w", EnvPID, err)
		}
		cfg.ParentPID = n
	}

	if v, ok := env[EnvTSCHz]; ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("shim: %s: %w", EnvTSCHz, err)
		}
		cfg.TSCHz = n
	}

	if _, ok := env[EnvUseSeccomp]; ok {
		cfg.UseSeccomp = true
	}
	cfg.DisableShimSyscall = env[EnvDisableShimSyscall] == "TRUE"

	if v, ok := env[EnvIPCBlock]; ok {
		blk, err := parseShMemEnv(v)
		if err != nil {
			return Config{}, fmt.Errorf("shim: %s: %w", EnvIPCBlock, err)
		}
		cfg.IPCBlock = blk
	}
	if v, ok := env[EnvSHMBlock]; ok {
		blk, err := parseShMemEnv(v)
		if err != nil {
			return Config{}, fmt.Errorf("shim: %s: %w", EnvSHMBlock, err)
		}
		cfg.SHMBlock = blk
	}

	return cfg, nil
}

// parseShMemEnv decodes the "name:offset:size" form this module uses to
// carry a ShMem descriptor through an environment variable. The real
// implementation passes the fixed-size SerializedBlock (spec.md §6) through
// a binary-safe channel (a pre-opened fd); an env var must be printable, so
// this is this module's own text encoding of the same three fields.
func parseShMemEnv(v string) (ipc.ShMem, error) {
	parts := strings.SplitN(v, ":", 3)
	if len(parts) != 3 {
		return ipc.ShMem{}, fmt.Errorf("want name:offset:size, got %q", v)
	}
	offset, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return ipc.ShMem{}, fmt.Errorf("offset: %w", err)
	}
	size, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return ipc.ShMem{}, fmt.Errorf("size: %w", err)
	}
	return ipc.ShMem{RegionName: parts[0], Offset: offset, Size: size}, nil
}
