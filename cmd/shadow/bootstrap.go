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

package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"github.com/shadowsim/shadow-go/pkg/log"
	"github.com/shadowsim/shadow-go/pkg/shim"
)

// bootstrapCommand implements subcommands.Command for "bootstrap": the
// managed-subprocess entry point spec.md §4.2/§6 describes -- parsing the
// SHADOW_* environment variables a real shim constructor reads once, at
// process load, before any seccomp filter or signal handler is installed.
// Real ELF/ptrace attach is an external collaborator (spec.md §1
// non-goal), so this command's job ends at config parsing and log setup;
// pkg/shim.Runner (driven from the shadow side, not this binary) is what
// actually exercises the IPC/dispatch loop those parsed values configure.
type bootstrapCommand struct{}

func (*bootstrapCommand) Name() string     { return "bootstrap" }
func (*bootstrapCommand) Synopsis() string { return "parse SHADOW_* env and report the shim bootstrap config" }
func (*bootstrapCommand) Usage() string {
	return "bootstrap - parse SHADOW_* environment variables as the shim's load-time bootstrap would\n"
}
func (*bootstrapCommand) SetFlags(*flag.FlagSet) {}

func (*bootstrapCommand) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	cfg, err := shim.ConfigFromEnv(os.Environ())
	if err != nil {
		log.Errorf("shadow bootstrap: %v", err)
		return subcommands.ExitFailure
	}
	if !cfg.Spawned {
		log.Errorf("shadow bootstrap: %s not set; not running under shadow", shim.EnvSpawned)
		return subcommands.ExitFailure
	}

	log.SetLevel(cfg.LogLevel)
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Errorf("shadow bootstrap: open %s: %v", cfg.LogFile, err)
			return subcommands.ExitFailure
		}
		defer f.Close()
		log.SetOutput(f)
	}

	log.Infof("shadow bootstrap: interpose=%s tsc_hz=%d parent_pid=%d seccomp=%v ipc_region=%s shm_region=%s",
		cfg.InterposeMethod, cfg.TSCHz, cfg.ParentPID, cfg.UseSeccomp, cfg.IPCBlock.RegionName, cfg.SHMBlock.RegionName)
	return subcommands.ExitSuccess
}
