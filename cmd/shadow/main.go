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

// Command shadow is the simulation core's entrypoint (SPEC_FULL §5),
// built the way runsc/main.go + runsc/cli/main.go build runsc's: a
// subcommands.Commander registering a small command tree over a shared
// flag set, in the teacher's own idiom.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"github.com/shadowsim/shadow-go/pkg/log"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&runCommand{}, "")
	subcommands.Register(&versionCommand{}, "")
	subcommands.Register(&bootstrapCommand{}, "")

	os.Exit(mainImpl())
}

// mainImpl runs the selected subcommand and returns its
// subcommands.ExitStatus as the process exit code: 0 on success, nonzero
// when the command fails (a bad config, an aborted run). The exit statuses
// of the simulated hosts' processes are not consulted.
func mainImpl() int {
	flag.Parse()

	ctx := context.Background()
	status := subcommands.Execute(ctx)
	if status != subcommands.ExitSuccess {
		log.Errorf("shadow: command exited with status %v", status)
	}
	return int(status)
}
